package commands

import (
	"github.com/spf13/cobra"

	"github.com/zhouzirui/avatar-call/backend/internal/view"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List persona profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().profiles(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, resp)
		}
		for _, p := range resp.Profiles {
			marker := " "
			if p.ID == resp.Default {
				marker = "*"
			}
			printf(cmd, "%s %s  %s\n", marker, headerStyle.Render(p.ID), dimStyle.Render(view.BackendText(p.Backend)))
		}
		return nil
	},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools advertised by the custom LLM layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		tools, err := apiClient().tools(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, tools)
		}
		for _, t := range tools {
			printf(cmd, "%s  %s\n", headerStyle.Render(t.Function.Name), dimStyle.Render(t.Function.Description))
		}
		return nil
	},
}
