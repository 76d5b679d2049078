package commands

import (
	"github.com/spf13/cobra"

	sessionHandler "github.com/zhouzirui/avatar-call/backend/internal/handler/session"
	"github.com/zhouzirui/avatar-call/backend/internal/view"
)

var startProfile string

func render(cmd *cobra.Command, resp sessionHandler.Response) error {
	if jsonOutput {
		return printJSON(cmd, resp)
	}
	printf(cmd, "%s %s\n%s\n", dimStyle.Render("session"), resp.Session.ID, view.Terminal(resp.View))
	return nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a session and start a conversation",
	Long: `Create a browser session and start a conversation with the avatar.

On success the session is on the camera check screen and the room URL is
printed. Open the web page with the session id to join the call.

Examples:
  callctl start
  callctl start --profile basic --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		created, err := c.create(cmd.Context(), startProfile)
		if err != nil {
			return err
		}
		resp, err := c.action(cmd.Context(), created.Session.ID, view.ActionStart)
		if err != nil {
			printf(cmd, "%s %s\n", dimStyle.Render("session"), created.Session.ID)
			return err
		}
		return render(cmd, resp)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <session_id>",
	Short: "Render the current screen of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd, resp)
	},
}

var endCmd = &cobra.Command{
	Use:   "end <session_id>",
	Short: "End the conversation and return to welcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := apiClient().action(cmd.Context(), args[0], view.ActionCancel)
		if err != nil {
			return err
		}
		return render(cmd, resp)
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <session_id>",
	Short: "Close a session and forget it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient().remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		printf(cmd, "closed %s\n", args[0])
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <session_id>",
	Short: "Follow screen updates of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return apiClient().watch(cmd.Context(), args[0], func(resp sessionHandler.Response) error {
			return render(cmd, resp)
		})
	},
}

func init() {
	startCmd.Flags().StringVarP(&startProfile, "profile", "p", "", "persona profile id (server default when empty)")
}
