package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	jsonOutput bool
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

var rootCmd = &cobra.Command{
	Use:   "callctl",
	Short: "Terminal client for the avatar call backend",
	Long: `Terminal client for the avatar call backend.

Drives browser sessions through the backend HTTP API: start a conversation,
inspect the current screen and end it again.

Examples:
  callctl profiles
  callctl start --profile stock
  callctl watch 5f0c...`,
	SilenceUsage: true,
}

func init() {
	defaultServer := os.Getenv("CALLCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "backend base URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")

	rootCmd.AddCommand(profilesCmd, toolsCmd, startCmd, showCmd, endCmd, closeCmd, watchCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func apiClient() *client {
	return newClient(serverURL)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
