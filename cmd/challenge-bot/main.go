package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "challenge-bot",
	Short: "Chat coding-challenge bot",
	Long: `challenge-bot runs timed coding challenges in chat channels.

Players ask for a challenge in a language, submit code, and the bot compiles
it against hidden tests on a remote compile service. Without a subcommand the
bot is served.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, catalogCmd, sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
