package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/challenge-bot/pkg/client"
)

var (
	sessionsServer  string
	sessionsToken   string
	sessionsOwner   string
	sessionsChannel string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage running challenge sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List running sessions on a serving bot",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel a running session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.NewClient(sessionsServer, sessionsToken)
		if err := c.CancelSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s cancelled\n", args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsListCmd, sessionsCancelCmd} {
		c.Flags().StringVar(&sessionsServer, "server", "http://localhost:8080", "bot API base URL")
		c.Flags().StringVar(&sessionsToken, "token", os.Getenv("API_TOKEN"), "API token")
	}
	sessionsListCmd.Flags().StringVar(&sessionsOwner, "owner", "", "only sessions of this user id")
	sessionsListCmd.Flags().StringVar(&sessionsChannel, "channel", "", "only sessions in this channel")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsCancelCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	c := client.NewClient(sessionsServer, sessionsToken)
	sessions, err := c.ListSessions(cmd.Context(), client.SessionListOptions{
		OwnerID:   sessionsOwner,
		ChannelID: sessionsChannel,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tCHANNEL\tLANGUAGE\tSTATE\tCHALLENGE\tROUNDS\tAGE")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.OwnerTag, s.ChannelID, s.Language, s.State, s.Challenge, s.Rounds,
			s.Age().Truncate(time.Second))
	}
	return w.Flush()
}
