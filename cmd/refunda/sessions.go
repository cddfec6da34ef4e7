package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/refunda-ai/refunda/internal/client"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sessions",
		Short:         "Inspect and control refund sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List all sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          listSessions,
	}

	show := &cobra.Command{
		Use:           "show [session-id]",
		Short:         "Show a session and its conversation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showSession,
	}

	stop := &cobra.Command{
		Use:           "stop [session-id]",
		Short:         "Stop a running session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          stopSession,
	}

	cmd.AddCommand(list, show, stop)
	return cmd
}

func listSessions(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	sessions, err := c.ListSessions()
	if err != nil {
		return out.Error("Failed to list sessions", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{"sessions": sessions})
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tSOURCE\tTURNS\tDECIDED\tSTARTED")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\t%s\n",
			sess.ID,
			sess.Status,
			sess.InputSource,
			sess.Turns,
			sess.Decided,
			sess.StartTime.Local().Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func showSession(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	sessionID := args[0]

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	sess, err := c.GetSession(sessionID)
	if err != nil {
		return out.Error("Failed to fetch session", err)
	}
	conv, err := c.Conversation(sessionID)
	if err != nil {
		return out.Error("Failed to fetch conversation", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{
			"session":      sess,
			"conversation": conv,
		})
	}

	fmt.Printf("Session %s\n", sess.ID)
	fmt.Printf("  Status:  %s\n", sess.Status)
	fmt.Printf("  Source:  %s\n", sess.InputSource)
	fmt.Printf("  Started: %s\n", sess.StartTime.Local().Format(time.RFC3339))
	if sess.Email != "" {
		fmt.Printf("  Email:   %s\n", sess.Email)
	}
	if sess.Last4 != "" {
		fmt.Printf("  Card:    ****%s\n", sess.Last4)
	}
	if sess.OrderNumber != 0 {
		fmt.Printf("  Order:   %d\n", sess.OrderNumber)
	}

	if len(conv.Lines) == 0 {
		fmt.Println("  (no conversation yet)")
		return nil
	}
	fmt.Println("Conversation:")
	for _, line := range conv.Lines {
		fmt.Printf("  %s: %s\n", line.Speaker, line.Text)
	}
	return nil
}

func stopSession(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	sessionID := args[0]

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	if err := c.StopSession(sessionID); err != nil {
		return out.Error("Failed to stop session", err)
	}

	return out.Success(fmt.Sprintf("Session %s stopped", sessionID), map[string]interface{}{
		"session_id": sessionID,
	})
}
