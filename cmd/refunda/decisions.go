package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/refunda-ai/refunda/internal/api"
	"github.com/refunda-ai/refunda/internal/client"
)

func newDecisionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "decisions",
		Short:         "Browse the persisted refund decision history",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var limit int
	list := &cobra.Command{
		Use:           "list",
		Short:         "List recent refund decisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listDecisions(cmd, limit)
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "Maximum number of decisions to return")

	latest := &cobra.Command{
		Use:           "latest",
		Short:         "Show the most recent refund decision",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          latestDecision,
	}

	cmd.AddCommand(list, latest)
	return cmd
}

func listDecisions(cmd *cobra.Command, limit int) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	decisions, err := c.ListDecisions(limit)
	if err != nil {
		return out.Error("Failed to list decisions", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{"decisions": decisions})
	}

	if len(decisions) == 0 {
		fmt.Println("No decisions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tSTATUS\tREFUND\tAMOUNT\tWHEN")
	for _, d := range decisions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			d.ID,
			d.SessionID,
			d.Status,
			orDash(d.RefundID),
			formatAmount(d.Amount),
			d.CreatedAt.Local().Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func latestDecision(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	d, err := c.LatestDecision()
	if err != nil {
		return out.Error("Failed to fetch latest decision", err)
	}

	if out.jsonMode {
		return out.Print(d)
	}

	printDecisionRecord(d)
	return nil
}

func printDecisionRecord(d api.DecisionRecordDTO) {
	fmt.Printf("Decision #%d\n", d.ID)
	fmt.Printf("  Session: %s\n", d.SessionID)
	fmt.Printf("  Status:  %s\n", d.Status)
	if d.RefundID != "" {
		fmt.Printf("  Refund:  %s\n", d.RefundID)
	}
	if d.Amount != 0 {
		fmt.Printf("  Amount:  $%.2f\n", d.Amount)
	}
	if d.Reason != "" {
		fmt.Printf("  Reason:  %s\n", d.Reason)
	}
	if d.Email != "" {
		fmt.Printf("  Email:   %s\n", d.Email)
	}
	if d.Last4 != "" {
		fmt.Printf("  Card:    ****%s\n", d.Last4)
	}
	if d.OrderNumber != 0 {
		fmt.Printf("  Order:   %d\n", d.OrderNumber)
	}
	fmt.Printf("  When:    %s\n", d.CreatedAt.Local().Format(time.RFC3339))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatAmount(amount float64) string {
	if amount == 0 {
		return "-"
	}
	return fmt.Sprintf("$%.2f", amount)
}
