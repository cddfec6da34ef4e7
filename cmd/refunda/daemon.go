package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/refunda-ai/refunda/internal/client"
)

func newDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Manage the refunda daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	status := &cobra.Command{
		Use:           "status",
		Short:         "Show daemon status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStatus,
	}

	stop := &cobra.Command{
		Use:           "stop",
		Short:         "Ask the daemon to shut down",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStop,
	}

	cmd.AddCommand(status, stop)
	return cmd
}

func daemonStatus(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	st, err := c.Status()
	if err != nil {
		return out.Error("Daemon is not responding", err)
	}

	if out.jsonMode {
		return out.Print(st)
	}

	uptime := time.Duration(st.UptimeSeconds * float64(time.Second)).Round(time.Second)
	fmt.Printf("Instance:    %s\n", st.Instance)
	fmt.Printf("Version:     %s\n", st.Version)
	fmt.Printf("Uptime:      %s\n", uptime)
	fmt.Printf("Sessions:    %d running / %d total\n", st.SessionsRunning, st.SessionsTotal)
	fmt.Printf("Customers:   %d\n", st.EligibilityCount)
	fmt.Printf("Auth:        %v\n", st.AuthRequired)
	if len(st.Decisions) > 0 {
		fmt.Println("Decisions:")
		for _, status := range []string{"approved", "denied", "error"} {
			if count, ok := st.Decisions[status]; ok {
				fmt.Printf("  %-9s %d\n", status, count)
			}
		}
	}
	return nil
}

func daemonStop(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	if err := c.ShutdownDaemon(); err != nil {
		return out.Error("Failed to stop daemon", err)
	}

	return out.Success("Daemon is shutting down", nil)
}
