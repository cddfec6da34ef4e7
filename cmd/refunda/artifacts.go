package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/refunda-ai/refunda/internal/client"
)

func newArtifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "artifacts",
		Short:         "Browse artifact files written by the daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var kind string
	list := &cobra.Command{
		Use:           "list",
		Short:         "List artifact files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listArtifacts(cmd, kind)
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "Filter by artifact kind (decision_log, receipt, transcript, metrics)")

	var latestKind string
	latest := &cobra.Command{
		Use:           "latest",
		Short:         "Show the most recent artifact",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return latestArtifact(cmd, latestKind)
		},
	}
	latest.Flags().StringVar(&latestKind, "kind", "", "Filter by artifact kind (decision_log, receipt, transcript, metrics)")

	cmd.AddCommand(list, latest)
	return cmd
}

func listArtifacts(cmd *cobra.Command, kind string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	infos, err := c.ListArtifacts(kind)
	if err != nil {
		return out.Error("Failed to list artifacts", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{"artifacts": infos})
	}

	if len(infos) == 0 {
		fmt.Println("No artifacts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND\tSIZE\tMODIFIED")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			info.Name,
			info.Kind,
			info.Size,
			info.ModTime.Local().Format(time.RFC3339),
		)
	}
	return w.Flush()
}

func latestArtifact(cmd *cobra.Command, kind string) error {
	out := newOutputFormatter(cmd)

	c, err := client.New()
	if err != nil {
		return out.Error("Failed to connect to daemon", err)
	}

	info, err := c.LatestArtifact(kind)
	if err != nil {
		return out.Error("Failed to fetch latest artifact", err)
	}

	if out.jsonMode {
		return out.Print(info)
	}

	fmt.Printf("Name:     %s\n", info.Name)
	fmt.Printf("Kind:     %s\n", info.Kind)
	fmt.Printf("Path:     %s\n", info.Path)
	fmt.Printf("Size:     %d bytes\n", info.Size)
	fmt.Printf("Modified: %s\n", info.ModTime.Local().Format(time.RFC3339))
	return nil
}
