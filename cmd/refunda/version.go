package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/refunda-ai/refunda/internal/client"
	"github.com/refunda-ai/refunda/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Show client and daemon versions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          showVersion,
	}
}

func showVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	clientVersion := version.String()
	daemonVersion := ""

	if c, err := client.New(); err == nil {
		if st, err := c.Status(); err == nil {
			daemonVersion = st.Version
		}
	}

	if out.jsonMode {
		payload := map[string]interface{}{
			"client": clientVersion,
		}
		if daemonVersion != "" {
			payload["daemon"] = daemonVersion
		}
		return out.Print(payload)
	}

	fmt.Printf("refunda %s\n", version.FormatVersion(clientVersion))
	if daemonVersion == "" {
		fmt.Println("refundad (not running)")
		return nil
	}
	fmt.Printf("refundad %s\n", version.FormatVersion(daemonVersion))
	if warning := version.CheckVersionMismatch(daemonVersion); warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
	return nil
}
