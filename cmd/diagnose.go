// File: cmd/diagnose.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpellegro/wasend-cli/internal/browser"
	"github.com/mpellegro/wasend-cli/internal/diagnose"
	"github.com/mpellegro/wasend-cli/internal/observability"
)

// newDiagnoseCmd creates and configures the `diagnose` command.
func newDiagnoseCmd() *cobra.Command {
	diagCmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Snapshots the WhatsApp Web DOM to debug selector drift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			connector := browser.NewConnector(appCfg.Browser, logger)
			handle, err := connector.Attach(ctx)
			if err != nil {
				return err
			}
			defer handle.Detach()

			if err := handle.EnsureFrontend(ctx); err != nil {
				return err
			}

			report, err := diagnose.Capture(handle.Ctx)
			if err != nil {
				return err
			}
			diagnose.Summarize(report, logger)

			out, _ := cmd.Flags().GetString("output")
			if err := diagnose.Write(out, report); err != nil {
				return err
			}
			fmt.Printf("DOM snapshot written to %s\n", out)
			return nil
		},
	}

	diagCmd.Flags().String("output", "dom_snapshot.json", "where to write the snapshot JSON")
	return diagCmd
}
