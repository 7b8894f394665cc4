// File: cmd/history.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpellegro/wasend-cli/internal/history"
)

// newHistoryCmd creates and configures the `history` command.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Shows past runs, or the per-contact attempts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := history.Open(appCfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				attempts, err := store.Attempts(ctx, args[0])
				if err != nil {
					return err
				}
				if len(attempts) == 0 {
					fmt.Println("no attempts recorded for that run")
					return nil
				}
				fmt.Fprintln(w, "ROW\tNAME\tPHONE\tOUTCOME\tDETAIL")
				for _, a := range attempts {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.Row, a.Name, a.Phone, a.Outcome, a.Detail)
				}
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded yet")
				return nil
			}
			fmt.Fprintln(w, "RUN\tSTARTED\tPLANNED\tSENT\tFAILED\tSTOPPED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%t\n",
					r.RunID, r.StartedAt.Format("2006-01-02 15:04"), r.Planned, r.Sent, r.Failed, r.Stopped)
			}
			return nil
		},
	}

	historyCmd.Flags().Int("limit", 20, "how many runs to list")
	return historyCmd
}
