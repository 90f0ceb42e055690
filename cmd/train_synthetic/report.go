package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurlang/seqadv/report"
)

func newReportCommand() *cobra.Command {
	var runID, kind string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "List the reports stored in the metrics database",
		Long: `List the training and validation reports of a run kept in --metrics-db.

Without --run the most recent run is shown.`,
		Example: `  # Validation reports of the last run
  train_synthetic report --kind valid`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			opts, err := getOptions(ctx)
			if err != nil {
				return err
			}
			if opts.MetricsDB == "" {
				return fmt.Errorf("no metrics database configured")
			}
			store, err := report.OpenStore(ctx, opts.MetricsDB)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if runID == "" {
				runs, err := store.Runs(ctx)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					return fmt.Errorf("no runs in %s", opts.MetricsDB)
				}
				runID = runs[len(runs)-1]
			}
			rows, err := store.Reports(ctx, runID, kind)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", runID)
			report.RenderReports(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest run)")
	cmd.Flags().StringVar(&kind, "kind", "", "report kind: train or valid (default: both)")
	return cmd
}
