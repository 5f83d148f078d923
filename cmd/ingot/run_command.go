package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ingot/internal/config"
	"ingot/internal/logging"
	"ingot/internal/runner"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceFlag string
		parentFlag string
		promote    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process inbound files into the Bronze layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.logger()
			if err != nil {
				return err
			}
			log = logging.WithComponent(log, "run")

			opts := runner.Options{Source: sourceFlag, ParentGUID: parentFlag}
			if promote {
				opts.Destination = config.DestinationPromote
			}

			summary, err := runner.Run(cmd.Context(), cfg, log, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range summary.Folders {
				fmt.Fprintf(out, "%-20s %-8s promoted=%d quarantined=%d empty=%d failed=%d rows=%d\n",
					f.Source, f.Status, f.Promoted, f.Quarantined, f.Empty, f.Failed, f.RowsWritten)
			}
			fmt.Fprintf(out, "run %s: %d source(s), %d file(s) promoted, %d row(s) written\n",
				summary.ExecutionGUID, len(summary.Folders), summary.Promoted, summary.RowsWritten)

			if !summary.Success {
				return fmt.Errorf("run finished with failures")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceFlag, "source", "s", "", "Process a single source folder")
	cmd.Flags().StringVar(&parentFlag, "parent-id", "", "Correlation id of the invoking orchestrator")
	cmd.Flags().BoolVar(&promote, "promote", false, "Move promoted files to the Silver inbound layer instead of the archive")
	return cmd
}
