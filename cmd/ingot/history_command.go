package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"ingot/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.History.Path
			if path == "" {
				path = filepath.Join(cfg.AdminDir(), "history.db")
			}

			store, err := history.Open(path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}

			headers := []string{"ID", "Started", "Destination", "Result", "Sources", "Promoted", "Quarantined", "Failed", "Rows"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				result := "failed"
				if run.Success {
					result = "ok"
				}
				rows = append(rows, []string{
					strconv.FormatInt(run.ID, 10),
					run.StartedAt.Format("2006-01-02 15:04:05"),
					run.Destination,
					result,
					strconv.Itoa(run.Sources),
					strconv.Itoa(run.Promoted),
					strconv.Itoa(run.Quarantined),
					strconv.Itoa(run.Failed),
					strconv.Itoa(run.RowsWritten),
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, isTerminal(out)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the per-source results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run id %q", args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.History.Path
			if path == "" {
				path = filepath.Join(cfg.AdminDir(), "history.db")
			}

			store, err := history.Open(path)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			folders, err := store.ListFolderResults(cmd.Context(), runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(folders) == 0 {
				fmt.Fprintf(out, "No folder results for run %d.\n", runID)
				return nil
			}

			headers := []string{"Source", "Status", "Promoted", "Quarantined", "Empty", "Failed", "Rows", "Detail"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
			rows := make([][]string, 0, len(folders))
			for _, f := range folders {
				rows = append(rows, []string{
					f.Source,
					f.Status,
					strconv.Itoa(f.Promoted),
					strconv.Itoa(f.Quarantined),
					strconv.Itoa(f.Empty),
					strconv.Itoa(f.Failed),
					strconv.Itoa(f.RowsWritten),
					f.Detail,
				})
			}
			fmt.Fprintln(out, renderTable(headers, rows, aligns, isTerminal(out)))
			return nil
		},
	}
}
