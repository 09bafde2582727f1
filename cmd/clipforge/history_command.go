package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/library"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show the log of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				if len(args) == 1 {
					return showRunLog(cmd, svc, args[0], jsonOutput)
				}
				runs, err := svc.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					if runs == nil {
						runs = []*library.RunRecord{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID[:min(8, len(r.ID))],
						r.FileName,
						statusLabel(r.Status),
						strconv.Itoa(r.ShortsCount),
						formatTimestamp(r.StartedAt),
						runDuration(r),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "File", "Result", "Shorts", "Started", "Took"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func showRunLog(cmd *cobra.Command, svc *library.Service, runID string, jsonOutput bool) error {
	logs, err := svc.RunLogs(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if jsonOutput {
		if logs == nil {
			logs = []library.RunLog{}
		}
		return writeJSON(cmd, logs)
	}
	out := cmd.OutOrStdout()
	for _, l := range logs {
		fmt.Fprintf(out, "[%s] %-7s %s\n", l.CreatedAt.Local().Format("15:04:05"), l.Level, l.Message)
	}
	return nil
}

func runDuration(r *library.RunRecord) string {
	if r.FinishedAt == nil || r.StartedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}
