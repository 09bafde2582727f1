package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

const (
	exitCodeFailed    = 1
	exitCodeTimedOut  = 2
	exitCodeCancelled = 130
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "upload <video-file>",
		Short: "Upload a video and wait for its shorts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			task, err := media.OpenTask(args[0])
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Progress goes to stderr when stdout carries JSON.
			progress := cmd.OutOrStdout()
			if jsonOutput {
				progress = cmd.ErrOrStderr()
			}
			if quiet {
				progress = io.Discard
			}

			var outcome workflow.Outcome
			err = ctx.withLibrary(cmd, func(svc *library.Service) error {
				recorder := library.NewRecorder(svc, ctx.loggerFor(cmd))
				// The run history is written even after Ctrl-C.
				recorder.Start(context.WithoutCancel(runCtx))
				defer recorder.Close()

				wf := ctx.newWorkflow(cmd, ctx.cloudClient(cmd),
					workflow.WithListener(recorder.Listen),
					workflow.WithListener(progressPrinter(progress)),
				)
				wcfg := wf.Config()
				fmt.Fprintf(progress, "Uploading %s; waiting up to %s for %d shorts\n",
					task.Name, workflow.NewPollState(wcfg).MaxWait(), wcfg.ExpectedShorts)

				var runErr error
				outcome, runErr = wf.Run(runCtx, task)
				return runErr
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			return outcomeExit(outcome)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the outcome as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress messages")
	return cmd
}

// progressPrinter writes each log entry of the run as one line.
func progressPrinter(w io.Writer) workflow.Listener {
	return func(ev workflow.Event) {
		if ev.Kind != workflow.EventLog || ev.Entry == nil {
			return
		}
		prefix := ""
		switch ev.Entry.Level {
		case workflow.LevelWarning:
			prefix = "warning: "
		case workflow.LevelError:
			prefix = "error: "
		}
		fmt.Fprintf(w, "[%s] %s%s\n", ev.Entry.Time.Local().Format("15:04:05"), prefix, ev.Entry.Message)
	}
}

func printOutcome(w io.Writer, out workflow.Outcome) {
	fmt.Fprintf(w, "\nResult: %s", statusLabel(string(out.Kind)))
	if out.VideoID != "" {
		fmt.Fprintf(w, " (video %s)", out.VideoID)
	}
	fmt.Fprintln(w)
	if out.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", out.Reason)
	}
	if len(out.Shorts) == 0 {
		return
	}
	rows := make([][]string, 0, len(out.Shorts))
	for _, s := range out.Shorts {
		rows = append(rows, []string{
			s.ID.String(),
			statusLabel(s.Status),
			formatSeconds(s.StartSecond),
			formatSeconds(s.Duration()),
			fallback(s.FileURL, "-"),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Status", "Start", "Length", "URL"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

// outcomeExit maps a non-successful outcome to a process exit status.
func outcomeExit(out workflow.Outcome) error {
	switch {
	case out.OK():
		return nil
	case out.Kind == workflow.Cancelled:
		return &exitError{code: exitCodeCancelled}
	case out.TimedOut():
		return &exitError{code: exitCodeTimedOut}
	default:
		return &exitError{code: exitCodeFailed}
	}
}
