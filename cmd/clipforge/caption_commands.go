package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/library"
)

func newCaptionsCommand(ctx *commandContext) *cobra.Command {
	captionsCmd := &cobra.Command{
		Use:     "captions",
		Aliases: []string{"caption"},
		Short:   "Edit the captions of shorts",
	}

	captionsCmd.AddCommand(newCaptionsListCommand(ctx))
	captionsCmd.AddCommand(newCaptionsSetCommand(ctx))

	return captionsCmd
}

func newCaptionsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list <video-id>",
		Short: "List the captions of a video's shorts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				shorts, captions, err := svc.Captions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					list := make([]*library.Caption, 0, len(shorts))
					for _, sh := range shorts {
						if c, ok := captions[sh.ID]; ok {
							list = append(list, c)
						} else {
							list = append(list, &library.Caption{ShortID: sh.ID})
						}
					}
					return writeJSON(cmd, list)
				}
				if len(shorts) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Video %s has no shorts in the library.\n", args[0])
					return nil
				}
				rows := make([][]string, 0, len(shorts))
				for _, sh := range shorts {
					text := "-"
					if c, ok := captions[sh.ID]; ok && c.Text != "" {
						text = c.Text
					}
					rows = append(rows, []string{sh.ID, formatSeconds(sh.StartSecond), text})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Short", "Start", "Caption"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCaptionsSetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <short-id> [text...]",
		Short: "Set a short's caption; no text clears it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args[1:], " "))
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				if _, err := svc.SetCaption(cmd.Context(), args[0], text); err != nil {
					return err
				}
				if text == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Caption of short %s cleared\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Caption of short %s saved\n", args[0])
				}
				return nil
			})
		},
	}
}
