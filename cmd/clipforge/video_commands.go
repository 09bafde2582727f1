package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/library"
)

func newVideosCommand(ctx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:     "videos",
		Aliases: []string{"video"},
		Short:   "Manage uploaded videos",
	}

	videosCmd.AddCommand(newVideosListCommand(ctx))
	videosCmd.AddCommand(newVideosSyncCommand(ctx))
	videosCmd.AddCommand(newVideosRenameCommand(ctx))
	videosCmd.AddCommand(newVideosDeleteCommand(ctx))
	videosCmd.AddCommand(newVideosStatusCommand(ctx))

	return videosCmd
}

func newVideosListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var sync bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List videos in the local library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				if sync {
					if _, err := ctx.requireLogin(); err != nil {
						return err
					}
					if _, err := svc.SyncVideos(cmd.Context()); err != nil {
						return err
					}
				}
				videos, err := svc.ListVideos(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					if videos == nil {
						videos = []*library.Video{}
					}
					return writeJSON(cmd, videos)
				}
				printVideos(cmd.OutOrStdout(), videos)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&sync, "sync", false, "Refresh from the backend first")
	return cmd
}

func printVideos(w io.Writer, videos []*library.Video) {
	if len(videos) == 0 {
		fmt.Fprintln(w, "No videos. Run `clipforge videos sync` to fetch them from the backend.")
		return
	}
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, []string{
			v.ID,
			v.FileName,
			statusLabel(v.Status),
			formatSeconds(v.DurationSeconds),
			fallback(v.AspectRatio, "-"),
			formatBytes(v.FileSize),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Name", "Status", "Length", "Aspect", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
	))
}

func newVideosSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the video library from the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				res, err := svc.SyncVideos(cmd.Context())
				if err != nil {
					return err
				}
				printSyncResult(cmd.OutOrStdout(), "videos", res)
				return nil
			})
		},
	}
}

func printSyncResult(w io.Writer, what string, res library.SyncResult) {
	fmt.Fprintf(w, "Synced %d %s from %d page(s)", res.Fetched, what, res.Pages)
	if res.Pruned > 0 {
		fmt.Fprintf(w, ", removed %d", res.Pruned)
	}
	fmt.Fprintln(w)
	if res.Truncated {
		fmt.Fprintln(w, "Stopped at library.max_pages; older entries were kept as they were.")
	}
}

func newVideosRenameCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <video-id> <new-name>",
		Short: "Rename a video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(args[1])
			if name == "" {
				return errors.New("new name must not be blank")
			}
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				v, err := svc.RenameVideo(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s renamed to %q\n", v.ID, v.FileName)
				return nil
			})
		},
	}
}

func newVideosDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <video-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a video and its shorts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				if err := svc.DeleteVideo(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newVideosStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <video-id>",
		Short: "Show the backend processing status of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			st, err := ctx.cloudClient(cmd).VideoStatus(cmd.Context(), cloud.ID(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s%%)\n", args[0], statusLabel(st.Status),
				strconv.FormatFloat(st.Progress, 'f', -1, 64))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
