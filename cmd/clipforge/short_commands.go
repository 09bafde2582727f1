package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/library"
)

func newShortsCommand(ctx *commandContext) *cobra.Command {
	shortsCmd := &cobra.Command{
		Use:     "shorts",
		Aliases: []string{"short"},
		Short:   "Browse and manage generated shorts",
	}

	shortsCmd.AddCommand(newShortsListCommand(ctx))
	shortsCmd.AddCommand(newShortsShowCommand(ctx))
	shortsCmd.AddCommand(newShortsSyncCommand(ctx))
	shortsCmd.AddCommand(newShortsDeleteCommand(ctx))
	shortsCmd.AddCommand(newShortsDownloadCommand(ctx))

	return shortsCmd
}

func newShortsListCommand(ctx *commandContext) *cobra.Command {
	var filter library.ShortFilter
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List shorts in the local library",
		Long:    "List shorts. --status accepts all, completed, processing or a raw backend status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				shorts, err := svc.FilterShorts(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					if shorts == nil {
						shorts = []*library.Short{}
					}
					return writeJSON(cmd, shorts)
				}
				printShorts(cmd.OutOrStdout(), shorts)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filter.Status, "status", library.FilterAll, "Filter by status")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Match video titles")
	cmd.Flags().StringVar(&filter.VideoID, "video", "", "Only shorts of this video")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printShorts(w io.Writer, shorts []*library.Short) {
	if len(shorts) == 0 {
		fmt.Fprintln(w, "No shorts match.")
		return
	}
	rows := make([][]string, 0, len(shorts))
	for _, s := range shorts {
		cached := ""
		if s.LocalPath != "" {
			cached = "yes"
		}
		rows = append(rows, []string{
			s.ID,
			fallback(s.VideoTitle, s.VideoID),
			statusLabel(s.Status),
			formatSeconds(s.StartSecond),
			formatSeconds(s.DurationSeconds),
			cached,
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"ID", "Video", "Status", "Start", "Length", "Cached"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

func newShortsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <short-id>",
		Short: "Show one short and its caption",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				c := cmd.Context()
				sh, err := svc.GetShort(c, args[0])
				if err != nil {
					return err
				}
				caption, err := svc.Caption(c, sh.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						*library.Short
						Caption string `json:"caption"`
					}{sh, caption.Text})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Short:    %s\n", sh.ID)
				fmt.Fprintf(out, "Video:    %s (%s)\n", fallback(sh.VideoTitle, "-"), sh.VideoID)
				fmt.Fprintf(out, "Status:   %s\n", statusLabel(sh.Status))
				fmt.Fprintf(out, "Segment:  %s - %s\n", formatSeconds(sh.StartSecond), formatSeconds(sh.EndSecond))
				fmt.Fprintf(out, "URL:      %s\n", fallback(sh.FileURL, "-"))
				if sh.LocalPath != "" {
					fmt.Fprintf(out, "Cached:   %s\n", sh.LocalPath)
				}
				fmt.Fprintf(out, "Caption:  %s\n", fallback(caption.Text, "-"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShortsSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the shorts library from the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				res, err := svc.SyncShorts(cmd.Context())
				if err != nil {
					return err
				}
				printSyncResult(cmd.OutOrStdout(), "shorts", res)
				return nil
			})
		},
	}
}

func newShortsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <short-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a short",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.requireLogin(); err != nil {
				return err
			}
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				if err := svc.DeleteShort(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Short %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func newShortsDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <short-id>",
		Short: "Download a short into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				cached, err := svc.DownloadShort(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				target := cached
				if strings.TrimSpace(output) != "" {
					target, err = copyFile(cached, output)
					if err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), target)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Copy the clip to this file or directory")
	return cmd
}

// copyFile copies src to dst. A directory dst keeps the source file name.
func copyFile(src, dst string) (string, error) {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dst, nil
}
