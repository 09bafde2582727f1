package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/library"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var req export.Request
	var stdout bool

	cmd := &cobra.Command{
		Use:   "export <video-id>",
		Short: "Export a video's shorts as an EDL timeline or SRT subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.VideoID = args[0]
			return ctx.withLibrary(cmd, func(svc *library.Service) error {
				exporter := export.NewExporter(svc)
				if stdout {
					res, err := exporter.Build(cmd.Context(), req)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(res.Body)
					return err
				}
				if strings.TrimSpace(req.OutputDir) == "" {
					req.OutputDir = "."
				}
				req.OutputDir = filepath.Clean(req.OutputDir)
				resp, err := exporter.WriteFile(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s entries to %s\n", resp.Count, strings.ToUpper(resp.Format), resp.OutputPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&req.Format, "format", "f", export.FormatEDL, "Export format: edl or srt")
	cmd.Flags().Float64Var(&req.FrameRate, "fps", export.DefaultFrameRate, "Timeline frame rate for EDL exports")
	cmd.Flags().StringVarP(&req.OutputDir, "out-dir", "o", "", "Directory for the export file (default: current directory)")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Write the export to stdout instead of a file")
	return cmd
}
