package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
)

func newFileCommand(ctx *commandContext) *cobra.Command {
	fileCmd := &cobra.Command{
		Use:   "file",
		Short: "Manage the media catalog",
	}

	fileCmd.AddCommand(newFileAddCommand(ctx))
	fileCmd.AddCommand(newFileListCommand(ctx))
	fileCmd.AddCommand(newFileInvalidateCommand(ctx))

	return fileCmd
}

func newFileAddCommand(ctx *commandContext) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a media file for comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect path %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory; register individual media files", path)
			}

			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				file, err := store.AddFile(cmd.Context(), path, label)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered file %d: %s\n", file.ID, file.Path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Human readable label for the file")
	return cmd
}

func newFileListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered media files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				files, err := store.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if files == nil {
						files = []*jobs.MediaFile{}
					}
					return writeJSON(cmd, files)
				}
				out := cmd.OutOrStdout()
				if len(files) == 0 {
					fmt.Fprintln(out, "No media files registered")
					return nil
				}
				rows := make([][]string, 0, len(files))
				for _, f := range files {
					rows = append(rows, fileRow(f))
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Path", "Label", "Duration", "Resolution", "FPS", "Audio", "Probed"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func fileRow(f *jobs.MediaFile) []string {
	if !f.Probed() {
		return []string{strconv.FormatInt(f.ID, 10), f.Path, f.Label, "-", "-", "-", "-", "no"}
	}
	return []string{
		strconv.FormatInt(f.ID, 10),
		f.Path,
		f.Label,
		formatSeconds(f.DurationSeconds),
		fmt.Sprintf("%dx%d", f.Width, f.Height),
		strconv.FormatFloat(f.FPS, 'f', 2, 64),
		yesNo(f.HasAudio),
		formatTime(f.ProbedAt),
	}
}

func newFileInvalidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <id>",
		Short: "Drop cached probe metadata so the file is probed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("file", args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				if err := store.InvalidateProbe(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Probe metadata for file %d invalidated\n", id)
				return nil
			})
		},
	}
}
