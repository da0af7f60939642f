package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediadiff/internal/jobs"
	"mediadiff/internal/report"
	"mediadiff/internal/workflow"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "results <id>",
		Short: "Show the results of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "table", "json", "yaml":
			default:
				return fmt.Errorf("unsupported format %q (want table, json or yaml)", format)
			}

			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				payload, err := mgr.Results(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch format {
				case "json":
					data, err := payload.JSON()
					if err != nil {
						return err
					}
					_, err = out.Write(data)
					return err
				case "yaml":
					data, err := payload.YAML()
					if err != nil {
						return err
					}
					_, err = out.Write(data)
					return err
				default:
					renderResults(out, payload, shouldColorize(out))
					return nil
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or yaml")
	return cmd
}

func renderResults(out io.Writer, payload *report.Payload, colorize bool) {
	job := payload.Job
	fmt.Fprintf(out, "Job %d: %s (%s sensitivity, %d%%)\n", job.ID,
		colorizeText(string(job.Status), statusColor(job.Status), colorize), job.Sensitivity, job.Progress)
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", job.ErrorMessage)
	}

	res := payload.Result
	if res == nil {
		fmt.Fprintln(out, "No results recorded")
		return
	}

	verdict := "-"
	if res.IsMatch != nil {
		if *res.IsMatch {
			verdict = colorizeText("match", ansiGreen, colorize)
		} else {
			verdict = colorizeText("mismatch", ansiRed, colorize)
		}
	}
	fmt.Fprintln(out, renderKeyValues([][2]string{
		{"Verdict", verdict},
		{"Overall similarity", formatFloat(res.OverallSimilarity, "%.4f")},
		{"Video similarity", formatFloat(res.VideoSimilarity, "%.4f")},
		{"Audio similarity", formatFloat(res.AudioSimilarity, "%.4f")},
		{"Frames (different/total)", fmt.Sprintf("%d/%d", res.DifferentFrames, res.TotalFrames)},
		{"Video differences", strconv.Itoa(res.VideoDifferencesCount)},
		{"Audio differences", strconv.Itoa(res.AudioDifferencesCount)},
		{"Loudness difference (LU)", formatFloat(res.LUFSDifference, "%+.1f")},
		{"True peak difference (dB)", formatFloat(res.PeakDifference, "%+.1f")},
		{"Sync offset (ms)", formatFloat(res.SyncOffsetMillis, "%+.0f")},
	}))

	if len(payload.Differences) == 0 {
		fmt.Fprintln(out, "No differences found")
		return
	}
	rows := make([][]string, 0, len(payload.Differences))
	for _, d := range payload.Differences {
		rows = append(rows, []string{
			formatSeconds(d.TimestampSeconds),
			strconv.FormatFloat(d.DurationSeconds, 'f', 1, 64),
			string(d.Type),
			colorizeText(string(d.Severity), severityColor(d.Severity), colorize),
			strconv.FormatFloat(d.Confidence, 'f', 2, 64),
			formatFloat(d.SSIMScore, "%.3f"),
			truncate(d.Description, 60),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Timestamp", "Duration", "Type", "Severity", "Confidence", "SSIM", "Description"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))

	if len(payload.Artifacts) > 0 {
		fmt.Fprintln(out, "Diff frames:")
		for _, key := range payload.SortedArtifactKeys() {
			fmt.Fprintf(out, "  %ss  %s\n", key, payload.Artifacts[key])
		}
	}
}

func severityColor(severity jobs.Severity) string {
	switch severity {
	case jobs.SeverityHigh:
		return ansiRed
	case jobs.SeverityMedium:
		return ansiYellow
	default:
		return ""
	}
}
