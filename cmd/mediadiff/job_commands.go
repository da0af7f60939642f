package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/workflow"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Create and manage comparison jobs",
	}

	jobCmd.AddCommand(newJobCreateCommand(ctx))
	jobCmd.AddCommand(newJobStartCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	jobCmd.AddCommand(newJobRetryCommand(ctx))
	jobCmd.AddCommand(newJobReanalyzeCommand(ctx))
	jobCmd.AddCommand(newJobShowCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	jobCmd.AddCommand(newJobLogCommand(ctx))

	return jobCmd
}

func newJobCreateCommand(ctx *commandContext) *cobra.Command {
	var req workflow.CreateRequest
	var start bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a pending comparison job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				job, err := mgr.Create(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s sensitivity)\n", job.ID, job.Sensitivity)
				if !start {
					return nil
				}
				return runJobForeground(cmd, mgr, job.ID)
			})
		},
	}

	cmd.Flags().Int64Var(&req.AcceptanceID, "acceptance", 0, "Catalog id of the acceptance (reference) file")
	cmd.Flags().Int64Var(&req.EmissionID, "emission", 0, "Catalog id of the emission (candidate) file")
	cmd.Flags().StringVar(&req.Sensitivity, "sensitivity", "medium", "Sensitivity level: low, medium or high")
	cmd.Flags().StringVar(&req.Name, "name", "", "Optional job name")
	cmd.Flags().BoolVar(&start, "start", false, "Run the job in the foreground right away")
	_ = cmd.MarkFlagRequired("acceptance")
	_ = cmd.MarkFlagRequired("emission")
	return cmd
}

func newJobStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Run a pending job in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *jobs.Store) error {
				logger := ctx.cliLogger(cfg, "")
				mgr := workflow.NewManager(cfg, store, logger)
				return runJobForeground(cmd, mgr, logger, id)
			})
		},
	}
}

// runJobForeground processes one job and reports its final state. Ctrl-C
// requests cancellation through the job row rather than abandoning it.
func runJobForeground(cmd *cobra.Command, mgr *workflow.Manager, logger *slog.Logger, id int64) error {
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go cancelOnInterrupt(signalCtx, runCtx, mgr.Cancel, id, cmd.ErrOrStderr(), logger)

	if err := mgr.Start(runCtx, id); err != nil {
		return err
	}
	job, err := mgr.GetJob(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %d %s\n", job.ID, job.Status)
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", job.ErrorMessage)
	}
	if job.Status == jobs.StatusFailed {
		return fmt.Errorf("job %d failed", job.ID)
	}
	return nil
}

type cancelFunc func(ctx context.Context, id int64) (jobs.Status, error)

// cancelOnInterrupt requests cancellation of id once interrupted is done,
// unless the run finishes first.
func cancelOnInterrupt(interrupted, run context.Context, cancel cancelFunc, id int64, errOut io.Writer, logger *slog.Logger) {
	select {
	case <-interrupted.Done():
	case <-run.Done():
		return
	}
	status, err := cancel(context.Background(), id)
	if err != nil {
		logger.Error("cancel request failed", logging.JobID(id), logging.Error(err))
		fmt.Fprintf(errOut, "Failed to cancel job %d: %v\n", id, err)
		return
	}
	fmt.Fprintf(errOut, "Cancellation requested for job %d (%s)\n", id, status)
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				status, err := mgr.Cancel(cmd.Context(), id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch status {
				case jobs.StatusCancelled:
					fmt.Fprintf(out, "Job %d cancelled\n", id)
				case jobs.StatusProcessing:
					fmt.Fprintf(out, "Cancellation requested for job %d; the worker stops at the next checkpoint\n", id)
				default:
					fmt.Fprintf(out, "Job %d is already %s\n", id, status)
				}
				return nil
			})
		},
	}
}

func newJobRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Create a new job from a failed or cancelled one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				job, err := mgr.Retry(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d retrying job %d\n", job.ID, id)
				return nil
			})
		},
	}
}

func newJobReanalyzeCommand(ctx *commandContext) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "reanalyze <id>",
		Short: "Compare the same files again at another sensitivity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				job, err := mgr.Reanalyze(cmd.Context(), id, level)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created job %d (%s sensitivity) from job %d\n", job.ID, job.Sensitivity, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&level, "sensitivity", "", "Sensitivity level: low, medium or high")
	_ = cmd.MarkFlagRequired("sensitivity")
	return cmd
}

func newJobShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			return ctx.withManager(func(mgr *workflow.Manager, _ *jobs.Store) error {
				job, err := mgr.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(jobDetails(job, shouldColorize(cmd.OutOrStdout()))))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func jobDetails(job *jobs.Job, colorize bool) [][2]string {
	rows := [][2]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Name", valueOrDash(job.Name)},
		{"Acceptance file", strconv.FormatInt(job.AcceptanceFileID, 10)},
		{"Emission file", strconv.FormatInt(job.EmissionFileID, 10)},
		{"Sensitivity", job.Sensitivity},
		{"Status", colorizeText(string(job.Status), statusColor(job.Status), colorize)},
		{"Progress", fmt.Sprintf("%d%%", job.Progress)},
		{"Stage", valueOrDash(job.Stage)},
		{"Created", formatTime(&job.CreatedAt)},
		{"Started", formatTime(job.StartedAt)},
		{"Completed", formatTime(job.CompletedAt)},
	}
	if job.OriginatingJobID != nil {
		rows = append(rows, [2]string{"Originating job", strconv.FormatInt(*job.OriginatingJobID, 10)})
	}
	if job.CancelRequested && !job.Status.IsTerminal() {
		rows = append(rows, [2]string{"Cancel requested", "yes"})
	}
	if job.ErrorMessage != "" {
		rows = append(rows, [2]string{"Error", job.ErrorMessage})
	}
	return rows
}

func statusColor(status jobs.Status) string {
	switch status {
	case jobs.StatusCompleted:
		return ansiGreen
	case jobs.StatusFailed:
		return ansiRed
	case jobs.StatusCancelled:
		return ansiYellow
	case jobs.StatusProcessing:
		return ansiBlue
	default:
		return ""
	}
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, optionally filtered by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]jobs.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := jobs.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(_ *config.Config, store *jobs.Store) error {
				list, err := store.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					if list == nil {
						list = []*jobs.Job{}
					}
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					origin := "-"
					if job.OriginatingJobID != nil {
						origin = strconv.FormatInt(*job.OriginatingJobID, 10)
					}
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						truncate(valueOrDash(job.Name), 32),
						job.Sensitivity,
						colorizeText(string(job.Status), statusColor(job.Status), colorize),
						fmt.Sprintf("%d%%", job.Progress),
						valueOrDash(job.Stage),
						formatTime(&job.CreatedAt),
						origin,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Name", "Sensitivity", "Status", "Progress", "Stage", "Created", "Origin"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobLogCommand(ctx *commandContext) *cobra.Command {
	var pathOnly bool

	cmd := &cobra.Command{
		Use:   "log <id>",
		Short: "Print the log file of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := workflow.NewJobLogger(cfg).Path(id)
			if pathOnly {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			}
			file, err := os.Open(path)
			if err != nil {
				if os.IsNotExist(err) {
					return fmt.Errorf("no log for job %d (it has not started yet)", id)
				}
				return err
			}
			defer file.Close()
			_, err = io.Copy(cmd.OutOrStdout(), file)
			return err
		},
	}

	cmd.Flags().BoolVar(&pathOnly, "path", false, "Print the log path only")
	return cmd
}
