package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediadiff/internal/daemon"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the worker pool in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("workers") {
				if workers < 1 {
					return fmt.Errorf("--workers must be at least 1")
				}
				cfg.Workflow.Workers = workers
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runID := time.Now().UTC().Format("20060102T150405.000Z")
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("daemon-%s.log", runID))
			logger, err := logging.NewFromConfig(cfg, logPath)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			jobLogs := workflow.NewJobLogger(cfg)
			logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
				logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "daemon-*.log", Keep: []string{logPath}},
				logging.RetentionTarget{Dir: jobLogs.Dir(), Pattern: "job-*.log"},
			)

			store, err := jobs.Open(cfg)
			if err != nil {
				logger.Error("open job store", logging.Error(err))
				return err
			}

			d, err := daemon.New(cfg, store, logger, workflow.NewManager(cfg, store, logger))
			if err != nil {
				store.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			return d.Run(signalCtx)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Override the configured worker count")
	return cmd
}
