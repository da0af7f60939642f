package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"mediadiff/internal/logging"
	"mediadiff/internal/services"
)

// Run starts the worker pool and blocks until ctx is cancelled. Each worker
// claims the oldest pending job, runs it to completion and polls again. A
// reclaimer fails jobs whose heartbeat went stale. Preflight checks run once
// before any job is claimed.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if err := m.runPreflightChecks(ctx, m.logger); err != nil {
		return err
	}

	workers := m.cfg.Workflow.Workers
	if workers < 1 {
		workers = 1
	}
	m.logger.Info("worker pool started",
		logging.Int("workers", workers),
		logging.Event("workers_started"),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.runReclaimer(gctx)
		return nil
	})
	for worker := 1; worker <= workers; worker++ {
		g.Go(func() error {
			m.runWorker(services.WithWorker(gctx, worker))
			return nil
		})
	}
	err := g.Wait()
	m.logger.Info("worker pool stopped", logging.Event("workers_stopped"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (m *Manager) runWorker(ctx context.Context) {
	logger := logging.WithContext(ctx, logging.NewComponentLogger(m.logger, "workflow-worker"))
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		logger.Info("job claimed",
			logging.JobID(job.ID),
			logging.Event("job_claimed"),
		)
		if err := m.process(ctx, job); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job processing failed",
				logging.JobID(job.ID),
				logging.Error(err),
				logging.Event("job_process_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	logger := logging.NewComponentLogger(m.logger, "workflow-reclaimer")
	interval := m.heartbeat.heartbeatInterval
	if interval <= 0 {
		interval = m.pollInterval
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.heartbeat.ReclaimStaleJobs(ctx, logger); err != nil && ctx.Err() == nil {
			logger.Warn("reclaim stale processing failed; stuck jobs may remain",
				logging.Error(err),
				logging.Event("heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.Event("job_claim_failed"),
		logging.String(logging.FieldErrorHint, "check job database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
