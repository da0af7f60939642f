package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/stage"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store             *jobs.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *jobs.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleJobs fails processing jobs that stopped sending heartbeats.
func (h *HeartbeatMonitor) ReclaimStaleJobs(ctx context.Context, logger *slog.Logger) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.FailStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale jobs",
			logging.Int64("count", reclaimed),
			logging.Event("heartbeat_reclaimed"),
		)
	}
	return nil
}

// StartLoop refreshes the heartbeat of a job until ctx is cancelled and
// mirrors the persisted cancel flag into token.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, jobID int64, token *stage.Token) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, logging.NewComponentLogger(h.logger, "workflow-heartbeat"))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
			requested, err := h.store.CancelRequested(ctx, jobID)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("cancel flag read failed", logging.Error(err))
				}
				continue
			}
			if requested && !token.Cancelled() {
				logger.Info("cancellation observed", logging.Event("job_cancel_observed"))
				token.Cancel()
			}
		}
	}
}
