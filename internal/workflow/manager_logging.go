package workflow

import (
	"context"
	"log/slog"

	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
)

// jobLogger returns the logger stage detail is written to: the job's own log
// file when it can be opened, the manager's logger otherwise. The returned
// func closes the file.
func (m *Manager) jobLogger(ctx context.Context, job *jobs.Job) (*slog.Logger, func()) {
	base := m.logger
	logger, closer, err := m.jobLogs.Open(job.ID)
	if err != nil {
		base.Warn("job log unavailable", logging.Error(err), logging.JobID(job.ID))
		return logging.WithContext(ctx, base), func() {}
	}
	// Job processing logs only to the job log, not the daemon log.
	return logging.WithContext(ctx, logger), func() { _ = closer.Close() }
}

// stageLogger derives the logger for one stage from the job logger, which
// already carries the job and correlation ids.
func (m *Manager) stageLogger(base *slog.Logger, stageName string) *slog.Logger {
	logger := logging.NewComponentLogger(base, "workflow-stage").With(logging.String(logging.FieldStage, stageName))
	if m.cfg != nil {
		logger = logging.ForStage(logger, m.cfg.Logging.StageOverrides, stageName)
	}
	return logger
}
