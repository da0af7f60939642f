package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mediadiff/internal/config"
	"mediadiff/internal/logging"
)

// JobLogger manages the dedicated log file of each job.
type JobLogger struct {
	baseDir string
	level   string
	format  string
}

// NewJobLogger creates a job logger writing under <log_dir>/jobs.
func NewJobLogger(cfg *config.Config) *JobLogger {
	j := &JobLogger{level: "info", format: "json"}
	if cfg == nil {
		return j
	}
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		j.baseDir = filepath.Join(cfg.Paths.LogDir, "jobs")
	}
	if strings.TrimSpace(cfg.Logging.Level) != "" {
		j.level = cfg.Logging.Level
	}
	if strings.TrimSpace(cfg.Logging.Format) != "" {
		j.format = cfg.Logging.Format
	}
	return j
}

// Dir returns the directory holding job logs.
func (j *JobLogger) Dir() string {
	return j.baseDir
}

// Path returns the log file of a job. Retries and re-analyses are new jobs
// and get their own file.
func (j *JobLogger) Path(id int64) string {
	if j.baseDir == "" {
		return ""
	}
	return filepath.Join(j.baseDir, fmt.Sprintf("job-%d.log", id))
}

// Open returns a logger appending to the job's log file. The caller closes
// the returned closer when the job finishes.
func (j *JobLogger) Open(id int64) (*slog.Logger, io.Closer, error) {
	path := j.Path(id)
	if path == "" {
		return nil, nil, fmt.Errorf("job log directory not configured")
	}
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure job log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, nil, fmt.Errorf("open job log: %w", err)
	}
	logger, err := logging.NewWithWriter(file, logging.Options{Level: j.level, Format: j.format})
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return logger, file, nil
}
