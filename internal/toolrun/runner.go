package toolrun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mediadiff/internal/config"
	"mediadiff/internal/logging"
	"mediadiff/internal/services"
)

const (
	externalToolAttempts = 2
	// waitDelay bounds how long a killed tool may keep its output pipes open.
	waitDelay = 2 * time.Second
)

// Runner invokes external executables under the configured deadline policy.
type Runner struct {
	helper   string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// New constructs a runner from the [tools] config section.
func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		helper:   strings.TrimSpace(cfg.Tools.Helper),
		timeout:  time.Duration(cfg.Tools.CallTimeout) * time.Second,
		attempts: cfg.Tools.TimeoutRetries,
		backoff:  time.Duration(cfg.Tools.RetryBackoffMillis) * time.Millisecond,
		logger:   logging.NewNop(),
	}
	if r.attempts < 1 {
		r.attempts = 1
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Helper returns the analysis helper executable.
func (r *Runner) Helper() string {
	return r.helper
}

// Call runs the helper with an operation and decodes its JSON stdout into out.
func (r *Runner) Call(ctx context.Context, operation string, out any, args ...string) error {
	if r.helper == "" {
		return services.Wrap(services.ErrConfiguration, stageName(ctx), operation, "Analysis helper not configured", nil)
	}
	argv := append([]string{operation}, args...)
	return r.do(ctx, operation, func(callCtx context.Context) error {
		stdout, err := execute(callCtx, r.helper, argv...)
		if err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(stdout, out); err != nil {
			return fmt.Errorf("decode %s output: %w", operation, err)
		}
		return nil
	})
}

// Run executes an arbitrary binary (ffmpeg) under the same policy and returns
// its stdout and stderr combined in that order.
func (r *Runner) Run(ctx context.Context, operation string, binary string, args ...string) ([]byte, error) {
	var output []byte
	err := r.do(ctx, operation, func(callCtx context.Context) error {
		stdout, err := executeCombined(callCtx, binary, args...)
		if err != nil {
			return err
		}
		output = stdout
		return nil
	})
	return output, err
}

func (r *Runner) do(ctx context.Context, operation string, call func(context.Context) error) error {
	stage := stageName(ctx)
	delay := r.backoff
	timeouts := 0
	failures := 0
	for {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := call(callCtx)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if timedOut {
			timeouts++
			if timeouts >= r.attempts {
				return services.Wrap(services.ErrStageTimeout, stage, operation,
					fmt.Sprintf("Tool call exceeded %s after %d attempts", r.timeout, timeouts), err)
			}
		} else {
			failures++
			if failures >= externalToolAttempts {
				return services.Wrap(services.ErrExternalTool, stage, operation, "External tool failed", err)
			}
		}

		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "tool call failed; retrying", "tool_retry",
			logging.String("operation", operation),
			logging.Bool("timed_out", timedOut),
			logging.Duration("backoff", delay),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stage continues after backoff"),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if timedOut {
			delay *= 2
		}
	}
}

func execute(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, tail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func executeCombined(ctx context.Context, binary string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", binary, err, tail(stderr.String()))
	}
	return append(stdout.Bytes(), stderr.Bytes()...), nil
}

// tail keeps the end of tool stderr for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const limit = 512
	if len(s) > limit {
		return "..." + s[len(s)-limit:]
	}
	return s
}

func stageName(ctx context.Context) string {
	if stage, ok := services.StageFromContext(ctx); ok {
		return stage
	}
	return "tool"
}
