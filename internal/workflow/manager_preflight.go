package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mediadiff/internal/logging"
	"mediadiff/internal/preflight"
	"mediadiff/internal/services"
)

// runPreflightChecks validates directory and service readiness before the
// worker pool claims any job. It returns an error describing all failures.
func (m *Manager) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	for _, checker := range m.checkers() {
		if health := checker.HealthCheck(ctx); !health.Ready {
			logging.WarnWithContext(logger, "component not ready", "component_unready",
				logging.String("component", health.Name),
				logging.String("detail", health.Summary()),
				logging.String(logging.FieldImpact, "jobs needing the disabled analyses will fail"),
			)
		}
	}

	results := preflight.RunAll(ctx, m.cfg)
	if len(results) == 0 {
		return nil
	}

	var failures []string
	for _, r := range results {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.Event("preflight_passed"),
			)
		} else {
			logger.Error("preflight check failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.Event("preflight_failed"),
				logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
			)
			failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}

	if len(failures) > 0 {
		return services.Wrap(services.ErrConfiguration, "", "preflight", "preflight checks failed: "+strings.Join(failures, "; "), nil)
	}
	return nil
}
