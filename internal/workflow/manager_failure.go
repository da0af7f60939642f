package workflow

import (
	"context"
	"fmt"
	"strings"

	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/services"
)

// failure logs a stage failure and builds a failed outcome that keeps the
// output of every stage that completed after probe.
func (m *Manager) failure(run *jobRun, stageName string, stageErr error) jobs.Outcome {
	message := classifyStageFailure(stageName, stageErr)

	details := services.Details(stageErr)
	attrs := []logging.Attr{
		logging.String(logging.FieldStage, stageName),
		logging.String("error_message", message),
		logging.Alert("stage_failure"),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String("error_operation", details.Operation),
		logging.String(logging.FieldErrorHint, details.Hint),
	}
	if details.Cause != nil {
		attrs = append(attrs, logging.Error(details.Cause))
	} else {
		attrs = append(attrs, logging.Error(stageErr))
	}
	attrs = append(attrs, logging.Event("stage_failure"))
	run.logger.Error("stage failed", logging.Args(attrs...)...)
	m.setLastError(stageErr)

	outcome := jobs.Outcome{Status: jobs.StatusFailed, ErrorMessage: message}
	if run.video != nil {
		outcome.Result = run.result()
		outcome.Differences = run.differences()
		outcome.Artifacts = run.artifacts
	}
	return outcome
}

// cancelled builds the outcome of a cancelled run. Cancelled jobs own no
// result, so anything already rendered is removed.
func (m *Manager) cancelled(ctx context.Context, run *jobRun, stageName string) jobs.Outcome {
	run.logger.Info("job cancelled",
		logging.String(logging.FieldStage, stageName),
		logging.Event("job_cancelled"),
	)
	run.discardArtifacts(ctx)
	return jobs.Outcome{Status: jobs.StatusCancelled}
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageFailureMessage(stageName, "failed without error detail")
	}

	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}
	if message == "" {
		return stageFailureMessage(stageName, "failed")
	}
	return fmt.Sprintf("%s: %s", stageName, message)
}

func stageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}
