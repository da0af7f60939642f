package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/report"
	"mediadiff/internal/sensitivity"
	"mediadiff/internal/services"
)

// CreateRequest describes a new comparison job.
type CreateRequest struct {
	AcceptanceID int64  `validate:"required,gt=0"`
	EmissionID   int64  `validate:"required,gt=0"`
	Sensitivity  string `validate:"required,oneof=low medium high"`
	Name         string `validate:"max=200"`
}

// Create validates req and inserts a pending job. The sensitivity profile and
// scoring weights are resolved now and frozen on the job.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*jobs.Job, error) {
	req.Sensitivity = strings.ToLower(strings.TrimSpace(req.Sensitivity))
	req.Name = strings.TrimSpace(req.Name)
	if err := m.validate.StructCtx(ctx, req); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "create job", describeValidation(err), nil)
	}
	for _, id := range []int64{req.AcceptanceID, req.EmissionID} {
		file, err := m.store.GetFile(ctx, id)
		if err != nil {
			return nil, err
		}
		if file == nil {
			return nil, services.Wrap(services.ErrValidation, "", "create job", fmt.Sprintf("media file %d is not registered", id), nil)
		}
	}

	settings, err := sensitivity.Resolve(m.cfg, req.Sensitivity)
	if err != nil {
		return nil, err
	}
	return m.insertJob(ctx, jobs.NewJob{
		Name:             req.Name,
		AcceptanceFileID: req.AcceptanceID,
		EmissionFileID:   req.EmissionID,
		Sensitivity:      req.Sensitivity,
	}, settings)
}

// Cancel requests cancellation. Pending jobs are cancelled immediately;
// processing jobs stop at their next checkpoint. Terminal jobs are left as
// they are. The returned status is the job's state after the call.
func (m *Manager) Cancel(ctx context.Context, id int64) (jobs.Status, error) {
	status, err := m.store.RequestCancel(ctx, id)
	if err != nil {
		return "", storeError("cancel job", err)
	}
	if status == jobs.StatusProcessing {
		m.cancelToken(id)
	}
	m.logger.Info("job cancellation requested",
		logging.JobID(id),
		logging.String("status", string(status)),
		logging.Event("job_cancel_requested"),
	)
	return status, nil
}

// Retry creates a new pending job for the same files with the frozen
// settings of a failed or cancelled job.
func (m *Manager) Retry(ctx context.Context, id int64) (*jobs.Job, error) {
	source, err := m.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if source.Status != jobs.StatusFailed && source.Status != jobs.StatusCancelled {
		return nil, services.Wrap(services.ErrInvalidTransition, "", "retry job", fmt.Sprintf("job %d is %s; only failed or cancelled jobs can be retried", id, source.Status), nil)
	}
	settings, err := sensitivity.Decode(source.SettingsJSON)
	if err != nil {
		return nil, err
	}
	origin := source.ID
	return m.insertJob(ctx, jobs.NewJob{
		Name:             source.Name,
		AcceptanceFileID: source.AcceptanceFileID,
		EmissionFileID:   source.EmissionFileID,
		Sensitivity:      source.Sensitivity,
		OriginatingJobID: &origin,
	}, settings)
}

// Reanalyze creates a new pending job comparing the same files at level.
// The source job may be in any status and is never modified.
func (m *Manager) Reanalyze(ctx context.Context, id int64, level string) (*jobs.Job, error) {
	source, err := m.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	settings, err := sensitivity.Resolve(m.cfg, level)
	if err != nil {
		return nil, err
	}
	origin := source.ID
	return m.insertJob(ctx, jobs.NewJob{
		Name:             source.Name,
		AcceptanceFileID: source.AcceptanceFileID,
		EmissionFileID:   source.EmissionFileID,
		Sensitivity:      string(settings.Profile.Level),
		OriginatingJobID: &origin,
	}, settings)
}

// GetJob returns the job or an ErrNotFound error.
func (m *Manager) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", fmt.Sprintf("job %d does not exist", id), nil)
	}
	return job, nil
}

// Results returns the read-only results payload of a job.
func (m *Manager) Results(ctx context.Context, id int64) (*report.Payload, error) {
	payload, err := report.Build(ctx, m.store, id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "get results", fmt.Sprintf("job %d does not exist", id), nil)
	}
	return payload, nil
}

func (m *Manager) insertJob(ctx context.Context, spec jobs.NewJob, settings sensitivity.Settings) (*jobs.Job, error) {
	raw, err := settings.Encode()
	if err != nil {
		return nil, err
	}
	spec.SettingsJSON = raw
	job, err := m.store.CreateJob(ctx, spec)
	if err != nil {
		return nil, storeError("create job", err)
	}
	attrs := []logging.Attr{
		logging.JobID(job.ID),
		logging.Int64("acceptance_file_id", job.AcceptanceFileID),
		logging.Int64("emission_file_id", job.EmissionFileID),
		logging.String("sensitivity", job.Sensitivity),
		logging.Event("job_created"),
	}
	if job.OriginatingJobID != nil {
		attrs = append(attrs, logging.Int64("originating_job_id", *job.OriginatingJobID))
	}
	m.logger.Info("job created", logging.Args(attrs...)...)
	return job, nil
}

func storeError(operation string, err error) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, jobs.ErrFileNotFound):
		return services.Wrap(services.ErrNotFound, "", operation, "", err)
	case errors.Is(err, jobs.ErrNotProcessing):
		return services.Wrap(services.ErrInvalidTransition, "", operation, "", err)
	default:
		return err
	}
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		case "gt":
			parts = append(parts, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
