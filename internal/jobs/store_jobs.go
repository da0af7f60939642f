package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateJob inserts a pending job.
func (s *Store) CreateJob(ctx context.Context, spec NewJob) (*Job, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            job_name, acceptance_file_id, emission_file_id, sensitivity_level, status,
            progress, settings_json, originating_job_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		nullableString(spec.Name),
		spec.AcceptanceFileID,
		spec.EmissionFileID,
		spec.Sensitivity,
		StatusPending,
		spec.SettingsJSON,
		nullableInt64(spec.OriginatingJobID),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. A missing id returns (nil, nil).
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status set (or all jobs when no status is provided).
func (s *Store) ListJobs(ctx context.Context, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Claim moves a pending job to processing. Only one caller can win; losers
// (and callers targeting a non-pending job) get false.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?, progress = 0
         WHERE id = ? AND status = ? AND cancel_requested = 0`,
		StatusProcessing,
		now,
		now,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ClaimNext claims the oldest pending job. It returns (nil, nil) when the
// queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	for attempt := 0; attempt < 3; attempt++ {
		var id int64
		err := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			StatusPending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("next pending job: %w", err)
		}
		claimed, err := s.Claim(ctx, id)
		if err != nil {
			return nil, err
		}
		if claimed {
			return s.GetJob(ctx, id)
		}
	}
	return nil, nil
}

// RequestCancel flags a job for cancellation. Pending jobs move straight to
// cancelled; processing jobs keep running until their next checkpoint.
// Terminal jobs are left untouched. The returned status is the job's state
// after the call.
func (s *Store) RequestCancel(ctx context.Context, id int64) (Status, error) {
	now := timestamp(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 1, completed_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusCancelled, now, now, id, StatusPending,
	)
	if err != nil {
		return "", fmt.Errorf("cancel pending job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return StatusCancelled, nil
	}

	res, err = s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		now, id, StatusProcessing,
	)
	if err != nil {
		return "", fmt.Errorf("flag processing job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return StatusProcessing, nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	return job.Status, nil
}

// CancelRequested reports the persisted cancellation flag.
func (s *Store) CancelRequested(ctx context.Context, id int64) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: id %d", ErrJobNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// UpdateProgress records intra-stage progress. Progress never decreases and
// is clamped to 0..100.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage string, progress int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), stage = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		clampProgress(progress),
		nullableString(stage),
		timestamp(time.Now()),
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotProcessing, id)
	}
	return nil
}

// SaveCheckpoint stores a stage's output and advances progress in one
// transaction.
func (s *Store) SaveCheckpoint(ctx context.Context, id int64, stage string, progress int, output any) error {
	payload, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal %s checkpoint: %w", stage, err)
	}
	now := timestamp(time.Now())
	progress = clampProgress(progress)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs SET progress = MAX(progress, ?), stage = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			progress, stage, now, id, StatusProcessing,
		)
		if err != nil {
			return fmt.Errorf("checkpoint progress: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: id %d", ErrNotProcessing, id)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO stage_checkpoints (job_id, stage, progress, output_json, created_at)
             VALUES (?, ?, ?, ?, ?)
             ON CONFLICT(job_id, stage) DO UPDATE SET
                 progress = excluded.progress, output_json = excluded.output_json, created_at = excluded.created_at`,
			id, stage, progress, string(payload), now,
		); err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		return nil
	})
}

// Checkpoints lists stage checkpoints in the order they were written.
func (s *Store) Checkpoints(ctx context.Context, id int64) ([]Checkpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT stage, progress, output_json, created_at FROM stage_checkpoints WHERE job_id = ? ORDER BY progress, created_at`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			cp         Checkpoint
			output     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&cp.Stage, &cp.Progress, &output, &createdRaw); err != nil {
			return nil, err
		}
		cp.OutputJSON = output.String
		if created, err := parseTimeString(createdRaw); err == nil {
			cp.CreatedAt = created
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// Finalize moves a processing job to a terminal status and writes its result,
// difference entries and artifacts atomically.
func (s *Store) Finalize(ctx context.Context, id int64, outcome Outcome) error {
	if !outcome.Status.IsTerminal() {
		return fmt.Errorf("finalize job %d: status %q is not terminal", id, outcome.Status)
	}
	now := timestamp(time.Now())
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE jobs
             SET status = ?, error_message = ?, completed_at = ?, updated_at = ?, last_heartbeat = NULL,
                 progress = CASE WHEN ? THEN 100 ELSE progress END
             WHERE id = ? AND status = ?`,
			outcome.Status,
			nullableString(outcome.ErrorMessage),
			now,
			now,
			outcome.Status == StatusCompleted,
			id,
			StatusProcessing,
		)
		if err != nil {
			return fmt.Errorf("finalize job: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("%w: id %d", ErrNotProcessing, id)
		}

		if r := outcome.Result; r != nil {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO comparison_results (
                    job_id, overall_similarity, is_match, video_similarity, audio_similarity,
                    video_differences_count, audio_differences_count, total_frames, different_frames,
                    lufs_difference, peak_difference, sync_offset_ms
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id,
				nullableFloat(r.OverallSimilarity),
				nullableBool(r.IsMatch),
				nullableFloat(r.VideoSimilarity),
				nullableFloat(r.AudioSimilarity),
				r.VideoDifferencesCount,
				r.AudioDifferencesCount,
				r.TotalFrames,
				r.DifferentFrames,
				nullableFloat(r.LUFSDifference),
				nullableFloat(r.PeakDifference),
				nullableFloat(r.SyncOffsetMillis),
			); err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}

		for seq, d := range outcome.Differences {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO difference_entries (
                    job_id, seq, timestamp_seconds, duration_seconds, difference_type,
                    severity, confidence, description, ssim_score
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id,
				seq,
				d.TimestampSeconds,
				d.DurationSeconds,
				d.Type,
				d.Severity,
				d.Confidence,
				nullableString(d.Description),
				nullableFloat(d.SSIMScore),
			); err != nil {
				return fmt.Errorf("insert difference %d: %w", seq, err)
			}
		}

		for bucket, location := range outcome.Artifacts {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT OR IGNORE INTO diff_artifacts (job_id, bucket, location, created_at) VALUES (?, ?, ?, ?)`,
				id, bucket, location, now,
			); err != nil {
				return fmt.Errorf("insert artifact %d: %w", bucket, err)
			}
		}
		return nil
	})
}

func clampProgress(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
