package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Result returns the aggregate result of a job, or (nil, nil) when the job
// never produced one.
func (s *Store) Result(ctx context.Context, jobID int64) (*Result, error) {
	var (
		r        = Result{JobID: jobID}
		overall  sql.NullFloat64
		isMatch  sql.NullInt64
		video    sql.NullFloat64
		audio    sql.NullFloat64
		lufs     sql.NullFloat64
		peak     sql.NullFloat64
		syncOffs sql.NullFloat64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT overall_similarity, is_match, video_similarity, audio_similarity,
                video_differences_count, audio_differences_count, total_frames, different_frames,
                lufs_difference, peak_difference, sync_offset_ms
         FROM comparison_results WHERE job_id = ?`,
		jobID,
	).Scan(
		&overall, &isMatch, &video, &audio,
		&r.VideoDifferencesCount, &r.AudioDifferencesCount, &r.TotalFrames, &r.DifferentFrames,
		&lufs, &peak, &syncOffs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	r.OverallSimilarity = floatPtr(overall)
	r.VideoSimilarity = floatPtr(video)
	r.AudioSimilarity = floatPtr(audio)
	r.LUFSDifference = floatPtr(lufs)
	r.PeakDifference = floatPtr(peak)
	r.SyncOffsetMillis = floatPtr(syncOffs)
	if isMatch.Valid {
		match := isMatch.Int64 != 0
		r.IsMatch = &match
	}
	return &r, nil
}

// Differences returns a job's timeline in ascending timestamp order.
func (s *Store) Differences(ctx context.Context, jobID int64) ([]Difference, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT timestamp_seconds, duration_seconds, difference_type, severity, confidence, description, ssim_score
         FROM difference_entries WHERE job_id = ? ORDER BY timestamp_seconds, seq`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list differences: %w", err)
	}
	defer rows.Close()

	out := []Difference{}
	for rows.Next() {
		var (
			d           Difference
			typ, sev    string
			description sql.NullString
			ssim        sql.NullFloat64
		)
		if err := rows.Scan(&d.TimestampSeconds, &d.DurationSeconds, &typ, &sev, &d.Confidence, &description, &ssim); err != nil {
			return nil, err
		}
		d.Type = DifferenceType(typ)
		d.Severity = Severity(sev)
		d.Description = description.String
		d.SSIMScore = floatPtr(ssim)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Artifacts returns rendered diff frames keyed by timestamp bucket.
func (s *Store) Artifacts(ctx context.Context, jobID int64) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, location FROM diff_artifacts WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			bucket   int
			location string
		)
		if err := rows.Scan(&bucket, &location); err != nil {
			return nil, err
		}
		out[bucket] = location
	}
	return out, rows.Err()
}
