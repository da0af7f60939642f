package jobs

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, job_name, acceptance_file_id, emission_file_id, sensitivity_level, status, progress, stage, settings_json, originating_job_id, error_message, cancel_requested, created_at, updated_at, started_at, completed_at, last_heartbeat"

const fileColumns = "id, path, label, duration_seconds, width, height, fps, has_audio, probe_json, probed_at, created_at"

type scanner interface{ Scan(dest ...any) error }

func scanJob(row scanner) (*Job, error) {
	var (
		id               int64
		name             sql.NullString
		acceptanceID     int64
		emissionID       int64
		sensitivity      string
		statusStr        string
		progress         int
		stage            sql.NullString
		settings         string
		originatingID    sql.NullInt64
		errorMessage     sql.NullString
		cancelRequested  int
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		startedRaw       sql.NullString
		completedRaw     sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := row.Scan(
		&id,
		&name,
		&acceptanceID,
		&emissionID,
		&sensitivity,
		&statusStr,
		&progress,
		&stage,
		&settings,
		&originatingID,
		&errorMessage,
		&cancelRequested,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:               id,
		Name:             name.String,
		AcceptanceFileID: acceptanceID,
		EmissionFileID:   emissionID,
		Sensitivity:      sensitivity,
		Status:           Status(statusStr),
		Progress:         progress,
		Stage:            stage.String,
		SettingsJSON:     settings,
		ErrorMessage:     errorMessage.String,
		CancelRequested:  cancelRequested != 0,
		StartedAt:        parseNullableTime(startedRaw),
		CompletedAt:      parseNullableTime(completedRaw),
		LastHeartbeat:    parseNullableTime(lastHeartbeatRaw),
	}
	if originatingID.Valid {
		origin := originatingID.Int64
		job.OriginatingJobID = &origin
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanFile(row scanner) (*MediaFile, error) {
	var (
		id         int64
		path       string
		label      sql.NullString
		duration   sql.NullFloat64
		width      sql.NullInt64
		height     sql.NullInt64
		fps        sql.NullFloat64
		hasAudio   sql.NullInt64
		probeJSON  sql.NullString
		probedRaw  sql.NullString
		createdRaw sql.NullString
	)
	if err := row.Scan(&id, &path, &label, &duration, &width, &height, &fps, &hasAudio, &probeJSON, &probedRaw, &createdRaw); err != nil {
		return nil, err
	}
	file := &MediaFile{
		ID:              id,
		Path:            path,
		Label:           label.String,
		DurationSeconds: duration.Float64,
		Width:           int(width.Int64),
		Height:          int(height.Int64),
		FPS:             fps.Float64,
		HasAudio:        hasAudio.Int64 != 0,
		ProbeJSON:       probeJSON.String,
		ProbedAt:        parseNullableTime(probedRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		file.CreatedAt = created
	}
	return file, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableBool(value *bool) any {
	if value == nil {
		return nil
	}
	return boolToInt(*value)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timestampLayout is fixed width so stored values order lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
