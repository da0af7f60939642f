package report_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"mediadiff/internal/jobs"
	"mediadiff/internal/report"
	"mediadiff/internal/testsupport"
)

func float(v float64) *float64 { return &v }

func completedJob(t *testing.T) (*jobs.Store, int64) {
	t.Helper()
	ctx := context.Background()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	a := testsupport.AddMedia(t, store, cfg, "a.mkv")
	b := testsupport.AddMedia(t, store, cfg, "b.mkv")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "medium")

	claimed, err := store.Claim(ctx, job.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	match := false
	err = store.Finalize(ctx, job.ID, jobs.Outcome{
		Status: jobs.StatusCompleted,
		Result: &jobs.Result{
			OverallSimilarity:     float(0.82),
			IsMatch:               &match,
			VideoSimilarity:       float(0.8),
			AudioSimilarity:       float(0.86),
			VideoDifferencesCount: 1,
			AudioDifferencesCount: 1,
			TotalFrames:           20,
			DifferentFrames:       3,
		},
		Differences: []jobs.Difference{
			{TimestampSeconds: 0, DurationSeconds: 20, Type: jobs.TypeAudioLoudness, Severity: jobs.SeverityMedium, Confidence: 0.7, Description: "integrated loudness differs by 3.0 LU"},
			{TimestampSeconds: 4, DurationSeconds: 2, Type: jobs.TypeVideoFrame, Severity: jobs.SeverityHigh, Confidence: 0.9, SSIMScore: float(0.7)},
		},
		Artifacts: map[int]string{50: "/artifacts/job-1/000050.png"},
	})
	require.NoError(t, err)
	return store, job.ID
}

func TestBuildJSONUsesStableFieldNames(t *testing.T) {
	store, id := completedJob(t)

	payload, err := report.Build(context.Background(), store, id)
	require.NoError(t, err)
	require.NotNil(t, payload)

	data, err := payload.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	result := decoded["result"].(map[string]any)
	for _, key := range []string{"overall_similarity", "video_similarity", "audio_similarity", "total_frames", "different_frames"} {
		assert.Contains(t, result, key)
	}
	differences := decoded["differences"].([]any)
	require.Len(t, differences, 2)
	first := differences[1].(map[string]any)
	for _, key := range []string{"timestamp_seconds", "difference_type", "severity", "confidence", "ssim_score"} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, map[string]any{"5.0": "/artifacts/job-1/000050.png"}, decoded["artifacts"])
	assert.Equal(t, "completed", decoded["job"].(map[string]any)["status"])
}

func TestBuildIsDeterministic(t *testing.T) {
	store, id := completedJob(t)

	first, err := report.Build(context.Background(), store, id)
	require.NoError(t, err)
	second, err := report.Build(context.Background(), store, id)
	require.NoError(t, err)

	a, err := first.JSON()
	require.NoError(t, err)
	b, err := second.JSON()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestBuildPendingJobHasNullResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	a := testsupport.AddMedia(t, store, cfg, "a.mkv")
	b := testsupport.AddMedia(t, store, cfg, "b.mkv")
	job := testsupport.NewJob(t, store, a.ID, b.ID, "low")

	payload, err := report.Build(context.Background(), store, job.ID)
	require.NoError(t, err)

	data, err := payload.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result": null`)
	assert.Contains(t, string(data), `"differences": []`)
}

func TestBuildUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	payload, err := report.Build(context.Background(), store, 99)
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestYAMLMatchesJSONFieldNames(t *testing.T) {
	store, id := completedJob(t)
	payload, err := report.Build(context.Background(), store, id)
	require.NoError(t, err)

	data, err := payload.YAML()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	result := decoded["result"].(map[string]any)
	assert.Equal(t, 20, result["total_frames"])
	assert.InDelta(t, 0.82, result["overall_similarity"], 1e-9)
	assert.True(t, strings.Contains(string(data), "difference_type: video_frame"))
}

func TestValidateReportsFieldErrors(t *testing.T) {
	err := report.Validate([]byte(`{"job": {"id": 0}, "result": {"total_frames": -1}, "differences": [], "artifacts": {}}`))
	require.Error(t, err)

	var validationErr *report.ValidationError
	require.True(t, errors.As(err, &validationErr))
	fields := make([]string, 0, len(validationErr.Errors))
	for _, fe := range validationErr.Errors {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "job.id")
	assert.Contains(t, validationErr.Error(), "results payload does not match schema")
}

func TestValidateRejectsUnknownDifferenceType(t *testing.T) {
	doc := `{"job": {"id": 1, "acceptance_file_id": 1, "emission_file_id": 2, "sensitivity_level": "low",
	"status": "completed", "progress": 100, "created_at": "2026-01-01T00:00:00Z"}, "result": null,
	"differences": [{"timestamp_seconds": 1, "duration_seconds": 0, "difference_type": "subtitle",
	"severity": "low", "confidence": 0.5, "ssim_score": null}], "artifacts": {}}`

	err := report.Validate([]byte(doc))
	require.Error(t, err)
}
