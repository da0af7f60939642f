package videodiff_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
	"mediadiff/internal/probe"
	"mediadiff/internal/sensitivity"
	"mediadiff/internal/stage"
	"mediadiff/internal/testsupport"
	"mediadiff/internal/videodiff"
)

const (
	acceptancePath = "/media/acceptance.mp4"
	emissionPath   = "/media/emission.mp4"
)

func info(path string, duration float64) probe.Info {
	return probe.Info{Path: path, DurationSeconds: duration, FPS: 25, Width: 1920, Height: 1080, HasAudio: true}
}

func profile(t *testing.T, level string) sensitivity.Profile {
	t.Helper()
	cfg := config.Default()
	settings, err := sensitivity.Resolve(&cfg, level)
	require.NoError(t, err)
	return settings.Profile
}

func lumaWindow(from, to, value float64) func(float64) float64 {
	return func(t float64) float64 {
		if t >= from && t <= to {
			return value
		}
		return 0.5
	}
}

func run(t *testing.T, fakes *testsupport.Fakes, level string, durA, durB float64) videodiff.Output {
	t.Helper()
	analyzer := videodiff.New(fakes.Set(), nil)
	out, err := analyzer.Analyze(context.Background(), videodiff.Input{
		Acceptance: info(acceptancePath, durA),
		Emission:   info(emissionPath, durB),
		Profile:    profile(t, level),
		WorkDir:    t.TempDir(),
	})
	require.NoError(t, err)
	return out
}

func TestIdenticalFilesHaveNoDifferences(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 10})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 10})

	out := run(t, fakes, "low", 10, 10)
	assert.InDelta(t, 1.0, out.Similarity, 1e-9)
	assert.Empty(t, out.Frames)
	assert.Empty(t, out.Text)
	assert.Equal(t, 10, out.TotalFrames)
	assert.Zero(t, out.DifferentFrames)
}

func TestFlaggedSamplesFormOneRun(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 10})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 10, Luma: lumaWindow(4, 6, 0.2)})

	out := run(t, fakes, "low", 10, 10)
	require.Len(t, out.Frames, 1)
	diff := out.Frames[0]
	assert.Equal(t, jobs.TypeVideoFrame, diff.Type)
	assert.InDelta(t, 4.0, diff.TimestampSeconds, 1e-9)
	assert.InDelta(t, 2.0, diff.DurationSeconds, 1e-9)
	assert.Equal(t, jobs.SeverityHigh, diff.Severity)
	assert.InDelta(t, 0.3, diff.Confidence, 1e-9)
	require.NotNil(t, diff.SSIMScore)
	assert.InDelta(t, 0.7, *diff.SSIMScore, 1e-9)
	assert.Equal(t, 3, out.DifferentFrames)
	assert.InDelta(t, (7*1.0+3*0.7)/10, out.Similarity, 1e-9)
}

func TestSeparatedWindowsFormSeparateRuns(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 20})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 20, Luma: func(t float64) float64 {
		if (t >= 2 && t <= 3) || (t >= 12 && t <= 13) {
			return 0.3
		}
		return 0.5
	}})

	out := run(t, fakes, "low", 20, 20)
	require.Len(t, out.Frames, 2)
	assert.Equal(t, jobs.SeverityMedium, out.Frames[0].Severity)
	assert.InDelta(t, 12.0, out.Frames[1].TimestampSeconds, 1e-9)
}

func TestStricterThresholdAtHigherSensitivity(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 10})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 10, Luma: lumaWindow(4, 6, 0.58)})

	low := run(t, fakes, "low", 10, 10)
	medium := run(t, fakes, "medium", 10, 10)
	assert.Empty(t, low.Frames, "SSIM 0.92 passes the low threshold")
	require.Len(t, medium.Frames, 1)
	assert.Equal(t, jobs.SeverityLow, medium.Frames[0].Severity)
}

func TestStricterLevelDoesNotBridgeRuns(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 4})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 4, Luma: func(t float64) float64 {
		switch {
		case t <= 0.1, t >= 1.95 && t <= 2.05:
			return 0 // SSIM 0.5
		case t < 1.95:
			return 0.435 // SSIM 0.935, flagged only at high
		}
		return 0.5
	}})

	var counts []int
	for _, level := range []string{"low", "medium", "high"} {
		out := run(t, fakes, level, 4, 4)
		counts = append(counts, len(out.Frames))
	}
	assert.Equal(t, []int{2, 2, 3}, counts)
}

func TestOCRTextOnlyInEmission(t *testing.T) {
	fakes := testsupport.NewFakes()
	caption := func(t float64) []string { return []string{"Evening News"} }
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 15, Text: caption})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 15, Text: func(t float64) []string {
		if t >= 10 && t <= 12 {
			return []string{"EVENING NEWS", "Breaking: storm warning"}
		}
		return []string{"evening  news"}
	}})

	low := run(t, fakes, "low", 15, 15)
	assert.Empty(t, low.Text, "low sensitivity does not run OCR")

	medium := run(t, fakes, "medium", 15, 15)
	require.Len(t, medium.Text, 1)
	entry := medium.Text[0]
	assert.Equal(t, jobs.TypeOCRText, entry.Type)
	assert.InDelta(t, 10.0, entry.TimestampSeconds, 1e-9)
	assert.InDelta(t, 2.0, entry.DurationSeconds, 1e-9)
	assert.InDelta(t, 0.9, entry.Confidence, 1e-9)
	assert.Contains(t, entry.Description, "only in emission")
	assert.Nil(t, entry.SSIMScore)
}

func TestDurationMismatchAddsTailEntry(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 10})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 7.5})

	out := run(t, fakes, "low", 10, 7.5)
	require.Len(t, out.Frames, 1)
	tail := out.Frames[0]
	assert.InDelta(t, 7.5, tail.TimestampSeconds, 1e-9)
	assert.InDelta(t, 2.5, tail.DurationSeconds, 1e-9)
	assert.Equal(t, jobs.SeverityHigh, tail.Severity)
	assert.Equal(t, 1.0, tail.Confidence)
	assert.Equal(t, 8, out.TotalFrames)
}

func TestCancelStopsWithinOneSample(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 60})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 60})

	token := stage.NewToken()
	fakes.OnFrame = func(_ string, t float64) {
		if t >= 5 {
			token.Cancel()
		}
	}

	analyzer := videodiff.New(fakes.Set(), nil)
	_, err := analyzer.Analyze(context.Background(), videodiff.Input{
		Acceptance: info(acceptancePath, 60),
		Emission:   info(emissionPath, 60),
		Profile:    profile(t, "low"),
		WorkDir:    t.TempDir(),
		Token:      token,
	})
	require.ErrorIs(t, err, stage.ErrCancelled)
	// Sample 5 finishes both extractions, sample 6 never starts.
	assert.Equal(t, int32(12), fakes.FrameCalls.Load())
}

func TestProgressIsMonotonic(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 5})
	fakes.AddClip(emissionPath, testsupport.Clip{Duration: 5})

	var reports []float64
	analyzer := videodiff.New(fakes.Set(), nil)
	_, err := analyzer.Analyze(context.Background(), videodiff.Input{
		Acceptance: info(acceptancePath, 5),
		Emission:   info(emissionPath, 5),
		Profile:    profile(t, "medium"),
		WorkDir:    t.TempDir(),
		Progress:   func(f float64) { reports = append(reports, f) },
	})
	require.NoError(t, err)
	require.NotEmpty(t, reports)
	for i := 1; i < len(reports); i++ {
		assert.GreaterOrEqual(t, reports[i], reports[i-1])
	}
	assert.Equal(t, 1.0, reports[len(reports)-1])
}

func TestCountsAreMonotonicInSensitivity(t *testing.T) {
	fakes := testsupport.NewFakes()
	fakes.AddClip(acceptancePath, testsupport.Clip{Duration: 30, Text: func(float64) []string { return []string{"Channel 4"} }})
	fakes.AddClip(emissionPath, testsupport.Clip{
		Duration: 30,
		Luma: func(t float64) float64 {
			switch {
			case t >= 3 && t <= 5:
				return 0.1 // obvious
			case t >= 10.2 && t <= 10.4:
				return 0.2 // between low samples
			case t >= 20 && t <= 22:
				return 0.58 // subtle
			}
			return 0.5
		},
		Text: func(t float64) []string {
			if t >= 14 && t <= 16 {
				return []string{"Channel 4", "Sponsored"}
			}
			return []string{"Channel 4"}
		},
	})

	var counts []int
	for _, level := range []string{"low", "medium", "high"} {
		out := run(t, fakes, level, 30, 30)
		counts = append(counts, len(out.Frames)+len(out.Text))
	}
	assert.Equal(t, 1, counts[0])
	assert.LessOrEqual(t, counts[0], counts[1])
	assert.LessOrEqual(t, counts[1], counts[2])
	assert.Greater(t, counts[2], counts[0])
}
