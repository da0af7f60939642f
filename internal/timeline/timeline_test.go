package timeline_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadiff/internal/jobs"
	"mediadiff/internal/timeline"
)

func ssim(v float64) *float64 { return &v }

func entry(t float64, typ jobs.DifferenceType, conf float64) jobs.Difference {
	return jobs.Difference{TimestampSeconds: t, Type: typ, Severity: jobs.SeverityLow, Confidence: conf}
}

func TestSameTypeWithinEpsilonCoalesces(t *testing.T) {
	a := entry(10.0, jobs.TypeVideoFrame, 0.2)
	a.SSIMScore = ssim(0.8)
	b := entry(10.3, jobs.TypeVideoFrame, 0.4)
	b.SSIMScore = ssim(0.6)
	b.Severity = jobs.SeverityHigh

	got := timeline.Merge(timeline.Options{Epsilon: timeline.DefaultEpsilon}, []jobs.Difference{a, b})
	require.Len(t, got, 1)
	assert.InDelta(t, 10.0, got[0].TimestampSeconds, 1e-9)
	assert.InDelta(t, 0.3, got[0].DurationSeconds, 1e-9)
	assert.InDelta(t, 0.4, got[0].Confidence, 1e-9)
	assert.Equal(t, jobs.SeverityHigh, got[0].Severity)
	require.NotNil(t, got[0].SSIMScore)
	assert.InDelta(t, 0.6, *got[0].SSIMScore, 1e-9)
}

func TestDifferentTypesNeverMerge(t *testing.T) {
	video := []jobs.Difference{entry(10.0, jobs.TypeVideoFrame, 0.5)}
	audio := []jobs.Difference{entry(10.0, jobs.TypeAudioLoudness, 0.5)}
	ocr := []jobs.Difference{entry(10.0, jobs.TypeOCRText, 0.5)}

	got := timeline.Merge(timeline.Options{Epsilon: 0.5}, ocr, audio, video)
	require.Len(t, got, 3)
	assert.Equal(t, jobs.TypeVideoFrame, got[0].Type)
	assert.Equal(t, jobs.TypeAudioLoudness, got[1].Type)
	assert.Equal(t, jobs.TypeOCRText, got[2].Type)
}

func TestCustomRankBreaksTies(t *testing.T) {
	rank := func(t jobs.DifferenceType) int {
		if t == jobs.TypeOCRText {
			return 0
		}
		return 1
	}
	got := timeline.Merge(timeline.Options{Rank: rank},
		[]jobs.Difference{entry(3, jobs.TypeVideoFrame, 1)},
		[]jobs.Difference{entry(3, jobs.TypeOCRText, 1)},
	)
	require.Len(t, got, 2)
	assert.Equal(t, jobs.TypeOCRText, got[0].Type)
}

func TestSpanUnionAndChaining(t *testing.T) {
	long := entry(1.0, jobs.TypeVideoFrame, 0.3)
	long.DurationSeconds = 4.0
	inside := entry(2.0, jobs.TypeVideoFrame, 0.1)
	after := entry(5.4, jobs.TypeVideoFrame, 0.1)
	far := entry(7.0, jobs.TypeVideoFrame, 0.1)

	got := timeline.Merge(timeline.Options{Epsilon: 0.5}, []jobs.Difference{far, inside, long, after})
	require.Len(t, got, 2)
	assert.InDelta(t, 1.0, got[0].TimestampSeconds, 1e-9)
	assert.InDelta(t, 4.4, got[0].DurationSeconds, 1e-9)
	assert.InDelta(t, 7.0, got[1].TimestampSeconds, 1e-9)
}

func TestDescriptionsAreDeduplicated(t *testing.T) {
	a := entry(4, jobs.TypeOCRText, 0.9)
	a.Description = `text only in emission: "LIVE"`
	b := entry(4.2, jobs.TypeOCRText, 0.8)
	b.Description = `text only in emission: "LIVE"`
	c := entry(4.4, jobs.TypeOCRText, 0.7)
	c.Description = `text only in acceptance: "REPLAY"`

	got := timeline.Merge(timeline.Options{Epsilon: 0.5}, []jobs.Difference{a, b, c})
	require.Len(t, got, 1)
	assert.Equal(t, `text only in emission: "LIVE"; text only in acceptance: "REPLAY"`, got[0].Description)
}

func TestOutputIsSortedAndInputsUntouched(t *testing.T) {
	video := []jobs.Difference{entry(30, jobs.TypeVideoFrame, 1), entry(2, jobs.TypeVideoFrame, 1)}
	audio := []jobs.Difference{entry(0, jobs.TypeAudioDesync, 1), entry(15, jobs.TypeAudioVoice, 1)}
	ocr := []jobs.Difference{entry(7, jobs.TypeOCRText, 1)}

	got := timeline.Merge(timeline.Options{Epsilon: 0.5}, video, audio, ocr)
	assert.Len(t, got, 5)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool {
		return got[i].TimestampSeconds < got[j].TimestampSeconds
	}))
	assert.InDelta(t, 30.0, video[0].TimestampSeconds, 1e-9)
}

func TestEmptyInputs(t *testing.T) {
	got := timeline.Merge(timeline.Options{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
