package audiodiff

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"mediadiff/internal/capability"
	"mediadiff/internal/jobs"
	"mediadiff/internal/logging"
	"mediadiff/internal/probe"
	"mediadiff/internal/sensitivity"
	"mediadiff/internal/services"
	"mediadiff/internal/stage"
)

const stageName = "audio"

// Tolerances beyond which a difference is reported.
const (
	LoudnessToleranceLU = 1.0
	PeakToleranceDB     = 1.0
	SyncToleranceMillis = 40.0
)

// Input is one comparison request.
type Input struct {
	Acceptance probe.Info
	Emission   probe.Info
	Profile    sensitivity.Profile
	Weights    sensitivity.Weights
	WorkDir    string
	Token      *stage.Token
	Progress   stage.Progress
}

// Output is what the audio stage contributes to a job. Similarity is nil when
// neither file has audio.
type Output struct {
	Skipped          bool              `json:"skipped"`
	Similarity       *float64          `json:"audio_similarity"`
	Spectral         *float64          `json:"spectral_similarity,omitempty"`
	MFCC             *float64          `json:"mfcc_similarity,omitempty"`
	LUFSDifference   *float64          `json:"lufs_difference"`
	PeakDifference   *float64          `json:"peak_difference"`
	SyncOffsetMillis *float64          `json:"sync_offset_ms"`
	Differences      []jobs.Difference `json:"differences"`
}

// Analyzer runs the audio stage.
type Analyzer struct {
	audio  capability.AudioTools
	voice  capability.VoiceTools
	logger *slog.Logger
}

// New builds an analyzer over the provided capabilities.
func New(set capability.Set, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		audio:  set.Audio,
		voice:  set.Voice,
		logger: logging.NewComponentLogger(logger, "audiodiff"),
	}
}

// Analyze compares the two tracks. It returns stage.ErrCancelled when the
// token is cancelled between tool calls or voice segments.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Output, error) {
	if err := in.Token.Check(); err != nil {
		return Output{}, err
	}
	switch {
	case !in.Acceptance.HasAudio && !in.Emission.HasAudio:
		a.logger.Info("neither file has audio; skipping audio comparison")
		return Output{Skipped: true, Differences: []jobs.Difference{}}, nil
	case !in.Acceptance.HasAudio || !in.Emission.HasAudio:
		return missingTrack(in), nil
	}
	if a.audio == nil {
		return Output{}, services.Wrap(services.ErrConfiguration, stageName, "init", "audio capability is required", nil)
	}

	dir := filepath.Join(in.WorkDir, "audio")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, stageName, "workdir", "create audio directory", err)
	}
	defer os.RemoveAll(dir)

	shorter := math.Min(in.Acceptance.DurationSeconds, in.Emission.DurationSeconds)
	segments := voiceSegments(in.Profile, shorter)
	if len(segments) > 0 && a.voice == nil {
		logging.WarnWithContext(a.logger, "voice capability unavailable; skipping voice comparison", "voice_unavailable")
		segments = nil
	}
	progress := newSteps(in.Progress, 6+len(segments))

	trackA := filepath.Join(dir, "acceptance.wav")
	trackB := filepath.Join(dir, "emission.wav")
	for _, side := range []struct{ src, dest string }{
		{in.Acceptance.Path, trackA},
		{in.Emission.Path, trackB},
	} {
		if err := in.Token.Check(); err != nil {
			return Output{}, err
		}
		if err := a.audio.ExtractAudio(ctx, side.src, 0, 0, side.dest); err != nil {
			return Output{}, err
		}
		progress.advance()
	}

	out := Output{Differences: []jobs.Difference{}}

	if err := in.Token.Check(); err != nil {
		return Output{}, err
	}
	loudA, err := a.audio.Loudness(ctx, trackA)
	if err != nil {
		return Output{}, err
	}
	loudB, err := a.audio.Loudness(ctx, trackB)
	if err != nil {
		return Output{}, err
	}
	lufsDiff := loudB.IntegratedLUFS - loudA.IntegratedLUFS
	peakDiff := loudB.TruePeakDB - loudA.TruePeakDB
	out.LUFSDifference, out.PeakDifference = &lufsDiff, &peakDiff
	if d, ok := loudnessDifference(lufsDiff, peakDiff, shorter); ok {
		out.Differences = append(out.Differences, d)
	}
	progress.advance()

	if err := in.Token.Check(); err != nil {
		return Output{}, err
	}
	spectral, err := a.audio.SpectralSimilarity(ctx, trackA, trackB)
	if err != nil {
		return Output{}, err
	}
	progress.advance()
	mfcc, err := a.audio.MFCCSimilarity(ctx, trackA, trackB)
	if err != nil {
		return Output{}, err
	}
	similarity := combine(in.Weights, spectral, mfcc)
	out.Spectral, out.MFCC, out.Similarity = &spectral, &mfcc, &similarity
	progress.advance()

	if err := in.Token.Check(); err != nil {
		return Output{}, err
	}
	offset, err := a.audio.SyncOffset(ctx, trackA, trackB)
	if err != nil {
		return Output{}, err
	}
	out.SyncOffsetMillis = &offset
	if d, ok := desyncDifference(offset, shorter); ok {
		out.Differences = append(out.Differences, d)
	}
	progress.advance()

	for _, seg := range segments {
		if err := in.Token.Check(); err != nil {
			return Output{}, err
		}
		d, ok, err := a.compareVoice(ctx, in, dir, seg)
		if err != nil {
			return Output{}, err
		}
		if ok {
			out.Differences = append(out.Differences, d)
		}
		progress.advance()
	}

	a.logger.Info("audio comparison complete",
		logging.Float64("audio_similarity", similarity),
		logging.Float64("lufs_difference", lufsDiff),
		logging.Float64("peak_difference", peakDiff),
		logging.Float64("sync_offset_ms", offset),
		logging.Int("voice_segments", len(segments)),
		logging.Int("audio_differences", len(out.Differences)),
	)
	return out, nil
}

// missingTrack reports a file pair where only one side carries audio.
func missingTrack(in Input) Output {
	side, present := "emission", in.Acceptance
	if !in.Acceptance.HasAudio {
		side, present = "acceptance", in.Emission
	}
	zero := 0.0
	return Output{
		Similarity: &zero,
		Differences: []jobs.Difference{{
			TimestampSeconds: 0,
			DurationSeconds:  present.DurationSeconds,
			Type:             jobs.TypeAudioLoudness,
			Severity:         jobs.SeverityHigh,
			Confidence:       1,
			Description:      fmt.Sprintf("%s has no audio track", side),
		}},
	}
}

func combine(w sensitivity.Weights, spectral, mfcc float64) float64 {
	total := w.Spectral + w.MFCC
	if total <= 0 {
		return (spectral + mfcc) / 2
	}
	return (w.Spectral*spectral + w.MFCC*mfcc) / total
}

func loudnessDifference(lufsDiff, peakDiff, duration float64) (jobs.Difference, bool) {
	excess := math.Max(math.Abs(lufsDiff)-LoudnessToleranceLU, math.Abs(peakDiff)-PeakToleranceDB)
	if excess <= 0 {
		return jobs.Difference{}, false
	}
	var severity jobs.Severity
	switch {
	case excess < 2:
		severity = jobs.SeverityLow
	case excess < 6:
		severity = jobs.SeverityMedium
	default:
		severity = jobs.SeverityHigh
	}
	return jobs.Difference{
		TimestampSeconds: 0,
		DurationSeconds:  duration,
		Type:             jobs.TypeAudioLoudness,
		Severity:         severity,
		Confidence:       1 - 1/(1+excess),
		Description:      fmt.Sprintf("loudness differs by %+.1f LU, true peak by %+.1f dB", lufsDiff, peakDiff),
	}, true
}

func desyncDifference(offset, duration float64) (jobs.Difference, bool) {
	magnitude := math.Abs(offset)
	if magnitude <= SyncToleranceMillis {
		return jobs.Difference{}, false
	}
	var severity jobs.Severity
	switch {
	case magnitude < 100:
		severity = jobs.SeverityLow
	case magnitude < 250:
		severity = jobs.SeverityMedium
	default:
		severity = jobs.SeverityHigh
	}
	return jobs.Difference{
		TimestampSeconds: 0,
		DurationSeconds:  duration,
		Type:             jobs.TypeAudioDesync,
		Severity:         severity,
		Confidence:       1 - SyncToleranceMillis/magnitude,
		Description:      fmt.Sprintf("emission audio offset %+.0f ms", offset),
	}, true
}

// steps spreads stage progress evenly over a fixed number of steps.
type steps struct {
	report stage.Progress
	total  int
	done   int
}

func newSteps(report stage.Progress, total int) *steps {
	return &steps{report: report, total: max(total, 1)}
}

func (s *steps) advance() {
	s.done++
	s.report.Report(float64(s.done) / float64(s.total))
}
