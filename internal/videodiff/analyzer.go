package videodiff

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

const stageName = "video"

// Input is one comparison request.
type Input struct {
	Acceptance probe.Info
	Emission   probe.Info
	Profile    sensitivity.Profile
	// WorkDir receives temporary frame files; it is created if missing.
	WorkDir  string
	Token    *stage.Token
	Progress stage.Progress
}

// Output is what the video stage contributes to a job.
type Output struct {
	Similarity      float64           `json:"video_similarity"`
	TotalFrames     int               `json:"total_frames"`
	DifferentFrames int               `json:"different_frames"`
	Step            float64           `json:"step"`
	Frames          []jobs.Difference `json:"frames"`
	Text            []jobs.Difference `json:"text"`
}

// Analyzer runs the video stage.
type Analyzer struct {
	frames capability.FrameSource
	vision capability.Vision
	ocr    capability.OCR
	logger *slog.Logger
}

// New builds an analyzer over the provided capabilities.
func New(set capability.Set, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		frames: set.Frames,
		vision: set.Vision,
		ocr:    set.OCR,
		logger: logging.NewComponentLogger(logger, "videodiff"),
	}
}

type sample struct {
	index int
	t     float64
	ssim  float64
	band  int
}

// Analyze samples both files and returns the video differences. It returns
// stage.ErrCancelled when the token is cancelled between samples.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (Output, error) {
	if a.frames == nil || a.vision == nil {
		return Output{}, services.Wrap(services.ErrConfiguration, stageName, "init", "frame extraction and vision capabilities are required", nil)
	}
	if err := in.Token.Check(); err != nil {
		return Output{}, err
	}

	fps := math.Min(in.Acceptance.FPS, in.Emission.FPS)
	step := in.Profile.Step(fps)
	shorter := math.Min(in.Acceptance.DurationSeconds, in.Emission.DurationSeconds)
	longer := math.Max(in.Acceptance.DurationSeconds, in.Emission.DurationSeconds)
	count := sampleCount(shorter, step)
	ocrEvery := in.Profile.OCREvery(step)
	if ocrEvery > 0 && a.ocr == nil {
		logging.WarnWithContext(a.logger, "ocr capability unavailable; skipping text comparison", "ocr_unavailable",
			logging.String(logging.FieldErrorHint, "configure tools.helper to enable OCR"),
		)
		ocrEvery = 0
	}

	dir := filepath.Join(in.WorkDir, "frames")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrConfiguration, stageName, "workdir", "create frame directory", err)
	}
	defer os.RemoveAll(dir)

	a.logger.Debug("video sampling",
		logging.Float64("step", step),
		logging.Int("samples", count),
		logging.Int("ocr_every", ocrEvery),
	)

	var (
		samples []sample
		flagged []sample
		texts   = newTextTracker()
		sum     float64
	)
	for i := range count {
		if err := in.Token.Check(); err != nil {
			return Output{}, err
		}
		t := float64(i) * step
		pathA := filepath.Join(dir, fmt.Sprintf("a-%06d.png", i))
		pathB := filepath.Join(dir, fmt.Sprintf("b-%06d.png", i))
		if err := a.frames.ExtractFrame(ctx, in.Acceptance.Path, t, pathA); err != nil {
			return Output{}, err
		}
		if err := a.frames.ExtractFrame(ctx, in.Emission.Path, t, pathB); err != nil {
			return Output{}, err
		}
		sim, err := a.vision.CompareFrames(ctx, pathA, pathB)
		if err != nil {
			return Output{}, err
		}
		s := sample{index: i, t: t, ssim: sim.Structural, band: in.Profile.Band(sim.Structural)}
		samples = append(samples, s)
		sum += s.ssim
		if s.ssim < in.Profile.SSIMThreshold {
			flagged = append(flagged, s)
		}

		if ocrEvery > 0 && i%ocrEvery == 0 {
			snippetsA, err := a.ocr.ExtractText(ctx, pathA)
			if err != nil {
				return Output{}, err
			}
			snippetsB, err := a.ocr.ExtractText(ctx, pathB)
			if err != nil {
				return Output{}, err
			}
			texts.observe(i/ocrEvery, t, snippetsA, snippetsB)
		}

		_ = os.Remove(pathA)
		_ = os.Remove(pathB)
		in.Progress.Report(float64(i+1) / float64(count))
	}

	out := Output{
		TotalFrames:     len(samples),
		DifferentFrames: len(flagged),
		Step:            step,
		Similarity:      1,
		Frames:          buildRuns(flagged, step, in.Profile),
		Text:            texts.finish(),
	}
	if len(samples) > 0 {
		out.Similarity = sum / float64(len(samples))
	}
	if tail := longer - shorter; tail > step {
		out.Frames = append(out.Frames, tailDifference(in, shorter, tail))
	}

	a.logger.Info("video comparison complete",
		logging.Int("total_frames", out.TotalFrames),
		logging.Int("different_frames", out.DifferentFrames),
		logging.Float64("video_similarity", out.Similarity),
		logging.Int("video_differences", len(out.Frames)),
		logging.Int("text_differences", len(out.Text)),
	)
	return out, nil
}

func sampleCount(duration, step float64) int {
	if duration <= 0 || step <= 0 {
		return 0
	}
	// Samples sit strictly before the end of the shorter stream.
	n := int(math.Ceil(duration/step - 1e-9))
	return max(n, 1)
}

func tailDifference(in Input, shorter, tail float64) jobs.Difference {
	side := "emission"
	if in.Acceptance.DurationSeconds < in.Emission.DurationSeconds {
		side = "acceptance"
	}
	return jobs.Difference{
		TimestampSeconds: shorter,
		DurationSeconds:  tail,
		Type:             jobs.TypeVideoFrame,
		Severity:         jobs.SeverityHigh,
		Confidence:       1,
		Description:      fmt.Sprintf("%s ends %.2fs early", side, tail),
	}
}
