package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"mediadiff/internal/toolrun"
)

// LoudnessFloor is the value reported for silent tracks, whose integrated
// loudness and true peak are -inf.
const LoudnessFloor = -70.0

// Loudness is the EBU R128 summary of one track.
type Loudness struct {
	IntegratedLUFS float64 `json:"integrated_lufs"`
	TruePeakDB     float64 `json:"true_peak_db"`
}

// Tools runs ffmpeg through the shared tool runner.
type Tools struct {
	binary string
	runner *toolrun.Runner
}

// New returns Tools for the configured ffmpeg binary.
func New(binary string, runner *toolrun.Runner) *Tools {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Tools{binary: binary, runner: runner}
}

// ExtractFrame writes the frame at t seconds of path to dest (PNG).
func (f *Tools) ExtractFrame(ctx context.Context, path string, t float64, dest string) error {
	if err := ensureDir(dest); err != nil {
		return err
	}
	_, err := f.runner.Run(ctx, "extract frame", f.binary,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(t),
		"-i", path,
		"-frames:v", "1",
		dest,
	)
	return err
}

// ExtractAudio writes a mono 16 kHz WAV of path to dest. A zero duration
// extracts from start to the end of the file.
func (f *Tools) ExtractAudio(ctx context.Context, path string, start, duration float64, dest string) error {
	if err := ensureDir(dest); err != nil {
		return err
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	if start > 0 {
		args = append(args, "-ss", formatSeconds(start))
	}
	args = append(args, "-i", path)
	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration))
	}
	args = append(args, "-vn", "-ac", "1", "-ar", "16000", "-f", "wav", dest)
	_, err := f.runner.Run(ctx, "extract audio", f.binary, args...)
	return err
}

// Loudness measures integrated loudness and true peak with the ebur128 filter.
func (f *Tools) Loudness(ctx context.Context, track string) (Loudness, error) {
	output, err := f.runner.Run(ctx, "loudness", f.binary,
		"-hide_banner", "-nostats",
		"-i", track,
		"-filter_complex", "ebur128=peak=true",
		"-f", "null", "-",
	)
	if err != nil {
		return Loudness{}, err
	}
	return ParseLoudness(string(output))
}

// RenderDiffMask writes the absolute pixel difference of a and b to dest.
// b is scaled to a's dimensions first.
func (f *Tools) RenderDiffMask(ctx context.Context, a, b, dest string) error {
	if err := ensureDir(dest); err != nil {
		return err
	}
	_, err := f.runner.Run(ctx, "render diff mask", f.binary,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", a,
		"-i", b,
		"-filter_complex", "[1:v][0:v]scale2ref[emission][acceptance];[acceptance][emission]blend=all_mode=difference",
		"-frames:v", "1",
		dest,
	)
	return err
}

var (
	integratedPattern = regexp.MustCompile(`(?m)^\s*I:\s+(-?inf|-?[0-9.]+)\s+LUFS`)
	peakPattern       = regexp.MustCompile(`(?m)^\s*Peak:\s+(-?inf|-?[0-9.]+)\s+dBFS`)
)

// ParseLoudness reads the summary block ebur128 prints at the end of a run.
func ParseLoudness(output string) (Loudness, error) {
	integrated := lastMatch(integratedPattern, output)
	if integrated == "" {
		return Loudness{}, fmt.Errorf("ebur128 summary missing integrated loudness")
	}
	peak := lastMatch(peakPattern, output)
	if peak == "" {
		return Loudness{}, fmt.Errorf("ebur128 summary missing true peak")
	}
	lufs, err := parseLevel(integrated)
	if err != nil {
		return Loudness{}, fmt.Errorf("parse integrated loudness: %w", err)
	}
	tp, err := parseLevel(peak)
	if err != nil {
		return Loudness{}, fmt.Errorf("parse true peak: %w", err)
	}
	return Loudness{IntegratedLUFS: lufs, TruePeakDB: tp}, nil
}

func lastMatch(re *regexp.Regexp, s string) string {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1][1]
}

func parseLevel(raw string) (float64, error) {
	if strings.HasSuffix(raw, "inf") {
		return LoudnessFloor, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return math.Max(v, LoudnessFloor), nil
}

func formatSeconds(t float64) string {
	return strconv.FormatFloat(t, 'f', 3, 64)
}

func ensureDir(dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
