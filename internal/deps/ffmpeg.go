package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mediadiff/internal/config"
)

// RequiredFilters lists the ffmpeg filters used for loudness measurement and
// diff mask rendering.
var RequiredFilters = []string{"ebur128", "blend", "scale2ref"}

// Requirements returns the external executables the pipeline invokes.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Stages: []string{"video", "audio", "render"}},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Stages: []string{"probe"}},
		{Name: "Analysis helper", Command: cfg.Tools.Helper, Stages: []string{"video", "audio"}},
	}
}

// CheckFFmpegFilters reports whether the configured ffmpeg build provides
// every filter in RequiredFilters.
func CheckFFmpegFilters(ctx context.Context, binary string) Status {
	result := Status{Requirement: Requirement{
		Name:    "FFmpeg filters",
		Command: strings.TrimSpace(binary),
		Stages:  []string{"audio", "render"},
	}}
	if result.Command == "" {
		result.Command = "ffmpeg"
	}
	path, err := exec.LookPath(result.Command)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", result.Command)
		return result
	}
	result.Path = path

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(ctx, result.Command, "-hide_banner", "-filters").Output()
	if err != nil {
		result.Detail = fmt.Sprintf("list filters: %v", err)
		return result
	}

	available := parseFilterNames(output)
	var missing []string
	for _, name := range RequiredFilters {
		if _, ok := available[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		result.Detail = "missing filters: " + strings.Join(missing, ", ")
		return result
	}
	result.Available = true
	return result
}

// parseFilterNames extracts filter names from `ffmpeg -filters` output, where
// each filter line is "<flags> <name> <io> <description>".
func parseFilterNames(output []byte) map[string]struct{} {
	names := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		names[fields[1]] = struct{}{}
	}
	return names
}
