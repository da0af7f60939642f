package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is an executable one or more pipeline stages shell out to.
type Requirement struct {
	Name    string
	Command string
	// Stages lists the pipeline stages that cannot run without the command.
	Stages []string
	// Optional requirements only narrow coverage when missing (for example
	// OCR is skipped) instead of failing jobs.
	Optional bool
}

// Status is the lookup outcome for one requirement.
type Status struct {
	Requirement
	// Path is the resolved executable when Available is set.
	Path      string
	Available bool
	Detail    string
}

// Blocking reports whether the missing dependency fails jobs.
func (s Status) Blocking() bool {
	return !s.Available && !s.Optional
}

// CheckBinaries resolves every requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		switch path, err := exec.LookPath(req.Command); {
		case req.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		default:
			status.Path = path
			status.Available = true
		}
		results = append(results, status)
	}
	return results
}
