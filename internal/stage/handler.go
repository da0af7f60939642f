package stage

import "context"

// Checker is implemented by components that can report readiness before the
// worker pool starts claiming jobs.
type Checker interface {
	HealthCheck(context.Context) Health
}

// Progress receives the completed fraction (0..1) of a sampling loop.
type Progress func(fraction float64)

// Report calls p when it is non-nil. Fractions are clamped to 0..1.
func (p Progress) Report(fraction float64) {
	if p == nil {
		return
	}
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	p(fraction)
}
