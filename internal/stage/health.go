package stage

import "strings"

// Health is the readiness of a component the pipeline stages depend on.
// Disabled names the analyses that cannot run while the component is not
// ready; an empty list with Ready false means every job would fail.
type Health struct {
	Name     string
	Ready    bool
	Detail   string
	Disabled []string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a not-ready Health record.
func Unhealthy(name, detail string, disabled ...string) Health {
	return Health{Name: name, Detail: detail, Disabled: disabled}
}

// Summary renders the record for status output.
func (h Health) Summary() string {
	if h.Ready {
		return "ready"
	}
	if len(h.Disabled) == 0 {
		return h.Detail
	}
	return h.Detail + " (disables " + strings.Join(h.Disabled, ", ") + ")"
}
