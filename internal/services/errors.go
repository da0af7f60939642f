package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrMediaProbe        = errors.New("media probe error")
	ErrStageTimeout      = errors.New("stage timeout")
	ErrExternalTool      = errors.New("external tool error")
	ErrConfiguration     = errors.New("configuration error")
	ErrNotFound          = errors.New("not found")
	ErrTransient         = errors.New("transient failure")
)

// ErrorKind is the short classification recorded in logs for a failure.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindTransition   ErrorKind = "invalid_transition"
	KindMediaProbe   ErrorKind = "media_probe"
	KindTimeout      ErrorKind = "timeout"
	KindExternalTool ErrorKind = "external_tool"
	KindConfig       ErrorKind = "configuration"
	KindNotFound     ErrorKind = "not_found"
	KindTransient    ErrorKind = "transient"
	KindUnknown      ErrorKind = "unknown"
)

// ServiceError carries a marker plus the stage/operation context it was raised in.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Marker, detail, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Marker, detail)
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Marker}
	}
	return []error{e.Marker, e.Cause}
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// ErrorDetails is the flattened view of an error used for logs and job messages.
type ErrorDetails struct {
	Kind      ErrorKind
	Stage     string
	Operation string
	Message   string
	Hint      string
	Cause     error
}

// Details extracts the classification and context of err.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	details := ErrorDetails{Kind: Classify(err)}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		details.Stage = svcErr.Stage
		details.Operation = svcErr.Operation
		details.Message = svcErr.Message
		details.Cause = svcErr.Cause
	}
	if details.Message == "" {
		details.Message = err.Error()
	} else if details.Cause != nil {
		details.Message = details.Message + ": " + details.Cause.Error()
	}
	details.Hint = hintFor(details.Kind)
	return details
}

// Classify maps err to its ErrorKind by marker.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInvalidTransition):
		return KindTransition
	case errors.Is(err, ErrMediaProbe):
		return KindMediaProbe
	case errors.Is(err, ErrStageTimeout):
		return KindTimeout
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrConfiguration):
		return KindConfig
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

func hintFor(kind ErrorKind) string {
	switch kind {
	case KindValidation:
		return "check the request parameters"
	case KindTransition:
		return "check the job status before retrying the operation"
	case KindMediaProbe:
		return "verify the media file exists and is readable by ffprobe"
	case KindTimeout:
		return "raise tools.call_timeout or check helper load"
	case KindExternalTool:
		return "check the external tool output in the logs"
	case KindConfig:
		return "review the configuration file"
	case KindNotFound:
		return "verify the identifier"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
