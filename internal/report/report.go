// Package report assembles the results payload of a job and encodes it as
// JSON (validated against the embedded schema) or YAML.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"mediadiff/internal/jobs"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Source reads the persisted pieces of a job.
type Source interface {
	GetJob(ctx context.Context, id int64) (*jobs.Job, error)
	Result(ctx context.Context, jobID int64) (*jobs.Result, error)
	Differences(ctx context.Context, jobID int64) ([]jobs.Difference, error)
	Artifacts(ctx context.Context, jobID int64) (map[int]string, error)
}

// Payload is the results view of one job. Field names are a stable contract.
type Payload struct {
	Job         *jobs.Job         `json:"job"`
	Result      *jobs.Result      `json:"result"`
	Differences []jobs.Difference `json:"differences"`
	// Artifacts maps the timestamp (seconds, one decimal) of each rendered
	// diff frame to its location.
	Artifacts map[string]string `json:"artifacts"`
}

// Build loads the payload for jobID. It returns (nil, nil) when the job does
// not exist.
func Build(ctx context.Context, src Source, jobID int64) (*Payload, error) {
	job, err := src.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return nil, err
	}
	result, err := src.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}
	differences, err := src.Differences(ctx, jobID)
	if err != nil {
		return nil, err
	}
	buckets, err := src.Artifacts(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if differences == nil {
		differences = []jobs.Difference{}
	}
	artifacts := make(map[string]string, len(buckets))
	for bucket, location := range buckets {
		artifacts[BucketKey(bucket)] = location
	}
	return &Payload{Job: job, Result: result, Differences: differences, Artifacts: artifacts}, nil
}

// BucketKey renders an artifact bucket as its timestamp in seconds.
func BucketKey(bucket int) string {
	return strconv.FormatFloat(float64(bucket)/10, 'f', 1, 64)
}

// SortedArtifactKeys returns the artifact keys in timestamp order.
func (p *Payload) SortedArtifactKeys() []string {
	keys := make([]string, 0, len(p.Artifacts))
	for k := range p.Artifacts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseFloat(keys[i], 64)
		b, _ := strconv.ParseFloat(keys[j], 64)
		return a < b
	})
	return keys
}

// JSON encodes the payload and validates it against the results schema.
func (p *Payload) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// YAML encodes the payload with the same field names as the JSON form.
func (p *Payload) YAML() ([]byte, error) {
	data, err := p.JSON()
	if err != nil {
		return nil, err
	}
	var generic any
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(toYAML(generic)); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// toYAML converts json.Number leaves into ints or floats so YAML emits plain
// scalars.
func toYAML(v any) any {
	switch value := v.(type) {
	case map[string]any:
		for k, item := range value {
			value[k] = toYAML(item)
		}
		return value
	case []any:
		for i, item := range value {
			value[i] = toYAML(item)
		}
		return value
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		f, _ := value.Float64()
		return f
	default:
		return value
	}
}

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation of a payload.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, err := range ve.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return "results payload does not match schema: " + strings.Join(parts, "; ")
}

// Validate checks raw JSON against the results schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate results: %w", err)
	}
	if result.Valid() {
		return nil
	}
	validationErr := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		validationErr.Errors = append(validationErr.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return validationErr
}
