package jobs

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a comparison job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// InterruptedReason is the error message set on jobs whose worker stopped
// heartbeating (for example after a daemon crash).
const InterruptedReason = "processing interrupted"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// DifferenceType names the modality a difference entry was detected in.
type DifferenceType string

const (
	TypeVideoFrame    DifferenceType = "video_frame"
	TypeAudioLoudness DifferenceType = "audio_loudness"
	TypeAudioDesync   DifferenceType = "audio_desync"
	TypeAudioVoice    DifferenceType = "audio_voice"
	TypeOCRText       DifferenceType = "ocr_text"
)

// IsAudio reports whether the type belongs to the audio modality.
func (t DifferenceType) IsAudio() bool {
	switch t {
	case TypeAudioLoudness, TypeAudioDesync, TypeAudioVoice:
		return true
	default:
		return false
	}
}

// Severity grades a difference entry.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities so the larger value is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Job is a persisted comparison job.
type Job struct {
	ID               int64      `json:"id"`
	Name             string     `json:"job_name,omitempty"`
	AcceptanceFileID int64      `json:"acceptance_file_id"`
	EmissionFileID   int64      `json:"emission_file_id"`
	Sensitivity      string     `json:"sensitivity_level"`
	Status           Status     `json:"status"`
	Progress         int        `json:"progress"`
	Stage            string     `json:"stage,omitempty"`
	SettingsJSON     string     `json:"-"`
	OriginatingJobID *int64     `json:"originating_job_id"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CancelRequested  bool       `json:"cancel_requested"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"-"`
	StartedAt        *time.Time `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	LastHeartbeat    *time.Time `json:"-"`
}

// NewJob carries the immutable inputs of a job row.
type NewJob struct {
	Name             string
	AcceptanceFileID int64
	EmissionFileID   int64
	Sensitivity      string
	SettingsJSON     string
	OriginatingJobID *int64
}

// MediaFile is an entry in the media catalog. Probe columns are zero until the
// file has been probed.
type MediaFile struct {
	ID              int64      `json:"id"`
	Path            string     `json:"path"`
	Label           string     `json:"label,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	Width           int        `json:"width"`
	Height          int        `json:"height"`
	FPS             float64    `json:"fps"`
	HasAudio        bool       `json:"has_audio"`
	ProbeJSON       string     `json:"-"`
	ProbedAt        *time.Time `json:"probed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Probed reports whether probe metadata is cached on the catalog row.
func (m MediaFile) Probed() bool {
	return m.ProbedAt != nil
}

// ProbeData is the metadata written back to the catalog after a probe.
type ProbeData struct {
	DurationSeconds float64
	Width           int
	Height          int
	FPS             float64
	HasAudio        bool
	RawJSON         string
}

// Result is the aggregate outcome of a job.
type Result struct {
	JobID                 int64    `json:"-"`
	OverallSimilarity     *float64 `json:"overall_similarity"`
	IsMatch               *bool    `json:"is_match"`
	VideoSimilarity       *float64 `json:"video_similarity"`
	AudioSimilarity       *float64 `json:"audio_similarity"`
	VideoDifferencesCount int      `json:"video_differences_count"`
	AudioDifferencesCount int      `json:"audio_differences_count"`
	TotalFrames           int      `json:"total_frames"`
	DifferentFrames       int      `json:"different_frames"`
	LUFSDifference        *float64 `json:"lufs_difference"`
	PeakDifference        *float64 `json:"peak_difference"`
	SyncOffsetMillis      *float64 `json:"sync_offset_ms"`
}

// Difference is one timestamped entry of a job's timeline.
type Difference struct {
	TimestampSeconds float64        `json:"timestamp_seconds" yaml:"timestamp_seconds"`
	DurationSeconds  float64        `json:"duration_seconds" yaml:"duration_seconds"`
	Type             DifferenceType `json:"difference_type" yaml:"difference_type"`
	Severity         Severity       `json:"severity" yaml:"severity"`
	Confidence       float64        `json:"confidence" yaml:"confidence"`
	Description      string         `json:"description,omitempty" yaml:"description,omitempty"`
	SSIMScore        *float64       `json:"ssim_score" yaml:"ssim_score"`
}

// End returns the timestamp where the entry's span finishes.
func (d Difference) End() float64 {
	return d.TimestampSeconds + d.DurationSeconds
}

// Checkpoint records the output of one completed stage.
type Checkpoint struct {
	Stage      string
	Progress   int
	OutputJSON string
	CreatedAt  time.Time
}

// Outcome is everything Finalize writes in its transaction.
type Outcome struct {
	Status       Status
	ErrorMessage string
	Result       *Result
	Differences  []Difference
	// Artifacts maps timestamp buckets (round(t*10)) to artifact locations.
	Artifacts map[int]string
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalJobs        int
	TotalFiles       int
	Error            string
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}
