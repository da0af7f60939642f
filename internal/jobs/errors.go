package jobs

import "errors"

var (
	// ErrFileNotFound is returned when a media file id is not in the catalog.
	ErrFileNotFound = errors.New("media file not found")
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotProcessing is returned when a processing-only write targets a job
	// in another state (for example after it was reclaimed as stale).
	ErrNotProcessing = errors.New("job is not processing")
)
