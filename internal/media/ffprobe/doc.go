// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual audio/video stream properties
//   - Format: container-level metadata (duration, format name)
//
// Inspect executes ffprobe and returns the parsed Result; Parse decodes
// previously captured output (for example the JSON cached in the media
// catalog).
package ffprobe
