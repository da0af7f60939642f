// Package ffmpeg wraps the ffmpeg invocations used by the comparison
// pipeline: single-frame extraction, mono WAV extraction, EBU R128 loudness
// measurement and difference-mask rendering.
package ffmpeg
