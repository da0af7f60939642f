// Package config loads, normalizes, and validates mediadiff configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY and MINIO_ACCESS_KEY. The Config type centralizes every knob
// the daemon and CLI need: directories, worker pool timing, external tool
// deadlines, scoring weights, and the low/medium/high sensitivity presets.
//
// Validation enforces that the sensitivity presets stay ordered (nested
// sampling grids, non-decreasing thresholds) so that raising a job's
// sensitivity can only reveal more differences.
package config
