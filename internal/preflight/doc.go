// Package preflight provides readiness checks for the directories and
// external services mediadiff depends on.
//
// The worker pool runs RunAll once before it starts claiming jobs and refuses
// to start when a check fails. The CLI "deps" command prints the same results
// next to the binary checks from CheckSystemDeps.
//
// Service checks are gated by configuration: the OpenAI check only runs when
// transcription uses OpenAI and the MinIO check only when artifacts live in
// MinIO.
package preflight
