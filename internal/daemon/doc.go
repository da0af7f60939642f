// Package daemon runs the comparison worker pool as a single long-lived
// process.
//
// A Daemon holds an exclusive file lock next to the job database for its
// whole lifetime so two daemons never claim jobs from the same store, then
// hands control to the workflow manager until the context is cancelled.
package daemon
