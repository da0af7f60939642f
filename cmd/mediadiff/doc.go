// Command mediadiff registers media files, manages comparison jobs and runs
// the worker daemon.
//
// Every subcommand opens the job database directly; the daemon is only needed
// to process jobs in the background. `mediadiff job start` runs a single job
// in the foreground instead.
package main
