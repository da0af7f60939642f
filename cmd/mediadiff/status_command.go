package main

import (
	"fmt"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"mediadiff/internal/config"
	"mediadiff/internal/jobs"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, database and job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *jobs.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				running, err := daemonRunning(cfg.LockPath())
				daemonState := colorizeText("stopped", ansiYellow, colorize)
				switch {
				case err != nil:
					daemonState = colorizeText("unknown ("+err.Error()+")", ansiRed, colorize)
				case running:
					daemonState = colorizeText("running", ansiGreen, colorize)
				}

				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				integrity := colorizeText("ok", ansiGreen, colorize)
				if !health.IntegrityCheck {
					integrity = colorizeText("FAILED", ansiRed, colorize)
				}

				fmt.Fprintln(out, renderKeyValues([][2]string{
					{"Daemon", daemonState},
					{"Database", health.DBPath},
					{"Schema version", strconv.Itoa(health.SchemaVersion)},
					{"Integrity", integrity},
					{"Media files", strconv.Itoa(health.TotalFiles)},
				}))

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs.AllStatuses()))
				for _, status := range jobs.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

// daemonRunning reports whether another process holds the daemon lock.
func daemonRunning(lockPath string) (bool, error) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}
