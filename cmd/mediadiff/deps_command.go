package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediadiff/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools, directories and remote services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			missing := 0
			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := colorizeText("ok", ansiGreen, colorize)
				switch {
				case s.Blocking():
					state = colorizeText("missing", ansiRed, colorize)
					missing++
				case !s.Available:
					state = colorizeText("optional", ansiYellow, colorize)
				}
				command := s.Path
				if command == "" {
					command = s.Command
				}
				rows = append(rows, []string{s.Name, valueOrDash(command), strings.Join(s.Stages, ", "), state, valueOrDash(s.Detail)})
			}
			fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "Stages", "State", "Detail"}, rows, nil))

			results := preflight.RunAll(cmd.Context(), cfg)
			rows = rows[:0]
			for _, r := range results {
				state := colorizeText("ok", ansiGreen, colorize)
				if !r.Passed {
					state = colorizeText("failed", ansiRed, colorize)
				}
				rows = append(rows, []string{r.Name, state, valueOrDash(r.Detail)})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows, nil))

			failed := len(preflight.Failed(results))
			if missing > 0 || failed > 0 {
				return fmt.Errorf("%d dependencies missing, %d checks failed", missing, failed)
			}
			return nil
		},
	}
}
