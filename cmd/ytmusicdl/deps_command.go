package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ytmusicdl/internal/deps"
	"ytmusicdl/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external tools a downloader needs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			out := cmd.OutOrStdout()
			colorize := colorOutput(out)

			lines := sectionHeader("Dependencies", colorize)
			for _, status := range statuses {
				state := healthOK
				message := status.Version
				if !status.Available {
					state = healthDown
					if status.Optional {
						state = healthDegraded
					}
					message = status.Detail
				}
				if message == "" {
					message = status.Command
				}
				lines = append(lines, healthLine(status.Name, state, message, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required dependencies: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}
