package main

import (
	"github.com/spf13/cobra"

	"ytmusicdl/internal/downloaderrun"
	"ytmusicdl/internal/managerrun"
)

func newManagerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "manager",
		Short: "Run the manager that brokers clients and downloaders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return managerrun.Run(cmd.Context(), cfg, managerrun.Options{LogLevel: ctx.logLevel()})
		},
	}
}

func newDownloaderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "downloader",
		Short: "Run a downloader that executes jobs for the manager",
		Long: "Run a downloader that executes jobs for the manager.\n\n" +
			"The process exits non-zero when the manager requests a restart so a\n" +
			"service supervisor can start it again.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return downloaderrun.Run(cmd.Context(), cfg, downloaderrun.Options{LogLevel: ctx.logLevel()})
		},
	}
}
