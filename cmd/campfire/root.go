package main

import (
	"github.com/spf13/cobra"

	"github.com/twilner89/campfire-alpha/internal/config"
)

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "campfire",
		Short:         "Communal serialized fiction game server",
		Long:          "campfire serves the game API and runs the phase engine. Settings come from the environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	load := func() *config.Config { return cfg }
	rootCmd.AddCommand(newServeCommand(load))
	rootCmd.AddCommand(newTickCommand(load))
	rootCmd.AddCommand(newMigrateCommand(load))
	return rootCmd
}
