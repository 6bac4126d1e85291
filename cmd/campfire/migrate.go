package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twilner89/campfire-alpha/internal/config"
	"github.com/twilner89/campfire-alpha/internal/database"
	"github.com/twilner89/campfire-alpha/internal/migrations"
)

func newMigrateCommand(load func() *config.Config) *cobra.Command {
	var to int64
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load()
			logger := newLogger(cfg, cmd.ErrOrStderr())

			db, err := database.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return fmt.Errorf("connecting to sqlite: %w", err)
			}
			defer db.Close()

			if to > 0 {
				err = migrations.RunTo(db, to)
			} else {
				err = migrations.Run(db)
			}
			if err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			logger.Info().Str("path", cfg.DBPath).Int64("to", to).Msg("migrations applied")
			return nil
		},
	}
	cmd.Flags().Int64Var(&to, "to", 0, "Migrate up to this version only (0 means latest)")
	return cmd
}
