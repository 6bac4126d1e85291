package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/twilner89/campfire-alpha/internal/config"
)

func newTickCommand(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run the phase engine once and print the result",
		Long:  "tick evaluates the phase timer once, the same way the cron endpoint does, and prints the result as JSON. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load()
			logger := newLogger(cfg, cmd.ErrOrStderr())

			c, err := openCore(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.engine.Tick(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
			return err
		},
	}
}
