package main

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/twilner89/campfire-alpha/internal/auth"
	"github.com/twilner89/campfire-alpha/internal/campaign"
	"github.com/twilner89/campfire-alpha/internal/config"
	"github.com/twilner89/campfire-alpha/internal/cooldown"
	"github.com/twilner89/campfire-alpha/internal/handler/health"
	"github.com/twilner89/campfire-alpha/internal/server"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

func newServeCommand(load func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the game API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := load()
			return serve(cmd.Context(), cfg, newLogger(cfg, cmd.OutOrStdout()))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	c, err := openCore(ctx, cfg, logger, cfg.MigrateOnStart)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := seedAdmin(ctx, c.store, cfg, logger); err != nil {
		return err
	}
	if cfg.CronSecret == "" {
		logger.Warn().Msg("CRON_SECRET is not set, /api/cron/tick will refuse every call")
	}

	checks := map[string]health.Checker{"sqlite": health.CheckFunc(c.db.PingContext)}

	// --- Redis ---
	var limiter cooldown.Limiter = cooldown.Unlimited{}
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info().Dur("boost_cooldown", cfg.BoostCooldown).Msg("connected to redis")

		limiter = cooldown.NewRedis(rdb, cfg.BoostCooldown)
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var authOpts []auth.Option
	if cfg.AlphaGate {
		if cfg.AlphaCode == "" {
			logger.Warn().Msg("ALPHA_GATE is on but ALPHA_CODE is not set, only admins can play")
		}
		authOpts = append(authOpts, auth.WithAccessGate(cfg.AlphaCode))
	}
	authn, err := auth.New(cfg.JWTSecret, cfg.TokenTTL, c.store, authOpts...)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}

	svc := campaign.New(c.store, c.synth, synth.NewSimulator(c.gen), limiter, campaign.Config{
		Policy:         cfg.Policy(),
		HeatMaxRetries: cfg.HeatMaxRetries,
		HeatBackoff:    cfg.HeatBackoff,
	}, logger, campaign.WithWriter(c.synth))

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Engine:     c.engine,
		Campaign:   svc,
		Auth:       authn,
		CronSecret: cfg.CronSecret,
		Mount: func(r chi.Router) {
			r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
		},
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting http server")
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}
