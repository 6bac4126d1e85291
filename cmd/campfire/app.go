package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/auth"
	"github.com/twilner89/campfire-alpha/internal/config"
	"github.com/twilner89/campfire-alpha/internal/database"
	"github.com/twilner89/campfire-alpha/internal/engine"
	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/migrations"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
	"github.com/twilner89/campfire-alpha/internal/textgen"
)

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// core is what every command needs: the database, the store on top of it
// and the phase engine.
type core struct {
	db     *sql.DB
	store  *store.Store
	gen    *textgen.Client
	synth  *synth.Synthesizer
	engine *engine.Engine
}

func openCore(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*core, error) {
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	logger.Info().Str("path", cfg.DBPath).Msg("connected to sqlite")

	if migrate {
		if err := migrations.Run(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	st, err := store.Open(ctx, db, cfg.GameStateID, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	gen := textgen.New(textgen.Config{
		APIKey:     cfg.TextgenAPIKey,
		BaseURL:    cfg.TextgenBaseURL,
		Models:     cfg.TextgenModels,
		Timeout:    cfg.TextgenTimeout,
		RetryDelay: cfg.TextgenRetryDelay,
	}, logger)
	if cfg.TextgenAPIKey == "" {
		logger.Warn().Msg("TEXTGEN_API_KEY is not set, votes will open with fallback options")
	}
	syn := synth.New(gen, logger, synth.WithRetryDelay(cfg.TextgenRetryDelay))

	eng, err := engine.New(st, syn, cfg.Policy(), logger, engine.WithStaleAfter(cfg.StaleLockAfter))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &core{db: db, store: st, gen: gen, synth: syn, engine: eng}, nil
}

func (c *core) Close() error { return c.db.Close() }

// seedAdmin makes sure the configured admin account exists with the
// configured password.
func seedAdmin(ctx context.Context, st *store.Store, cfg *config.Config, logger zerolog.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	p, err := st.UpsertProfile(ctx, game.Profile{Username: cfg.AdminUsername, PasswordHash: hash, IsAdmin: true})
	if err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	logger.Info().Str("username", p.Username).Str("user_id", p.ID).Msg("admin account ready")
	return nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
