package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/game"
)

type Config struct {
	HTTPAddr       string `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath         string `env:"DB_PATH" envDefault:"data/campfire.db"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"`

	GameStateID     string        `env:"GAME_STATE_ID" envDefault:"00000000-0000-0000-0000-000000000001"`
	SubmitDuration  time.Duration `env:"SUBMIT_DURATION" envDefault:"20m"`
	VoteDuration    time.Duration `env:"VOTE_DURATION" envDefault:"15m"`
	ProcessDuration time.Duration `env:"PROCESS_DURATION" envDefault:"10m"`
	StaleLockAfter  time.Duration `env:"STALE_LOCK_AFTER" envDefault:"30m"`
	CronSecret      string        `env:"CRON_SECRET"`

	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	AdminUsername string        `env:"ADMIN_USERNAME"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	AlphaGate     bool          `env:"ALPHA_GATE" envDefault:"false"`
	AlphaCode     string        `env:"ALPHA_CODE"`

	TextgenAPIKey     string        `env:"TEXTGEN_API_KEY"`
	TextgenBaseURL    string        `env:"TEXTGEN_BASE_URL"`
	TextgenModels     []string      `env:"TEXTGEN_MODELS" envDefault:"gpt-4o-mini,gpt-4o" envSeparator:","`
	TextgenTimeout    time.Duration `env:"TEXTGEN_TIMEOUT" envDefault:"60s"`
	TextgenRetryDelay time.Duration `env:"TEXTGEN_RETRY_DELAY" envDefault:"800ms"`

	HeatMaxRetries int           `env:"HEAT_MAX_RETRIES" envDefault:"5"`
	HeatBackoff    time.Duration `env:"HEAT_BACKOFF" envDefault:"25ms"`

	RedisURL      string        `env:"REDIS_URL"`
	BoostCooldown time.Duration `env:"BOOST_COOLDOWN" envDefault:"2s"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.AlphaCode = strings.TrimSpace(cfg.AlphaCode)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy is the phase timing the engine and admin overrides share.
func (c Config) Policy() game.Policy {
	return game.Policy{Submit: c.SubmitDuration, Vote: c.VoteDuration, Process: c.ProcessDuration}
}

// Validate reports settings the game cannot run with.
func (c Config) Validate() error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"SUBMIT_DURATION":  c.SubmitDuration,
		"VOTE_DURATION":    c.VoteDuration,
		"PROCESS_DURATION": c.ProcessDuration,
		"STALE_LOCK_AFTER": c.StaleLockAfter,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.GameStateID == "" {
		errs = append(errs, errors.New("GAME_STATE_ID must not be empty"))
	}
	if len(c.TextgenModels) == 0 {
		errs = append(errs, errors.New("TEXTGEN_MODELS must name at least one model"))
	}
	if c.HeatMaxRetries < 1 {
		errs = append(errs, fmt.Errorf("HEAT_MAX_RETRIES must be at least 1, got %d", c.HeatMaxRetries))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
