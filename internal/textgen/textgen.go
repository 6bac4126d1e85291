// Package textgen talks to an OpenAI-compatible chat completion API. A
// Client walks an ordered list of models, retrying each once on transient
// failures before falling through to the next.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("text generation is not configured")

type Config struct {
	APIKey     string
	BaseURL    string
	Models     []string
	Timeout    time.Duration
	RetryDelay time.Duration
}

type Client struct {
	api    *openai.Client
	cfg    Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, logger zerolog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "textgen").Logger(),
		sleep:  sleepCtx,
	}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		c.api = openai.NewClientWithConfig(oc)
	}
	return c
}

// Generate sends prompt to each model tier in turn and returns the first
// non-empty reply. When every tier fails the error is a *CascadeError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.api == nil {
		return "", ErrNotConfigured
	}
	if len(c.cfg.Models) == 0 {
		return "", fmt.Errorf("%w: no models", ErrNotConfigured)
	}

	cascade := &CascadeError{}
	for _, model := range c.cfg.Models {
		for attempt := 1; attempt <= 2; attempt++ {
			text, err := c.complete(ctx, model, prompt)
			if err == nil {
				return text, nil
			}
			cascade.add(model, attempt, err)
			c.logger.Warn().Err(err).Str("model", model).Int("attempt", attempt).Msg("text generation failed")

			if ctx.Err() != nil {
				return "", cascade
			}
			if attempt == 1 && IsTransient(err) {
				if err := c.sleep(ctx, c.cfg.RetryDelay); err != nil {
					return "", cascade
				}
				continue
			}
			break
		}
	}
	return "", cascade
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.8,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response: no choices")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty response: blank content")
	}
	return text, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CascadeError collects the failure of every attempt across model tiers.
type CascadeError struct {
	attempts []attemptError
}

type attemptError struct {
	model   string
	attempt int
	err     error
}

func (e *CascadeError) add(model string, attempt int, err error) {
	e.attempts = append(e.attempts, attemptError{model: model, attempt: attempt, err: err})
}

func (e *CascadeError) Error() string {
	parts := make([]string, len(e.attempts))
	for i, a := range e.attempts {
		parts[i] = fmt.Sprintf("%s (attempt %d): %v", a.model, a.attempt, a.err)
	}
	return "text generation failed on every model: " + strings.Join(parts, "; ")
}

func (e *CascadeError) Unwrap() []error {
	errs := make([]error, len(e.attempts))
	for i, a := range e.attempts {
		errs[i] = a.err
	}
	return errs
}

// Transient reports whether the last failure was transient, which makes
// another pass over the tiers worthwhile.
func (e *CascadeError) Transient() bool {
	if len(e.attempts) == 0 {
		return false
	}
	return IsTransient(e.attempts[len(e.attempts)-1].err)
}
