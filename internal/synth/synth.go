// Package synth turns a round's free-text submissions into the three path
// options offered for a vote.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/textgen"
)

// ErrNotEnoughData is returned when fewer than MinSubmissions usable
// submissions exist.
var ErrNotEnoughData = errors.New("not enough data to synthesize options")

const MinSubmissions = 3

// Generator is a text-generation backend.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Input is the material for one synthesis.
type Input struct {
	SeriesTitle  string
	Premise      string
	EpisodeTitle string
	Submissions  []game.Submission
}

type Synthesizer struct {
	gen        Generator
	logger     zerolog.Logger
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	// Word floors below which scene and single-pass drafts are continued.
	sceneWords int
	draftWords int
}

type Option func(*Synthesizer)

// WithRetryDelay sets the pause before the second attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Synthesizer) { s.retryDelay = d }
}

func New(gen Generator, logger zerolog.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		gen:        gen,
		logger:     logger.With().Str("component", "synth").Logger(),
		retryDelay: time.Second,
		sleep:      sleepCtx,
		sceneWords: defaultSceneWords,
		draftWords: defaultDraftWords,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns exactly three option drafts built from in.Submissions.
//
// Each draft's SourceSubmissionIDs holds the submissions it was drawn from,
// nil when the reply cited none, and empty when every submission is
// synthetic.
func (s *Synthesizer) Synthesize(ctx context.Context, in Input) ([]game.OptionDraft, error) {
	subs := usable(in.Submissions)
	if len(subs) < MinSubmissions {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughData, len(subs), MinSubmissions)
	}

	reply, err := s.generate(ctx, "options", buildPrompt(in, subs))
	if err != nil {
		return nil, fmt.Errorf("generating options: %w", err)
	}

	parsed, err := parseDrafts(reply)
	if err != nil {
		return nil, fmt.Errorf("parsing options: %w", err)
	}

	allSynthetic := true
	for _, sub := range subs {
		if !sub.IsSynthetic {
			allSynthetic = false
			break
		}
	}

	drafts := make([]game.OptionDraft, len(parsed))
	for i, p := range parsed {
		drafts[i] = game.OptionDraft{Title: p.title, Description: p.description}
		if allSynthetic {
			drafts[i].SourceSubmissionIDs = []string{}
			continue
		}
		drafts[i].SourceSubmissionIDs = mapIndices(p.indices, subs)
	}
	return drafts, nil
}

// generate asks the backend once more after a transient failure.
func (s *Synthesizer) generate(ctx context.Context, label, prompt string) (string, error) {
	for attempt := 1; ; attempt++ {
		reply, err := s.gen.Generate(ctx, prompt)
		if err == nil {
			return reply, nil
		}
		if attempt < 2 && textgen.IsTransient(err) {
			s.logger.Warn().Err(err).Str("label", label).Msg("transient generation failure, retrying")
			if err := s.sleep(ctx, s.retryDelay); err != nil {
				return "", err
			}
			continue
		}
		return "", err
	}
}

// usable drops blank submissions.
func usable(subs []game.Submission) []game.Submission {
	out := make([]game.Submission, 0, len(subs))
	for _, sub := range subs {
		if strings.TrimSpace(sub.Content) != "" {
			out = append(out, sub)
		}
	}
	return out
}

// mapIndices turns 1-based indices into submission ids, dropping those out
// of range and repeats. No valid index yields nil.
func mapIndices(indices []int, subs []game.Submission) []string {
	var ids []string
	seen := make(map[string]bool, len(indices))
	for _, idx := range indices {
		if idx < 1 || idx > len(subs) {
			continue
		}
		id := subs[idx-1].ID
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func buildPrompt(in Input, subs []game.Submission) string {
	var b strings.Builder
	b.WriteString("You are the story engine of a communal campfire tale. Listeners have suggested what should happen next.\n")
	if in.SeriesTitle != "" {
		fmt.Fprintf(&b, "Series: %s\n", in.SeriesTitle)
	}
	if in.Premise != "" {
		fmt.Fprintf(&b, "Premise: %s\n", in.Premise)
	}
	if in.EpisodeTitle != "" {
		fmt.Fprintf(&b, "Latest episode: %s\n", in.EpisodeTitle)
	}
	b.WriteString("\nSuggestions:\n")
	for i, sub := range subs {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(sub.Content))
	}
	b.WriteString(`
Group the suggestions into exactly 3 narrative paths. The paths must be thematically distinct, mutually exclusive and high contrast: choosing one rules out the others.

Reply with only a JSON array of exactly 3 objects:
[{"title": "short evocative title", "description": "one or two sentences describing the path", "source_indices": [1, 4]}]

"source_indices" lists the numbers of the suggestions each path draws from. Do not wrap the array in prose.`)
	return b.String()
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
