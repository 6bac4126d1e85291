package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/metrics"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

const (
	fallbackTitleRunes  = 40
	fallbackFillerText  = "The campfire holds its breath..."
	fallbackSourceLimit = game.OptionsPerRound
)

// openVote replaces the episode's options with three fresh ones. It reports
// whether the extractive fallback had to stand in for the synthesizer.
func (e *Engine) openVote(ctx context.Context, st game.GameState) (bool, error) {
	if st.CurrentEpisodeID == "" {
		return false, game.ErrNoActiveEpisode
	}

	subs, err := e.store.Submissions(ctx, st.CurrentEpisodeID)
	if err != nil {
		return false, fmt.Errorf("loading submissions: %w", err)
	}

	drafts, synthErr := e.synth.Synthesize(ctx, e.synthInput(ctx, st, subs))
	if synthErr == nil {
		synthErr = validDrafts(drafts)
	}

	fallback := synthErr != nil
	if fallback {
		ev := e.logger.Warn()
		if errors.Is(synthErr, synth.ErrNotEnoughData) {
			ev = e.logger.Info()
		}
		ev.Err(synthErr).Str("episode_id", st.CurrentEpisodeID).Int("submissions", len(subs)).
			Msg("option synthesis unavailable, using extractive fallback")

		recent, err := e.store.RecentSubmissions(ctx, st.CurrentEpisodeID, fallbackSourceLimit)
		if err != nil {
			return true, fmt.Errorf("loading fallback submissions: %w", err)
		}
		drafts = fallbackOptions(recent)
		metrics.OptionSynthesisTotal.WithLabelValues("fallback").Inc()
	} else {
		metrics.OptionSynthesisTotal.WithLabelValues("synthesized").Inc()
	}

	if _, err := e.store.ReplaceOptions(ctx, st.CurrentEpisodeID, drafts); err != nil {
		return fallback, fmt.Errorf("storing options: %w", err)
	}
	return fallback, nil
}

// synthInput gathers series context for the prompt. Missing context only
// makes the prompt thinner.
func (e *Engine) synthInput(ctx context.Context, st game.GameState, subs []game.Submission) synth.Input {
	in := synth.Input{Submissions: subs}
	if ep, err := e.store.Episode(ctx, st.CurrentEpisodeID); err == nil {
		in.EpisodeTitle = ep.Title
	}
	if st.CurrentSeriesBibleID != "" {
		if b, err := e.store.SeriesBible(ctx, st.CurrentSeriesBibleID); err == nil {
			in.SeriesTitle = b.Title
			in.Premise = b.Premise
		}
	}
	return in
}

// closeVote reads the final tally. Nothing is written.
func (e *Engine) closeVote(ctx context.Context, st game.GameState) ([]game.OptionCount, error) {
	if st.CurrentEpisodeID == "" {
		return nil, nil
	}
	opts, err := e.store.Options(ctx, st.CurrentEpisodeID)
	if err != nil {
		return nil, fmt.Errorf("loading options: %w", err)
	}
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	counts, err := e.store.VoteCounts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	ranked := game.RankOptions(opts, counts)
	if len(ranked) > 0 {
		e.logger.Info().Str("option_id", ranked[0].OptionID).Str("title", ranked[0].Title).
			Int("votes", ranked[0].Votes).Msg("vote closed")
	}
	return ranked, nil
}

// rotateRound clears the closing round's votes, options and submissions.
func (e *Engine) rotateRound(ctx context.Context, st game.GameState) (game.PurgeCounts, error) {
	if st.CurrentEpisodeID == "" {
		return game.PurgeCounts{}, nil
	}
	pc, err := e.store.PurgeRound(ctx, st.CurrentEpisodeID)
	if err != nil {
		return pc, fmt.Errorf("purging round: %w", err)
	}
	e.logger.Info().Str("episode_id", st.CurrentEpisodeID).
		Int64("votes", pc.Votes).Int64("options", pc.Options).Int64("submissions", pc.Submissions).
		Msg("round purged")
	return pc, nil
}

func validDrafts(drafts []game.OptionDraft) error {
	if len(drafts) != game.OptionsPerRound {
		return fmt.Errorf("synthesizer returned %d options", len(drafts))
	}
	for i, d := range drafts {
		if strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Description) == "" {
			return fmt.Errorf("synthesized option %d is blank", i+1)
		}
	}
	return nil
}

// fallbackOptions builds options straight from up to three submissions,
// each crediting its own source, then pads with filler. When every source
// is synthetic nobody is credited.
func fallbackOptions(recent []game.Submission) []game.OptionDraft {
	if len(recent) > fallbackSourceLimit {
		recent = recent[:fallbackSourceLimit]
	}

	allSynthetic := len(recent) > 0
	for _, sub := range recent {
		if !sub.IsSynthetic {
			allSynthetic = false
			break
		}
	}

	drafts := make([]game.OptionDraft, 0, game.OptionsPerRound)
	for _, sub := range recent {
		n := len(drafts) + 1
		text := strings.TrimSpace(sub.Content)
		if text == "" {
			continue
		}
		title := clip(text, fallbackTitleRunes)
		if title == "" {
			title = fmt.Sprintf("Option %d", n)
		}
		sources := []string{sub.ID}
		if allSynthetic {
			sources = []string{}
		}
		drafts = append(drafts, game.OptionDraft{
			Title:               title,
			Description:         text,
			SourceSubmissionIDs: sources,
		})
	}
	for len(drafts) < game.OptionsPerRound {
		drafts = append(drafts, game.OptionDraft{
			Title:       fmt.Sprintf("Option %d", len(drafts)+1),
			Description: fallbackFillerText,
		})
	}
	return drafts
}

// clip cuts s to n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
