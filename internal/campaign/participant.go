package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/metrics"
	"github.com/twilner89/campfire-alpha/internal/store"
)

const (
	DefaultEchoes = 50
	MaxEchoes     = 200
)

// Submit stores a participant's suggestion for the open round.
func (s *Service) Submit(ctx context.Context, userID, text string) (game.Submission, error) {
	st, err := s.state(ctx)
	if err != nil {
		return game.Submission{}, fmt.Errorf("reading game state: %w", err)
	}
	if st.Phase != game.PhaseSubmit {
		return game.Submission{}, game.ErrSubmitNotOpen
	}
	if st.Due(s.clock()) {
		return game.Submission{}, game.ErrSubmitClosed
	}
	if st.CurrentEpisodeID == "" {
		return game.Submission{}, game.ErrNoActiveEpisode
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return game.Submission{}, game.ErrSubmitEmpty
	}
	if utf8.RuneCountInString(text) > game.MaxSubmissionRunes {
		return game.Submission{}, game.ErrSubmitTooLong
	}

	subs, err := s.store.CreateSubmissions(ctx, []game.Submission{{
		EpisodeID: st.CurrentEpisodeID,
		UserID:    userID,
		Content:   text,
	}})
	if err != nil {
		return game.Submission{}, fmt.Errorf("storing submission: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("participant").Inc()
	return subs[0], nil
}

// Boost adds one heat to a submission of the current round and returns the
// new heat. Concurrent boosts are reconciled by retrying the conditional
// update on the freshly read value, with a linearly growing pause.
func (s *Service) Boost(ctx context.Context, userID, submissionID string) (int, error) {
	st, err := s.state(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading game state: %w", err)
	}
	sub, err := s.currentSubmission(ctx, st, submissionID)
	if err != nil {
		return 0, err
	}

	ok, err := s.cooldown.Allow(ctx, userID+":"+submissionID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("boost cooldown unavailable, allowing")
		ok = true
	}
	if !ok {
		return 0, game.ErrBoostCooldown
	}

	for attempt := 1; ; attempt++ {
		swapped, err := s.store.SwapHeat(ctx, sub.ID, sub.Heat, sub.Heat+1)
		if err != nil {
			return 0, fmt.Errorf("boosting submission: %w", err)
		}
		if swapped {
			return sub.Heat + 1, nil
		}
		if attempt >= s.cfg.HeatMaxRetries {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.cfg.HeatBackoff); err != nil {
			return 0, err
		}
		if sub, err = s.currentSubmission(ctx, st, submissionID); err != nil {
			return 0, err
		}
	}

	s.logger.Warn().Str("submission_id", submissionID).Int("attempts", s.cfg.HeatMaxRetries).Msg("boost gave up under contention")
	return 0, game.ErrFireCrowded
}

func (s *Service) currentSubmission(ctx context.Context, st game.GameState, id string) (game.Submission, error) {
	sub, err := s.store.Submission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return sub, game.ErrEchoFaded
	}
	if err != nil {
		return sub, fmt.Errorf("loading submission: %w", err)
	}
	if st.CurrentEpisodeID == "" || sub.EpisodeID != st.CurrentEpisodeID {
		return sub, game.ErrEchoFaded
	}
	return sub, nil
}

// CastVote records userID's vote for optionID. It reports whether a new
// vote was stored; repeating a vote is accepted and changes nothing.
func (s *Service) CastVote(ctx context.Context, userID, optionID string) (bool, error) {
	inserted, err := s.castVote(ctx, userID, optionID)
	var rej *game.Rejection
	switch {
	case errors.As(err, &rej):
		metrics.VotesTotal.WithLabelValues("rejected").Inc()
	case err != nil:
		metrics.VotesTotal.WithLabelValues("error").Inc()
	case inserted:
		metrics.VotesTotal.WithLabelValues("accepted").Inc()
	default:
		metrics.VotesTotal.WithLabelValues("duplicate").Inc()
	}
	return inserted, err
}

func (s *Service) castVote(ctx context.Context, userID, optionID string) (bool, error) {
	st, err := s.state(ctx)
	if err != nil {
		return false, fmt.Errorf("reading game state: %w", err)
	}
	if st.Phase != game.PhaseVote {
		return false, game.ErrVotingNotOpen
	}
	if st.Due(s.clock()) {
		return false, game.ErrVotingClosed
	}

	opt, err := s.store.Option(ctx, optionID)
	if errors.Is(err, store.ErrNotFound) {
		return false, game.ErrVoteInvalid
	}
	if err != nil {
		return false, fmt.Errorf("loading option: %w", err)
	}
	if st.CurrentEpisodeID == "" || opt.EpisodeID != st.CurrentEpisodeID {
		return false, game.ErrVoteInvalid
	}

	inserted, err := s.store.CastVote(ctx, userID, optionID)
	if err != nil {
		return false, fmt.Errorf("storing vote: %w", err)
	}
	return inserted, nil
}

// CurrentTally ranks the current episode's options by votes. Options nobody
// voted for are listed with zero.
func (s *Service) CurrentTally(ctx context.Context) ([]game.OptionCount, error) {
	st, err := s.state(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading game state: %w", err)
	}
	counts, err := s.tally(ctx, st.CurrentEpisodeID)
	if err != nil {
		return nil, fmt.Errorf("tallying votes: %w", err)
	}
	return counts, nil
}

// View is what a participant sees of the game.
type View struct {
	State   game.GameState
	Episode *game.Episode
	Bible   *game.SeriesBible
	Options []game.PathOption
}

func (s *Service) CurrentState(ctx context.Context) (View, error) {
	st, err := s.state(ctx)
	if err != nil {
		return View{}, fmt.Errorf("reading game state: %w", err)
	}
	v := View{State: st, Options: []game.PathOption{}}

	if st.CurrentSeriesBibleID != "" {
		b, err := s.store.SeriesBible(ctx, st.CurrentSeriesBibleID)
		switch {
		case err == nil:
			v.Bible = &b
		case !errors.Is(err, store.ErrNotFound):
			return View{}, fmt.Errorf("loading series bible: %w", err)
		}
	}

	if st.CurrentEpisodeID == "" {
		return v, nil
	}
	ep, err := s.store.Episode(ctx, st.CurrentEpisodeID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return v, nil
	case err != nil:
		return View{}, fmt.Errorf("loading episode: %w", err)
	}
	v.Episode = &ep

	if v.Options, err = s.store.Options(ctx, st.CurrentEpisodeID); err != nil {
		return View{}, fmt.Errorf("loading options: %w", err)
	}
	return v, nil
}

// Echoes returns the current round's submissions, hottest first.
func (s *Service) Echoes(ctx context.Context, limit int) ([]game.Submission, error) {
	if limit <= 0 {
		limit = DefaultEchoes
	}
	limit = min(limit, MaxEchoes)

	st, err := s.state(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading game state: %w", err)
	}
	if st.CurrentEpisodeID == "" {
		return []game.Submission{}, nil
	}
	subs, err := s.store.HottestSubmissions(ctx, st.CurrentEpisodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading echoes: %w", err)
	}
	return subs, nil
}
