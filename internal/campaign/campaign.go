// Package campaign holds the actions people take on the game: the admin
// controls that steer a campaign and the participant actions of a round.
//
// Every check runs against the live game state at write time. Refusals
// meant for the caller are returned as *game.Rejection.
package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/cooldown"
	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

// Store is the persistence the campaign actions need.
type Store interface {
	GameState(ctx context.Context) (game.GameState, error)
	ForceUpdate(ctx context.Context, set game.Fields) error

	Episode(ctx context.Context, id string) (game.Episode, error)
	LatestEpisode(ctx context.Context) (game.Episode, error)
	EpisodeCount(ctx context.Context) (int, error)
	EpisodeAt(ctx context.Context, season, episode int) (game.Episode, error)
	RecentEpisodes(ctx context.Context, limit int) ([]game.Episode, error)
	SeriesBible(ctx context.Context, id string) (game.SeriesBible, error)
	LatestSeriesBible(ctx context.Context) (game.SeriesBible, error)
	PublishEpisode(ctx context.Context, ep game.Episode, state game.Fields) (game.Episode, error)
	Ignite(ctx context.Context, bible game.SeriesBible, ep game.Episode, state game.Fields) (game.SeriesBible, game.Episode, error)
	ResetCampaign(ctx context.Context, state game.Fields, deleteBibles bool) error
	AuthorNames(ctx context.Context, submissionIDs []string) ([]string, error)

	CreateSubmissions(ctx context.Context, subs []game.Submission) ([]game.Submission, error)
	Submission(ctx context.Context, id string) (game.Submission, error)
	Submissions(ctx context.Context, episodeID string) ([]game.Submission, error)
	HottestSubmissions(ctx context.Context, episodeID string, limit int) ([]game.Submission, error)
	SwapHeat(ctx context.Context, id string, expected, next int) (bool, error)

	OpenVoting(ctx context.Context, episodeID string, drafts []game.OptionDraft, state game.Fields) ([]game.PathOption, error)
	Options(ctx context.Context, episodeID string) ([]game.PathOption, error)
	Option(ctx context.Context, id string) (game.PathOption, error)
	CastVote(ctx context.Context, userID, optionID string) (bool, error)
	VoteCounts(ctx context.Context, optionIDs []string) (map[string]int, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in synth.Input) ([]game.OptionDraft, error)
}

// Simulator writes stand-in suggestions.
type Simulator interface {
	Suggest(ctx context.Context, in synth.SuggestInput) ([]string, error)
}

// Config carries the policy knobs of the actions.
type Config struct {
	Policy         game.Policy
	HeatMaxRetries int
	HeatBackoff    time.Duration
}

type Service struct {
	store    Store
	synth    Synthesizer
	sim      Simulator
	writer   Writer
	cooldown cooldown.Limiter
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st Store, syn Synthesizer, sim Simulator, limiter cooldown.Limiter, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if limiter == nil {
		limiter = cooldown.Unlimited{}
	}
	if cfg.HeatMaxRetries < 1 {
		cfg.HeatMaxRetries = 1
	}
	s := &Service{
		store:    st,
		synth:    syn,
		sim:      sim,
		cooldown: limiter,
		cfg:      cfg,
		now:      time.Now,
		sleep:    sleepCtx,
		logger:   logger.With().Str("component", "campaign").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// state reads the game state, treating a missing row as a fresh LISTEN
// with nothing attached.
func (s *Service) state(ctx context.Context) (game.GameState, error) {
	st, err := s.store.GameState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return game.GameState{Phase: game.PhaseListen}, nil
	}
	return st, err
}

// synthInput gathers the series context of the current episode.
func (s *Service) synthInput(ctx context.Context, st game.GameState, subs []game.Submission) synth.Input {
	in := synth.Input{Submissions: subs}
	if ep, err := s.store.Episode(ctx, st.CurrentEpisodeID); err == nil {
		in.EpisodeTitle = ep.Title
	}
	if st.CurrentSeriesBibleID != "" {
		if b, err := s.store.SeriesBible(ctx, st.CurrentSeriesBibleID); err == nil {
			in.SeriesTitle = b.Title
			in.Premise = b.Premise
		}
	}
	return in
}

func (s *Service) tally(ctx context.Context, episodeID string) ([]game.OptionCount, error) {
	if episodeID == "" {
		return []game.OptionCount{}, nil
	}
	opts, err := s.store.Options(ctx, episodeID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.VoteCounts(ctx, optionIDs(opts))
	if err != nil {
		return nil, err
	}
	return game.RankOptions(opts, counts), nil
}

func optionIDs(opts []game.PathOption) []string {
	ids := make([]string, len(opts))
	for i, o := range opts {
		ids[i] = o.ID
	}
	return ids
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
