package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/metrics"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

const (
	MaxSimulated      = 500
	simulateBatchSize = 20
)

type SetPhaseInput struct {
	Phase           string
	DurationMinutes *float64
	EpisodeID       *string
	SeriesBibleID   *string
}

type SetPhaseResult struct {
	State game.GameState
	// Tally ranks the outgoing options when the override left VOTE.
	Tally []game.OptionCount
}

// SetPhase forces the phase. LISTEN disarms the timer; any other phase gets
// the requested minutes or its policy duration. The transition lock is left
// as it is.
func (s *Service) SetPhase(ctx context.Context, in SetPhaseInput) (SetPhaseResult, error) {
	phase, ok := game.ParsePhase(in.Phase)
	if !ok {
		return SetPhaseResult{}, game.ErrInvalidPhase
	}

	prev, err := s.state(ctx)
	if err != nil {
		return SetPhaseResult{}, fmt.Errorf("reading game state: %w", err)
	}

	if in.EpisodeID != nil && *in.EpisodeID != "" {
		if _, err := s.store.Episode(ctx, *in.EpisodeID); errors.Is(err, store.ErrNotFound) {
			return SetPhaseResult{}, game.Reject(game.Missing, "Episode not found.")
		} else if err != nil {
			return SetPhaseResult{}, fmt.Errorf("loading episode: %w", err)
		}
	}

	now := s.clock()
	set := game.Fields{
		Phase:         game.Ptr(phase),
		EpisodeID:     in.EpisodeID,
		SeriesBibleID: in.SeriesBibleID,
	}
	switch {
	case phase == game.PhaseListen:
		set.PhaseExpiry = game.Null()
	case in.DurationMinutes != nil:
		set.PhaseExpiry = game.Ptr(now.Add(game.OverrideDuration(*in.DurationMinutes)))
	default:
		set.PhaseExpiry = game.TimeOrNull(s.cfg.Policy.ExpiryFrom(phase, now))
	}

	var res SetPhaseResult
	if prev.Phase == game.PhaseVote && phase != game.PhaseVote {
		if res.Tally, err = s.tally(ctx, prev.CurrentEpisodeID); err != nil {
			return SetPhaseResult{}, fmt.Errorf("tallying votes: %w", err)
		}
	}

	if err := s.store.ForceUpdate(ctx, set); err != nil {
		return SetPhaseResult{}, fmt.Errorf("setting phase: %w", err)
	}
	if res.State, err = s.store.GameState(ctx); err != nil {
		return SetPhaseResult{}, fmt.Errorf("reading game state: %w", err)
	}

	s.logger.Info().Str("from", string(prev.Phase)).Str("to", string(phase)).Msg("phase set by admin")
	return res, nil
}

type OpenVotingInput struct {
	Options         []game.OptionDraft
	DurationMinutes *float64
}

type OpenVotingResult struct {
	Options []game.PathOption
	State   game.GameState
}

// OpenVoting replaces the current episode's options with exactly three
// admin-written ones and starts a VOTE phase.
func (s *Service) OpenVoting(ctx context.Context, in OpenVotingInput) (OpenVotingResult, error) {
	if len(in.Options) != game.OptionsPerRound {
		return OpenVotingResult{}, game.ErrOptionCount
	}
	drafts := make([]game.OptionDraft, len(in.Options))
	for i, o := range in.Options {
		o.Title = strings.TrimSpace(o.Title)
		o.Description = strings.TrimSpace(o.Description)
		if o.Title == "" || o.Description == "" {
			return OpenVotingResult{}, game.ErrOptionFields
		}
		drafts[i] = o
	}

	st, err := s.state(ctx)
	if err != nil {
		return OpenVotingResult{}, fmt.Errorf("reading game state: %w", err)
	}
	if st.CurrentEpisodeID == "" {
		return OpenVotingResult{}, game.ErrNoActiveEpisode
	}

	d := s.cfg.Policy.Vote
	if in.DurationMinutes != nil {
		d = game.OverrideDuration(*in.DurationMinutes)
	}
	opts, err := s.store.OpenVoting(ctx, st.CurrentEpisodeID, drafts, game.Fields{
		Phase:       game.Ptr(game.PhaseVote),
		PhaseExpiry: game.Ptr(s.clock().Add(d)),
	})
	if err != nil {
		return OpenVotingResult{}, fmt.Errorf("opening vote: %w", err)
	}

	res := OpenVotingResult{Options: opts}
	if res.State, err = s.store.GameState(ctx); err != nil {
		return OpenVotingResult{}, fmt.Errorf("reading game state: %w", err)
	}
	s.logger.Info().Str("episode_id", st.CurrentEpisodeID).Time("phase_expiry", *res.State.PhaseExpiry).Msg("voting opened by admin")
	return res, nil
}

type PublishInput struct {
	Title           string
	Narrative       string
	SeasonNum       int
	EpisodeNum      int
	AudioURL        string
	WinningOptionID string
}

// PublishEpisode stores the next episode and points the game at it in
// LISTEN. The winning option, when given, decides who gets credited.
func (s *Service) PublishEpisode(ctx context.Context, in PublishInput) (game.Episode, error) {
	ep := game.Episode{
		Title:      strings.TrimSpace(in.Title),
		Narrative:  strings.TrimSpace(in.Narrative),
		SeasonNum:  in.SeasonNum,
		EpisodeNum: in.EpisodeNum,
		AudioURL:   strings.TrimSpace(in.AudioURL),
	}
	if ep.Title == "" || ep.Narrative == "" {
		return game.Episode{}, game.Reject(game.Invalid, "Title and narrative are required.")
	}
	if ep.SeasonNum < 1 || ep.EpisodeNum < 1 {
		return game.Episode{}, game.Reject(game.Invalid, "Season and episode numbers start at 1.")
	}

	latest, err := s.store.LatestEpisode(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return game.Episode{}, fmt.Errorf("loading latest episode: %w", err)
	case !after(ep, latest):
		return game.Episode{}, game.Reject(game.Conflict, "Episode S%dE%d must come after S%dE%d.",
			ep.SeasonNum, ep.EpisodeNum, latest.SeasonNum, latest.EpisodeNum)
	}

	if in.WinningOptionID != "" {
		opt, err := s.store.Option(ctx, in.WinningOptionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Rounds are purged when VOTE closes, so the winner is usually
			// gone by now. Publish without credits.
			s.logger.Warn().Str("option_id", in.WinningOptionID).Msg("winning option not found, publishing without credits")
		case err != nil:
			return game.Episode{}, fmt.Errorf("loading winning option: %w", err)
		default:
			if ep.CreditedAuthors, err = s.store.AuthorNames(ctx, opt.SourceSubmissionIDs); err != nil {
				return game.Episode{}, err
			}
			if ep.CreditedAuthors == nil {
				ep.CreditedAuthors = []string{}
			}
		}
	}

	out, err := s.store.PublishEpisode(ctx, ep, game.Fields{
		Phase:       game.Ptr(game.PhaseListen),
		PhaseExpiry: game.Null(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return game.Episode{}, game.Reject(game.Conflict, "Episode S%dE%d already exists.", ep.SeasonNum, ep.EpisodeNum)
	}
	if err != nil {
		return game.Episode{}, fmt.Errorf("publishing episode: %w", err)
	}

	s.logger.Info().Str("episode_id", out.ID).Int("season", out.SeasonNum).Int("episode", out.EpisodeNum).
		Strs("credited", out.CreditedAuthors).Msg("episode published")
	return out, nil
}

// after reports whether a is strictly later than b.
func after(a, b game.Episode) bool {
	if a.SeasonNum != b.SeasonNum {
		return a.SeasonNum > b.SeasonNum
	}
	return a.EpisodeNum > b.EpisodeNum
}

type IgniteInput struct {
	Bible   game.SeriesBible
	Episode game.Episode
}

// IgniteCampaign stores the series bible and S1E1 of a campaign that has no
// episodes yet, and points the game at both in LISTEN.
func (s *Service) IgniteCampaign(ctx context.Context, in IgniteInput) (game.SeriesBible, game.Episode, error) {
	bible := in.Bible
	bible.Title = strings.TrimSpace(bible.Title)
	if bible.Title == "" {
		return game.SeriesBible{}, game.Episode{}, game.Reject(game.Invalid, "The series needs a title.")
	}
	if len(bible.Content) > 0 && !json.Valid(bible.Content) {
		return game.SeriesBible{}, game.Episode{}, game.Reject(game.Invalid, "Series bible content must be JSON.")
	}
	ep := game.Episode{
		SeasonNum:  1,
		EpisodeNum: 1,
		Title:      strings.TrimSpace(in.Episode.Title),
		Narrative:  strings.TrimSpace(in.Episode.Narrative),
		AudioURL:   strings.TrimSpace(in.Episode.AudioURL),
	}
	if ep.Title == "" || ep.Narrative == "" {
		return game.SeriesBible{}, game.Episode{}, game.Reject(game.Invalid, "Title and narrative are required.")
	}

	n, err := s.store.EpisodeCount(ctx)
	if err != nil {
		return game.SeriesBible{}, game.Episode{}, fmt.Errorf("counting episodes: %w", err)
	}
	if n > 0 {
		return game.SeriesBible{}, game.Episode{}, game.ErrAlreadyIgnited
	}

	outBible, outEp, err := s.store.Ignite(ctx, bible, ep, game.Fields{
		Phase:              game.Ptr(game.PhaseListen),
		PhaseExpiry:        game.Null(),
		IsTransitioning:    game.Ptr(false),
		TransitioningSince: game.Null(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return game.SeriesBible{}, game.Episode{}, game.ErrAlreadyIgnited
	}
	if err != nil {
		return game.SeriesBible{}, game.Episode{}, fmt.Errorf("igniting campaign: %w", err)
	}

	s.logger.Info().Str("bible_id", outBible.ID).Str("episode_id", outEp.ID).Msg("campaign ignited")
	return outBible, outEp, nil
}

// ResetCampaign returns the game to an empty LISTEN and deletes every
// episode and round. Bibles go too when deleteBible is set.
func (s *Service) ResetCampaign(ctx context.Context, deleteBible bool) error {
	set := game.Fields{
		Phase:              game.Ptr(game.PhaseListen),
		EpisodeID:          game.Ptr(""),
		PhaseExpiry:        game.Null(),
		IsTransitioning:    game.Ptr(false),
		TransitioningSince: game.Null(),
	}
	if deleteBible {
		set.SeriesBibleID = game.Ptr("")
	}
	if err := s.store.ResetCampaign(ctx, set, deleteBible); err != nil {
		return fmt.Errorf("resetting campaign: %w", err)
	}
	s.logger.Warn().Bool("delete_bible", deleteBible).Msg("campaign reset")
	return nil
}

// SubmissionStat is a submission with the votes of every option citing it.
type SubmissionStat struct {
	Submission game.Submission
	Votes      int
}

// SubmissionStats lists the episode's submissions by votes received, then
// heat.
func (s *Service) SubmissionStats(ctx context.Context, episodeID string) ([]SubmissionStat, error) {
	subs, err := s.store.Submissions(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	opts, err := s.store.Options(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("loading options: %w", err)
	}
	counts, err := s.store.VoteCounts(ctx, optionIDs(opts))
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	received := make(map[string]int)
	for _, o := range opts {
		for _, id := range o.SourceSubmissionIDs {
			received[id] += counts[o.ID]
		}
	}

	stats := make([]SubmissionStat, len(subs))
	for i, sub := range subs {
		stats[i] = SubmissionStat{Submission: sub, Votes: received[sub.ID]}
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Votes != stats[j].Votes {
			return stats[i].Votes > stats[j].Votes
		}
		return stats[i].Submission.Heat > stats[j].Submission.Heat
	})
	return stats, nil
}

type OptionStat struct {
	Option game.PathOption
	Votes  int
}

// OptionStats lists the episode's options ranked by votes.
func (s *Service) OptionStats(ctx context.Context, episodeID string) ([]OptionStat, error) {
	opts, err := s.store.Options(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("loading options: %w", err)
	}
	counts, err := s.store.VoteCounts(ctx, optionIDs(opts))
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	byID := make(map[string]game.PathOption, len(opts))
	for _, o := range opts {
		byID[o.ID] = o
	}
	ranked := game.RankOptions(opts, counts)
	stats := make([]OptionStat, len(ranked))
	for i, rc := range ranked {
		stats[i] = OptionStat{Option: byID[rc.OptionID], Votes: rc.Votes}
	}
	return stats, nil
}

// SynthesizePreview runs the synthesizer over the current round without
// storing anything.
func (s *Service) SynthesizePreview(ctx context.Context) ([]game.OptionDraft, error) {
	st, err := s.state(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading game state: %w", err)
	}
	if st.CurrentEpisodeID == "" {
		return nil, game.ErrNoActiveEpisode
	}
	subs, err := s.store.Submissions(ctx, st.CurrentEpisodeID)
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}

	drafts, err := s.synth.Synthesize(ctx, s.synthInput(ctx, st, subs))
	if errors.Is(err, synth.ErrNotEnoughData) {
		return nil, game.ErrNotEnoughData
	}
	if err != nil {
		return nil, fmt.Errorf("synthesizing options: %w", err)
	}
	return drafts, nil
}

// SimulateSubmissions stores up to count synthetic suggestions for the
// current episode, credited to adminID. It returns what was stored.
func (s *Service) SimulateSubmissions(ctx context.Context, adminID string, count int) ([]game.Submission, error) {
	count = max(1, min(count, MaxSimulated))

	st, err := s.state(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading game state: %w", err)
	}
	if st.CurrentEpisodeID == "" {
		return nil, game.ErrNoActiveEpisode
	}

	in := synth.SuggestInput{}
	if ep, err := s.store.Episode(ctx, st.CurrentEpisodeID); err == nil {
		in.EpisodeTitle = ep.Title
		in.Narrative = ep.Narrative
	}
	if st.CurrentSeriesBibleID != "" {
		if b, err := s.store.SeriesBible(ctx, st.CurrentSeriesBibleID); err == nil {
			in.Premise = b.Premise
		}
	}

	var pending []game.Submission
	for len(pending) < count {
		in.Count = min(simulateBatchSize, count-len(pending))
		lines, err := s.sim.Suggest(ctx, in)
		if err != nil {
			if len(pending) == 0 {
				return nil, fmt.Errorf("simulating submissions: %w", err)
			}
			s.logger.Warn().Err(err).Int("have", len(pending)).Msg("simulation stopped early")
			break
		}
		if len(lines) == 0 {
			break
		}
		for _, line := range lines {
			pending = append(pending, game.Submission{
				EpisodeID:   st.CurrentEpisodeID,
				UserID:      adminID,
				Content:     line,
				IsSynthetic: true,
			})
		}
	}
	if len(pending) > count {
		pending = pending[:count]
	}
	if len(pending) == 0 {
		return []game.Submission{}, nil
	}

	subs, err := s.store.CreateSubmissions(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("storing simulated submissions: %w", err)
	}
	metrics.SubmissionsTotal.WithLabelValues("synthetic").Add(float64(len(subs)))
	s.logger.Info().Int("count", len(subs)).Str("episode_id", st.CurrentEpisodeID).Msg("simulated submissions stored")
	return subs, nil
}
