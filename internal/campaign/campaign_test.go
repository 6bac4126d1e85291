package campaign

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twilner89/campfire-alpha/internal/cooldown"
	"github.com/twilner89/campfire-alpha/internal/database"
	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/migrations"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

var testConfig = Config{
	Policy:         game.Policy{Submit: 20 * time.Minute, Vote: 15 * time.Minute, Process: 10 * time.Minute},
	HeatMaxRetries: 5,
	HeatBackoff:    time.Millisecond,
}

type fakeSynth struct {
	drafts []game.OptionDraft
	err    error
	got    synth.Input
}

func (f *fakeSynth) Synthesize(_ context.Context, in synth.Input) ([]game.OptionDraft, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	if len(in.Submissions) < synth.MinSubmissions {
		return nil, synth.ErrNotEnoughData
	}
	return f.drafts, nil
}

// fakeSim returns batch-sized answers until it has produced total lines.
type fakeSim struct {
	total   int
	batches []int
	err     error
}

func (f *fakeSim) Suggest(_ context.Context, in synth.SuggestInput) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, in.Count)
	n := min(in.Count, f.total)
	f.total -= n
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("simulated %d", len(f.batches)*100+i)
	}
	return out, nil
}

type fixture struct {
	store   *store.Store
	synth   *fakeSynth
	sim     *fakeSim
	svc     *Service
	bible   game.SeriesBible
	episode game.Episode
	now     time.Time
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(db))
	st, err := store.Open(ctx, db, "00000000-0000-0000-0000-000000000001", zerolog.Nop())
	require.NoError(t, err)
	return st
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newStore(t),
		synth: &fakeSynth{},
		sim:   &fakeSim{},
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = f.newService(f.store, nil)

	var err error
	f.bible, f.episode, err = f.svc.IgniteCampaign(context.Background(), IgniteInput{
		Bible:   game.SeriesBible{Title: "Ashfall", Premise: "A town under a volcano."},
		Episode: game.Episode{Title: "Smoke", Narrative: "The mountain woke."},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) newService(st Store, limiter cooldown.Limiter) *Service {
	svc := New(st, f.synth, f.sim, limiter, testConfig, zerolog.Nop(), WithClock(func() time.Time { return f.now }))
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func (f *fixture) setPhase(t *testing.T, phase game.Phase, expiry *time.Time) {
	t.Helper()
	require.NoError(t, f.store.ForceUpdate(context.Background(), game.Fields{
		Phase:       game.Ptr(phase),
		PhaseExpiry: game.TimeOrNull(expiry),
	}))
}

func (f *fixture) in(d time.Duration) *time.Time {
	t := f.now.Add(d)
	return &t
}

func (f *fixture) openOptions(t *testing.T) []game.PathOption {
	t.Helper()
	opts, err := f.store.ReplaceOptions(context.Background(), f.episode.ID, threeDrafts())
	require.NoError(t, err)
	return opts
}

func threeDrafts() []game.OptionDraft {
	return []game.OptionDraft{
		{Title: "Run", Description: "Flee the ash."},
		{Title: "Hide", Description: "Wait it out."},
		{Title: "Fight", Description: "Dig a trench."},
	}
}

func assertRejected(t *testing.T, err error, want *game.Rejection) {
	t.Helper()
	var rej *game.Rejection
	require.True(t, errors.As(err, &rej), "expected a rejection, got %v", err)
	assert.Equal(t, want.Msg, rej.Msg)
	assert.Equal(t, want.Kind, rej.Kind)
}

// Admin actions

func TestIgniteCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, 1, f.episode.SeasonNum)
	assert.Equal(t, 1, f.episode.EpisodeNum)

	st, err := f.store.GameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseListen, st.Phase)
	assert.Equal(t, f.episode.ID, st.CurrentEpisodeID)
	assert.Equal(t, f.bible.ID, st.CurrentSeriesBibleID)
	assert.Nil(t, st.PhaseExpiry)

	_, _, err = f.svc.IgniteCampaign(ctx, IgniteInput{
		Bible:   game.SeriesBible{Title: "Again"},
		Episode: game.Episode{Title: "T", Narrative: "N"},
	})
	assertRejected(t, err, game.ErrAlreadyIgnited)
}

func TestIgniteCampaignValidates(t *testing.T) {
	svc := New(newStore(t), &fakeSynth{}, &fakeSim{}, nil, testConfig, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name string
		in   IgniteInput
		msg  string
	}{
		{"no title", IgniteInput{Episode: game.Episode{Title: "T", Narrative: "N"}}, "The series needs a title."},
		{"bad content", IgniteInput{
			Bible:   game.SeriesBible{Title: "S", Content: []byte("{nope")},
			Episode: game.Episode{Title: "T", Narrative: "N"},
		}, "Series bible content must be JSON."},
		{"no narrative", IgniteInput{Bible: game.SeriesBible{Title: "S"}, Episode: game.Episode{Title: "T"}}, "Title and narrative are required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.IgniteCampaign(ctx, tt.in)
			var rej *game.Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.msg, rej.Msg)
		})
	}
}

func TestSetPhase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		phase   string
		minutes *float64
		want    *time.Time
	}{
		{"policy duration", "SUBMIT", nil, f.in(20 * time.Minute)},
		{"floored override", "VOTE", game.Ptr(2.9), f.in(2 * time.Minute)},
		{"minimum one minute", "PROCESS", game.Ptr(0.2), f.in(time.Minute)},
		{"non-finite override", "SUBMIT", game.Ptr(math.Inf(1)), f.in(15 * time.Minute)},
		{"listen disarms", "LISTEN", game.Ptr(30.0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.SetPhase(ctx, SetPhaseInput{Phase: tt.phase, DurationMinutes: tt.minutes})
			require.NoError(t, err)
			assert.Equal(t, game.Phase(tt.phase), res.State.Phase)
			if tt.want == nil {
				assert.Nil(t, res.State.PhaseExpiry)
				return
			}
			require.NotNil(t, res.State.PhaseExpiry)
			assert.True(t, res.State.PhaseExpiry.Equal(*tt.want), "expiry %v, want %v", res.State.PhaseExpiry, tt.want)
		})
	}
}

func TestSetPhaseRejectsUnknownPhase(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetPhase(context.Background(), SetPhaseInput{Phase: "DANCE"})
	assertRejected(t, err, game.ErrInvalidPhase)
}

func TestSetPhaseLeavesLockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	since := f.now.Add(-time.Minute)
	require.NoError(t, f.store.ForceUpdate(ctx, game.Fields{
		IsTransitioning:    game.Ptr(true),
		TransitioningSince: &since,
	}))

	res, err := f.svc.SetPhase(ctx, SetPhaseInput{Phase: "SUBMIT"})
	require.NoError(t, err)
	assert.True(t, res.State.IsTransitioning)
	assert.True(t, res.State.TransitioningSince.Equal(since))
}

func TestSetPhaseLeavingVoteReportsTally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := f.openOptions(t)
	f.setPhase(t, game.PhaseVote, f.in(time.Minute))
	_, err := f.store.CastVote(ctx, "u1", opts[2].ID)
	require.NoError(t, err)

	res, err := f.svc.SetPhase(ctx, SetPhaseInput{Phase: "PROCESS"})
	require.NoError(t, err)
	require.Len(t, res.Tally, 3)
	assert.Equal(t, opts[2].ID, res.Tally[0].OptionID)
	assert.Equal(t, 1, res.Tally[0].Votes)
}

func TestSetPhaseUnknownEpisode(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetPhase(context.Background(), SetPhaseInput{Phase: "SUBMIT", EpisodeID: game.Ptr("nope")})
	var rej *game.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, game.Missing, rej.Kind)
}

func TestOpenVotingRequiresThreeOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	existing := f.openOptions(t)

	_, err := f.svc.OpenVoting(ctx, OpenVotingInput{Options: threeDrafts()[:2]})
	assertRejected(t, err, game.ErrOptionCount)

	opts, err := f.store.Options(ctx, f.episode.ID)
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, existing[0].ID, opts[0].ID, "existing options are untouched")
}

func TestOpenVotingRequiresFilledFields(t *testing.T) {
	f := newFixture(t)
	drafts := threeDrafts()
	drafts[1].Description = "   "
	_, err := f.svc.OpenVoting(context.Background(), OpenVotingInput{Options: drafts})
	assertRejected(t, err, game.ErrOptionFields)
}

func TestOpenVoting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openOptions(t)

	drafts := threeDrafts()
	drafts[0].Title = "  Run  "
	res, err := f.svc.OpenVoting(ctx, OpenVotingInput{Options: drafts, DurationMinutes: game.Ptr(5.0)})
	require.NoError(t, err)

	require.Len(t, res.Options, 3)
	assert.Equal(t, "Run", res.Options[0].Title)
	assert.Equal(t, game.PhaseVote, res.State.Phase)
	assert.True(t, res.State.PhaseExpiry.Equal(f.now.Add(5*time.Minute)))

	opts, err := f.store.Options(ctx, f.episode.ID)
	require.NoError(t, err)
	assert.Len(t, opts, 3, "old options replaced")
}

func TestOpenVotingWithoutEpisode(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.ResetCampaign(context.Background(), false))
	_, err := f.svc.OpenVoting(context.Background(), OpenVotingInput{Options: threeDrafts()})
	assertRejected(t, err, game.ErrNoActiveEpisode)
}

func TestPublishEpisode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertProfile(ctx, game.Profile{ID: "user-ada", Username: "ada"})
	require.NoError(t, err)
	subs, err := f.store.CreateSubmissions(ctx, []game.Submission{
		{EpisodeID: f.episode.ID, UserID: "user-ada", Content: "a"},
		{EpisodeID: f.episode.ID, UserID: "0123456789abcdef", Content: "b"},
		{EpisodeID: f.episode.ID, UserID: "bot", Content: "c", IsSynthetic: true},
		{EpisodeID: f.episode.ID, UserID: "user-ada", Content: "d"},
	})
	require.NoError(t, err)
	opts, err := f.store.ReplaceOptions(ctx, f.episode.ID, []game.OptionDraft{
		{Title: "A", Description: "a", SourceSubmissionIDs: []string{subs[0].ID, subs[1].ID, subs[2].ID, subs[3].ID}},
		{Title: "B", Description: "b"},
		{Title: "C", Description: "c"},
	})
	require.NoError(t, err)
	f.setPhase(t, game.PhaseProcess, f.in(time.Minute))

	ep, err := f.svc.PublishEpisode(ctx, PublishInput{
		Title:           "Embers",
		Narrative:       "The town chose to run.",
		SeasonNum:       1,
		EpisodeNum:      2,
		WinningOptionID: opts[0].ID,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada", "01234567"}, ep.CreditedAuthors)

	st, err := f.store.GameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseListen, st.Phase)
	assert.Nil(t, st.PhaseExpiry)
	assert.Equal(t, ep.ID, st.CurrentEpisodeID)
}

func TestPublishEpisodeOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		season   int
		episode  int
		wantKind game.RejectionKind
		wantMsg  string
	}{
		{"same pair", 1, 1, game.Conflict, "Episode S1E1 must come after S1E1."},
		{"earlier season", 0, 5, game.Invalid, "Season and episode numbers start at 1."},
		{"zero episode", 2, 0, game.Invalid, "Season and episode numbers start at 1."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PublishEpisode(ctx, PublishInput{Title: "T", Narrative: "N", SeasonNum: tt.season, EpisodeNum: tt.episode})
			var rej *game.Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.wantKind, rej.Kind)
			assert.Equal(t, tt.wantMsg, rej.Msg)
		})
	}

	ep, err := f.svc.PublishEpisode(ctx, PublishInput{Title: "New season", Narrative: "N", SeasonNum: 2, EpisodeNum: 1})
	require.NoError(t, err)
	assert.Nil(t, ep.CreditedAuthors, "no winning option means no credits")

	_, err = f.svc.PublishEpisode(ctx, PublishInput{Title: "Late", Narrative: "N", SeasonNum: 1, EpisodeNum: 9})
	var rej *game.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Episode S1E9 must come after S2E1.", rej.Msg)
}

func TestPublishEpisodeAfterRoundPurged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := f.openOptions(t)
	f.setPhase(t, game.PhaseProcess, f.in(time.Minute))
	_, err := f.store.PurgeRound(ctx, f.episode.ID)
	require.NoError(t, err)

	ep, err := f.svc.PublishEpisode(ctx, PublishInput{
		Title: "T", Narrative: "N", SeasonNum: 1, EpisodeNum: 2, WinningOptionID: opts[0].ID,
	})
	require.NoError(t, err)
	assert.Empty(t, ep.CreditedAuthors)

	st, err := f.store.GameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, st.CurrentEpisodeID)
	assert.Equal(t, game.PhaseListen, st.Phase)
}

func TestResetCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openOptions(t)
	_, err := f.store.CreateSubmissions(ctx, []game.Submission{{EpisodeID: f.episode.ID, UserID: "u", Content: "x"}})
	require.NoError(t, err)
	since := f.now
	require.NoError(t, f.store.ForceUpdate(ctx, game.Fields{
		Phase:              game.Ptr(game.PhaseVote),
		PhaseExpiry:        f.in(time.Minute),
		IsTransitioning:    game.Ptr(true),
		TransitioningSince: &since,
	}))

	require.NoError(t, f.svc.ResetCampaign(ctx, true))

	st, err := f.store.GameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseListen, st.Phase)
	assert.Empty(t, st.CurrentEpisodeID)
	assert.Empty(t, st.CurrentSeriesBibleID)
	assert.Nil(t, st.PhaseExpiry)
	assert.False(t, st.IsTransitioning)

	n, err := f.store.EpisodeCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.store.SeriesBible(ctx, f.bible.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A reset campaign can be ignited again.
	_, _, err = f.svc.IgniteCampaign(ctx, IgniteInput{
		Bible:   game.SeriesBible{Title: "Second"},
		Episode: game.Episode{Title: "T", Narrative: "N"},
	})
	require.NoError(t, err)
}

func TestResetCampaignKeepsBible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ResetCampaign(ctx, false))

	st, err := f.store.GameState(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.bible.ID, st.CurrentSeriesBibleID)
	_, err = f.store.SeriesBible(ctx, f.bible.ID)
	assert.NoError(t, err)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subs, err := f.store.CreateSubmissions(ctx, []game.Submission{
		{EpisodeID: f.episode.ID, UserID: "u1", Content: "quiet"},
		{EpisodeID: f.episode.ID, UserID: "u2", Content: "popular"},
		{EpisodeID: f.episode.ID, UserID: "u3", Content: "hot"},
	})
	require.NoError(t, err)
	ok, err := f.store.SwapHeat(ctx, subs[2].ID, 0, 4)
	require.NoError(t, err)
	require.True(t, ok)

	opts, err := f.store.ReplaceOptions(ctx, f.episode.ID, []game.OptionDraft{
		{Title: "A", Description: "a", SourceSubmissionIDs: []string{subs[1].ID}},
		{Title: "B", Description: "b", SourceSubmissionIDs: []string{subs[1].ID, subs[0].ID}},
		{Title: "C", Description: "c"},
	})
	require.NoError(t, err)
	for i, voter := range []string{"v1", "v2", "v3"} {
		_, err := f.store.CastVote(ctx, voter, opts[i%2].ID)
		require.NoError(t, err)
	}

	subStats, err := f.svc.SubmissionStats(ctx, f.episode.ID)
	require.NoError(t, err)
	require.Len(t, subStats, 3)
	assert.Equal(t, subs[1].ID, subStats[0].Submission.ID)
	assert.Equal(t, 3, subStats[0].Votes)
	assert.Equal(t, subs[0].ID, subStats[1].Submission.ID)
	assert.Equal(t, 1, subStats[1].Votes)
	assert.Equal(t, subs[2].ID, subStats[2].Submission.ID)
	assert.Equal(t, 4, subStats[2].Submission.Heat)

	optStats, err := f.svc.OptionStats(ctx, f.episode.ID)
	require.NoError(t, err)
	require.Len(t, optStats, 3)
	assert.Equal(t, "A", optStats[0].Option.Title)
	assert.Equal(t, 2, optStats[0].Votes)
	assert.Equal(t, "C", optStats[2].Option.Title)
	assert.Zero(t, optStats[2].Votes)
}

func TestSynthesizePreview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SynthesizePreview(ctx)
	assertRejected(t, err, game.ErrNotEnoughData)

	_, err = f.store.CreateSubmissions(ctx, []game.Submission{
		{EpisodeID: f.episode.ID, UserID: "u1", Content: "one"},
		{EpisodeID: f.episode.ID, UserID: "u2", Content: "two"},
		{EpisodeID: f.episode.ID, UserID: "u3", Content: "three"},
	})
	require.NoError(t, err)
	f.synth.drafts = threeDrafts()

	drafts, err := f.svc.SynthesizePreview(ctx)
	require.NoError(t, err)
	assert.Len(t, drafts, 3)
	assert.Equal(t, "Ashfall", f.synth.got.SeriesTitle)
	assert.Equal(t, "Smoke", f.synth.got.EpisodeTitle)

	opts, err := f.store.Options(ctx, f.episode.ID)
	require.NoError(t, err)
	assert.Empty(t, opts, "preview writes nothing")
}

func TestSimulateSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sim.total = 1000

	subs, err := f.svc.SimulateSubmissions(ctx, "admin-1", 45)
	require.NoError(t, err)
	assert.Len(t, subs, 45)
	assert.Equal(t, []int{20, 20, 5}, f.sim.batches)
	for _, s := range subs {
		assert.True(t, s.IsSynthetic)
		assert.Equal(t, "admin-1", s.UserID)
		assert.Equal(t, f.episode.ID, s.EpisodeID)
	}
}

func TestSimulateSubmissionsClampsAndStopsWhenDry(t *testing.T) {
	f := newFixture(t)
	f.sim.total = 30

	subs, err := f.svc.SimulateSubmissions(context.Background(), "admin-1", 10_000)
	require.NoError(t, err)
	assert.Len(t, subs, 30)
	assert.Equal(t, 20, f.sim.batches[0])
	assert.Len(t, f.sim.batches, 3, "stops after an empty batch")
}

func TestSimulateSubmissionsFailure(t *testing.T) {
	f := newFixture(t)
	f.sim.err = errors.New("provider down")
	_, err := f.svc.SimulateSubmissions(context.Background(), "admin-1", 5)
	require.Error(t, err)
}

// Participant actions

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, "u1", "let's go")
	assertRejected(t, err, game.ErrSubmitNotOpen)

	f.setPhase(t, game.PhaseSubmit, f.in(-time.Second))
	_, err = f.svc.Submit(ctx, "u1", "let's go")
	assertRejected(t, err, game.ErrSubmitClosed)

	f.setPhase(t, game.PhaseSubmit, f.in(time.Minute))
	_, err = f.svc.Submit(ctx, "u1", "   ")
	assertRejected(t, err, game.ErrSubmitEmpty)

	_, err = f.svc.Submit(ctx, "u1", strings.Repeat("é", game.MaxSubmissionRunes+1))
	assertRejected(t, err, game.ErrSubmitTooLong)

	sub, err := f.svc.Submit(ctx, "u1", strings.Repeat("é", game.MaxSubmissionRunes))
	require.NoError(t, err)
	assert.Equal(t, f.episode.ID, sub.EpisodeID)

	sub, err = f.svc.Submit(ctx, "u1", "  follow the river  ")
	require.NoError(t, err)
	assert.Equal(t, "follow the river", sub.Content)
	assert.False(t, sub.IsSynthetic)
}

func TestSubmitWithoutTimer(t *testing.T) {
	f := newFixture(t)
	f.setPhase(t, game.PhaseSubmit, nil)
	_, err := f.svc.Submit(context.Background(), "u1", "an unarmed round still takes ideas")
	require.NoError(t, err)
}

func TestCastVoteGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := f.openOptions(t)

	_, err := f.svc.CastVote(ctx, "u1", opts[0].ID)
	assertRejected(t, err, game.ErrVotingNotOpen)

	// The phase still reads VOTE but the timer ran out before the tick.
	f.setPhase(t, game.PhaseVote, f.in(-time.Millisecond))
	_, err = f.svc.CastVote(ctx, "u1", opts[0].ID)
	assertRejected(t, err, game.ErrVotingClosed)

	f.setPhase(t, game.PhaseVote, f.in(time.Minute))
	_, err = f.svc.CastVote(ctx, "u1", "no-such-option")
	assertRejected(t, err, game.ErrVoteInvalid)

	inserted, err := f.svc.CastVote(ctx, "u1", opts[0].ID)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = f.svc.CastVote(ctx, "u1", opts[0].ID)
	require.NoError(t, err)
	assert.False(t, inserted, "repeat votes are idempotent")

	tally, err := f.svc.CurrentTally(ctx)
	require.NoError(t, err)
	require.Len(t, tally, 3)
	assert.Equal(t, 1, tally[0].Votes)
	assert.Zero(t, tally[1].Votes)
	assert.Zero(t, tally[2].Votes)
}

func TestCastVoteForOtherEpisode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.openOptions(t)

	next, err := f.svc.PublishEpisode(ctx, PublishInput{Title: "Two", Narrative: "N", SeasonNum: 1, EpisodeNum: 2})
	require.NoError(t, err)
	require.NotEqual(t, f.episode.ID, next.ID)
	f.setPhase(t, game.PhaseVote, f.in(time.Minute))

	_, err = f.svc.CastVote(ctx, "u1", old[0].ID)
	assertRejected(t, err, game.ErrVoteInvalid)

	counts, err := f.store.VoteCounts(ctx, []string{old[0].ID})
	require.NoError(t, err)
	assert.Empty(t, counts, "no row inserted")
}

// contendedHeat loses the first swap to a simulated concurrent booster.
type contendedHeat struct {
	*store.Store
	calls int
}

func (c *contendedHeat) SwapHeat(ctx context.Context, id string, expected, next int) (bool, error) {
	c.calls++
	if c.calls == 1 {
		if _, err := c.Store.SwapHeat(ctx, id, expected, next); err != nil {
			return false, err
		}
		return false, nil
	}
	return c.Store.SwapHeat(ctx, id, expected, next)
}

// jammedHeat never wins a swap.
type jammedHeat struct {
	*store.Store
	calls int
}

func (j *jammedHeat) SwapHeat(context.Context, string, int, int) (bool, error) {
	j.calls++
	return false, nil
}

func (f *fixture) submission(t *testing.T) game.Submission {
	t.Helper()
	subs, err := f.store.CreateSubmissions(context.Background(), []game.Submission{
		{EpisodeID: f.episode.ID, UserID: "author", Content: "light the beacon"},
	})
	require.NoError(t, err)
	return subs[0]
}

func TestBoost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submission(t)

	heat, err := f.svc.Boost(ctx, "u1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, heat)

	heat, err = f.svc.Boost(ctx, "u2", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, heat)

	echoes, err := f.svc.Echoes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, echoes, 1)
	assert.Equal(t, 2, echoes[0].Heat)
}

func TestBoostRetriesUnderContention(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(t)
	st := &contendedHeat{Store: f.store}

	heat, err := f.newService(st, nil).Boost(context.Background(), "u1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, heat, "the competing boost counts too")
	assert.Equal(t, 2, st.calls)
}

func TestBoostGivesUp(t *testing.T) {
	f := newFixture(t)
	sub := f.submission(t)
	st := &jammedHeat{Store: f.store}

	_, err := f.newService(st, nil).Boost(context.Background(), "u1", sub.ID)
	assertRejected(t, err, game.ErrFireCrowded)
	assert.Equal(t, testConfig.HeatMaxRetries, st.calls)
}

func TestBoostFadedEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submission(t)

	_, err := f.svc.Boost(ctx, "u1", "missing")
	assertRejected(t, err, game.ErrEchoFaded)

	_, err = f.svc.PublishEpisode(ctx, PublishInput{Title: "Two", Narrative: "N", SeasonNum: 1, EpisodeNum: 2})
	require.NoError(t, err)
	_, err = f.svc.Boost(ctx, "u1", sub.ID)
	assertRejected(t, err, game.ErrEchoFaded)
}

func TestBoostCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.submission(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	svc := f.newService(f.store, cooldown.NewRedis(rdb, 2*time.Second))

	_, err := svc.Boost(ctx, "u1", sub.ID)
	require.NoError(t, err)
	_, err = svc.Boost(ctx, "u1", sub.ID)
	assertRejected(t, err, game.ErrBoostCooldown)

	_, err = svc.Boost(ctx, "u2", sub.ID)
	require.NoError(t, err, "cooldown is per user")

	mr.FastForward(3 * time.Second)
	heat, err := svc.Boost(ctx, "u1", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, heat)
}

func TestCurrentState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openOptions(t)

	v, err := f.svc.CurrentState(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.PhaseListen, v.State.Phase)
	require.NotNil(t, v.Episode)
	assert.Equal(t, "Smoke", v.Episode.Title)
	require.NotNil(t, v.Bible)
	assert.Equal(t, "Ashfall", v.Bible.Title)
	assert.Len(t, v.Options, 3)
}

func TestCurrentStateBeforeGenesis(t *testing.T) {
	svc := New(newStore(t), &fakeSynth{}, &fakeSim{}, nil, testConfig, zerolog.Nop())
	v, err := svc.CurrentState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, game.PhaseListen, v.State.Phase)
	assert.Nil(t, v.Episode)
	assert.Empty(t, v.Options)
}
