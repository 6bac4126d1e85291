// Package engine advances the singleton game state through its phases.
//
// Each Tick reads the state, decides whether a transition is due and, if
// so, claims the transition lock with a conditional update before running
// the outgoing phase's side effect. Overlapping ticks are safe: only the one
// whose claim lands proceeds, the rest report Transitioning.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/metrics"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

// ErrNoGameState means the singleton row is missing, which no tick can fix.
var ErrNoGameState = errors.New("game state not found")

type Status string

const (
	StatusWaiting       Status = "Waiting"
	StatusTransitioning Status = "Transitioning"
	StatusTransitioned  Status = "Transitioned"
	StatusInitialized   Status = "Initialized"
	StatusNoop          Status = "No-op"
	StatusRecovered     Status = "Recovered stale transition lock"
)

// Result describes what a tick observed or did.
type Result struct {
	Status      Status             `json:"status"`
	Phase       game.Phase         `json:"phase,omitempty"`
	From        game.Phase         `json:"from,omitempty"`
	To          game.Phase         `json:"to,omitempty"`
	PhaseExpiry *time.Time         `json:"phaseExpiry,omitempty"`
	Fallback    bool               `json:"fallback,omitempty"`
	Tally       []game.OptionCount `json:"tally,omitempty"`
	Purged      *game.PurgeCounts  `json:"purged,omitempty"`
}

// Store is the persistence the engine needs.
type Store interface {
	Capabilities() store.Capabilities
	GameState(ctx context.Context) (game.GameState, error)
	CompareAndSwap(ctx context.Context, expect, set game.Fields) (bool, error)
	ForceUpdate(ctx context.Context, set game.Fields) error
	Episode(ctx context.Context, id string) (game.Episode, error)
	SeriesBible(ctx context.Context, id string) (game.SeriesBible, error)
	Submissions(ctx context.Context, episodeID string) ([]game.Submission, error)
	RecentSubmissions(ctx context.Context, episodeID string, limit int) ([]game.Submission, error)
	ReplaceOptions(ctx context.Context, episodeID string, drafts []game.OptionDraft) ([]game.PathOption, error)
	Options(ctx context.Context, episodeID string) ([]game.PathOption, error)
	VoteCounts(ctx context.Context, optionIDs []string) (map[string]int, error)
	PurgeRound(ctx context.Context, episodeID string) (game.PurgeCounts, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in synth.Input) ([]game.OptionDraft, error)
}

type Engine struct {
	store      Store
	synth      Synthesizer
	policy     game.Policy
	staleAfter time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStaleAfter sets how long a held lock is trusted before a tick clears
// it.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

// DefaultStaleAfter is the lock age at which a transition is presumed dead.
const DefaultStaleAfter = 30 * time.Minute

func New(st Store, syn Synthesizer, policy game.Policy, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := st.Capabilities().Require(store.LockColumns...); err != nil {
		return nil, fmt.Errorf("phase engine: %w", err)
	}
	e := &Engine{
		store:      st,
		synth:      syn,
		policy:     policy,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// clock returns the current time at the precision the store keeps.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

// Tick runs one evaluation of the state machine.
func (e *Engine) Tick(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := e.tick(ctx)
	metrics.TickDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.TicksTotal.WithLabelValues("error").Inc()
		e.logger.Error().Err(err).Str("phase", string(res.Phase)).Msg("tick failed")
		return res, err
	}
	metrics.TicksTotal.WithLabelValues(string(res.Status)).Inc()

	ev := e.logger.Info()
	if res.Status == StatusWaiting {
		ev = e.logger.Debug()
	}
	ev.Str("status", string(res.Status)).Str("phase", string(res.Phase))
	if res.From != "" {
		ev.Str("from", string(res.From)).Str("to", string(res.To))
	}
	if res.PhaseExpiry != nil {
		ev.Time("phase_expiry", *res.PhaseExpiry)
	}
	ev.Msg("tick")
	return res, nil
}

func (e *Engine) tick(ctx context.Context) (Result, error) {
	now := e.clock()

	st, err := e.store.GameState(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return Result{}, ErrNoGameState
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading game state: %w", err)
	}

	if st.IsTransitioning {
		return e.checkLock(ctx, st, now)
	}

	if st.PhaseExpiry == nil {
		return e.initialize(ctx, st, now)
	}

	if !st.Due(now) {
		return Result{Status: StatusWaiting, Phase: st.Phase, PhaseExpiry: st.PhaseExpiry}, nil
	}

	claimed, err := e.store.CompareAndSwap(ctx,
		game.Fields{
			IsTransitioning: game.Ptr(false),
			Phase:           game.Ptr(st.Phase),
			PhaseExpiry:     game.Ptr(*st.PhaseExpiry),
		},
		game.Fields{
			IsTransitioning:    game.Ptr(true),
			TransitioningSince: game.Ptr(now),
		},
	)
	if err != nil {
		return Result{Phase: st.Phase}, fmt.Errorf("claiming transition lock: %w", err)
	}
	if !claimed {
		return Result{Status: StatusTransitioning, Phase: st.Phase, PhaseExpiry: st.PhaseExpiry}, nil
	}

	return e.transition(ctx, st, now)
}

// checkLock handles a tick that finds the lock held. A fresh lock is left
// alone; a stale one is cleared and the tick ends there.
func (e *Engine) checkLock(ctx context.Context, st game.GameState, now time.Time) (Result, error) {
	held := Result{Status: StatusTransitioning, Phase: st.Phase, PhaseExpiry: st.PhaseExpiry}

	if st.TransitioningSince != nil && now.Sub(*st.TransitioningSince) < e.staleAfter {
		return held, nil
	}

	cleared, err := e.store.CompareAndSwap(ctx,
		game.Fields{
			IsTransitioning:    game.Ptr(true),
			TransitioningSince: game.TimeOrNull(st.TransitioningSince),
		},
		game.Fields{
			IsTransitioning:    game.Ptr(false),
			TransitioningSince: game.Null(),
		},
	)
	if err != nil {
		return held, fmt.Errorf("clearing stale transition lock: %w", err)
	}
	if !cleared {
		return held, nil
	}

	ev := e.logger.Warn().Str("phase", string(st.Phase))
	if st.TransitioningSince != nil {
		ev.Dur("held_for", now.Sub(*st.TransitioningSince))
	}
	ev.Msg("cleared stale transition lock")

	return Result{Status: StatusRecovered, Phase: st.Phase, PhaseExpiry: st.PhaseExpiry}, nil
}

// initialize arms the timer of a state that has none. LISTEN moves on to
// SUBMIT; any other phase keeps itself. No phase action runs.
func (e *Engine) initialize(ctx context.Context, st game.GameState, now time.Time) (Result, error) {
	target := st.Phase
	if target == game.PhaseListen {
		target = game.PhaseSubmit
	}
	expiry := e.policy.ExpiryFrom(target, now)
	if expiry == nil {
		return Result{Status: StatusNoop, Phase: st.Phase}, nil
	}

	if err := e.store.ForceUpdate(ctx, game.Fields{
		Phase:       game.Ptr(target),
		PhaseExpiry: expiry,
	}); err != nil {
		return Result{Phase: st.Phase}, fmt.Errorf("arming phase timer: %w", err)
	}

	return Result{
		Status:      StatusInitialized,
		Phase:       target,
		From:        st.Phase,
		To:          target,
		PhaseExpiry: expiry,
	}, nil
}

// transition runs with the lock held, claimed at claimedAt. The lock is
// released on every return path.
func (e *Engine) transition(ctx context.Context, st game.GameState, claimedAt time.Time) (res Result, err error) {
	defer func() {
		relErr := e.release(ctx, claimedAt)
		if relErr == nil {
			return
		}
		if err == nil {
			err = relErr
			return
		}
		e.logger.Error().Err(relErr).Msg("lock release failed after a failed transition")
	}()

	next, ok := st.Phase.Next()
	if !ok {
		return Result{Status: StatusNoop, Phase: st.Phase}, nil
	}
	res = Result{Status: StatusTransitioned, Phase: next, From: st.Phase, To: next}

	switch st.Phase {
	case game.PhaseSubmit:
		res.Fallback, err = e.openVote(ctx, st)
	case game.PhaseVote:
		res.Tally, err = e.closeVote(ctx, st)
	case game.PhaseProcess:
		var pc game.PurgeCounts
		pc, err = e.rotateRound(ctx, st)
		res.Purged = &pc
	}
	if err != nil {
		return Result{Phase: st.Phase}, fmt.Errorf("%s -> %s: %w", st.Phase, next, err)
	}

	expiry := e.policy.ExpiryFrom(next, claimedAt)
	written, err := e.store.CompareAndSwap(ctx,
		game.Fields{IsTransitioning: game.Ptr(true), TransitioningSince: game.Ptr(claimedAt)},
		game.Fields{Phase: game.Ptr(next), PhaseExpiry: game.TimeOrNull(expiry)},
	)
	if err != nil {
		return Result{Phase: st.Phase}, fmt.Errorf("writing phase %s: %w", next, err)
	}
	if !written {
		return Result{Phase: st.Phase}, fmt.Errorf("writing phase %s: transition lock was taken over", next)
	}

	res.PhaseExpiry = expiry
	metrics.TransitionsTotal.WithLabelValues(string(st.Phase), string(next)).Inc()
	return res, nil
}

// release clears the lock this tick claimed. It ignores cancellation of ctx
// so an aborted request still lets go.
func (e *Engine) release(ctx context.Context, claimedAt time.Time) error {
	ctx = context.WithoutCancel(ctx)
	released, err := e.store.CompareAndSwap(ctx,
		game.Fields{IsTransitioning: game.Ptr(true), TransitioningSince: game.Ptr(claimedAt)},
		game.Fields{IsTransitioning: game.Ptr(false), TransitioningSince: game.Null()},
	)
	if err != nil {
		return fmt.Errorf("releasing transition lock: %w", err)
	}
	if !released {
		e.logger.Warn().Time("claimed_at", claimedAt).Msg("transition lock was already cleared by another tick")
	}
	return nil
}
