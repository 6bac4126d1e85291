package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/auth"
	"github.com/twilner89/campfire-alpha/internal/campaign"
	"github.com/twilner89/campfire-alpha/internal/database"
	"github.com/twilner89/campfire-alpha/internal/engine"
	"github.com/twilner89/campfire-alpha/internal/game"
	"github.com/twilner89/campfire-alpha/internal/migrations"
	"github.com/twilner89/campfire-alpha/internal/store"
	"github.com/twilner89/campfire-alpha/internal/synth"
)

const testCronSecret = "kindling"

type fakeTicker struct {
	res   engine.Result
	err   error
	calls int
}

func (f *fakeTicker) Tick(context.Context) (engine.Result, error) {
	f.calls++
	return f.res, f.err
}

// echoSynth turns the first three submissions into options.
type echoSynth struct{}

func (echoSynth) Synthesize(_ context.Context, in synth.Input) ([]game.OptionDraft, error) {
	if len(in.Submissions) < synth.MinSubmissions {
		return nil, synth.ErrNotEnoughData
	}
	drafts := make([]game.OptionDraft, game.OptionsPerRound)
	for i := range drafts {
		s := in.Submissions[i]
		drafts[i] = game.OptionDraft{Title: s.Content, Description: "Follow " + s.Content, SourceSubmissionIDs: []string{s.ID}}
	}
	return drafts, nil
}

// countingSim numbers its suggestions, or fails with err when set.
type countingSim struct{ err error }

func (c *countingSim) Suggest(_ context.Context, in synth.SuggestInput) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]string, in.Count)
	for i := range out {
		out[i] = fmt.Sprintf("what if %d", i)
	}
	return out, nil
}

// cannedWriter answers every story request with fixed text.
type cannedWriter struct {
	genesis synth.Genesis
	err     error
}

func (c *cannedWriter) Premises(context.Context, synth.PremiseInput) ([]string, error) {
	return []string{"One.", "Two.", "Three."}, c.err
}

func (c *cannedWriter) Genesis(context.Context, synth.GenesisInput) (synth.Genesis, error) {
	return c.genesis, c.err
}

func (c *cannedWriter) BeatSheet(_ context.Context, in synth.BeatInput) (string, error) {
	return "## SCENE 1: " + in.WinningText, c.err
}

func (c *cannedWriter) Script(_ context.Context, beatSheet, _ string) (string, error) {
	return "Prose for " + beatSheet, c.err
}

func (c *cannedWriter) PolishForAudio(_ context.Context, prose, _ string) (string, error) {
	return prose + "...", c.err
}

type testEnv struct {
	router     chi.Router
	store      *store.Store
	ticker     *fakeTicker
	sim        *countingSim
	writer     *cannedWriter
	episode    game.Episode
	userToken  string
	adminToken string
	user       game.Profile
}

func newTestEnv(t *testing.T, authOpts ...auth.Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	st, err := store.Open(ctx, db, "00000000-0000-0000-0000-000000000001", zerolog.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	a, err := auth.New("test-secret", time.Hour, st, authOpts...)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	sim := &countingSim{}
	writer := &cannedWriter{}
	svc := campaign.New(st, echoSynth{}, sim, nil, campaign.Config{
		Policy:         game.Policy{Submit: 20 * time.Minute, Vote: 15 * time.Minute, Process: 10 * time.Minute},
		HeatMaxRetries: 3,
		HeatBackoff:    time.Millisecond,
	}, zerolog.Nop(), campaign.WithWriter(writer))

	env := &testEnv{store: st, sim: sim, writer: writer, ticker: &fakeTicker{res: engine.Result{Status: engine.StatusWaiting, Phase: game.PhaseListen}}}
	env.user = seedProfile(t, st, "wren", "embers", false)
	seedProfile(t, st, "keeper", "changeme", true)
	env.userToken = issue(t, a, env.user)
	admin, err := st.ProfileByUsername(ctx, "keeper")
	if err != nil {
		t.Fatalf("load admin: %v", err)
	}
	env.adminToken = issue(t, a, admin)

	_, env.episode, err = svc.IgniteCampaign(ctx, campaign.IgniteInput{
		Bible:   game.SeriesBible{Title: "Ashfall", Premise: "A town under a volcano."},
		Episode: game.Episode{Title: "Smoke", Narrative: "The mountain woke."},
	})
	if err != nil {
		t.Fatalf("ignite: %v", err)
	}

	env.router = newRouter(zerolog.Nop(), Deps{
		Engine:     env.ticker,
		Campaign:   svc,
		Auth:       a,
		CronSecret: testCronSecret,
	})
	return env
}

func seedProfile(t *testing.T, st *store.Store, username, password string, admin bool) game.Profile {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	p, err := st.UpsertProfile(context.Background(), game.Profile{Username: username, PasswordHash: hash, IsAdmin: admin})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	return p
}

func issue(t *testing.T, a *auth.Authenticator, p game.Profile) string {
	t.Helper()
	token, _, err := a.Issue(p)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// setPhase opens phase for another ten minutes.
func (e *testEnv) setPhase(t *testing.T, phase game.Phase) {
	t.Helper()
	err := e.store.ForceUpdate(context.Background(), game.Fields{
		Phase:       game.Ptr(phase),
		PhaseExpiry: game.Ptr(time.Now().UTC().Add(10 * time.Minute)),
	})
	if err != nil {
		t.Fatalf("set phase: %v", err)
	}
}

// do sends body as JSON, with token as bearer when non-empty.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	expectStatus(t, w, status)
	if got := decode[ErrorResponse](t, w).Error; got != msg {
		t.Errorf("expected error %q, got %q", msg, got)
	}
}
