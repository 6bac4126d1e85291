package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/twilner89/campfire-alpha/internal/auth"
	"github.com/twilner89/campfire-alpha/internal/game"
)

const testStoryform = `{
  "objective_story": {"domain": "Physics", "concern": "Obtaining", "issue": "Skill", "problem": "Pursuit", "solution": "Avoidance", "goal": "Reach the caldera", "consequence": "the town is buried"},
  "main_character": {"name": "Mara", "domain": "Mind", "resolve": "Change", "growth": "Stop", "approach": "Do-er", "crucial_flaw": "Certainty"},
  "influence_character": {"name": "Old Teo", "domain": "Universe", "unique_ability": "Reads the ash", "impact": "Doubt"},
  "relationship_story": {"domain": "Psychology", "dynamic": "Rivals", "trust_score": 40, "catalyst": "Shared secrets"},
  "driver": "Action", "limit": "Timelock", "outcome": "Success", "judgment": "Good",
  "active_facts": [], "inventory": []
}`

func TestOracle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/oracle", env.adminToken, OracleRequest{Genre: "Disaster", Tone: "Grim"})
	expectStatus(t, w, http.StatusOK)
	if got := decode[OracleResponse](t, w).Premises; len(got) != 3 {
		t.Fatalf("premises = %v, want three", got)
	}

	w = env.do(t, http.MethodPost, "/api/admin/oracle", env.adminToken, OracleRequest{Genre: "Disaster"})
	expectError(t, w, http.StatusBadRequest, "Genre and Tone are required.")

	w = env.do(t, http.MethodPost, "/api/admin/oracle", env.userToken, OracleRequest{Genre: "Disaster", Tone: "Grim"})
	expectError(t, w, http.StatusForbidden, "Admins only.")

	env.writer.err = errors.New("expected 3 premises, got 2")
	w = env.do(t, http.MethodPost, "/api/admin/oracle", env.adminToken, OracleRequest{Genre: "Disaster", Tone: "Grim"})
	expectError(t, w, http.StatusInternalServerError, "consulting the oracle: expected 3 premises, got 2")
}

func TestGenesisRoute(t *testing.T) {
	env := newTestEnv(t)
	req := GenesisRequest{Title: "Tidewater", Genre: "Mystery", Tone: "Wry", Premise: "A lighthouse keeper finds a door."}

	w := env.do(t, http.MethodPost, "/api/admin/campaign/genesis", env.adminToken, req)
	expectError(t, w, http.StatusConflict, game.ErrAlreadyIgnited.Msg)

	w = env.do(t, http.MethodPost, "/api/admin/campaign/reset", env.adminToken, ResetRequest{DeleteBible: true})
	expectStatus(t, w, http.StatusOK)

	if err := json.Unmarshal([]byte(testStoryform), &env.writer.genesis.Storyform); err != nil {
		t.Fatalf("decode storyform: %v", err)
	}
	env.writer.genesis.Episode = "The lamp goes out at midnight."

	w = env.do(t, http.MethodPost, "/api/admin/campaign/genesis", env.adminToken, req)
	expectStatus(t, w, http.StatusCreated)
	resp := decode[GenesisResponse](t, w)
	if resp.Episode.Title != "Tidewater: Episode 1" || resp.Episode.SeasonNum != 1 || resp.Episode.EpisodeNum != 1 {
		t.Errorf("unexpected episode %+v", resp.Episode)
	}
	if resp.Storyform.MainCharacter.Name != "Mara" {
		t.Errorf("storyform = %+v", resp.Storyform)
	}
	if !strings.Contains(string(resp.SeriesBible.Content), `"crucial_flaw":"Certainty"`) {
		t.Errorf("bible content = %s", resp.SeriesBible.Content)
	}

	w = env.do(t, http.MethodGet, "/api/admin/series-bible", env.adminToken, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode[BibleInfo](t, w); got.ID != resp.SeriesBible.ID {
		t.Errorf("active bible = %s, want %s", got.ID, resp.SeriesBible.ID)
	}

	w = env.do(t, http.MethodPost, "/api/admin/continuity", env.adminToken, ContinuityRequest{WinningTitle: "Knock", WinningDescription: "Knock on the door."})
	expectStatus(t, w, http.StatusOK)
	header := decode[TextResponse](t, w).Text
	for _, want := range []string{"Dramatica / NCP Canon Summary", "- Title: Knock", "S1E1: Tidewater: Episode 1"} {
		if !strings.Contains(header, want) {
			t.Errorf("continuity header missing %q", want)
		}
	}
}

func TestContinuityWithoutStoryform(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/continuity", env.adminToken, ContinuityRequest{WinningTitle: "T"})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, http.MethodPost, "/api/admin/campaign/reset", env.adminToken, ResetRequest{DeleteBible: true})
	expectStatus(t, w, http.StatusOK)
	w = env.do(t, http.MethodPost, "/api/admin/continuity", env.adminToken, ContinuityRequest{WinningTitle: "T"})
	expectError(t, w, http.StatusNotFound, game.ErrNoStoryBible.Msg)
	w = env.do(t, http.MethodGet, "/api/admin/series-bible", env.adminToken, nil)
	expectError(t, w, http.StatusNotFound, game.ErrNoStoryBible.Msg)
}

func TestDirectorRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/admin/director/beats", env.adminToken, BeatSheetRequest{WinningText: "Dig"})
	expectStatus(t, w, http.StatusOK)
	beats := decode[TextResponse](t, w).Text
	if beats != "## SCENE 1: Dig" {
		t.Fatalf("beats = %q", beats)
	}

	w = env.do(t, http.MethodPost, "/api/admin/director/script", env.adminToken, ScriptRequest{BeatSheet: beats})
	expectStatus(t, w, http.StatusOK)
	script := decode[TextResponse](t, w).Text

	w = env.do(t, http.MethodPost, "/api/admin/director/audio", env.adminToken, PolishRequest{Text: script})
	expectStatus(t, w, http.StatusOK)
	if got := decode[TextResponse](t, w).Text; got != "Prose for ## SCENE 1: Dig..." {
		t.Errorf("polished = %q", got)
	}

	w = env.do(t, http.MethodPost, "/api/admin/director/script", env.adminToken, ScriptRequest{})
	expectError(t, w, http.StatusBadRequest, "A beat sheet is required.")
}

func TestAccessGate(t *testing.T) {
	env := newTestEnv(t, auth.WithAccessGate("ember"))
	env.setPhase(t, game.PhaseSubmit)

	w := env.do(t, http.MethodPost, "/api/game/submissions", env.userToken, SubmitRequest{Content: "A door opens."})
	expectError(t, w, http.StatusForbidden, "Enter the access code first.")

	w = env.do(t, http.MethodGet, "/api/admin/status", env.userToken, nil)
	expectStatus(t, w, http.StatusOK)
	if decode[AdminStatusResponse](t, w).HasAccess {
		t.Error("participant reported with access before the code")
	}

	w = env.do(t, http.MethodPost, "/api/auth/access", env.userToken, AccessCodeRequest{Code: "ash"})
	expectError(t, w, http.StatusForbidden, "Invalid Access Code")
	w = env.do(t, http.MethodPost, "/api/auth/access", "", AccessCodeRequest{Code: "ember"})
	expectStatus(t, w, http.StatusUnauthorized)

	w = env.do(t, http.MethodPost, "/api/auth/access", env.userToken, AccessCodeRequest{Code: " ember "})
	expectStatus(t, w, http.StatusOK)

	w = env.do(t, http.MethodPost, "/api/game/submissions", env.userToken, SubmitRequest{Content: "A door opens."})
	expectStatus(t, w, http.StatusCreated)

	w = env.do(t, http.MethodGet, "/api/admin/status", env.userToken, nil)
	expectStatus(t, w, http.StatusOK)
	if !decode[AdminStatusResponse](t, w).HasAccess {
		t.Error("participant lacks access after the code")
	}
}

func TestAccessGateAdminsPass(t *testing.T) {
	env := newTestEnv(t, auth.WithAccessGate(""))
	env.setPhase(t, game.PhaseSubmit)

	w := env.do(t, http.MethodPost, "/api/game/submissions", env.adminToken, SubmitRequest{Content: "The keeper speaks."})
	expectStatus(t, w, http.StatusCreated)

	w = env.do(t, http.MethodPost, "/api/auth/access", env.userToken, AccessCodeRequest{Code: "anything"})
	expectError(t, w, http.StatusServiceUnavailable, "Server misconfigured: missing ALPHA_CODE.")
}

func TestDirectorFailureShowsCause(t *testing.T) {
	env := newTestEnv(t)
	env.writer.err = errors.New("generating beat sheet: model offline")

	w := env.do(t, http.MethodPost, "/api/admin/director/beats", env.adminToken, BeatSheetRequest{WinningText: "Dig"})
	expectError(t, w, http.StatusInternalServerError, "generating beat sheet: model offline")
}
