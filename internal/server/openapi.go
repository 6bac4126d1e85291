package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthCheck is one entry of the /healthz body, keyed by dependency name.
type HealthCheck struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type operation struct {
	method, path  string
	summary, desc string
	req           any
	resp          any
	status        int
	errors        []int
	// errBody replaces ErrorResponse for endpoints that fail with their
	// own shape.
	errBody any
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Campfire API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the campfire serialized fiction game.")

	const bearer = " Requires Bearer token."
	const admin = " Requires an admin Bearer token."

	ops := []operation{
		{
			method: http.MethodGet, path: "/healthz",
			summary: "Health check", desc: "Pings the database and, when configured, Redis.",
			resp: map[string]HealthCheck{}, status: http.StatusOK,
			errors: []int{http.StatusServiceUnavailable}, errBody: map[string]HealthCheck{},
		},
		{
			method: http.MethodPost, path: "/api/cron/tick",
			summary: "Run the phase engine", desc: "Evaluates the phase timer once. Send the X-Cron-Secret header or the secret query parameter. GET works too.",
			resp: TickResponse{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusInternalServerError}, errBody: TickResponse{},
		},
		{
			method: http.MethodPost, path: "/api/auth/login",
			summary: "Sign in", desc: "Exchanges a username and password for a session token.",
			req: LoginRequest{}, resp: LoginResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized},
		},
		{
			method: http.MethodPost, path: "/api/auth/access",
			summary: "Enter access code", desc: "Unlocks submitting, boosting and voting while the access gate is on." + bearer,
			req: AccessCodeRequest{}, resp: OKResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusServiceUnavailable},
		},
		{
			method: http.MethodGet, path: "/api/game/state",
			summary: "Get game state", desc: "Returns the phase, timer, current episode, series bible and open options.",
			resp: GameStateResponse{}, status: http.StatusOK,
		},
		{
			method: http.MethodGet, path: "/api/game/echoes",
			summary: "List echoes", desc: "Returns the current episode's submissions, hottest first. Accepts a limit query parameter.",
			resp: []SubmissionInfo{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest},
		},
		{
			method: http.MethodGet, path: "/api/game/tally",
			summary: "Get vote tally", desc: "Returns vote counts for the open options, most votes first.",
			resp: TallyResponse{}, status: http.StatusOK,
		},
		{
			method: http.MethodPost, path: "/api/game/submissions",
			summary: "Submit an idea", desc: "Adds a submission to the current round during SUBMIT." + bearer,
			req: SubmitRequest{}, resp: SubmissionInfo{}, status: http.StatusCreated,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/game/submissions/{id}/boost",
			summary: "Boost an echo", desc: "Adds one heat to a submission of the current round." + bearer,
			resp: BoostResponse{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests},
		},
		{
			method: http.MethodPost, path: "/api/game/votes",
			summary: "Cast a vote", desc: "Votes for an open option during VOTE. Repeating a vote is not an error." + bearer,
			req: VoteRequest{}, resp: VoteResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodGet, path: "/api/admin/status",
			summary: "Admin status", desc: "Reports whether the caller is an admin and has passed the access gate." + bearer,
			resp: AdminStatusResponse{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized},
		},
		{
			method: http.MethodPatch, path: "/api/admin/game-state",
			summary: "Force the phase", desc: "Sets the phase and timer, optionally pointing at another episode or bible." + admin,
			req: SetPhaseRequest{}, resp: SetPhaseResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
		},
		{
			method: http.MethodPost, path: "/api/admin/voting",
			summary: "Open voting", desc: "Replaces the current options with exactly three and starts VOTE." + admin,
			req: OpenVotingRequest{}, resp: OpenVotingResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/admin/synthesize",
			summary: "Preview options", desc: "Synthesizes three options from the current round without storing them." + admin,
			resp: SynthesizeResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/admin/episodes",
			summary: "Publish episode", desc: "Stores the next episode and returns the game to LISTEN." + admin,
			req: PublishEpisodeRequest{}, resp: EpisodeInfo{}, status: http.StatusCreated,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/admin/campaign/ignite",
			summary: "Ignite campaign", desc: "Stores the series bible and the first episode of an empty campaign." + admin,
			req: IgniteRequest{}, resp: IgniteResponse{}, status: http.StatusCreated,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodPost, path: "/api/admin/campaign/reset",
			summary: "Reset campaign", desc: "Deletes every episode and returns the game to LISTEN." + admin,
			req: ResetRequest{}, resp: OKResponse{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden},
		},
		{
			method: http.MethodPost, path: "/api/admin/simulate",
			summary: "Simulate submissions", desc: "Generates synthetic submissions for the current round." + admin,
			req: SimulateRequest{}, resp: SimulateResponse{}, status: http.StatusCreated,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict},
		},
		{
			method: http.MethodGet, path: "/api/admin/episodes/{id}/submissions",
			summary: "Submission stats", desc: "Lists an episode's submissions with the votes their options drew." + admin,
			resp: []SubmissionStat{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden},
		},
		{
			method: http.MethodGet, path: "/api/admin/episodes/{id}/options",
			summary: "Option stats", desc: "Lists an episode's options ranked by votes." + admin,
			resp: []OptionStat{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden},
		},
		{
			method: http.MethodPost, path: "/api/admin/oracle",
			summary: "Suggest premises", desc: "Asks the text generator for three campaign premises." + admin,
			req: OracleRequest{}, resp: OracleResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusServiceUnavailable},
		},
		{
			method: http.MethodPost, path: "/api/admin/campaign/genesis",
			summary: "Generate campaign", desc: "Generates a storyform and episode 1 for a premise and ignites the campaign with them." + admin,
			req: GenesisRequest{}, resp: GenesisResponse{}, status: http.StatusCreated,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict, http.StatusInternalServerError, http.StatusServiceUnavailable},
		},
		{
			method: http.MethodGet, path: "/api/admin/series-bible",
			summary: "Active series bible", desc: "Returns the bible the game points at, or the newest one." + admin,
			resp: BibleInfo{}, status: http.StatusOK,
			errors: []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
		},
		{
			method: http.MethodPost, path: "/api/admin/continuity",
			summary: "Build continuity header", desc: "Assembles the canon packet for the next episode from the storyform, the winning option and recent episodes." + admin,
			req: ContinuityRequest{}, resp: TextResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
		},
		{
			method: http.MethodPost, path: "/api/admin/director/beats",
			summary: "Draft beat sheet", desc: "Lays out the next episode as five scenes." + admin,
			req: BeatSheetRequest{}, resp: TextResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusServiceUnavailable},
		},
		{
			method: http.MethodPost, path: "/api/admin/director/script",
			summary: "Draft script", desc: "Writes episode prose from a beat sheet, scene by scene." + admin,
			req: ScriptRequest{}, resp: TextResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusServiceUnavailable},
		},
		{
			method: http.MethodPost, path: "/api/admin/director/audio",
			summary: "Polish for audio", desc: "Rewrites prose for text-to-speech narration." + admin,
			req: PolishRequest{}, resp: TextResponse{}, status: http.StatusOK,
			errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError, http.StatusServiceUnavailable},
		},
	}

	for _, op := range ops {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.desc)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		var errBody any = ErrorResponse{}
		if op.errBody != nil {
			errBody = op.errBody
		}
		for _, status := range op.errors {
			oc.AddRespStructure(errBody, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
