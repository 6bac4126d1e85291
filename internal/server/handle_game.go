package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/campaign"
	"github.com/twilner89/campfire-alpha/internal/game"
)

type EpisodeInfo struct {
	ID              string    `json:"id"`
	SeasonNum       int       `json:"seasonNum"`
	EpisodeNum      int       `json:"episodeNum"`
	Title           string    `json:"title"`
	Narrative       string    `json:"narrative"`
	AudioURL        string    `json:"audioUrl,omitempty"`
	CreditedAuthors []string  `json:"creditedAuthors,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type BibleInfo struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Genre         string          `json:"genre"`
	Tone          string          `json:"tone"`
	Premise       string          `json:"premise"`
	Content       json.RawMessage `json:"content,omitempty"`
	IntroAudioURL string          `json:"introAudioUrl,omitempty"`
}

type OptionInfo struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	SourceSubmissionIDs []string `json:"sourceSubmissionIds"`
}

type SubmissionInfo struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Content     string    `json:"content"`
	Heat        int       `json:"heat"`
	IsSynthetic bool      `json:"isSynthetic"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PhaseInfo struct {
	Phase                string     `json:"phase"`
	PhaseExpiry          *time.Time `json:"phaseExpiry"`
	IsTransitioning      bool       `json:"isTransitioning"`
	CurrentEpisodeID     string     `json:"currentEpisodeId,omitempty"`
	CurrentSeriesBibleID string     `json:"currentSeriesBibleId,omitempty"`
}

type GameStateResponse struct {
	PhaseInfo
	ServerTime  time.Time    `json:"serverTime"`
	Episode     *EpisodeInfo `json:"episode"`
	SeriesBible *BibleInfo   `json:"seriesBible"`
	Options     []OptionInfo `json:"options"`
}

type SubmitRequest struct {
	Content string `json:"content"`
}

type BoostResponse struct {
	Heat int `json:"heat"`
}

type VoteRequest struct {
	OptionID string `json:"optionId"`
}

type VoteResponse struct {
	Recorded bool `json:"recorded"`
}

type TallyResponse struct {
	Tally []game.OptionCount `json:"tally"`
}

func phaseInfo(st game.GameState) PhaseInfo {
	return PhaseInfo{
		Phase:                string(st.Phase),
		PhaseExpiry:          st.PhaseExpiry,
		IsTransitioning:      st.IsTransitioning,
		CurrentEpisodeID:     st.CurrentEpisodeID,
		CurrentSeriesBibleID: st.CurrentSeriesBibleID,
	}
}

func episodeInfo(ep game.Episode) EpisodeInfo {
	return EpisodeInfo{
		ID:              ep.ID,
		SeasonNum:       ep.SeasonNum,
		EpisodeNum:      ep.EpisodeNum,
		Title:           ep.Title,
		Narrative:       ep.Narrative,
		AudioURL:        ep.AudioURL,
		CreditedAuthors: ep.CreditedAuthors,
		CreatedAt:       ep.CreatedAt,
	}
}

func bibleInfo(b game.SeriesBible) BibleInfo {
	info := BibleInfo{
		ID:            b.ID,
		Title:         b.Title,
		Genre:         b.Genre,
		Tone:          b.Tone,
		Premise:       b.Premise,
		IntroAudioURL: b.IntroAudioURL,
	}
	if json.Valid(b.Content) {
		info.Content = b.Content
	}
	return info
}

func optionInfos(opts []game.PathOption) []OptionInfo {
	out := make([]OptionInfo, len(opts))
	for i, o := range opts {
		out[i] = OptionInfo{ID: o.ID, Title: o.Title, Description: o.Description, SourceSubmissionIDs: o.SourceSubmissionIDs}
	}
	return out
}

func submissionInfo(s game.Submission) SubmissionInfo {
	return SubmissionInfo{
		ID:          s.ID,
		UserID:      s.UserID,
		Content:     s.Content,
		Heat:        s.Heat,
		IsSynthetic: s.IsSynthetic,
		CreatedAt:   s.CreatedAt,
	}
}

func handleGameState(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.CurrentState(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		resp := GameStateResponse{
			PhaseInfo:  phaseInfo(v.State),
			ServerTime: time.Now().UTC(),
			Options:    optionInfos(v.Options),
		}
		if v.Episode != nil {
			ep := episodeInfo(*v.Episode)
			resp.Episode = &ep
		}
		if v.Bible != nil {
			b := bibleInfo(*v.Bible)
			resp.SeriesBible = &b
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleEchoes(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive number")
				return
			}
			limit = n
		}

		subs, err := svc.Echoes(r.Context(), limit)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		out := make([]SubmissionInfo, len(subs))
		for i, s := range subs {
			out[i] = submissionInfo(s)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleTally(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tally, err := svc.CurrentTally(r.Context())
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TallyResponse{Tally: tally})
	}
}

func handleSubmit(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sub, err := svc.Submit(r.Context(), identityFrom(r).UserID, req.Content)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, submissionInfo(sub))
	}
}

func handleBoost(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		heat, err := svc.Boost(r.Context(), identityFrom(r).UserID, chi.URLParam(r, "id"))
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, BoostResponse{Heat: heat})
	}
}

func handleVote(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VoteRequest
		if err := readJSON(r, &req); err != nil || req.OptionID == "" {
			writeError(w, http.StatusBadRequest, "optionId is required")
			return
		}
		inserted, err := svc.CastVote(r.Context(), identityFrom(r).UserID, req.OptionID)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, VoteResponse{Recorded: inserted})
	}
}
