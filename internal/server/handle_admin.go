package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/campaign"
	"github.com/twilner89/campfire-alpha/internal/game"
)

type SetPhaseRequest struct {
	Phase           string   `json:"phase"`
	DurationMinutes *float64 `json:"durationMinutes,omitempty"`
	EpisodeID       *string  `json:"currentEpisodeId,omitempty"`
	SeriesBibleID   *string  `json:"currentSeriesBibleId,omitempty"`
}

type SetPhaseResponse struct {
	PhaseInfo
	Tally []game.OptionCount `json:"tally,omitempty"`
}

type OptionDraftRequest struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	SourceSubmissionIDs []string `json:"sourceSubmissionIds,omitempty"`
}

type OpenVotingRequest struct {
	Options         []OptionDraftRequest `json:"options"`
	DurationMinutes *float64             `json:"durationMinutes,omitempty"`
}

type OpenVotingResponse struct {
	PhaseInfo
	Options []OptionInfo `json:"options"`
}

type SynthesizeResponse struct {
	Options []game.OptionDraft `json:"options"`
}

type PublishEpisodeRequest struct {
	Title           string `json:"title"`
	Narrative       string `json:"narrative"`
	SeasonNum       int    `json:"seasonNum"`
	EpisodeNum      int    `json:"episodeNum"`
	AudioURL        string `json:"audioUrl,omitempty"`
	WinningOptionID string `json:"winningOptionId,omitempty"`
}

type IgniteRequest struct {
	Bible struct {
		Title         string          `json:"title"`
		Genre         string          `json:"genre"`
		Tone          string          `json:"tone"`
		Premise       string          `json:"premise"`
		Content       json.RawMessage `json:"content,omitempty"`
		IntroAudioURL string          `json:"introAudioUrl,omitempty"`
	} `json:"bible"`
	Episode struct {
		Title     string `json:"title"`
		Narrative string `json:"narrative"`
		AudioURL  string `json:"audioUrl,omitempty"`
	} `json:"episode"`
}

type IgniteResponse struct {
	SeriesBible BibleInfo   `json:"seriesBible"`
	Episode     EpisodeInfo `json:"episode"`
}

type ResetRequest struct {
	DeleteBible bool `json:"deleteBible"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type SimulateRequest struct {
	Count int `json:"count"`
}

type SimulateResponse struct {
	Created     int              `json:"created"`
	Submissions []SubmissionInfo `json:"submissions"`
}

type SubmissionStat struct {
	SubmissionInfo
	Votes int `json:"votes"`
}

type OptionStat struct {
	OptionInfo
	Votes int `json:"votes"`
}

func handleSetPhase(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetPhaseRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.SetPhase(r.Context(), campaign.SetPhaseInput{
			Phase:           req.Phase,
			DurationMinutes: req.DurationMinutes,
			EpisodeID:       req.EpisodeID,
			SeriesBibleID:   req.SeriesBibleID,
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SetPhaseResponse{PhaseInfo: phaseInfo(res.State), Tally: res.Tally})
	}
}

func handleOpenVoting(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenVotingRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		drafts := make([]game.OptionDraft, len(req.Options))
		for i, o := range req.Options {
			drafts[i] = game.OptionDraft{Title: o.Title, Description: o.Description, SourceSubmissionIDs: o.SourceSubmissionIDs}
		}

		res, err := svc.OpenVoting(r.Context(), campaign.OpenVotingInput{Options: drafts, DurationMinutes: req.DurationMinutes})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OpenVotingResponse{PhaseInfo: phaseInfo(res.State), Options: optionInfos(res.Options)})
	}
}

func handleSynthesize(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drafts, err := svc.SynthesizePreview(r.Context())
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SynthesizeResponse{Options: drafts})
	}
}

func handlePublishEpisode(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishEpisodeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ep, err := svc.PublishEpisode(r.Context(), campaign.PublishInput{
			Title:           req.Title,
			Narrative:       req.Narrative,
			SeasonNum:       req.SeasonNum,
			EpisodeNum:      req.EpisodeNum,
			AudioURL:        req.AudioURL,
			WinningOptionID: req.WinningOptionID,
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, episodeInfo(ep))
	}
}

func handleIgnite(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IgniteRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		bible, ep, err := svc.IgniteCampaign(r.Context(), campaign.IgniteInput{
			Bible: game.SeriesBible{
				Title:         req.Bible.Title,
				Genre:         req.Bible.Genre,
				Tone:          req.Bible.Tone,
				Premise:       req.Bible.Premise,
				Content:       req.Bible.Content,
				IntroAudioURL: req.Bible.IntroAudioURL,
			},
			Episode: game.Episode{
				Title:     req.Episode.Title,
				Narrative: req.Episode.Narrative,
				AudioURL:  req.Episode.AudioURL,
			},
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, IgniteResponse{SeriesBible: bibleInfo(bible), Episode: episodeInfo(ep)})
	}
}

func handleReset(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetRequest
		if r.ContentLength != 0 {
			if err := readJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}
		if err := svc.ResetCampaign(r.Context(), req.DeleteBible); err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleSimulate(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SimulateRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		subs, err := svc.SimulateSubmissions(r.Context(), identityFrom(r).UserID, req.Count)
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		out := make([]SubmissionInfo, len(subs))
		for i, s := range subs {
			out[i] = submissionInfo(s)
		}
		writeJSON(w, http.StatusCreated, SimulateResponse{Created: len(out), Submissions: out})
	}
}

func handleSubmissionStats(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.SubmissionStats(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		out := make([]SubmissionStat, len(stats))
		for i, s := range stats {
			out[i] = SubmissionStat{SubmissionInfo: submissionInfo(s.Submission), Votes: s.Votes}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleOptionStats(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.OptionStats(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		out := make([]OptionStat, len(stats))
		for i, s := range stats {
			out[i] = OptionStat{
				OptionInfo: optionInfos([]game.PathOption{s.Option})[0],
				Votes:      s.Votes,
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
