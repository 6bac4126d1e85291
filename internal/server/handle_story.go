package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/campaign"
	"github.com/twilner89/campfire-alpha/internal/game"
)

type OracleRequest struct {
	Title string `json:"title"`
	Genre string `json:"genre"`
	Tone  string `json:"tone"`
}

type OracleResponse struct {
	Premises []string `json:"premises"`
}

type GenesisRequest struct {
	Title   string `json:"title"`
	Genre   string `json:"genre"`
	Tone    string `json:"tone"`
	Premise string `json:"premise"`
}

type GenesisResponse struct {
	SeriesBible BibleInfo      `json:"seriesBible"`
	Episode     EpisodeInfo    `json:"episode"`
	Storyform   game.Storyform `json:"storyform"`
	Fallback    bool           `json:"fallback"`
}

type ContinuityRequest struct {
	WinningOptionID    string `json:"winningOptionId,omitempty"`
	WinningTitle       string `json:"winningTitle"`
	WinningDescription string `json:"winningDescription"`
}

type BeatSheetRequest struct {
	WinningText  string   `json:"winningText"`
	Canon        string   `json:"canon,omitempty"`
	Contributors []string `json:"contributors,omitempty"`
}

type ScriptRequest struct {
	BeatSheet string `json:"beatSheet"`
	Canon     string `json:"canon,omitempty"`
}

type PolishRequest struct {
	Text  string `json:"text"`
	Canon string `json:"canon,omitempty"`
}

// TextResponse carries one generated block of text.
type TextResponse struct {
	Text string `json:"text"`
}

func handleOracle(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OracleRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		premises, err := svc.OraclePremises(r.Context(), campaign.PremiseInput{Title: req.Title, Genre: req.Genre, Tone: req.Tone})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, OracleResponse{Premises: premises})
	}
}

func handleGenesis(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenesisRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		res, err := svc.GenerateCampaign(r.Context(), campaign.GenesisInput{
			Title:   req.Title,
			Genre:   req.Genre,
			Tone:    req.Tone,
			Premise: req.Premise,
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, GenesisResponse{
			SeriesBible: bibleInfo(res.Bible),
			Episode:     episodeInfo(res.Episode),
			Storyform:   res.Storyform,
			Fallback:    res.Fallback,
		})
	}
}

func handleActiveBible(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := svc.ActiveSeriesBible(r.Context())
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, bibleInfo(b))
	}
}

func handleContinuity(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ContinuityRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		header, err := svc.ContinuityHeader(r.Context(), campaign.ContinuityInput{
			WinningOptionID:    req.WinningOptionID,
			WinningTitle:       req.WinningTitle,
			WinningDescription: req.WinningDescription,
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TextResponse{Text: header})
	}
}

func handleBeatSheet(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BeatSheetRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text, err := svc.DraftBeatSheet(r.Context(), campaign.BeatSheetInput{
			WinningText:  req.WinningText,
			Canon:        req.Canon,
			Contributors: req.Contributors,
		})
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TextResponse{Text: text})
	}
}

func handleScript(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScriptRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text, err := svc.DraftScript(r.Context(), req.BeatSheet, req.Canon)
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TextResponse{Text: text})
	}
}

func handlePolish(svc *campaign.Service, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PolishRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text, err := svc.PolishForAudio(r.Context(), req.Text, req.Canon)
		if err != nil {
			writeAdminFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, TextResponse{Text: text})
	}
}
