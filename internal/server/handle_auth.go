package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/auth"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"isAdmin"`
}

type AdminStatusResponse struct {
	UserID    string `json:"userId"`
	IsAdmin   bool   `json:"isAdmin"`
	HasAccess bool   `json:"hasAccess"`
}

type AccessCodeRequest struct {
	Code string `json:"code"`
}

func handleLogin(a *auth.Authenticator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		p, token, exp, err := a.Login(r.Context(), req.Username, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		if err != nil {
			writeFailure(w, logger, err)
			return
		}

		writeJSON(w, http.StatusOK, LoginResponse{
			Token:     token,
			ExpiresAt: exp,
			UserID:    p.ID,
			Username:  p.Username,
			IsAdmin:   p.IsAdmin,
		})
	}
}

func handleAdminStatus(a *auth.Authenticator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)
		ok, err := a.IsAdmin(r.Context(), id.UserID)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		access, err := a.HasAccess(r.Context(), id.UserID)
		if err != nil {
			writeFailure(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, AdminStatusResponse{UserID: id.UserID, IsAdmin: ok, HasAccess: access})
	}
}

func handleAccessCode(a *auth.Authenticator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AccessCodeRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err := a.EnterAccessCode(r.Context(), identityFrom(r).UserID, req.Code)
		switch {
		case errors.Is(err, auth.ErrWrongAccessCode):
			writeError(w, http.StatusForbidden, "Invalid Access Code")
		case errors.Is(err, auth.ErrGateMisconfigured):
			logger.Error().Msg("access code entered but ALPHA_CODE is not set")
			writeError(w, http.StatusServiceUnavailable, "Server misconfigured: missing ALPHA_CODE.")
		case err != nil:
			writeFailure(w, logger, err)
		default:
			writeJSON(w, http.StatusOK, OKResponse{OK: true})
		}
	}
}
