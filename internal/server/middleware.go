package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/auth"
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

// requireUser rejects requests without a valid bearer token and puts the
// caller's identity into the context.
func requireUser(a *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !found || token == "" {
				writeError(w, http.StatusUnauthorized, "Sign in first.")
				return
			}
			id, err := a.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Your session has expired.")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireAdmin runs after requireUser and checks the admin flag of the
// profile as it is now.
func requireAdmin(a *auth.Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := a.RequireAdmin(r.Context(), identityFrom(r).UserID)
			if errors.Is(err, auth.ErrForbidden) {
				writeError(w, http.StatusForbidden, "Admins only.")
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("admin check failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAccess runs after requireUser and turns away callers who have not
// passed the access-code gate.
func requireAccess(a *auth.Authenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := a.RequireAccess(r.Context(), identityFrom(r).UserID)
			if errors.Is(err, auth.ErrNoAccess) {
				writeError(w, http.StatusForbidden, "Enter the access code first.")
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg("access check failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(ctxKeyIdentity).(auth.Identity)
	return id
}
