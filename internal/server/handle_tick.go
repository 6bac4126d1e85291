package server

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/engine"
)

// TickResponse wraps an engine result. Failures carry ok=false and the
// error text; they are operator-facing.
type TickResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	engine.Result
}

var cronSecretHeaders = []string{"X-Cron-Secret", "Cron-Secret", "Cron_Secret"}

// cronSecret returns the secret a scheduler sent, from the first header
// that carries one or else the secret query parameter. Surrounding
// whitespace is dropped.
func cronSecret(r *http.Request) string {
	for _, h := range cronSecretHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("secret"))
}

func handleTick(eng Ticker, secret string, logger zerolog.Logger) http.HandlerFunc {
	secret = strings.TrimSpace(secret)
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			logger.Error().Msg("tick refused: CRON_SECRET is not configured")
			writeJSON(w, http.StatusInternalServerError, TickResponse{Error: "cron secret is not configured"})
			return
		}
		if cronSecret(r) != secret {
			writeJSON(w, http.StatusUnauthorized, TickResponse{Error: "unauthorized"})
			return
		}

		res, err := eng.Tick(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, TickResponse{Error: err.Error(), Result: res})
			return
		}
		writeJSON(w, http.StatusOK, TickResponse{OK: true, Result: res})
	}
}
