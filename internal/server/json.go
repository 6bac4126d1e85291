package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/twilner89/campfire-alpha/internal/game"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

var rejectionStatus = map[game.RejectionKind]int{
	game.Invalid:  http.StatusBadRequest,
	game.Conflict: http.StatusConflict,
	game.TooMany:  http.StatusTooManyRequests,
	game.Missing:  http.StatusNotFound,

	game.Unavailable: http.StatusServiceUnavailable,
}

// writeFailure answers with the rejection's own message, or a generic 500
// for anything else.
func writeFailure(w http.ResponseWriter, logger zerolog.Logger, err error) {
	fail(w, logger, err, "internal error")
}

// writeAdminFailure is writeFailure for admin routes, where the operator
// sees the underlying error text on a 500.
func writeAdminFailure(w http.ResponseWriter, logger zerolog.Logger, err error) {
	fail(w, logger, err, err.Error())
}

func fail(w http.ResponseWriter, logger zerolog.Logger, err error, internalMsg string) {
	var rej *game.Rejection
	if errors.As(err, &rej) {
		status, ok := rejectionStatus[rej.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		writeError(w, status, rej.Msg)
		return
	}
	logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, internalMsg)
}
