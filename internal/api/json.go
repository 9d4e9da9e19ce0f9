package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notelock/internal/apperr"
	"github.com/starford/notelock/internal/guard"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors to status codes. Anything unrecognised is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, err error, op string, attrs ...any) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrAlreadyExists):
		status, msg = http.StatusConflict, "note already exists"
	case errors.Is(err, apperr.ErrConflict):
		status, msg = http.StatusConflict, "checksum mismatch"
	case errors.Is(err, apperr.ErrLocked):
		status, msg = http.StatusLocked, "note is locked"
	case errors.Is(err, apperr.ErrWrongPassword):
		status, msg = http.StatusUnauthorized, "wrong password"
	case errors.Is(err, apperr.ErrNoPassword):
		status, msg = http.StatusPreconditionFailed, "no password configured"
	case errors.Is(err, apperr.ErrNoChallenge):
		status, msg = http.StatusConflict, "no pending password prompt"
	case errors.Is(err, apperr.ErrStaleChallenge):
		status, msg = http.StatusConflict, "password prompt is no longer current"
	case errors.Is(err, guard.ErrClosed):
		status, msg = http.StatusServiceUnavailable, "shutting down"
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
	}
	writeJSON(w, status, errorBody(msg))
}

const (
	maxRequestBody = 1 << 20
	maxNoteBody    = 10 << 20
)

// decodeJSON reads a small JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, maxRequestBody)
}

// decodeBody reads a JSON body of at most limit bytes into v. It writes
// the 400 response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, limit int64) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}
