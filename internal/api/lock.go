package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/notelock/internal/guard"
)

// Locker is the guard surface the API drives.
type Locker interface {
	Open(ctx context.Context, key string) (guard.Outcome, error)
	Answer(ctx context.Context, key, candidate string) (guard.Outcome, error)
	Cancel(ctx context.Context, key string) (guard.Outcome, error)
	Activity(ctx context.Context) (bool, error)
	Protect(ctx context.Context, key string) error
	Unprotect(ctx context.Context, key, candidate string) error
	Policy(ctx context.Context) (guard.Policy, error)
	SetPolicy(ctx context.Context, p guard.Policy) error
	Status(key string) guard.Status
	Unlocked() []string
}

// LockHandler holds the password and protection routes.
type LockHandler struct {
	lock Locker
}

// NewLockHandler creates a new LockHandler.
func NewLockHandler(lock Locker) *LockHandler {
	return &LockHandler{lock: lock}
}

// Unlock handles POST /api/lock/unlock.
//
//	@Summary		Answer the pending password prompt for a note
//	@Tags			lock
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordRequest	true	"Note and password"
//	@Success		200		{object}	LockResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		412		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock/unlock [post]
func (h *LockHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	out, err := h.lock.Answer(r.Context(), req.Path, req.Password)
	if err != nil {
		writeError(w, err, "unlock", slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{Outcome: out, Lock: h.lock.Status(req.Path)})
}

// Cancel handles POST /api/lock/cancel.
//
//	@Summary		Dismiss the pending password prompt for a note
//	@Tags			lock
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Note"
//	@Success		200		{object}	LockResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock/cancel [post]
func (h *LockHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	out, err := h.lock.Cancel(r.Context(), req.Path)
	if err != nil {
		writeError(w, err, "cancel", slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusOK, LockResponse{Outcome: out, Lock: h.lock.Status(req.Path)})
}

// Protect handles POST /api/lock/protect.
//
//	@Summary		Put a note behind the password
//	@Tags			lock
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Note"
//	@Success		200		{object}	guard.Status
//	@Failure		404		{object}	errResponse
//	@Failure		412		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock/protect [post]
func (h *LockHandler) Protect(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.lock.Protect(r.Context(), req.Path); err != nil {
		writeError(w, err, "protect", slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusOK, h.lock.Status(req.Path))
}

// Unprotect handles POST /api/lock/unprotect.
//
//	@Summary		Remove the password from a note for good
//	@Tags			lock
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PasswordRequest	true	"Note and password"
//	@Success		200		{object}	guard.Status
//	@Failure		401		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		412		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock/unprotect [post]
func (h *LockHandler) Unprotect(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.lock.Unprotect(r.Context(), req.Path, req.Password); err != nil {
		writeError(w, err, "unprotect", slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusOK, h.lock.Status(req.Path))
}

// Activity handles POST /api/lock/activity.
//
//	@Summary		Report user activity, resetting the idle countdown
//	@Tags			lock
//	@Produce		json
//	@Success		200	{object}	map[string]bool
//	@Security		BearerAuth
//	@Router			/lock/activity [post]
func (h *LockHandler) Activity(w http.ResponseWriter, r *http.Request) {
	restarted, err := h.lock.Activity(r.Context())
	if err != nil {
		writeError(w, err, "activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"restarted": restarted})
}

// Unlocked handles GET /api/lock/unlocked.
//
//	@Summary		List notes currently unlocked
//	@Tags			lock
//	@Produce		json
//	@Success		200	{object}	map[string][]string
//	@Security		BearerAuth
//	@Router			/lock/unlocked [get]
func (h *LockHandler) Unlocked(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"paths": h.lock.Unlocked()})
}

// Status handles GET /api/lock/status/*.
//
//	@Summary		Lock state of a note
//	@Tags			lock
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	guard.Status
//	@Security		BearerAuth
//	@Router			/lock/status/{path} [get]
func (h *LockHandler) Status(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.lock.Status(path))
}

// GetPolicy handles GET /api/lock/policy.
//
//	@Summary		Current lock policy
//	@Tags			lock
//	@Produce		json
//	@Success		200	{object}	PolicyBody
//	@Security		BearerAuth
//	@Router			/lock/policy [get]
func (h *LockHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.lock.Policy(r.Context())
	if err != nil {
		writeError(w, err, "get policy")
		return
	}
	writeJSON(w, http.StatusOK, policyBody(p))
}

// PutPolicy handles PUT /api/lock/policy.
//
//	@Summary		Change the lock policy for the running session
//	@Tags			lock
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PolicyBody	true	"New policy"
//	@Success		200		{object}	PolicyBody
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lock/policy [put]
func (h *LockHandler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.lock.SetPolicy(r.Context(), req.policy()); err != nil {
		writeError(w, err, "set policy")
		return
	}
	writeJSON(w, http.StatusOK, req)
}
