package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notelock/internal/guard"
	"github.com/starford/notelock/internal/host"
	"github.com/starford/notelock/internal/noteservice"
	"github.com/starford/notelock/internal/sse"
	"github.com/starford/notelock/internal/workspace"
)

// ViewHandler holds the view routes. Every change of the active note is
// reported to the guard as a document-open.
type ViewHandler struct {
	ws     *workspace.Workspace
	notes  *noteservice.Service
	lock   Locker
	events host.Publisher

	// mu makes a workspace change and its guard signal one step, so the
	// guard sees changes in the order the views made them.
	mu sync.Mutex
}

// NewViewHandler creates a new ViewHandler.
func NewViewHandler(ws *workspace.Workspace, notes *noteservice.Service, lock Locker, events host.Publisher) *ViewHandler {
	return &ViewHandler{ws: ws, notes: notes, lock: lock, events: events}
}

// List handles GET /api/views.
//
//	@Summary		List open views
//	@Tags			views
//	@Produce		json
//	@Success		200	{array}	workspace.View
//	@Security		BearerAuth
//	@Router			/views [get]
func (h *ViewHandler) List(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"views": h.ws.Views(),
	})
}

// Open handles POST /api/views.
//
//	@Summary		Open a note in a new view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathRequest	true	"Note to open"
//	@Success		201		{object}	ViewResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views [post]
func (h *ViewHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !h.notes.Exists(req.Path) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	v, ch := h.ws.Open(req.Path)
	h.publish(sse.TypeViewOpened, host.ViewEvent{ID: v.ID, Path: v.Path})
	h.respond(w, r, http.StatusCreated, &v, ch)
}

// Navigate handles PUT /api/views/{id}.
//
//	@Summary		Show another note in an existing view
//	@Tags			views
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"View id"
//	@Param			body	body		PathRequest	true	"Note to show"
//	@Success		200		{object}	ViewResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{id} [put]
func (h *ViewHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if !h.notes.Exists(req.Path) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	v, ch, err := h.ws.Navigate(chi.URLParam(r, "id"), req.Path)
	if err != nil {
		writeError(w, err, "navigate view")
		return
	}
	h.respond(w, r, http.StatusOK, &v, ch)
}

// Activate handles POST /api/views/{id}/activate.
//
//	@Summary		Bring a view to the front
//	@Tags			views
//	@Produce		json
//	@Param			id	path		string	true	"View id"
//	@Success		200	{object}	ViewResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{id}/activate [post]
func (h *ViewHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ch, err := h.ws.Activate(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "activate view")
		return
	}
	h.respond(w, r, http.StatusOK, &v, ch)
}

// Close handles DELETE /api/views/{id}. Closing a background view does not
// signal the guard; the sweeper relocks notes no longer shown.
//
//	@Summary		Close a view
//	@Tags			views
//	@Produce		json
//	@Param			id	path		string	true	"View id"
//	@Success		200	{object}	ViewResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/views/{id} [delete]
func (h *ViewHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mu.Lock()
	defer h.mu.Unlock()
	v, err := h.ws.View(id)
	if err != nil {
		writeError(w, err, "close view")
		return
	}
	ch, err := h.ws.Close(id)
	if err != nil {
		writeError(w, err, "close view")
		return
	}
	h.publish(sse.TypeViewClosed, host.ViewEvent{ID: id, Path: v.Path})
	h.respond(w, r, http.StatusOK, nil, ch)
}

func (h *ViewHandler) respond(w http.ResponseWriter, r *http.Request, status int, v *workspace.View, ch workspace.Change) {
	resp := ViewResponse{View: v, Active: ch.Active}
	if ch.Changed {
		out, err := h.lock.Open(r.Context(), ch.Active)
		if err != nil {
			writeError(w, err, "open note", slog.String("path", ch.Active))
			return
		}
		resp.Outcome = out
	}
	if ch.Active != "" {
		st := h.lock.Status(ch.Active)
		resp.Lock = &st
	}
	// The guard may have closed the view that was just opened.
	if v != nil {
		if cur, err := h.ws.View(v.ID); err == nil {
			resp.View = &cur
		} else {
			resp.View = nil
		}
		resp.Active = h.ws.ActivePath()
	}
	writeJSON(w, status, resp)
}

func (h *ViewHandler) publish(typ string, data any) {
	if h.events != nil {
		h.events.Publish(sse.Event{Type: typ, Data: data})
	}
}

var _ Locker = (*guard.Guard)(nil)
