package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notelock/internal/host"
	"github.com/starford/notelock/internal/noteservice"
	"github.com/starford/notelock/internal/workspace"
)

// Deps bundles what the API routes need.
type Deps struct {
	Notes     *noteservice.Service
	Lock      Locker
	Workspace *workspace.Workspace
	// Events receives view.opened events; may be nil.
	Events host.Publisher
	// SSE, if non-nil, is mounted at GET /events inside the auth group.
	SSE http.Handler

	AuthEnabled bool
	Token       string
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d.Notes)
	vh := NewViewHandler(d.Workspace, d.Notes, d.Lock, d.Events)
	lh := NewLockHandler(d.Lock)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(d.AuthEnabled, d.Token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Delete("/notes/*", h.DeleteNote)

	// Search.
	r.Get("/search", h.Search)

	// Views.
	r.Get("/views", vh.List)
	r.Post("/views", vh.Open)
	r.Put("/views/{id}", vh.Navigate)
	r.Post("/views/{id}/activate", vh.Activate)
	r.Delete("/views/{id}", vh.Close)

	// Lock.
	r.Route("/lock", func(r chi.Router) {
		r.Post("/unlock", lh.Unlock)
		r.Post("/cancel", lh.Cancel)
		r.Post("/protect", lh.Protect)
		r.Post("/unprotect", lh.Unprotect)
		r.Post("/activity", lh.Activity)
		r.Get("/unlocked", lh.Unlocked)
		r.Get("/status/*", lh.Status)
		r.Get("/policy", lh.GetPolicy)
		r.Put("/policy", lh.PutPolicy)
	})

	// SSE endpoint (protected by same auth middleware).
	if d.SSE != nil {
		r.Get("/events", d.SSE.ServeHTTP)
	}

	return r
}
