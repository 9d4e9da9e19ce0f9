// Package host connects the guard to the open views and the event stream
// clients render them from.
package host

import (
	"log/slog"
	"path"

	"github.com/starford/notelock/internal/guard"
	"github.com/starford/notelock/internal/i18n"
	"github.com/starford/notelock/internal/sse"
	"github.com/starford/notelock/internal/workspace"
)

// Publisher broadcasts events to connected clients.
type Publisher interface {
	Publish(event sse.Event)
}

// ViewEvent is the payload of view.* events.
type ViewEvent struct {
	ID   string `json:"id,omitempty"`
	Path string `json:"path"`
}

// Challenge is the payload of lock.challenge events.
type Challenge struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Placeholder string `json:"placeholder"`
	Hint        string `json:"hint,omitempty"`
}

// NoticeEvent is the payload of notice events.
type NoticeEvent struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Host implements guard.Host over a workspace. Every effect on the views
// is also published so clients can follow along.
type Host struct {
	ws     *workspace.Workspace
	events Publisher
	tr     *i18n.Translator
	hint   string
	logger *slog.Logger
}

var _ guard.Host = (*Host)(nil)

// New creates a Host. hint is shown with every password prompt.
func New(ws *workspace.Workspace, events Publisher, tr *i18n.Translator, hint string, logger *slog.Logger) *Host {
	return &Host{ws: ws, events: events, tr: tr, hint: hint, logger: logger}
}

// Active returns the note in the front view.
func (h *Host) Active() string {
	return h.ws.ActivePath()
}

// OpenKeys lists the notes shown in some view.
func (h *Host) OpenKeys() []string {
	return h.ws.OpenKeys()
}

// CloseActive closes the active view if it shows key.
func (h *Host) CloseActive(key string) (string, bool) {
	id, ch := h.ws.CloseActive(key)
	if id != "" {
		h.logger.Debug("host: closed active view", slog.String("path", key), slog.String("view", id))
		h.events.Publish(sse.Event{Type: sse.TypeViewClosed, Data: ViewEvent{ID: id, Path: key}})
	}
	return ch.Active, ch.Changed
}

// CloseKey closes every view showing key.
func (h *Host) CloseKey(key string) (string, bool) {
	ids, ch := h.ws.CloseKey(key)
	for _, id := range ids {
		h.events.Publish(sse.Event{Type: sse.TypeViewClosed, Data: ViewEvent{ID: id, Path: key}})
	}
	if len(ids) > 0 {
		h.logger.Debug("host: closed views", slog.String("path", key), slog.Int("count", len(ids)))
	}
	return ch.Active, ch.Changed
}

// Reopen tells clients to fetch key again.
func (h *Host) Reopen(key string) {
	h.events.Publish(sse.Event{Type: sse.TypeViewReopen, Data: ViewEvent{Path: key}})
	h.publishNotice("notice.verified", key)
}

// RequestPassword publishes a password prompt for key.
func (h *Host) RequestPassword(key string) {
	h.events.Publish(sse.Event{Type: sse.TypeLockChallenge, Data: Challenge{
		Path:        key,
		Title:       h.tr.T("prompt.title"),
		Placeholder: h.tr.T("prompt.placeholder"),
		Hint:        h.hint,
	}})
}

// Notify publishes a translated notice, plus lock.locked when the notice
// means the note was locked.
func (h *Host) Notify(n guard.Notice) {
	if n.Locks() {
		h.events.Publish(sse.Event{Type: sse.TypeLockLocked, Data: ViewEvent{Path: n.Key}})
	}
	h.publishNotice(string(n.Kind), n.Key)
}

func (h *Host) publishNotice(kind, key string) {
	h.events.Publish(sse.Event{Type: sse.TypeNotice, Data: NoticeEvent{
		Kind:    kind,
		Path:    key,
		Message: h.tr.TName(kind, path.Base(key)),
	}})
}
