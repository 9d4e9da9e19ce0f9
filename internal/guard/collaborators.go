package guard

import (
	"context"
	"time"
)

// Oracle answers whether a note carries the protection marker and edits
// that marker.
type Oracle interface {
	IsProtected(ctx context.Context, key string) (bool, error)
	// IsProtectedCached must not block; it backs synchronous status reads.
	IsProtectedCached(key string) bool
	MarkProtected(ctx context.Context, key string) error
	RemoveProtection(ctx context.Context, key string) error
}

// Verifier checks a candidate password against the configured one.
type Verifier interface {
	Configured() bool
	Verify(candidate string) bool
}

// Host is the view layer the guard drives. Methods are called from the
// guard's loop and must not call back into the Guard.
type Host interface {
	// Active returns the note shown in the front view, "" if none.
	Active() string
	// OpenKeys lists every note shown in some view.
	OpenKeys() []string
	// CloseActive closes the active view if it shows key and reports the
	// note that is active afterwards.
	CloseActive(key string) (active string, changed bool)
	// CloseKey closes every view showing key.
	CloseKey(key string) (active string, changed bool)
	// Reopen re-renders views of key now that its content is readable.
	Reopen(key string)
	// RequestPassword asks the user for the password for key.
	RequestPassword(key string)
	Notify(n Notice)
}

// Policy holds the runtime lock settings.
type Policy struct {
	// IdleTimeout revokes temporary access after this much inactivity.
	// Zero disables the countdown.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// AutoEncryptOnClose revokes access when leaving a note even if another
	// view still shows it.
	AutoEncryptOnClose bool `json:"auto_encrypt_on_close"`
}

// NoticeKind identifies a user-facing message. Values double as
// translation message ids.
type NoticeKind string

const (
	NoticeNoPassword    NoticeKind = "notice.no_password"
	NoticeWrongPassword NoticeKind = "notice.wrong_password"
	NoticeExpired       NoticeKind = "notice.expired"
	NoticeRelocked      NoticeKind = "notice.relocked"
	NoticeProtected     NoticeKind = "notice.protected"
	NoticeUnprotected   NoticeKind = "notice.unprotected"
)

// Notice is a message for the user about key.
type Notice struct {
	Kind NoticeKind
	Key  string
}

// Locks reports whether the notice means key just became locked.
func (n Notice) Locks() bool {
	switch n.Kind {
	case NoticeExpired, NoticeRelocked, NoticeProtected:
		return true
	}
	return false
}
