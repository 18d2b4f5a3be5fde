// Package backends defines the contract every remote storage adapter fulfils
// and the optional capabilities the sync core discovers at runtime.
package backends

import (
	"context"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/models"
)

// Session is an authenticated backend session.
type Session struct {
	Token        string
	RefreshToken string
	OwnerID      string
	ExpiresAt    time.Time
}

// Valid reports whether the session carries a token that has not expired.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// Adapter persists whole snapshots remotely. SignIn and SignOut are no-ops
// for backends that need no authentication.
type Adapter interface {
	Name() string
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, snap *models.Snapshot) error
	SignIn(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
}

// ModifiedReporter exposes the remote last-modified marker.
type ModifiedReporter interface {
	RemoteModified(ctx context.Context) (time.Time, error)
}

// Revision is one stored version of the remote document.
type Revision struct {
	ID       string
	Modified time.Time
	Size     int64
}

// RevisionLister lists and reads previous versions of the remote document.
type RevisionLister interface {
	Revisions(ctx context.Context) ([]Revision, error)
	LoadRevision(ctx context.Context, id string) (*models.Snapshot, error)
}

// ChangeType is the kind of a realtime row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Change is one row-level event from a realtime feed.
type Change struct {
	List   models.ListName
	Type   ChangeType
	Record models.Record
	// OldID identifies the removed row of a DELETE.
	OldID string
}

// Handler consumes changes. Feeds call it from a single goroutine.
type Handler func(Change)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// ChangeFeed delivers row changes for one list.
type ChangeFeed interface {
	Subscribe(ctx context.Context, list models.ListName, h Handler) (Unsubscribe, error)
}

// RecordWriter writes single records; offered by row-oriented backends.
type RecordWriter interface {
	Insert(ctx context.Context, list models.ListName, r models.Record) (models.Record, error)
	Update(ctx context.Context, list models.ListName, r models.Record) error
	Delete(ctx context.Context, list models.ListName, id string) error
}

// Authenticator performs the sign-in handshake and yields a session.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// Refresher renews a session before it expires.
type Refresher interface {
	Refresh(ctx context.Context, s *Session) (*Session, error)
}

// Wrapper is implemented by adapters that decorate another adapter.
type Wrapper interface {
	Unwrap() Adapter
}

// Guard is implemented by decorators that protect the optional capabilities
// of the adapter they wrap. Guard returns c routed through the decorator, or c
// itself when the decorator has nothing to add.
type Guard interface {
	Guard(c any) any
}

// As finds the first adapter in the decoration chain of a that implements T.
// A capability found below decorators comes back routed through every Guard
// on the way, innermost first.
func As[T any](a Adapter) (T, bool) {
	var guards []Guard
	for a != nil {
		if c, ok := a.(T); ok {
			for i := len(guards) - 1; i >= 0; i-- {
				if g, ok := guards[i].Guard(c).(T); ok {
					c = g
				}
			}
			return c, true
		}
		if g, ok := a.(Guard); ok {
			guards = append(guards, g)
		}
		w, ok := a.(Wrapper)
		if !ok {
			break
		}
		a = w.Unwrap()
	}
	var zero T
	return zero, false
}
