package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

type fakeAdapter struct {
	mu        sync.Mutex
	remote    *models.Snapshot
	modified  time.Time
	signedIn  bool
	saves     int
	loads     int
	signOuts  int
	loadErr   error
	saveErr   error
	markerErr error
	panicLoad bool

	// saveGate, when set, blocks Save until closed. saveStarted is signalled
	// once the first save reaches the adapter.
	saveGate    chan struct{}
	saveStarted chan struct{}
	signIn      func(ctx context.Context) (*backends.Session, error)
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{remote: models.EmptySnapshot(), signedIn: true}
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Load(context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicLoad {
		panic("adapter exploded")
	}
	f.loads++
	if !f.signedIn {
		return nil, common.ErrUnauthorized
	}
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.remote.Clone(), nil
}

func (f *fakeAdapter) Save(_ context.Context, snap *models.Snapshot) error {
	f.mu.Lock()
	gate, started := f.saveGate, f.saveStarted
	f.saveStarted = nil
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signedIn {
		return common.ErrUnauthorized
	}
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.remote = snap.Clone()
	f.modified = f.modified.Add(time.Minute)
	return nil
}

func (f *fakeAdapter) RemoteModified(context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markerErr != nil {
		return time.Time{}, f.markerErr
	}
	return f.modified, nil
}

func (f *fakeAdapter) SignIn(ctx context.Context) (*backends.Session, error) {
	if f.signIn != nil {
		return f.signIn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = true
	return &backends.Session{Token: "t", OwnerID: "owner-1"}, nil
}

func (f *fakeAdapter) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = false
	f.signOuts++
	return nil
}

func (f *fakeAdapter) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// plainAdapter hides the optional capabilities of fakeAdapter.
type plainAdapter struct{ backends.Adapter }

// rowAdapter adds per-record writes and an owner. With advance set every
// write moves the remote marker on, like the change trigger does.
type rowAdapter struct {
	*fakeAdapter
	inserted []models.Record
	next     int
	advance  bool
}

func (r *rowAdapter) OwnerID() string { return "owner-1" }

func (r *rowAdapter) Insert(_ context.Context, _ models.ListName, rec models.Record) (models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	rec.ID = "row-" + string(rune('0'+r.next))
	rec.State = models.StateConfirmedRemote
	r.inserted = append(r.inserted, rec)
	r.touchLocked()
	return rec, nil
}

func (r *rowAdapter) Update(context.Context, models.ListName, models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	return nil
}

func (r *rowAdapter) Delete(context.Context, models.ListName, string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked()
	return nil
}

func (r *rowAdapter) touchLocked() {
	if r.advance {
		r.modified = r.modified.Add(time.Minute)
	}
}

func (r *rowAdapter) remoteMarker() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modified
}

type fakeFeed struct {
	mu       sync.Mutex
	handlers map[models.ListName]backends.Handler
}

func (f *fakeFeed) Subscribe(_ context.Context, list models.ListName, h backends.Handler) (backends.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[models.ListName]backends.Handler{}
	}
	f.handlers[list] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers, list)
	}, nil
}

// failingFeed refuses every subscription.
type failingFeed struct{ err error }

func (f failingFeed) Subscribe(context.Context, models.ListName, backends.Handler) (backends.Unsubscribe, error) {
	return nil, f.err
}

func (f *fakeFeed) emit(ch backends.Change) bool {
	f.mu.Lock()
	h := f.handlers[ch.List]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(ch)
	return true
}

type memLocal struct {
	mu       sync.Mutex
	snap     *models.Snapshot
	settings map[string]string
	marker   time.Time
	saves    int
}

func newMemLocal() *memLocal {
	return &memLocal{snap: models.EmptySnapshot(), settings: map[string]string{}}
}

func (m *memLocal) LoadSnapshot(context.Context) (*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), nil
}

func (m *memLocal) SaveSnapshot(_ context.Context, snap *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.Clone()
	m.saves++
	return nil
}

func (m *memLocal) Setting(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *memLocal) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *memLocal) LastRemoteModified(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.marker, nil
}

func (m *memLocal) SetLastRemoteModified(_ context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marker = t
	return nil
}

func (m *memLocal) stored() *models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone()
}
