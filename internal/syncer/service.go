// Package syncer is the sync core: it drives the active backend adapter,
// keeps the status machine current, gates saves on the conflict detector and
// runs the realtime merge in live mode.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/collection"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/conflict"
	"github.com/dmitrijs2005/discshelf/internal/cryptox"
	"github.com/dmitrijs2005/discshelf/internal/enrich"
	"github.com/dmitrijs2005/discshelf/internal/fuzzy"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/normalize"
	"github.com/dmitrijs2005/discshelf/internal/realtime"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
	"golang.org/x/sync/singleflight"
)

// DefaultSignInTimeout bounds the sign-in handshake.
const DefaultSignInTimeout = 2 * time.Minute

// LocalStore is the on-device persistence the service writes through to.
type LocalStore interface {
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	Setting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	LastRemoteModified(ctx context.Context) (time.Time, error)
	SetLastRemoteModified(ctx context.Context, t time.Time) error
}

// Backend is the active adapter and, for realtime capable backends, its
// change feed. A zero Backend means sync is not configured.
type Backend struct {
	Adapter backends.Adapter
	Feed    backends.ChangeFeed
}

// Options wires the service. Collection and State are created when nil.
type Options struct {
	Local         LocalStore
	Collection    *collection.Store
	State         *syncstate.Store
	SkewBuffer    time.Duration
	Threshold     float64
	SignInTimeout time.Duration
	Enricher      *enrich.Runner
	Log           logging.Logger
}

// Candidate is a stored record that looks like a release about to be added.
type Candidate struct {
	List   models.ListName
	Record models.Record
}

type ownerReporter interface {
	OwnerID() string
}

// Service is safe for concurrent use.
type Service struct {
	local         LocalStore
	coll          *collection.Store
	state         *syncstate.Store
	detector      *conflict.Detector
	matcher       fuzzy.Matcher
	merger        *realtime.Merger
	signInTimeout time.Duration
	enricher      *enrich.Runner
	log           logging.Logger

	mu        sync.Mutex
	backend   backends.Adapter
	live      *realtime.Live
	pending   *conflict.Error
	lastSaved cryptox.Digest

	loads     singleflight.Group
	saves     singleflight.Group
	saveMu    sync.Mutex
	persistMu sync.Mutex

	bg       context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// New builds the service around b. A nil adapter starts it disabled.
func New(b Backend, opts Options) *Service {
	if opts.Collection == nil {
		opts.Collection = collection.New()
	}
	if opts.State == nil {
		opts.State = syncstate.NewStore(b.Adapter == nil)
	}
	if opts.SignInTimeout <= 0 {
		opts.SignInTimeout = DefaultSignInTimeout
	}
	log := logging.OrNop(opts.Log).With("component", "syncer")
	matcher := fuzzy.NewMatcher(opts.Threshold)

	s := &Service{
		local:         opts.Local,
		coll:          opts.Collection,
		state:         opts.State,
		detector:      conflict.NewDetector(opts.SkewBuffer),
		matcher:       matcher,
		merger:        realtime.NewMerger(opts.Collection, matcher, opts.Log),
		signInTimeout: opts.SignInTimeout,
		enricher:      opts.Enricher,
		log:           log,
	}
	s.bg, s.bgCancel = context.WithCancel(context.Background())
	s.install(b)
	if b.Adapter == nil {
		s.state.Disable("sync backend is not configured")
	}
	return s
}

func (s *Service) install(b Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b.Adapter
	s.live = nil
	if b.Adapter != nil && b.Feed != nil {
		s.live = realtime.NewLive(b.Feed, s.merger, s.afterApply, s.log)
	}
	s.lastSaved = cryptox.Digest{}
	s.pending = nil
}

// Start loads the device snapshot into the collection.
func (s *Service) Start(ctx context.Context) error {
	snap, err := s.local.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load local snapshot: %w", err)
	}
	s.coll.Replace(snap)
	s.log.Info(ctx, "local snapshot loaded", "items", snap.Count(), "backend", s.BackendName())
	return nil
}

// Close stops live updates, waits for background enrichment and releases the
// backend.
func (s *Service) Close(ctx context.Context) error {
	s.stopLive(ctx)
	s.bgCancel()
	s.wg.Wait()
	return s.closeAdapter(s.adapter())
}

func (s *Service) Collection() *collection.Store { return s.coll }

func (s *Service) Status() syncstate.State { return s.state.Snapshot() }

// Subscribe registers fn for status changes.
func (s *Service) Subscribe(fn syncstate.Listener) func() { return s.state.Subscribe(fn) }

// BackendName returns the active backend name, or "none".
func (s *Service) BackendName() string {
	if b := s.adapter(); b != nil {
		return b.Name()
	}
	return "none"
}

// PendingConflict returns the conflict that stopped the last save, or nil.
func (s *Service) PendingConflict() *conflict.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Service) adapter() backends.Adapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

func (s *Service) notConfigured() error {
	s.state.Disable("sync backend is not configured")
	return fmt.Errorf("%w: no sync backend", common.ErrNotConfigured)
}

// guard runs an adapter call, turning a panic into an error.
func (s *Service) guard(ctx context.Context, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "adapter panic", "op", op, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s: adapter panic: %v", op, r)
		}
	}()
	return fn()
}

// fail records err in the status machine. An unauthorized error also signs
// out locally; the error state is kept so the user sees why.
func (s *Service) fail(ctx context.Context, op string, err error) error {
	kind := common.Kind(err)
	if ferr := s.state.Fail(err); ferr != nil {
		s.log.Warn(ctx, "status not updated", "op", op, "error", ferr)
	}
	s.log.Warn(ctx, op+" failed", "error", err, "kind", string(kind))
	if kind == common.KindUnauthorized {
		s.localSignOut(ctx)
	}
	return err
}

func (s *Service) localSignOut(ctx context.Context) {
	s.stopLive(ctx)
	if b := s.adapter(); b != nil {
		if err := s.guard(ctx, "sign-out", func() error { return b.SignOut(ctx) }); err != nil {
			s.log.Warn(ctx, "local sign-out failed", "error", err)
		}
	}
	s.forgetRemote(ctx)
	s.log.Info(ctx, "signed out after unauthorized response")
}

func (s *Service) forgetRemote(ctx context.Context) {
	s.mu.Lock()
	s.lastSaved = cryptox.Digest{}
	s.pending = nil
	s.mu.Unlock()
	if err := s.local.SetLastRemoteModified(ctx, time.Time{}); err != nil {
		s.log.Warn(ctx, "failed to clear remote marker", "error", err)
	}
}

// persist writes the current collection to the device.
func (s *Service) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.local.SaveSnapshot(ctx, s.coll.Snapshot()); err != nil {
		s.log.Warn(ctx, "failed to persist locally", "error", err)
	}
}

// rememberRemote stores the backend's current marker for the next conflict
// check. Backends without markers are skipped.
func (s *Service) rememberRemote(ctx context.Context, b backends.Adapter) {
	mr, ok := backends.As[backends.ModifiedReporter](b)
	if !ok {
		return
	}
	var m time.Time
	err := s.guard(ctx, "remote-modified", func() error {
		var err error
		m, err = mr.RemoteModified(ctx)
		return err
	})
	if err != nil {
		if !errors.Is(err, common.ErrUnsupported) {
			s.log.Warn(ctx, "could not read remote marker", "error", err)
		}
		return
	}
	if err := s.local.SetLastRemoteModified(ctx, m); err != nil {
		s.log.Warn(ctx, "failed to store remote marker", "error", err)
	}
}

func digestOf(snap *models.Snapshot) (cryptox.Digest, error) {
	data, err := normalize.EncodeDocument(snap)
	if err != nil {
		return cryptox.Digest{}, err
	}
	return cryptox.Sum(data), nil
}

func (s *Service) closeAdapter(b backends.Adapter) error {
	c, ok := backends.As[io.Closer](b)
	if !ok {
		return nil
	}
	return c.Close()
}
