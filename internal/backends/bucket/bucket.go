// Package bucket implements the key-value bucket backend: the whole snapshot
// lives as one JSON document under a fixed key and is replaced on every save.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/normalize"
)

// Name identifies the backend in configuration and logs.
const Name = "bucket"

// ObjectStore reads and writes the snapshot document. Get returns
// common.ErrNotFound when nothing has been stored yet.
type ObjectStore interface {
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte) error
	Modified(ctx context.Context) (time.Time, error)
}

// Adapter is the bucket backend.
type Adapter struct {
	store ObjectStore
	log   logging.Logger
}

var (
	_ backends.Adapter          = (*Adapter)(nil)
	_ backends.ModifiedReporter = (*Adapter)(nil)
)

// New returns an adapter over store.
func New(store ObjectStore, log logging.Logger) *Adapter {
	return &Adapter{store: store, log: logging.OrNop(log).With("backend", Name)}
}

func (a *Adapter) Name() string { return Name }

// Load fetches the document. A missing key or an empty body is an empty
// snapshot. A body that cannot be parsed is logged and also treated as empty.
func (a *Adapter) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := a.store.Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		a.log.Info(ctx, "no remote document yet")
		return models.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("bucket load: %w", err)
	}

	snap, skipped, err := normalize.DecodeDocument(data)
	if err != nil {
		a.log.Warn(ctx, "remote document is malformed, using empty snapshot", "error", err, "bytes", len(data))
		return models.EmptySnapshot(), nil
	}
	if skipped > 0 {
		a.log.Warn(ctx, "skipped invalid records", "count", skipped)
	}
	a.log.Debug(ctx, "snapshot loaded", "items", snap.Count())
	return snap, nil
}

// Save replaces the document with snap.
func (a *Adapter) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := normalize.EncodeDocument(snap)
	if err != nil {
		return fmt.Errorf("bucket encode: %w", err)
	}
	if err := a.store.Put(ctx, data); err != nil {
		return fmt.Errorf("bucket save: %w", err)
	}
	a.log.Debug(ctx, "snapshot saved", "items", snap.Count(), "bytes", len(data))
	return nil
}

// RemoteModified returns the object's last-modified time, or zero when the
// object does not exist. A marker that cannot be parsed is reported as
// unsupported so callers skip the comparison.
func (a *Adapter) RemoteModified(ctx context.Context) (time.Time, error) {
	t, err := a.store.Modified(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return time.Time{}, nil
	}
	if errors.Is(err, common.ErrMalformedRemote) {
		a.log.Warn(ctx, "remote marker is malformed, skipping comparison", "error", err)
		return time.Time{}, fmt.Errorf("%w: unreadable marker", common.ErrUnsupported)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("bucket modified: %w", err)
	}
	return t, nil
}

// SignIn is a no-op: access is granted by URL or static credentials.
func (a *Adapter) SignIn(context.Context) (*backends.Session, error) { return nil, nil }

// SignOut is a no-op.
func (a *Adapter) SignOut(context.Context) error { return nil }
