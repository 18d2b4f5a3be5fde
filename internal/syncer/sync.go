package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/conflict"
	"github.com/dmitrijs2005/discshelf/internal/cryptox"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
)

// Load pulls the remote snapshot and replaces the collection with it.
// Concurrent calls share one request.
func (s *Service) Load(ctx context.Context) (*models.Snapshot, error) {
	v, err, shared := s.loads.Do("load", func() (any, error) {
		return s.load(ctx)
	})
	if shared {
		s.log.Debug(ctx, "load coalesced")
	}
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot).Clone(), nil
}

func (s *Service) load(ctx context.Context) (*models.Snapshot, error) {
	b := s.adapter()
	if b == nil {
		return nil, s.notConfigured()
	}
	if err := s.state.Transition(syncstate.StatusLoading, "loading from "+b.Name()); err != nil {
		return nil, err
	}

	var snap *models.Snapshot
	err := s.guard(ctx, "load", func() error {
		var err error
		snap, err = b.Load(ctx)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "load", err)
	}
	if snap == nil {
		snap = models.EmptySnapshot()
	}

	s.coll.Replace(snap)
	s.persist(ctx)
	s.rememberRemote(ctx, b)

	d, derr := digestOf(snap)
	s.mu.Lock()
	s.pending = nil
	if derr == nil {
		s.lastSaved = d
	}
	s.mu.Unlock()

	_ = s.state.Transition(syncstate.StatusSynced, fmt.Sprintf("loaded %d records", snap.Count()))
	s.log.Info(ctx, "loaded", "backend", b.Name(), "items", snap.Count())
	return snap, nil
}

// Save pushes the collection unless the remote changed since this device
// last saw it, in which case it fails with *conflict.Error and the status
// becomes conflict. Saving an unchanged snapshot again is a no-op, and
// concurrent saves of the same content share one write.
func (s *Service) Save(ctx context.Context) error {
	return s.save(ctx, false)
}

// ForceSave overwrites the remote without the conflict check.
func (s *Service) ForceSave(ctx context.Context) error {
	return s.save(ctx, true)
}

func (s *Service) save(ctx context.Context, force bool) error {
	b := s.adapter()
	if b == nil {
		return s.notConfigured()
	}
	snap := s.coll.Snapshot()
	d, err := digestOf(snap)
	if err != nil {
		return fmt.Errorf("digest snapshot: %w", err)
	}

	key := d.String()
	if force {
		key = "force:" + key
	}
	_, err, shared := s.saves.Do(key, func() (any, error) {
		return nil, s.doSave(ctx, b, snap, d, force)
	})
	if shared {
		s.log.Debug(ctx, "save coalesced", "digest", d.Short())
	}
	return err
}

func (s *Service) doSave(ctx context.Context, b backends.Adapter, snap *models.Snapshot, d cryptox.Digest, force bool) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if !force && s.alreadySaved(d) {
		s.log.Debug(ctx, "snapshot unchanged since last sync", "digest", d.Short())
		return nil
	}
	if err := s.state.Transition(syncstate.StatusSaving, "saving to "+b.Name()); err != nil {
		return err
	}

	if !force {
		if err := s.checkConflict(ctx, b, snap); err != nil {
			return s.fail(ctx, "save", err)
		}
	}

	if err := s.guard(ctx, "save", func() error { return b.Save(ctx, snap) }); err != nil {
		return s.fail(ctx, "save", err)
	}

	s.rememberRemote(ctx, b)
	s.coll.ConfirmAll(snap)
	s.persist(ctx)

	s.mu.Lock()
	s.lastSaved = d
	s.pending = nil
	s.mu.Unlock()

	_ = s.state.Transition(syncstate.StatusSynced, fmt.Sprintf("saved %d records", snap.Count()))
	s.log.Info(ctx, "saved", "backend", b.Name(), "items", snap.Count(), "forced", force, "digest", d.Short())
	return nil
}

func (s *Service) alreadySaved(d cryptox.Digest) bool {
	s.mu.Lock()
	last := s.lastSaved
	s.mu.Unlock()
	return !last.IsZero() && last == d && s.state.Status() == syncstate.StatusSynced
}

func (s *Service) checkConflict(ctx context.Context, b backends.Adapter, snap *models.Snapshot) error {
	mr, ok := backends.As[backends.ModifiedReporter](b)
	if !ok {
		return nil
	}
	last, err := s.local.LastRemoteModified(ctx)
	if err != nil {
		s.log.Warn(ctx, "unreadable remote marker, treating device as never synced", "error", err)
	}

	err = s.guard(ctx, "conflict-check", func() error {
		_, err := s.detector.Check(ctx, mr, b, last, snap)
		return err
	})
	if errors.Is(err, common.ErrUnsupported) {
		return nil
	}
	var ce *conflict.Error
	if errors.As(err, &ce) {
		s.mu.Lock()
		s.pending = ce
		s.mu.Unlock()
		s.log.Warn(ctx, "save blocked by newer remote",
			"local_items", ce.Local.Items, "remote_items", ce.Remote.Items, "remote_modified", ce.Remote.Modified)
	}
	return err
}

// Resolve settles a conflict: KeepLocal overwrites the remote, PullRemote
// discards local changes and loads.
func (s *Service) Resolve(ctx context.Context, r conflict.Resolution) error {
	switch r {
	case conflict.KeepLocal:
		return s.ForceSave(ctx)
	case conflict.PullRemote:
		_, err := s.Load(ctx)
		return err
	default:
		return fmt.Errorf("%w: unknown resolution %d", common.ErrValidation, r)
	}
}
