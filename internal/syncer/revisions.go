package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// Revisions lists stored versions of the remote document, newest first as
// the backend reports them. The sync status is not touched.
func (s *Service) Revisions(ctx context.Context) ([]backends.Revision, error) {
	rl, err := s.revisionLister()
	if err != nil {
		return nil, err
	}
	var revs []backends.Revision
	err = s.guard(ctx, "revisions", func() error {
		var err error
		revs, err = rl.Revisions(ctx)
		return err
	})
	if err != nil {
		return nil, s.revisionFailed(ctx, err)
	}
	return revs, nil
}

// RestoreRevision replaces the local collection with revision id. Nothing is
// written remotely until the next save.
func (s *Service) RestoreRevision(ctx context.Context, id string) (*models.Snapshot, error) {
	rl, err := s.revisionLister()
	if err != nil {
		return nil, err
	}
	var snap *models.Snapshot
	err = s.guard(ctx, "restore", func() error {
		var err error
		snap, err = rl.LoadRevision(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.revisionFailed(ctx, err)
	}
	if snap == nil {
		snap = models.EmptySnapshot()
	}
	s.coll.Replace(snap)
	s.persist(ctx)
	s.log.Info(ctx, "revision restored locally", "revision", id, "items", snap.Count())
	return snap.Clone(), nil
}

func (s *Service) revisionLister() (backends.RevisionLister, error) {
	b := s.adapter()
	if b == nil {
		return nil, s.notConfigured()
	}
	rl, ok := backends.As[backends.RevisionLister](b)
	if !ok {
		return nil, fmt.Errorf("%w: %s keeps no revisions", common.ErrUnsupported, b.Name())
	}
	return rl, nil
}

func (s *Service) revisionFailed(ctx context.Context, err error) error {
	if common.Kind(err) == common.KindUnauthorized {
		s.localSignOut(ctx)
	}
	return err
}
