package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
)

// AddRecord stores r optimistically with a local id and persists it. In live
// mode the row is also inserted remotely and the optimistic copy is swapped
// for the confirmed one. Enrichment runs afterwards in the background.
func (s *Service) AddRecord(ctx context.Context, list models.ListName, r models.Record) (models.Record, error) {
	r = r.Clone()
	r.ID = models.NewLocalID()
	r.Artist = strings.TrimSpace(r.Artist)
	r.Title = strings.TrimSpace(r.Title)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.State = models.StatePendingLocal
	if rep, ok := backends.As[ownerReporter](s.adapter()); ok {
		r.OwnerID = rep.OwnerID()
	}

	if err := s.coll.Add(list, r); err != nil {
		return models.Record{}, err
	}
	s.persist(ctx)

	if w, ok := s.liveWriter(); ok {
		if confirmed, err := s.pushInsert(ctx, w, list, r); err == nil {
			r = confirmed
		}
	}
	s.enrichLater(list, r)
	return r, nil
}

// UpdateRecord applies edit locally. The id and creation time never change.
func (s *Service) UpdateRecord(ctx context.Context, list models.ListName, edit models.Record) (models.Record, error) {
	out, err := s.coll.Update(list, edit)
	if err != nil {
		return models.Record{}, err
	}
	s.persist(ctx)

	if w, ok := s.liveWriter(); ok && !models.IsLocalID(out.ID) {
		err := s.push(ctx, "update", func() error { return w.Update(ctx, list, out) })
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// DeleteRecord removes the record locally and, in live mode, remotely.
func (s *Service) DeleteRecord(ctx context.Context, list models.ListName, id string) error {
	if err := s.coll.Remove(list, id); err != nil {
		return err
	}
	s.persist(ctx)

	if w, ok := s.liveWriter(); ok && !models.IsLocalID(id) {
		return s.push(ctx, "delete", func() error { return w.Delete(ctx, list, id) })
	}
	return nil
}

// FindDuplicates returns stored records that look like artist/title.
func (s *Service) FindDuplicates(artist, title string) []Candidate {
	candidate := models.Record{Artist: artist, Title: title}
	var out []Candidate
	for _, name := range models.Lists {
		for _, r := range s.coll.List(name) {
			if s.matcher.SameRelease(r, candidate) {
				out = append(out, Candidate{List: name, Record: r})
			}
		}
	}
	return out
}

func (s *Service) liveWriter() (backends.RecordWriter, bool) {
	if !s.Live() {
		return nil, false
	}
	return backends.As[backends.RecordWriter](s.adapter())
}

func (s *Service) pushInsert(ctx context.Context, w backends.RecordWriter, list models.ListName, r models.Record) (models.Record, error) {
	var confirmed models.Record
	err := s.push(ctx, "insert", func() error {
		var err error
		confirmed, err = w.Insert(ctx, list, r)
		return err
	})
	if err != nil {
		return r, err
	}
	s.merger.Confirm(ctx, list, r.ID, confirmed)
	s.persist(ctx)
	confirmed.State = models.StateConfirmedRemote
	return confirmed, nil
}

func (s *Service) push(ctx context.Context, op string, fn func() error) error {
	if err := s.state.Transition(syncstate.StatusSaving, op+" on "+s.BackendName()); err != nil {
		return err
	}
	if err := s.guard(ctx, op, fn); err != nil {
		return s.fail(ctx, op, err)
	}
	// Row writes advance the remote marker.
	s.rememberRemote(ctx, s.adapter())
	_ = s.state.Transition(syncstate.StatusSynced, op+" confirmed")
	return nil
}

func (s *Service) enrichLater(list models.ListName, r models.Record) {
	if !s.enricher.Enabled() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		out, changed := s.enricher.Run(s.bg, r)
		if !changed {
			return
		}
		if _, err := s.coll.Update(list, out); err != nil {
			s.log.Debug(s.bg, "enriched record gone", "id", r.ID, "error", err)
			return
		}
		s.persist(s.bg)
	}()
}

// Get returns a record by id.
func (s *Service) Get(list models.ListName, id string) (models.Record, error) {
	r, ok := s.coll.Get(list, id)
	if !ok {
		return models.Record{}, fmt.Errorf("%w: record %s", common.ErrNotFound, id)
	}
	return r, nil
}
