// Package collection holds the in-memory collection and wantlist shared by
// the sync service, the realtime merger and the CLI.
package collection

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// Listener is told the new version after every change.
type Listener func(version uint64)

// Store guards the current snapshot. Callers always receive copies.
type Store struct {
	mu        sync.RWMutex
	snap      *models.Snapshot
	version   uint64
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{snap: models.EmptySnapshot(), listeners: make(map[int]Listener), now: time.Now}
}

// Replace swaps in a copy of snap, keeping its LastUpdated. A nil snap
// empties the store.
func (s *Store) Replace(snap *models.Snapshot) {
	next := models.EmptySnapshot()
	if snap != nil {
		next = snap.Clone()
	}
	s.mutate(func(cur *models.Snapshot) bool {
		*cur = *next
		return true
	}, false)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Version increases on every change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// List returns a copy of one list.
func (s *Store) List(name models.ListName) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.snap.List(name)
	out := make([]models.Record, len(src))
	for i, r := range src {
		out[i] = r.Clone()
	}
	return out
}

// ByFormat returns the records of a list in format f. An empty f returns
// the whole list.
func (s *Store) ByFormat(name models.ListName, f models.Format) []models.Record {
	all := s.List(name)
	if f == "" {
		return all
	}
	out := all[:0]
	for _, r := range all {
		if r.Format == f {
			out = append(out, r)
		}
	}
	return out
}

// Get finds a record by id.
func (s *Store) Get(name models.ListName, id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.snap.List(name), id); i >= 0 {
		return s.snap.List(name)[i].Clone(), true
	}
	return models.Record{}, false
}

// Add appends r after validating it. Identifiers are unique per list.
func (s *Store) Add(name models.ListName, r models.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()
	r.Tags = models.NormalizeTags(r.Tags)
	var err error
	s.Mutate(func(cur *models.Snapshot) bool {
		list := cur.List(name)
		if indexOf(list, r.ID) >= 0 {
			err = fmt.Errorf("%w: duplicate id %s", common.ErrValidation, r.ID)
			return false
		}
		cur.SetList(name, append(list, r))
		return true
	})
	return err
}

// Update applies edit to the record with edit.ID and returns the result.
// The id, creation time and owner are preserved.
func (s *Store) Update(name models.ListName, edit models.Record) (models.Record, error) {
	if err := edit.Validate(); err != nil {
		return models.Record{}, err
	}
	var (
		out models.Record
		err error
	)
	s.Mutate(func(cur *models.Snapshot) bool {
		list := cur.List(name)
		i := indexOf(list, edit.ID)
		if i < 0 {
			err = fmt.Errorf("%w: record %s", common.ErrNotFound, edit.ID)
			return false
		}
		list[i] = list[i].WithEdits(edit)
		out = list[i].Clone()
		return true
	})
	return out, err
}

// Remove deletes the record with id.
func (s *Store) Remove(name models.ListName, id string) error {
	var err error
	s.Mutate(func(cur *models.Snapshot) bool {
		list := cur.List(name)
		i := indexOf(list, id)
		if i < 0 {
			err = fmt.Errorf("%w: record %s", common.ErrNotFound, id)
			return false
		}
		cur.SetList(name, append(list[:i:i], list[i+1:]...))
		return true
	})
	return err
}

// ConfirmAll marks every record that snap contains as confirmed by the
// backend. Records added after snap was taken stay pending. LastUpdated is
// left alone since the content did not change.
func (s *Store) ConfirmAll(snap *models.Snapshot) {
	s.mutate(func(cur *models.Snapshot) bool {
		changed := false
		for _, name := range models.Lists {
			saved := make(map[string]struct{}, len(snap.List(name)))
			for _, r := range snap.List(name) {
				saved[r.ID] = struct{}{}
			}
			list := cur.List(name)
			for i := range list {
				if _, ok := saved[list[i].ID]; ok && list[i].State != models.StateConfirmedRemote {
					list[i].State = models.StateConfirmedRemote
					changed = true
				}
			}
		}
		return changed
	}, false)
}

// Mutate runs fn under the write lock. When fn reports a change the version
// is bumped, LastUpdated is stamped and listeners are notified after the
// lock is released. fn must not call back into the store.
func (s *Store) Mutate(fn func(cur *models.Snapshot) bool) {
	s.mutate(fn, true)
}

func (s *Store) mutate(fn func(cur *models.Snapshot) bool, stamp bool) {
	s.mu.Lock()
	if !fn(s.snap) {
		s.mu.Unlock()
		return
	}
	s.version++
	if stamp {
		s.snap.LastUpdated = s.now().UTC()
	}
	v := s.version
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(v)
	}
}

// OnChange registers l and returns a function that removes it.
func (s *Store) OnChange(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// IndexOf returns the position of id in list, or -1.
func IndexOf(list []models.Record, id string) int {
	return indexOf(list, id)
}

func indexOf(list []models.Record, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
