package models

import "time"

// Snapshot is the whole collection and wantlist, transferred atomically to
// and from document-style backends.
type Snapshot struct {
	Collection  []Record
	Wantlist    []Record
	LastUpdated time.Time
}

// EmptySnapshot returns a snapshot with empty, non-nil lists.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Collection: []Record{}, Wantlist: []Record{}}
}

// List returns the records of the named list.
func (s *Snapshot) List(name ListName) []Record {
	if name == ListWantlist {
		return s.Wantlist
	}
	return s.Collection
}

// SetList replaces the records of the named list.
func (s *Snapshot) SetList(name ListName, records []Record) {
	if name == ListWantlist {
		s.Wantlist = records
		return
	}
	s.Collection = records
}

// Count returns the number of records across both lists.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Collection) + len(s.Wantlist)
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{LastUpdated: s.LastUpdated}
	out.Collection = cloneRecords(s.Collection)
	out.Wantlist = cloneRecords(s.Wantlist)
	return out
}

// MarkConfirmed flags every record as confirmed by the backend.
func (s *Snapshot) MarkConfirmed() {
	for _, name := range Lists {
		list := s.List(name)
		for i := range list {
			list[i].State = StateConfirmedRemote
		}
	}
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
