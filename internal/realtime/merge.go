// Package realtime folds row-change events from a live backend into the local
// collection, de-duplicating against records the user added optimistically.
package realtime

import (
	"context"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/collection"
	"github.com/dmitrijs2005/discshelf/internal/fuzzy"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// Outcome says what an event did to the collection.
type Outcome int

const (
	Ignored Outcome = iota
	Appended
	Replaced
	// ReplacedPending means an optimistic local record was matched by artist
	// and title and swapped for the confirmed one.
	ReplacedPending
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Appended:
		return "appended"
	case Replaced:
		return "replaced"
	case ReplacedPending:
		return "replaced-pending"
	case Removed:
		return "removed"
	default:
		return "ignored"
	}
}

// Merger applies changes one at a time under the collection lock. Later
// events win over earlier ones.
type Merger struct {
	store   *collection.Store
	matcher fuzzy.Matcher
	log     logging.Logger
}

func NewMerger(store *collection.Store, matcher fuzzy.Matcher, log logging.Logger) *Merger {
	return &Merger{store: store, matcher: matcher, log: logging.OrNop(log).With("component", "realtime")}
}

// Apply merges one change.
func (m *Merger) Apply(ctx context.Context, ch backends.Change) Outcome {
	out := Ignored
	incoming := ch.Record.Clone()
	incoming.State = models.StateConfirmedRemote

	m.store.Mutate(func(cur *models.Snapshot) bool {
		list := cur.List(ch.List)
		switch ch.Type {
		case backends.ChangeInsert:
			list, out = m.insert(list, incoming)
		case backends.ChangeUpdate:
			if i := collection.IndexOf(list, incoming.ID); i >= 0 {
				list[i] = incoming
				out = Replaced
			} else {
				list = append(list, incoming)
				out = Appended
			}
		case backends.ChangeDelete:
			id := ch.OldID
			if id == "" {
				id = ch.Record.ID
			}
			if i := collection.IndexOf(list, id); i >= 0 {
				list = append(list[:i:i], list[i+1:]...)
				out = Removed
			}
		}
		if out == Ignored {
			return false
		}
		cur.SetList(ch.List, list)
		return true
	})

	m.log.Debug(ctx, "change applied", "list", ch.List, "type", ch.Type, "id", incoming.ID, "outcome", out.String())
	return out
}

func (m *Merger) insert(list []models.Record, incoming models.Record) ([]models.Record, Outcome) {
	if i := collection.IndexOf(list, incoming.ID); i >= 0 {
		list[i] = incoming
		return list, Replaced
	}
	for i := range list {
		if list[i].Pending() && m.matcher.SameRelease(list[i], incoming) {
			list[i] = incoming
			return list, ReplacedPending
		}
	}
	return append(list, incoming), Appended
}

// Confirm swaps the optimistic record localID for the backend's copy. If the
// realtime echo already replaced it, the confirmed record is refreshed in
// place instead of being added twice.
func (m *Merger) Confirm(ctx context.Context, list models.ListName, localID string, confirmed models.Record) Outcome {
	confirmed = confirmed.Clone()
	confirmed.State = models.StateConfirmedRemote
	out := Ignored

	m.store.Mutate(func(cur *models.Snapshot) bool {
		records := cur.List(list)
		switch {
		case collection.IndexOf(records, confirmed.ID) >= 0:
			i := collection.IndexOf(records, confirmed.ID)
			records[i] = confirmed
			if j := collection.IndexOf(records, localID); j >= 0 && localID != confirmed.ID {
				records = append(records[:j:j], records[j+1:]...)
			}
			out = Replaced
		case collection.IndexOf(records, localID) >= 0:
			records[collection.IndexOf(records, localID)] = confirmed
			out = ReplacedPending
		default:
			records = append(records, confirmed)
			out = Appended
		}
		cur.SetList(list, records)
		return true
	})

	m.log.Debug(ctx, "record confirmed", "list", list, "local_id", localID, "id", confirmed.ID, "outcome", out.String())
	return out
}
