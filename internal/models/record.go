// Package models defines the in-memory representation of a media collection:
// records (owned releases and wantlist items) and the snapshot exchanged with
// document-style backends.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/google/uuid"
)

// Format partitions records into the two collection views.
type Format string

const (
	FormatCD    Format = "cd"
	FormatVinyl Format = "vinyl"
)

// ListName names one of the two record lists. It doubles as the table name
// in the relational backend.
type ListName string

const (
	ListCollection ListName = "collection"
	ListWantlist   ListName = "wantlist"
)

// Lists enumerates every list in a stable order.
var Lists = []ListName{ListCollection, ListWantlist}

// RecordState tells an optimistic record from one the backend has confirmed.
type RecordState string

const (
	StatePendingLocal    RecordState = "pending-local"
	StateConfirmedRemote RecordState = "confirmed-remote"
)

// Attribute is a condition/attribute flag from a fixed vocabulary.
type Attribute string

const (
	AttrSealed     Attribute = "sealed"
	AttrSigned     Attribute = "signed"
	AttrFirstPress Attribute = "first-press"
	AttrLimited    Attribute = "limited"
	AttrColored    Attribute = "colored"
	AttrPromo      Attribute = "promo"
	AttrDamaged    Attribute = "damaged"
	AttrRemaster   Attribute = "remaster"
)

var attributes = map[Attribute]struct{}{
	AttrSealed: {}, AttrSigned: {}, AttrFirstPress: {}, AttrLimited: {},
	AttrColored: {}, AttrPromo: {}, AttrDamaged: {}, AttrRemaster: {},
}

// localIDPrefix marks identifiers minted on this device.
const localIDPrefix = "local-"

// Record is one owned or desired physical release.
type Record struct {
	ID         string      `json:"id"`
	Artist     string      `json:"artist"`
	Title      string      `json:"title"`
	Year       int         `json:"year,omitempty"`
	Genre      string      `json:"genre,omitempty"`
	Label      string      `json:"label,omitempty"`
	Edition    string      `json:"edition,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Tags       []string    `json:"tags,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
	Format     Format      `json:"format,omitempty"`
	CoverURL   string      `json:"coverUrl,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	OwnerID    string      `json:"ownerId,omitempty"`

	// State is local bookkeeping; backends never see it.
	State RecordState `json:"state,omitempty"`
}

// NewRecord builds an optimistic record with a locally generated identifier.
func NewRecord(artist, title string, format Format) (Record, error) {
	r := Record{
		ID:        NewLocalID(),
		Artist:    strings.TrimSpace(artist),
		Title:     strings.TrimSpace(title),
		Format:    format,
		CreatedAt: time.Now().UTC(),
		State:     StatePendingLocal,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// NewLocalID returns a time+random identifier for records created while no
// backend is reachable.
func NewLocalID() string {
	return fmt.Sprintf("%s%d-%s", localIDPrefix, time.Now().UnixMilli(), uuid.NewString()[:8])
}

// IsLocalID reports whether id was minted by NewLocalID.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Validate checks the record invariants: artist and title present, attributes
// from the known vocabulary, format known when set.
func (r Record) Validate() error {
	if strings.TrimSpace(r.Artist) == "" {
		return fmt.Errorf("%w: artist is required", common.ErrValidation)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	switch r.Format {
	case "", FormatCD, FormatVinyl:
	default:
		return fmt.Errorf("%w: unknown format %q", common.ErrValidation, r.Format)
	}
	for _, a := range r.Attributes {
		if _, ok := attributes[a]; !ok {
			return fmt.Errorf("%w: unknown attribute %q", common.ErrValidation, a)
		}
	}
	return nil
}

// Pending reports whether the record still waits for backend confirmation.
func (r Record) Pending() bool {
	return r.State == StatePendingLocal
}

// WithEdits returns edit applied on top of r. The identifier, the creation
// time and the owner never change through an edit.
func (r Record) WithEdits(edit Record) Record {
	out := edit.Clone()
	out.ID = r.ID
	out.CreatedAt = r.CreatedAt
	out.OwnerID = r.OwnerID
	out.State = r.State
	out.Tags = NormalizeTags(out.Tags)
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Attributes != nil {
		out.Attributes = append([]Attribute(nil), r.Attributes...)
	}
	return out
}

// NormalizeTags lower-cases and trims tags and drops empties and duplicates,
// keeping first-seen order. It returns nil for an empty result.
func NormalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ParseAttributes converts user input into attributes, rejecting unknown ones.
func ParseAttributes(in []string) ([]Attribute, error) {
	var out []Attribute
	for _, s := range in {
		a := Attribute(strings.ToLower(strings.TrimSpace(s)))
		if a == "" {
			continue
		}
		if _, ok := attributes[a]; !ok {
			return nil, fmt.Errorf("%w: unknown attribute %q", common.ErrValidation, s)
		}
		out = append(out, a)
	}
	return out, nil
}
