package normalize

import (
	"bytes"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/goccy/go-json"
)

type document struct {
	Collection  []map[string]any `json:"collection"`
	Wantlist    []map[string]any `json:"wantlist"`
	LastUpdated string           `json:"lastUpdated,omitempty"`
}

// DecodeDocument parses a snapshot document. An empty body yields an empty
// snapshot. A bare JSON array is the legacy shape and becomes the collection
// with an empty wantlist. Records lacking artist or title are skipped and
// counted; a body that is not JSON returns ErrMalformedRemote.
func DecodeDocument(data []byte) (*models.Snapshot, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return models.EmptySnapshot(), 0, nil
	}

	var doc document
	if data[0] == '[' {
		if err := json.Unmarshal(data, &doc.Collection); err != nil {
			return nil, 0, fmt.Errorf("%w: legacy array: %w", common.ErrMalformedRemote, err)
		}
	} else if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}

	snap := models.EmptySnapshot()
	skipped := 0
	for _, name := range models.Lists {
		raw := doc.Collection
		if name == models.ListWantlist {
			raw = doc.Wantlist
		}
		records := make([]models.Record, 0, len(raw))
		for _, item := range raw {
			r, err := Normalize(item)
			if err != nil || r.Validate() != nil {
				skipped++
				continue
			}
			r.State = models.StateConfirmedRemote
			records = append(records, r)
		}
		snap.SetList(name, records)
	}
	if doc.LastUpdated != "" {
		if t, err := time.Parse(time.RFC3339Nano, doc.LastUpdated); err == nil {
			snap.LastUpdated = t
		}
	}
	return snap, skipped, nil
}

// EncodeDocument renders s as {"collection": [...], "wantlist": [...],
// "lastUpdated": ISO8601}. Lists are never emitted as null.
func EncodeDocument(s *models.Snapshot) ([]byte, error) {
	doc := document{
		Collection: denormalizeAll(s.Collection),
		Wantlist:   denormalizeAll(s.Wantlist),
	}
	if !s.LastUpdated.IsZero() {
		doc.LastUpdated = s.LastUpdated.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(doc)
}

func denormalizeAll(records []models.Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		out = append(out, Denormalize(r, DocumentSchema))
	}
	return out
}
