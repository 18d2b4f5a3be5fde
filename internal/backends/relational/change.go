package relational

import (
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/normalize"
	"github.com/goccy/go-json"
)

// NotifyChannel is the channel the change trigger publishes to.
const NotifyChannel = "discshelf_changes"

// changePayload is the JSON published by the discshelf_notify trigger and
// relayed unchanged by the realtime gateway.
type changePayload struct {
	Table     string         `json:"table"`
	Type      string         `json:"type"`
	OwnerID   string         `json:"owner_id"`
	Record    map[string]any `json:"record"`
	OldRecord map[string]any `json:"old_record"`
}

// decodeChange parses a payload. ok is false for events of other owners or
// other tables than list, and for every event while owner is empty.
func decodeChange(data []byte, list models.ListName, owner string) (backends.Change, bool, error) {
	var p changePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return backends.Change{}, false, fmt.Errorf("%w: change payload: %w", common.ErrMalformedRemote, err)
	}
	if owner == "" || p.Table != tableName(list) || p.OwnerID != owner {
		return backends.Change{}, false, nil
	}

	c := backends.Change{List: list, Type: backends.ChangeType(p.Type)}
	switch c.Type {
	case backends.ChangeInsert, backends.ChangeUpdate:
		rec, err := normalize.Normalize(p.Record)
		if err != nil {
			return backends.Change{}, false, err
		}
		if err := rec.Validate(); err != nil {
			return backends.Change{}, false, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
		}
		rec.State = models.StateConfirmedRemote
		c.Record = rec
	case backends.ChangeDelete:
		id, _ := p.OldRecord["id"].(string)
		if id == "" {
			return backends.Change{}, false, fmt.Errorf("%w: delete without id", common.ErrMalformedRemote)
		}
		c.OldID = id
	default:
		return backends.Change{}, false, fmt.Errorf("%w: unknown change type %q", common.ErrMalformedRemote, p.Type)
	}
	return c, true, nil
}
