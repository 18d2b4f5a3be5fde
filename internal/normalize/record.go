package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/goccy/go-json"
)

// Normalize converts a record received from a backend into the in-memory
// model. Aliased keys are rewritten to canonical names (a canonical key wins
// over its alias when both are present) and unknown keys are dropped.
func Normalize(raw map[string]any) (models.Record, error) {
	canon := make(map[string]any, len(raw))
	aliased := make(map[string]any)
	for k, v := range raw {
		c, ok := Canonical(k)
		if !ok {
			continue
		}
		if k == c {
			canon[c] = v
		} else {
			aliased[c] = v
		}
	}
	for c, v := range aliased {
		if _, ok := canon[c]; !ok {
			canon[c] = v
		}
	}
	coerce(canon)

	data, err := json.Marshal(canon)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}
	var r models.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return models.Record{}, fmt.Errorf("%w: %w", common.ErrMalformedRemote, err)
	}
	r.Tags = models.NormalizeTags(r.Tags)
	return r, nil
}

// coerce fixes value types older clients wrote differently: numeric ids,
// years stored as strings, creation times stored as unix milliseconds.
func coerce(m map[string]any) {
	if id, ok := m["id"].(float64); ok {
		m["id"] = strconv.FormatInt(int64(id), 10)
	}
	if y, ok := m["year"].(string); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(y)); err == nil {
			m["year"] = n
		} else {
			delete(m, "year")
		}
	}
	if ms, ok := m["createdAt"].(float64); ok {
		m["createdAt"] = time.UnixMilli(int64(ms)).UTC()
	}
}

// Denormalize converts r into the wire shape of schema. Fields the schema
// does not know, including the local State tag, are never emitted.
func Denormalize(r models.Record, schema Schema) map[string]any {
	values := map[string]any{
		"id":         r.ID,
		"artist":     r.Artist,
		"title":      r.Title,
		"year":       nil,
		"genre":      r.Genre,
		"label":      r.Label,
		"edition":    r.Edition,
		"notes":      r.Notes,
		"tags":       r.Tags,
		"attributes": r.Attributes,
		"format":     string(r.Format),
		"coverUrl":   r.CoverURL,
		"createdAt":  r.CreatedAt,
		"ownerId":    r.OwnerID,
	}
	if r.Year != 0 {
		values["year"] = r.Year
	}

	out := make(map[string]any, len(schema.fields))
	for _, c := range schema.fields {
		out[schema.wire[c]] = values[c]
	}
	return out
}
