// Package normalize maps records between the in-memory model and the shapes
// used by remote backends. A single field table drives both directions:
// inbound keys (legacy aliases and row column names) are rewritten to
// canonical names, and outbound records keep only the fields the destination
// schema knows.
package normalize

import "sort"

type field struct {
	canonical string
	column    string
	legacy    []string
}

// fieldTable is the only place field names are mapped. Canonical names match
// the json tags of models.Record.
var fieldTable = []field{
	{canonical: "id", column: "id"},
	{canonical: "artist", column: "artist", legacy: []string{"artistName"}},
	{canonical: "title", column: "title", legacy: []string{"album", "albumTitle"}},
	{canonical: "year", column: "year", legacy: []string{"releaseYear"}},
	{canonical: "genre", column: "genre"},
	{canonical: "label", column: "label", legacy: []string{"recordLabel", "record_label"}},
	{canonical: "edition", column: "edition", legacy: []string{"version"}},
	{canonical: "notes", column: "notes"},
	{canonical: "tags", column: "tags"},
	{canonical: "attributes", column: "attributes", legacy: []string{"conditions"}},
	{canonical: "format", column: "format"},
	{canonical: "coverUrl", column: "cover_url", legacy: []string{"cover", "coverArt"}},
	{canonical: "createdAt", column: "created_at", legacy: []string{"addedAt", "dateAdded"}},
	{canonical: "ownerId", column: "owner_id", legacy: []string{"user_id", "userId"}},
}

var toCanonical = func() map[string]string {
	m := make(map[string]string)
	for _, f := range fieldTable {
		m[f.canonical] = f.canonical
		m[f.column] = f.canonical
		for _, l := range f.legacy {
			m[l] = f.canonical
		}
	}
	return m
}()

// Canonical returns the canonical field name for key, which may be canonical
// already, a row column name, or a legacy alias.
func Canonical(key string) (string, bool) {
	c, ok := toCanonical[key]
	return c, ok
}

// Schema describes the fields a destination accepts and their wire names.
type Schema struct {
	name   string
	fields []string          // canonical names, table order
	wire   map[string]string // canonical -> wire
}

// DocumentSchema is the record shape inside snapshot documents (bucket and
// document-storage backends). Ownership is implied by the document location.
var DocumentSchema = newSchema("document", false, "ownerId")

// RowSchema is the column set of the relational backend.
var RowSchema = newSchema("row", true)

func newSchema(name string, columns bool, exclude ...string) Schema {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		skip[e] = struct{}{}
	}
	s := Schema{name: name, wire: make(map[string]string)}
	for _, f := range fieldTable {
		if _, ok := skip[f.canonical]; ok {
			continue
		}
		s.fields = append(s.fields, f.canonical)
		if columns {
			s.wire[f.canonical] = f.column
		} else {
			s.wire[f.canonical] = f.canonical
		}
	}
	return s
}

// Name identifies the schema in logs.
func (s Schema) Name() string { return s.name }

// WireNames lists the wire names of the schema in table order.
func (s Schema) WireNames() []string {
	out := make([]string, 0, len(s.fields))
	for _, c := range s.fields {
		out = append(out, s.wire[c])
	}
	return out
}

// Accepts reports whether the schema carries the canonical field.
func (s Schema) Accepts(canonical string) bool {
	_, ok := s.wire[canonical]
	return ok
}

// LegacyAliases returns every alias that Normalize rewrites, sorted. Used by
// diagnostics and tests.
func LegacyAliases() []string {
	var out []string
	for _, f := range fieldTable {
		out = append(out, f.legacy...)
	}
	sort.Strings(out)
	return out
}
