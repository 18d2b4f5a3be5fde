package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/dbx"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/normalize"
	"github.com/goccy/go-json"
)

var (
	rowColumns   = normalize.RowSchema.WireNames()
	selectList   = strings.Join(rowColumns, ", ")
	upsertSQL    = buildUpsert()
	insertSQL    = buildInsert()
	updateSQL    = buildUpdate()
	immutableCol = map[string]bool{"id": true, "owner_id": true, "created_at": true}
)

// tableName maps a list onto its table. Table names are never taken from
// user input.
func tableName(list models.ListName) string {
	if list == models.ListWantlist {
		return "wantlist"
	}
	return "collection"
}

func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ", ")
}

// The statements below use %[1]s for the table name.

func buildUpsert() string {
	var set []string
	for _, c := range rowColumns {
		if !immutableColumn(c) {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	return fmt.Sprintf(`INSERT INTO %%[1]s (%s) VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET %s
		WHERE %%[1]s.owner_id = EXCLUDED.owner_id`,
		selectList, placeholders(1, len(rowColumns)), strings.Join(set, ", "))
}

func buildInsert() string {
	cols := rowColumns[1:]
	return fmt.Sprintf(`INSERT INTO %%[1]s (%s) VALUES (%s) RETURNING id`,
		strings.Join(cols, ", "), placeholders(1, len(cols)))
}

func buildUpdate() string {
	var set []string
	n := 1
	for _, c := range rowColumns {
		if immutableColumn(c) {
			continue
		}
		set = append(set, fmt.Sprintf("%s = $%d", c, n))
		n++
	}
	return fmt.Sprintf(`UPDATE %%[1]s SET %s WHERE id = $%d AND owner_id = $%d`,
		strings.Join(set, ", "), n, n+1)
}

func immutableColumn(c string) bool { return immutableCol[c] }

// rowStore runs the per-owner statements. Every transaction binds the owner
// first so row level security applies to everything that follows. The bound
// owner is chosen by this client, so the policies do not hold against a client
// that sets app.owner_id itself.
type rowStore struct {
	db dbx.DBTX
}

// ownerSetting is the parameter the row level security policies compare
// owner_id against.
const ownerSetting = "app.owner_id"

// page reads one page. It returns the decoded records and the raw row count,
// which tells the caller whether this was the last page.
func (r rowStore) page(ctx context.Context, list models.ListName, owner string, limit, offset int) ([]models.Record, int, int, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at, id LIMIT $2 OFFSET $3`,
		selectList, tableName(list))
	rows, err := r.db.QueryContext(ctx, query, owner, limit, offset)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	raw, skipped := 0, 0
	for rows.Next() {
		raw++
		var sr scannedRow
		if err := rows.Scan(sr.targets()...); err != nil {
			return nil, 0, 0, fmt.Errorf("db error: scan: %w", err)
		}
		rec, err := normalize.Normalize(sr.fields())
		if err != nil || rec.Validate() != nil {
			skipped++
			continue
		}
		rec.State = models.StateConfirmedRemote
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("db error: %w", err)
	}
	return out, raw, skipped, nil
}

// upsert writes rec. A conflicting id owned by someone else affects no rows
// and is reported as unauthorized.
func (r rowStore) upsert(ctx context.Context, list models.ListName, owner string, rec models.Record) error {
	args, err := rowArgs(rec, owner)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(upsertSQL, tableName(list)), args...)
	if err != nil {
		return fmt.Errorf("db error: upsert %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: record %s belongs to another owner", common.ErrUnauthorized, rec.ID)
	}
	return nil
}

// deleteMissing removes the owner's rows whose id is not in keep.
func (r rowStore) deleteMissing(ctx context.Context, list models.ListName, owner string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	ids, err := json.Marshal(keep)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1
		AND id NOT IN (SELECT jsonb_array_elements_text($2::jsonb))`, tableName(list))
	res, err := r.db.ExecContext(ctx, query, owner, string(ids))
	if err != nil {
		return 0, fmt.Errorf("db error: delete missing: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// insert stores rec under a server generated id and returns that id.
func (r rowStore) insert(ctx context.Context, list models.ListName, owner string, rec models.Record) (string, error) {
	args, err := rowArgs(rec, owner)
	if err != nil {
		return "", err
	}
	var id string
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(insertSQL, tableName(list)), args[1:]...).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("db error: insert: %w", err)
	}
	return id, nil
}

func (r rowStore) update(ctx context.Context, list models.ListName, owner string, rec models.Record) error {
	args, err := rowArgs(rec, owner)
	if err != nil {
		return err
	}
	var set []any
	for i, c := range rowColumns {
		if !immutableColumn(c) {
			set = append(set, args[i])
		}
	}
	set = append(set, rec.ID, owner)
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(updateSQL, tableName(list)), set...)
	if err != nil {
		return fmt.Errorf("db error: update %s: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: record %s", common.ErrNotFound, rec.ID)
	}
	return nil
}

func (r rowStore) delete(ctx context.Context, list models.ListName, owner, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND owner_id = $2`, tableName(list))
	if _, err := r.db.ExecContext(ctx, query, id, owner); err != nil {
		return fmt.Errorf("db error: delete %s: %w", id, err)
	}
	return nil
}

// marker returns the owner's last change time, or zero when nothing was
// ever written.
func (r rowStore) marker(ctx context.Context, owner string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx, `SELECT modified_at FROM sync_markers WHERE owner_id = $1`, owner).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("db error: marker: %w", err)
	}
	return t, nil
}

// rowArgs renders rec as statement arguments in rowColumns order.
func rowArgs(rec models.Record, owner string) ([]any, error) {
	rec.OwnerID = owner
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m := normalize.Denormalize(rec, normalize.RowSchema)
	args := make([]any, 0, len(rowColumns))
	for _, c := range rowColumns {
		v := m[c]
		if c == "tags" || c == "attributes" {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", c, err)
			}
			if string(data) == "null" {
				data = []byte("[]")
			}
			v = string(data)
		}
		args = append(args, v)
	}
	return args, nil
}

// scannedRow receives one row in rowColumns order.
type scannedRow struct {
	id, artist, title, genre, label, edition, notes, format, coverURL, ownerID string
	year                                                                     sql.NullInt64
	tags, attributes                                                         []byte
	createdAt                                                                time.Time
}

func (s *scannedRow) targets() []any {
	byColumn := map[string]any{
		"id": &s.id, "artist": &s.artist, "title": &s.title, "year": &s.year,
		"genre": &s.genre, "label": &s.label, "edition": &s.edition, "notes": &s.notes,
		"tags": &s.tags, "attributes": &s.attributes, "format": &s.format,
		"cover_url": &s.coverURL, "created_at": &s.createdAt, "owner_id": &s.ownerID,
	}
	out := make([]any, len(rowColumns))
	for i, c := range rowColumns {
		out[i] = byColumn[c]
	}
	return out
}

// fields returns the row keyed by column name, ready for normalize.Normalize.
func (s *scannedRow) fields() map[string]any {
	m := map[string]any{
		"id": s.id, "artist": s.artist, "title": s.title,
		"genre": s.genre, "label": s.label, "edition": s.edition, "notes": s.notes,
		"format": s.format, "cover_url": s.coverURL, "created_at": s.createdAt.UTC(),
		"owner_id": s.ownerID,
	}
	if s.year.Valid {
		m["year"] = s.year.Int64
	}
	if len(s.tags) > 0 {
		m["tags"] = json.RawMessage(s.tags)
	}
	if len(s.attributes) > 0 {
		m["attributes"] = json.RawMessage(s.attributes)
	}
	return m
}
