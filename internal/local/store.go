// Package local persists the snapshot and a few user settings on this device
// in a SQLite database, so the app works offline and survives restarts.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/dbx"
	"github.com/dmitrijs2005/discshelf/internal/local/migrations"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/goccy/go-json"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Persisted keys.
const (
	KeyCollection         = "collection"
	KeyWantlist           = "wantlist"
	KeyLastUpdated        = "last_updated"
	KeyBackend            = "backend"
	KeySyncMode           = "sync_mode"
	KeyFormatView         = "format_view"
	KeyLastRemoteModified = "last_remote_modified"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// Store is the local persistence adapter.
type Store struct {
	db *sql.DB
	kv *KV
}

// Open opens (creating when needed) the database at dsn and migrates it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, kv: NewKV(db)}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadSnapshot returns the persisted snapshot; an untouched database yields an
// empty one. Record states survive, so unconfirmed records stay pending.
func (s *Store) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	snap := models.EmptySnapshot()
	for _, name := range models.Lists {
		raw, err := s.kv.Get(ctx, listKey(name))
		if err != nil {
			return nil, err
		}
		if raw == nil {
			continue
		}
		var records []models.Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if records == nil {
			records = []models.Record{}
		}
		snap.SetList(name, records)
	}

	raw, err := s.kv.Get(ctx, KeyLastUpdated)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		t, err := time.Parse(time.RFC3339Nano, string(raw))
		if err == nil {
			snap.LastUpdated = t
		}
	}
	return snap, nil
}

// SaveSnapshot persists both lists atomically.
func (s *Store) SaveSnapshot(ctx context.Context, snap *models.Snapshot) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		kv := NewKV(tx)
		for _, name := range models.Lists {
			records := snap.List(name)
			if records == nil {
				records = []models.Record{}
			}
			data, err := json.Marshal(records)
			if err != nil {
				return fmt.Errorf("encode %s: %w", name, err)
			}
			if err := kv.Set(ctx, listKey(name), data); err != nil {
				return err
			}
		}
		if snap.LastUpdated.IsZero() {
			return kv.Delete(ctx, KeyLastUpdated)
		}
		return kv.Set(ctx, KeyLastUpdated, []byte(snap.LastUpdated.UTC().Format(time.RFC3339Nano)))
	})
}

// Setting returns a persisted scalar, or def when it was never set.
func (s *Store) Setting(ctx context.Context, key, def string) (string, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return def, nil
	}
	return string(raw), nil
}

// SetSetting persists a scalar.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.kv.Set(ctx, key, []byte(value))
}

// LastRemoteModified returns the remote marker observed at the last
// successful load or save, or zero.
func (s *Store) LastRemoteModified(ctx context.Context) (time.Time, error) {
	raw, err := s.kv.Get(ctx, KeyLastRemoteModified)
	if err != nil || raw == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", KeyLastRemoteModified, err)
	}
	return t, nil
}

// SetLastRemoteModified records the marker; zero clears it.
func (s *Store) SetLastRemoteModified(ctx context.Context, t time.Time) error {
	if t.IsZero() {
		return s.kv.Delete(ctx, KeyLastRemoteModified)
	}
	return s.kv.Set(ctx, KeyLastRemoteModified, []byte(t.UTC().Format(time.RFC3339Nano)))
}

func listKey(name models.ListName) string {
	if name == models.ListWantlist {
		return KeyWantlist
	}
	return KeyCollection
}
