// Package relational implements the relational backend: one row per record
// in PostgreSQL, isolated per owner, with realtime row-change feeds.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/backends/relational/migrations"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/dbx"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Name identifies the backend in configuration and logs.
const Name = "relational"

const (
	DefaultPageSize    = 500
	DefaultRefreshLead = time.Minute
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return gooseUpContext(ctx, db, ".")
}

// Options tunes the adapter.
type Options struct {
	PageSize    int
	RefreshLead time.Duration
}

// Adapter is the relational backend.
type Adapter struct {
	db          *sql.DB
	auth        backends.Authenticator
	pageSize    int
	refreshLead time.Duration
	log         logging.Logger
	now         func() time.Time

	mu      sync.Mutex
	session *backends.Session
	refresh *time.Timer
}

var (
	_ backends.Adapter          = (*Adapter)(nil)
	_ backends.ModifiedReporter = (*Adapter)(nil)
	_ backends.RecordWriter     = (*Adapter)(nil)
)

// Open connects to dsn through the pgx database/sql driver.
func Open(dsn string, auth backends.Authenticator, opts Options, log logging.Logger) (*Adapter, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return New(db, auth, opts, log), nil
}

// New wraps an existing database handle.
func New(db *sql.DB, auth backends.Authenticator, opts Options, log logging.Logger) *Adapter {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = DefaultRefreshLead
	}
	return &Adapter{
		db:          db,
		auth:        auth,
		pageSize:    opts.PageSize,
		refreshLead: opts.RefreshLead,
		log:         logging.OrNop(log).With("backend", Name),
		now:         time.Now,
	}
}

func (a *Adapter) Name() string { return Name }

// Session returns a copy of the current session, or nil when signed out.
func (a *Adapter) Session() *backends.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// OwnerID returns the signed-in owner, or "".
func (a *Adapter) OwnerID() string {
	if s := a.Session(); s != nil {
		return s.OwnerID
	}
	return ""
}

func (a *Adapter) owner() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.session.Valid(a.now()) {
		return "", fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	return a.session.OwnerID, nil
}

// inOwnerTx runs fn in a transaction bound to the signed-in owner.
func (a *Adapter) inOwnerTx(ctx context.Context, fn func(ctx context.Context, rs rowStore, owner string) error) error {
	owner, err := a.owner()
	if err != nil {
		return err
	}
	err = dbx.WithScopedTx(ctx, a.db, nil, dbx.SetLocal(ownerSetting, owner), func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, rowStore{db: tx}, owner)
	})
	return mapPgError(err)
}

// Load reads both lists in pages of the configured size until a short page.
func (a *Adapter) Load(ctx context.Context) (*models.Snapshot, error) {
	snap := models.EmptySnapshot()
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		for _, list := range models.Lists {
			records := []models.Record{}
			for offset := 0; ; offset += a.pageSize {
				page, raw, skipped, err := rs.page(ctx, list, owner, a.pageSize, offset)
				if err != nil {
					return err
				}
				if skipped > 0 {
					a.log.Warn(ctx, "skipped invalid rows", "table", tableName(list), "count", skipped)
				}
				records = append(records, page...)
				a.log.Debug(ctx, "page read", "table", tableName(list), "offset", offset, "rows", raw)
				if raw < a.pageSize {
					break
				}
			}
			snap.SetList(list, records)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("relational load: %w", err)
	}
	return snap, nil
}

// Save replaces the owner's rows with snap: every record is upserted and
// rows absent from snap are deleted, all in one transaction.
func (a *Adapter) Save(ctx context.Context, snap *models.Snapshot) error {
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		for _, list := range models.Lists {
			records := snap.List(list)
			keep := make([]string, 0, len(records))
			for _, rec := range records {
				if err := rs.upsert(ctx, list, owner, rec); err != nil {
					return err
				}
				keep = append(keep, rec.ID)
			}
			n, err := rs.deleteMissing(ctx, list, owner, keep)
			if err != nil {
				return err
			}
			if n > 0 {
				a.log.Debug(ctx, "deleted rows", "table", tableName(list), "count", n)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("relational save: %w", err)
	}
	return nil
}

// RemoteModified returns the owner's last change time.
func (a *Adapter) RemoteModified(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		var err error
		t, err = rs.marker(ctx, owner)
		return err
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("relational marker: %w", err)
	}
	return t, nil
}

// Insert stores r and returns it with the server assigned id.
func (a *Adapter) Insert(ctx context.Context, list models.ListName, r models.Record) (models.Record, error) {
	var id string
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		var err error
		id, err = rs.insert(ctx, list, owner, r)
		r.OwnerID = owner
		return err
	})
	if err != nil {
		return models.Record{}, fmt.Errorf("relational insert: %w", err)
	}
	r.ID = id
	r.State = models.StateConfirmedRemote
	return r, nil
}

func (a *Adapter) Update(ctx context.Context, list models.ListName, r models.Record) error {
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		return rs.update(ctx, list, owner, r)
	})
	if err != nil {
		return fmt.Errorf("relational update: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, list models.ListName, id string) error {
	err := a.inOwnerTx(ctx, func(ctx context.Context, rs rowStore, owner string) error {
		return rs.delete(ctx, list, owner, id)
	})
	if err != nil {
		return fmt.Errorf("relational delete: %w", err)
	}
	return nil
}

// SignIn runs the authenticator and schedules the token refresh.
func (a *Adapter) SignIn(ctx context.Context) (*backends.Session, error) {
	if a.auth == nil {
		return nil, fmt.Errorf("%w: no authenticator", common.ErrNotConfigured)
	}
	s, err := a.auth.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	s, err = completeSession(s)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.session = s
	a.scheduleRefreshLocked()
	a.mu.Unlock()

	a.log.Info(ctx, "signed in", "owner", s.OwnerID, "expires_at", s.ExpiresAt)
	out := *s
	return &out, nil
}

// SignOut drops the session and cancels the refresh timer.
func (a *Adapter) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.stopRefreshLocked()
	a.session = nil
	a.mu.Unlock()
	a.log.Info(ctx, "signed out")
	return nil
}

// Migrate applies the schema to the backend database.
func (a *Adapter) Migrate(ctx context.Context) error {
	return RunMigrations(ctx, a.db)
}

// Close signs out locally and closes the database handle.
func (a *Adapter) Close() error {
	_ = a.SignOut(context.Background())
	return a.db.Close()
}
