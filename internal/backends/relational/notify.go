package relational

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// listenConn is the subset of *pgx.Conn used for LISTEN.
type listenConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// pgConnect is a seam for tests.
var pgConnect = func(ctx context.Context, dsn string) (listenConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NotifyFeed delivers row changes through PostgreSQL LISTEN/NOTIFY. Each
// subscription holds its own connection.
type NotifyFeed struct {
	dsn   string
	owner func() string
	log   logging.Logger
}

var _ backends.ChangeFeed = (*NotifyFeed)(nil)

// NewNotifyFeed returns a feed; owner reports the signed-in owner whose
// events are delivered.
func NewNotifyFeed(dsn string, owner func() string, log logging.Logger) *NotifyFeed {
	if owner == nil {
		owner = func() string { return "" }
	}
	return &NotifyFeed{dsn: dsn, owner: owner, log: logging.OrNop(log).With("feed", "notify")}
}

func (f *NotifyFeed) listen(ctx context.Context) (listenConn, error) {
	conn, err := pgConnect(ctx, f.dsn)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("%w: connect: %w", common.ErrTransient, err))
	}
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, mapPgError(fmt.Errorf("listen: %w", err))
	}
	return conn, nil
}

// Subscribe connects and starts delivering changes of list to h. The first
// connection is made synchronously so configuration errors surface here;
// later failures reconnect with backoff. Subscribing without a signed-in
// owner fails with ErrUnauthorized.
func (f *NotifyFeed) Subscribe(ctx context.Context, list models.ListName, h backends.Handler) (backends.Unsubscribe, error) {
	if f.owner() == "" {
		return nil, fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	conn, err := f.listen(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	go f.run(runCtx, conn, list, h, sub.done)
	f.log.Info(ctx, "subscribed", "table", tableName(list))
	return sub.stop, nil
}

func (f *NotifyFeed) run(ctx context.Context, conn listenConn, list models.ListName, h backends.Handler, done chan struct{}) {
	defer close(done)
	bo := newBackoff(minReconnectDelay, maxReconnectDelay)
	defer func() {
		if conn != nil {
			_ = conn.Close(context.Background())
		}
	}()

	for {
		if conn == nil {
			if !sleepCtx(ctx, bo.next()) {
				return
			}
			c, err := f.listen(ctx)
			if err != nil {
				f.log.Warn(ctx, "reconnect failed", "table", tableName(list), "error", err)
				continue
			}
			conn = c
			bo.reset()
		}

		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.log.Warn(ctx, "notification wait failed", "table", tableName(list), "error", err)
			_ = conn.Close(context.Background())
			conn = nil
			continue
		}

		change, ok, err := decodeChange([]byte(n.Payload), list, f.owner())
		if err != nil {
			f.log.Warn(ctx, "dropping change", "table", tableName(list), "error", err)
			continue
		}
		if ok {
			h(change)
		}
	}
}
