package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

var ErrNoFeed = errors.New("backend has no change feed")

// AfterApply observes every merged change.
type AfterApply func(ch backends.Change, out Outcome)

// Live owns one subscription per list while running.
type Live struct {
	feed   backends.ChangeFeed
	merger *Merger
	after  AfterApply
	log    logging.Logger

	mu     sync.Mutex
	unsubs []backends.Unsubscribe
}

func NewLive(feed backends.ChangeFeed, merger *Merger, after AfterApply, log logging.Logger) *Live {
	return &Live{feed: feed, merger: merger, after: after, log: logging.OrNop(log).With("component", "live")}
}

// Start subscribes to every list. It is a no-op when already running. If any
// subscription fails the ones already opened are released.
func (l *Live) Start(ctx context.Context) error {
	if l.feed == nil {
		return ErrNoFeed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubs != nil {
		return nil
	}

	var unsubs []backends.Unsubscribe
	for _, name := range models.Lists {
		u, err := l.feed.Subscribe(ctx, name, l.handle(ctx))
		if err != nil {
			for _, prev := range unsubs {
				prev()
			}
			return fmt.Errorf("subscribe %s: %w", name, err)
		}
		unsubs = append(unsubs, u)
	}
	l.unsubs = unsubs
	l.log.Info(ctx, "live updates started", "subscriptions", len(unsubs))
	return nil
}

func (l *Live) handle(ctx context.Context) backends.Handler {
	return func(ch backends.Change) {
		out := l.merger.Apply(ctx, ch)
		if l.after != nil {
			l.after(ch, out)
		}
	}
}

// Stop releases all subscriptions.
func (l *Live) Stop() {
	l.mu.Lock()
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	if unsubs != nil {
		l.log.Info(context.Background(), "live updates stopped")
	}
}

// Running reports whether subscriptions are open.
func (l *Live) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unsubs != nil
}
