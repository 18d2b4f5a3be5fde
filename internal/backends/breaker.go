package backends

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerSettings tunes the circuit breaker placed in front of an adapter.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// MinRequests and FailureRatio decide when to open the circuit.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings opens after 60% transient failures over at least 5
// calls and lets a trial call through after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// Breaker fails fast while a backend keeps failing with transient errors.
// Authorization, quota and conflict outcomes are answers from a healthy
// backend and never count as failures.
type Breaker struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker[any]
	log   logging.Logger
}

// WithBreaker wraps a.
func WithBreaker(a Adapter, s BreakerSettings, log logging.Logger) *Breaker {
	log = logging.OrNop(log).With("component", "breaker", "backend", a.Name())
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        a.Name(),
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < s.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn(context.Background(), "circuit state changed", "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !common.Retryable(err)
		},
	})
	return &Breaker{inner: a, cb: cb, log: log}
}

// Unwrap returns the decorated adapter.
func (b *Breaker) Unwrap() Adapter { return b.inner }

// State reports the breaker state for status output.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Name() string { return b.inner.Name() }

func (b *Breaker) Load(ctx context.Context) (*models.Snapshot, error) {
	res, err := b.execute(func() (any, error) {
		return b.inner.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	snap, ok := res.(*models.Snapshot)
	if !ok {
		return nil, fmt.Errorf("breaker: unexpected result type %T", res)
	}
	return snap, nil
}

func (b *Breaker) Save(ctx context.Context, snap *models.Snapshot) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Save(ctx, snap)
	})
	return err
}

func (b *Breaker) RemoteModified(ctx context.Context) (time.Time, error) {
	mr, ok := As[ModifiedReporter](b.inner)
	if !ok {
		return time.Time{}, common.ErrUnsupported
	}
	res, err := b.execute(func() (any, error) {
		return mr.RemoteModified(ctx)
	})
	if err != nil {
		return time.Time{}, err
	}
	t, _ := res.(time.Time)
	return t, nil
}

// Guard routes the row writes and revision reads of the wrapped adapter
// through the breaker. Other capabilities pass unchanged.
func (b *Breaker) Guard(c any) any {
	g := guarded{b: b}
	g.writer, _ = c.(RecordWriter)
	g.revs, _ = c.(RevisionLister)
	if g.writer == nil && g.revs == nil {
		return c
	}
	return g
}

// SignIn and SignOut bypass the breaker: they are user initiated.
func (b *Breaker) SignIn(ctx context.Context) (*Session, error) { return b.inner.SignIn(ctx) }

func (b *Breaker) SignOut(ctx context.Context) error { return b.inner.SignOut(ctx) }

func (b *Breaker) execute(fn func() (any, error)) (any, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.log.Warn(context.Background(), "request rejected", "error", err)
		return nil, fmt.Errorf("%w: %s unavailable: %w", common.ErrTransient, b.inner.Name(), err)
	}
	return res, err
}

// guarded carries the capabilities Guard protects. Only the ones the wrapped
// value has are set; As never asks for the others.
type guarded struct {
	b      *Breaker
	writer RecordWriter
	revs   RevisionLister
}

func (g guarded) Insert(ctx context.Context, list models.ListName, r models.Record) (models.Record, error) {
	res, err := g.b.execute(func() (any, error) {
		return g.writer.Insert(ctx, list, r)
	})
	if err != nil {
		return models.Record{}, err
	}
	rec, _ := res.(models.Record)
	return rec, nil
}

func (g guarded) Update(ctx context.Context, list models.ListName, r models.Record) error {
	_, err := g.b.execute(func() (any, error) {
		return nil, g.writer.Update(ctx, list, r)
	})
	return err
}

func (g guarded) Delete(ctx context.Context, list models.ListName, id string) error {
	_, err := g.b.execute(func() (any, error) {
		return nil, g.writer.Delete(ctx, list, id)
	})
	return err
}

func (g guarded) Revisions(ctx context.Context) ([]Revision, error) {
	res, err := g.b.execute(func() (any, error) {
		return g.revs.Revisions(ctx)
	})
	if err != nil {
		return nil, err
	}
	out, _ := res.([]Revision)
	return out, nil
}

func (g guarded) LoadRevision(ctx context.Context, id string) (*models.Snapshot, error) {
	res, err := g.b.execute(func() (any, error) {
		return g.revs.LoadRevision(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	snap, ok := res.(*models.Snapshot)
	if !ok {
		return nil, fmt.Errorf("breaker: unexpected result type %T", res)
	}
	return snap, nil
}
