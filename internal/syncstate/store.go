package syncstate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
)

// Listener receives every state change after it is applied.
type Listener func(State)

// Store is the single writer of sync state. Readers take snapshots or
// subscribe for change notifications.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewStore returns a store in the idle state, or disabled when disabled is set.
func NewStore(disabled bool) *Store {
	s := &Store{listeners: make(map[int]Listener), now: time.Now}
	s.state = State{Status: StatusIdle, UpdatedAt: s.now()}
	if disabled {
		s.state.Status = StatusDisabled
		s.state.Kind = common.KindNotConfigured
		s.state.Message = "sync backend is not configured"
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the current status.
func (s *Store) Status() Status {
	return s.Snapshot().Status
}

// Transition moves to status to with an optional message. Illegal moves return
// ErrInvalidTransition and leave the state unchanged.
func (s *Store) Transition(to Status, message string) error {
	return s.apply(func(cur State) (State, error) {
		if !CanTransition(cur.Status, to) {
			return cur, fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, cur.Status, to)
		}
		next := State{Status: to, Message: message, LastSynced: cur.LastSynced}
		if to == StatusSynced {
			next.LastSynced = s.now()
		}
		return next, nil
	})
}

// Fail records err. Conflicts move to conflict, everything else to error.
// A nil err is a no-op.
func (s *Store) Fail(err error) error {
	if err == nil {
		return nil
	}
	kind := common.Kind(err)
	to := StatusError
	if kind == common.KindConflict {
		to = StatusConflict
	}
	return s.apply(func(cur State) (State, error) {
		if !CanTransition(cur.Status, to) {
			return cur, fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, cur.Status, to)
		}
		return State{Status: to, Message: err.Error(), Kind: kind, LastSynced: cur.LastSynced}, nil
	})
}

// Disable enters the disabled state from anywhere.
func (s *Store) Disable(reason string) {
	_ = s.apply(func(cur State) (State, error) {
		return State{Status: StatusDisabled, Message: reason, Kind: common.KindNotConfigured, LastSynced: cur.LastSynced}, nil
	})
}

// Enable leaves the disabled state. It is a no-op in any other state.
func (s *Store) Enable() {
	_ = s.apply(func(cur State) (State, error) {
		if cur.Status != StatusDisabled {
			return cur, errUnchanged
		}
		return State{Status: StatusIdle, LastSynced: cur.LastSynced}, nil
	})
}

// Reset returns to idle and forgets the last sync time. Used on sign-out.
func (s *Store) Reset(message string) {
	_ = s.apply(func(cur State) (State, error) {
		if cur.Status == StatusDisabled {
			return cur, errUnchanged
		}
		return State{Status: StatusIdle, Message: message}, nil
	})
}

// Subscribe registers fn for state changes and returns a function removing it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

var errUnchanged = errors.New("unchanged")

func (s *Store) apply(step func(State) (State, error)) error {
	s.mu.Lock()
	next, err := step(s.state)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}
	next.UpdatedAt = s.now()
	s.state = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return nil
}
