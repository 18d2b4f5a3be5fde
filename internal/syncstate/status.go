// Package syncstate holds the observable sync status of the active backend.
package syncstate

import (
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
)

// Status is one state of the sync machine.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusAuthenticating Status = "authenticating"
	StatusLoading        Status = "loading"
	StatusSaving         Status = "saving"
	StatusSynced         Status = "synced"
	StatusConflict       Status = "conflict"
	StatusError          Status = "error"
	StatusDisabled       Status = "disabled"
)

// transitions lists the allowed successors of every status. Disabled has none:
// only Enable leaves it.
var transitions = map[Status][]Status{
	StatusIdle:           {StatusIdle, StatusAuthenticating, StatusLoading, StatusSaving},
	StatusAuthenticating: {StatusIdle, StatusError},
	StatusLoading:        {StatusSynced, StatusError},
	StatusSaving:         {StatusSynced, StatusError, StatusConflict},
	StatusSynced:         {StatusSynced, StatusIdle, StatusAuthenticating, StatusLoading, StatusSaving},
	StatusError:          {StatusIdle, StatusAuthenticating, StatusLoading, StatusSaving},
	StatusConflict:       {StatusIdle, StatusAuthenticating, StatusLoading, StatusSaving},
	StatusDisabled:       nil,
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Busy reports whether the status represents an operation in flight.
func (s Status) Busy() bool {
	return s == StatusAuthenticating || s == StatusLoading || s == StatusSaving
}

// State is an immutable view of the machine.
type State struct {
	Status     Status
	Message    string
	Kind       common.ErrorKind
	LastSynced time.Time
	UpdatedAt  time.Time
}
