// Package conflict detects remote changes made by another device since the
// last observed sync.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
)

// DefaultSkewBuffer absorbs clock differences between this device and the
// backend.
const DefaultSkewBuffer = 2 * time.Second

// Resolution is the user's choice after a conflict.
type Resolution int

const (
	// KeepLocal overwrites the remote with the local snapshot.
	KeepLocal Resolution = iota + 1
	// PullRemote discards local changes and loads the remote snapshot.
	PullRemote
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep-local"
	case PullRemote:
		return "pull-remote"
	default:
		return "unknown"
	}
}

// Side summarizes one version of the data.
type Side struct {
	Items    int
	Modified time.Time
}

// Error describes a detected conflict. It matches common.ErrConflict.
type Error struct {
	Local  Side
	Remote Side
}

func (e *Error) Error() string {
	return fmt.Sprintf("conflict: remote has %d items modified %s, local has %d items",
		e.Remote.Items, e.Remote.Modified.Format(time.RFC3339), e.Local.Items)
}

func (e *Error) Unwrap() error { return common.ErrConflict }

// MarkerSource reports the remote last-modified marker.
type MarkerSource interface {
	RemoteModified(ctx context.Context) (time.Time, error)
}

// Loader reads the remote snapshot; used to size the remote side of a
// conflict and to tell a first save from an overwrite.
type Loader interface {
	Load(ctx context.Context) (*models.Snapshot, error)
}

// Detector compares remote markers against the last observed one.
type Detector struct {
	buffer time.Duration
}

// NewDetector returns a detector; a negative buffer is treated as zero.
func NewDetector(buffer time.Duration) *Detector {
	if buffer < 0 {
		buffer = 0
	}
	return &Detector{buffer: buffer}
}

// RemoteIsNewer reports whether remote is strictly newer than lastKnown plus
// the skew buffer. A zero lastKnown means this device never synced, so any
// remote marker is newer. A zero remote marker means nothing exists remotely.
func (d *Detector) RemoteIsNewer(remote, lastKnown time.Time) bool {
	if remote.IsZero() {
		return false
	}
	if lastKnown.IsZero() {
		return true
	}
	return remote.After(lastKnown.Add(d.buffer))
}

// Check runs the pre-save comparison. It returns the remote marker that was
// observed and a *Error when the save must not proceed. A never-synced device
// facing a remote with no records is not in conflict.
func (d *Detector) Check(ctx context.Context, src MarkerSource, loader Loader, lastKnown time.Time, local *models.Snapshot) (time.Time, error) {
	remote, err := src.RemoteModified(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("remote marker: %w", err)
	}
	if !d.RemoteIsNewer(remote, lastKnown) {
		return remote, nil
	}

	snap, err := loader.Load(ctx)
	if err != nil {
		return remote, fmt.Errorf("remote snapshot: %w", err)
	}
	if lastKnown.IsZero() && snap.Count() == 0 {
		return remote, nil
	}
	return remote, &Error{
		Local:  Side{Items: local.Count(), Modified: local.LastUpdated},
		Remote: Side{Items: snap.Count(), Modified: remote},
	}
}
