package conflict

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	modified  time.Time
	markerErr error
	snap      *models.Snapshot
	loads     int
}

func (f *fakeRemote) RemoteModified(context.Context) (time.Time, error) {
	return f.modified, f.markerErr
}

func (f *fakeRemote) Load(context.Context) (*models.Snapshot, error) {
	f.loads++
	if f.snap == nil {
		return models.EmptySnapshot(), nil
	}
	return f.snap, nil
}

func snapshotOf(n int) *models.Snapshot {
	s := models.EmptySnapshot()
	for i := 0; i < n; i++ {
		s.Collection = append(s.Collection, models.Record{Artist: "a", Title: "t"})
	}
	return s
}

func TestRemoteIsNewer(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(DefaultSkewBuffer)

	tests := []struct {
		name      string
		remote    time.Time
		lastKnown time.Time
		want      bool
	}{
		{"same marker", base, base, false},
		{"within skew", base.Add(time.Second), base, false},
		{"exactly at buffer", base.Add(2 * time.Second), base, false},
		{"beyond buffer", base.Add(3 * time.Second), base, true},
		{"remote older", base.Add(-time.Hour), base, false},
		{"never synced", base, time.Time{}, true},
		{"nothing remote", time.Time{}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.RemoteIsNewer(tt.remote, tt.lastKnown))
		})
	}
}

func TestCheck_NoConflictSkipsLoad(t *testing.T) {
	base := time.Now()
	remote := &fakeRemote{modified: base}
	marker, err := NewDetector(DefaultSkewBuffer).Check(context.Background(), remote, remote, base, snapshotOf(1))
	require.NoError(t, err)
	assert.Equal(t, base, marker)
	assert.Equal(t, 0, remote.loads)
}

func TestCheck_Conflict(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	remote := &fakeRemote{modified: base.Add(time.Minute), snap: snapshotOf(5)}
	local := snapshotOf(3)
	local.LastUpdated = base

	_, err := NewDetector(DefaultSkewBuffer).Check(context.Background(), remote, remote, base, local)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrConflict))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3, ce.Local.Items)
	assert.Equal(t, 5, ce.Remote.Items)
	assert.Equal(t, base.Add(time.Minute), ce.Remote.Modified)
	assert.Contains(t, ce.Error(), "remote has 5 items")
}

func TestCheck_FirstSaveAgainstEmptyRemote(t *testing.T) {
	remote := &fakeRemote{modified: time.Now()}
	_, err := NewDetector(DefaultSkewBuffer).Check(context.Background(), remote, remote, time.Time{}, snapshotOf(2))
	assert.NoError(t, err)
	assert.Equal(t, 1, remote.loads)
}

func TestCheck_FirstSaveAgainstPopulatedRemote(t *testing.T) {
	remote := &fakeRemote{modified: time.Now(), snap: snapshotOf(1)}
	_, err := NewDetector(DefaultSkewBuffer).Check(context.Background(), remote, remote, time.Time{}, snapshotOf(2))
	assert.True(t, errors.Is(err, common.ErrConflict))
}

func TestCheck_MarkerError(t *testing.T) {
	remote := &fakeRemote{markerErr: common.ErrTransient}
	_, err := NewDetector(0).Check(context.Background(), remote, remote, time.Now(), snapshotOf(0))
	assert.True(t, errors.Is(err, common.ErrTransient))
}

func TestResolutionString(t *testing.T) {
	assert.Equal(t, "keep-local", KeepLocal.String())
	assert.Equal(t, "pull-remote", PullRemote.String())
	assert.Equal(t, "unknown", Resolution(0).String())
}
