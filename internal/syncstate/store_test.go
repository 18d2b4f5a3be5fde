package syncstate

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusIdle, StatusAuthenticating, true},
		{StatusAuthenticating, StatusIdle, true},
		{StatusAuthenticating, StatusSynced, false},
		{StatusIdle, StatusLoading, true},
		{StatusLoading, StatusSynced, true},
		{StatusLoading, StatusConflict, false},
		{StatusSaving, StatusConflict, true},
		{StatusSynced, StatusSynced, true},
		{StatusError, StatusLoading, true},
		{StatusConflict, StatusSaving, true},
		{StatusError, StatusSynced, false},
		{StatusDisabled, StatusIdle, false},
		{StatusDisabled, StatusLoading, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStore_IllegalTransitionLeavesState(t *testing.T) {
	s := NewStore(false)
	require.NoError(t, s.Transition(StatusLoading, ""))

	err := s.Transition(StatusAuthenticating, "")
	assert.True(t, errors.Is(err, common.ErrInvalidTransition))
	assert.Equal(t, StatusLoading, s.Status())
}

func TestStore_SyncedRecordsTime(t *testing.T) {
	s := NewStore(false)
	require.NoError(t, s.Transition(StatusSaving, ""))
	require.NoError(t, s.Transition(StatusSynced, ""))
	st := s.Snapshot()
	assert.False(t, st.LastSynced.IsZero())

	require.NoError(t, s.Transition(StatusLoading, ""))
	assert.Equal(t, st.LastSynced, s.Snapshot().LastSynced)
}

func TestStore_Fail(t *testing.T) {
	s := NewStore(false)
	require.NoError(t, s.Transition(StatusSaving, ""))
	require.NoError(t, s.Fail(fmt.Errorf("remote changed: %w", common.ErrConflict)))
	assert.Equal(t, StatusConflict, s.Status())
	assert.Equal(t, common.KindConflict, s.Snapshot().Kind)

	require.NoError(t, s.Transition(StatusLoading, ""))
	require.NoError(t, s.Fail(common.ErrUnauthorized))
	st := s.Snapshot()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, common.KindUnauthorized, st.Kind)

	assert.NoError(t, s.Fail(nil))
	assert.Equal(t, StatusError, s.Status())
}

func TestStore_DisabledIsTerminalUntilEnabled(t *testing.T) {
	s := NewStore(true)
	assert.Equal(t, StatusDisabled, s.Status())
	assert.Equal(t, common.KindNotConfigured, s.Snapshot().Kind)

	assert.Error(t, s.Transition(StatusLoading, ""))
	s.Reset("")
	assert.Equal(t, StatusDisabled, s.Status())

	s.Enable()
	assert.Equal(t, StatusIdle, s.Status())
	s.Enable()
	assert.Equal(t, StatusIdle, s.Status())
}

func TestStore_ResetClearsLastSynced(t *testing.T) {
	s := NewStore(false)
	require.NoError(t, s.Transition(StatusLoading, ""))
	require.NoError(t, s.Transition(StatusSynced, ""))
	s.Reset("signed out")
	st := s.Snapshot()
	assert.Equal(t, StatusIdle, st.Status)
	assert.Equal(t, "signed out", st.Message)
	assert.True(t, st.LastSynced.IsZero())
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(false)
	var mu sync.Mutex
	var seen []Status
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})

	require.NoError(t, s.Transition(StatusLoading, ""))
	require.NoError(t, s.Transition(StatusSynced, ""))
	_ = s.Transition(StatusConflict, "")
	unsubscribe()
	require.NoError(t, s.Transition(StatusIdle, ""))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusLoading, StatusSynced}, seen)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(false)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	for j := 0; j < 50; j++ {
		_ = s.Transition(StatusLoading, "")
		_ = s.Transition(StatusSynced, "")
	}
	wg.Wait()
	assert.Equal(t, StatusSynced, s.Status())
}
