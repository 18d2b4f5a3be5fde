package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/local"
	"github.com/dmitrijs2005/discshelf/internal/realtime"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
)

// Sync modes persisted under local.KeySyncMode.
const (
	ModeManual = "manual"
	ModeLive   = "live"
)

// SetLive switches realtime updates on or off and remembers the choice.
// Backends without a change feed return ErrUnsupported.
func (s *Service) SetLive(ctx context.Context, on bool) error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		if !on {
			return nil
		}
		return fmt.Errorf("%w: %s has no realtime feed", common.ErrUnsupported, s.BackendName())
	}

	mode := ModeManual
	if on {
		mode = ModeLive
		if err := s.startLive(ctx, live); err != nil {
			return err
		}
	} else {
		live.Stop()
	}
	if err := s.local.SetSetting(ctx, local.KeySyncMode, mode); err != nil {
		s.log.Warn(ctx, "failed to store sync mode", "error", err)
	}
	return nil
}

// startLive opens the subscriptions as a loading step, so a refused or
// unreachable feed lands in the status machine like any other backend call.
func (s *Service) startLive(ctx context.Context, live *realtime.Live) error {
	if live.Running() {
		return nil
	}
	if err := s.state.Transition(syncstate.StatusLoading, "starting live updates on "+s.BackendName()); err != nil {
		return err
	}
	if err := live.Start(s.bg); err != nil {
		return s.fail(ctx, "live", err)
	}
	_ = s.state.Transition(syncstate.StatusSynced, "live updates on")
	return nil
}

// resumeLive reopens live updates after sign-in when live is the stored mode.
// Feeds need a session.
func (s *Service) resumeLive(ctx context.Context) {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil || live.Running() {
		return
	}
	mode, err := s.local.Setting(ctx, local.KeySyncMode, ModeManual)
	if err != nil || mode != ModeLive {
		return
	}
	if err := s.startLive(ctx, live); err != nil {
		s.log.Warn(ctx, "live updates not resumed", "error", err)
	}
}

// Live reports whether realtime subscriptions are open.
func (s *Service) Live() bool {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	return live != nil && live.Running()
}

func (s *Service) stopLive(_ context.Context) {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live != nil {
		live.Stop()
	}
}

func (s *Service) afterApply(ch backends.Change, out realtime.Outcome) {
	if out == realtime.Ignored {
		return
	}
	s.persist(s.bg)
	// The merged change is already part of the local collection.
	s.rememberRemote(s.bg, s.adapter())
	s.log.Debug(s.bg, "remote change merged", "list", ch.List, "type", string(ch.Type), "outcome", out.String())
}
