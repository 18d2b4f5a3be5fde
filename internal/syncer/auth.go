package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
)

// SignIn runs the backend handshake bounded by the sign-in timeout. On
// timeout the status returns to idle with an explanatory message.
func (s *Service) SignIn(ctx context.Context) (*backends.Session, error) {
	b := s.adapter()
	if b == nil {
		return nil, s.notConfigured()
	}
	if err := s.state.Transition(syncstate.StatusAuthenticating, "signing in to "+b.Name()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.signInTimeout)
	defer cancel()

	var sess *backends.Session
	err := s.guard(ctx, "sign-in", func() error {
		var err error
		sess, err = b.SignIn(ctx)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = fmt.Errorf("%w after %s", common.ErrSignInTimeout, s.signInTimeout)
		_ = s.state.Transition(syncstate.StatusIdle, err.Error())
		s.log.Warn(ctx, "sign-in timed out", "backend", b.Name())
		return nil, err
	default:
		_ = s.state.Fail(err)
		s.log.Warn(ctx, "sign-in failed", "backend", b.Name(), "error", err)
		return nil, err
	}

	_ = s.state.Transition(syncstate.StatusIdle, "signed in")
	owner := ""
	if sess != nil {
		owner = sess.OwnerID
	}
	s.log.Info(ctx, "signed in", "backend", b.Name(), "owner", owner)
	s.resumeLive(ctx)
	return sess, nil
}

// SignOut stops live updates, clears the adapter's credentials and cached
// remote handles and returns the status to idle.
func (s *Service) SignOut(ctx context.Context) error {
	s.stopLive(ctx)
	var err error
	if b := s.adapter(); b != nil {
		err = s.guard(ctx, "sign-out", func() error { return b.SignOut(ctx) })
	}
	s.forgetRemote(ctx)
	s.state.Reset("signed out")
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}
