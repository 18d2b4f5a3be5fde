package relational

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// completeSession fills the owner and expiry of s from its access token
// claims when the authenticator left them empty. The claims are read without
// verifying the signature: the token came straight from the auth endpoint and
// is never shown to the database. Isolation between owners is only as strong
// as the DSN role, see rowStore.
func completeSession(s *backends.Session) (*backends.Session, error) {
	if s == nil || s.Token == "" {
		return nil, fmt.Errorf("%w: empty session token", common.ErrUnauthorized)
	}
	out := *s
	if out.OwnerID != "" && !out.ExpiresAt.IsZero() {
		return &out, nil
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(out.Token, &claims); err != nil {
		if out.OwnerID != "" {
			return &out, nil
		}
		return nil, fmt.Errorf("%w: session token: %w", common.ErrUnauthorized, err)
	}
	if out.OwnerID == "" {
		out.OwnerID = claims.Subject
	}
	if out.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if out.OwnerID == "" {
		return nil, fmt.Errorf("%w: session token has no subject", common.ErrUnauthorized)
	}
	return &out, nil
}

// scheduleRefreshLocked arms the refresh timer for the current session.
// a.mu must be held.
func (a *Adapter) scheduleRefreshLocked() {
	a.stopRefreshLocked()
	r, ok := a.auth.(backends.Refresher)
	if !ok || a.session == nil || a.session.ExpiresAt.IsZero() {
		return
	}
	d := a.session.ExpiresAt.Sub(a.now()) - a.refreshLead
	if d < 0 {
		d = 0
	}
	current := a.session
	a.refresh = time.AfterFunc(d, func() { a.runRefresh(r, current) })
}

func (a *Adapter) stopRefreshLocked() {
	if a.refresh != nil {
		a.refresh.Stop()
		a.refresh = nil
	}
}

func (a *Adapter) runRefresh(r backends.Refresher, old *backends.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	next, err := r.Refresh(ctx, old)
	if err == nil {
		next, err = completeSession(next)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != old {
		// signed out or replaced while refreshing
		return
	}
	if err != nil {
		a.log.Warn(ctx, "session refresh failed", "error", err)
		return
	}
	a.session = next
	a.log.Debug(ctx, "session refreshed", "expires_at", next.ExpiresAt)
	a.scheduleRefreshLocked()
}
