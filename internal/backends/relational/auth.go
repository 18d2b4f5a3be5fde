package relational

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/netx"
	"github.com/goccy/go-json"
)

// CredentialsFunc supplies the user's email and password, typically by
// prompting.
type CredentialsFunc func(ctx context.Context) (email, password string, err error)

// PasswordAuthenticator signs in against a GoTrue style token endpoint:
// POST {URL}/token?grant_type=password and grant_type=refresh_token.
type PasswordAuthenticator struct {
	URL         string
	APIKey      string
	Credentials CredentialsFunc
	Client      *http.Client
	now         func() time.Time
}

var (
	_ backends.Authenticator = (*PasswordAuthenticator)(nil)
	_ backends.Refresher     = (*PasswordAuthenticator)(nil)
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (p *PasswordAuthenticator) Authenticate(ctx context.Context) (*backends.Session, error) {
	if p.Credentials == nil {
		return nil, fmt.Errorf("%w: no credentials source", common.ErrNotConfigured)
	}
	email, password, err := p.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return p.token(ctx, "password", map[string]string{"email": email, "password": password})
}

func (p *PasswordAuthenticator) Refresh(ctx context.Context, s *backends.Session) (*backends.Session, error) {
	if s == nil || s.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", common.ErrUnauthorized)
	}
	return p.token(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
}

func (p *PasswordAuthenticator) token(ctx context.Context, grant string, body map[string]string) (*backends.Session, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	h := http.Header{"Content-Type": []string{"application/json"}}
	if p.APIKey != "" {
		h.Set("apikey", p.APIKey)
	}
	url := strings.TrimRight(p.URL, "/") + "/token?grant_type=" + grant
	req, err := netx.NewRequest(ctx, http.MethodPost, url, bytes.NewReader(data), h)
	if err != nil {
		return nil, err
	}

	resp, _, err := netx.Do(p.Client, req)
	if err != nil {
		var se *netx.StatusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %s grant rejected", common.ErrUnauthorized, grant)
		}
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp, &tr); err != nil {
		return nil, fmt.Errorf("%w: token response: %w", common.ErrMalformedRemote, err)
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	s := &backends.Session{Token: tr.AccessToken, RefreshToken: tr.RefreshToken, OwnerID: tr.User.ID}
	if tr.ExpiresIn > 0 {
		s.ExpiresAt = now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return s, nil
}
