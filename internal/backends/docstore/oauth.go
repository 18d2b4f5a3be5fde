package docstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"golang.org/x/oauth2"
)

const (
	DefaultListenAddr = "127.0.0.1:0"
	callbackPath      = "/callback"
	// Scope limits access to files created by this application.
	Scope = "https://www.googleapis.com/auth/drive.appdata"
)

var ErrStateMismatch = errors.New("oauth state mismatch")

// OAuthAuthenticator runs the authorization code flow. With ReadCode set the
// user pastes the code by hand; otherwise a loopback listener on ListenAddr
// receives the redirect. The caller's context bounds the wait.
type OAuthAuthenticator struct {
	Config     *oauth2.Config
	Cache      *TokenCache
	ListenAddr string
	// Notify shows the consent URL to the user.
	Notify func(authURL string)
	// ReadCode prompts for the authorization code.
	ReadCode func(ctx context.Context, authURL string) (string, error)
	Log      logging.Logger
}

var _ backends.Authenticator = (*OAuthAuthenticator)(nil)

// Authenticate satisfies backends.Authenticator.
func (o *OAuthAuthenticator) Authenticate(ctx context.Context) (*backends.Session, error) {
	tok, err := o.AuthenticateToken(ctx)
	if err != nil {
		return nil, err
	}
	return sessionFromToken(tok), nil
}

// AuthenticateToken returns the cached token when it is still usable and
// otherwise runs the consent flow and caches the result.
func (o *OAuthAuthenticator) AuthenticateToken(ctx context.Context) (*oauth2.Token, error) {
	if o.Config == nil {
		return nil, fmt.Errorf("%w: oauth client not configured", common.ErrNotConfigured)
	}
	log := logging.OrNop(o.Log)

	cached, err := o.Cache.Load()
	if err != nil {
		log.Warn(ctx, "ignoring unreadable token cache", "error", err)
	}
	if cached != nil && (cached.Valid() || cached.RefreshToken != "") {
		log.Debug(ctx, "using cached token")
		return cached, nil
	}

	var tok *oauth2.Token
	if o.ReadCode != nil {
		tok, err = o.manualFlow(ctx)
	} else {
		tok, err = o.loopbackFlow(ctx)
	}
	if err != nil {
		return nil, err
	}
	if err := o.Cache.Save(tok); err != nil {
		log.Warn(ctx, "failed to cache token", "error", err)
	}
	return tok, nil
}

// TokenSource refreshes tok as needed and writes refreshed tokens back to
// the cache.
func (o *OAuthAuthenticator) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	src := &cachingSource{base: o.Config.TokenSource(ctx, tok), cache: o.Cache, last: tok.AccessToken}
	return oauth2.ReuseTokenSource(tok, src)
}

// Forget drops the cached token.
func (o *OAuthAuthenticator) Forget() error {
	return o.Cache.Clear()
}

func (o *OAuthAuthenticator) manualFlow(ctx context.Context) (*oauth2.Token, error) {
	state, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	authURL := o.Config.AuthCodeURL(state, oauth2.AccessTypeOffline)
	code, err := o.ReadCode(ctx, authURL)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", common.ErrUnauthorized)
	}
	return o.exchange(ctx, o.Config, code)
}

type callbackResult struct {
	code string
	err  error
}

func (o *OAuthAuthenticator) loopbackFlow(ctx context.Context) (*oauth2.Token, error) {
	state, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	addr := o.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("callback listener: %w", err)
	}

	cfg := *o.Config
	cfg.RedirectURL = "http://" + ln.Addr().String() + callbackPath

	results := make(chan callbackResult, 1)
	var once sync.Once
	deliver := func(r callbackResult) {
		once.Do(func() { results <- r })
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(callbackResult{err: ErrStateMismatch})
		case q.Get("error") != "":
			http.Error(w, "authorization failed", http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("%w: %s", common.ErrUnauthorized, q.Get("error"))})
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("discshelf is signed in. You can close this window.\n"))
			deliver(callbackResult{code: q.Get("code")})
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(callbackResult{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if o.Notify != nil {
		o.Notify(authURL)
	}

	select {
	case r := <-results:
		if r.err != nil {
			return nil, r.err
		}
		return o.exchange(ctx, &cfg, r.code)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *OAuthAuthenticator) exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: token exchange: %w", common.ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// cachingSource persists every newly refreshed token.
type cachingSource struct {
	base  oauth2.TokenSource
	cache *TokenCache

	mu   sync.Mutex
	last string
}

func (c *cachingSource) Token() (*oauth2.Token, error) {
	tok, err := c.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: refresh: %w", common.ErrUnauthorized, err)
		}
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.AccessToken != c.last {
		c.last = tok.AccessToken
		_ = c.cache.Save(tok)
	}
	return tok, nil
}

func sessionFromToken(tok *oauth2.Token) *backends.Session {
	return &backends.Session{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}
