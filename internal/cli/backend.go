package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/backends/bucket"
	"github.com/dmitrijs2005/discshelf/internal/backends/docstore"
	"github.com/dmitrijs2005/discshelf/internal/backends/relational"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/config"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/syncer"
	"golang.org/x/oauth2"
)

// Prompter collects interactive input for backend handshakes.
type Prompter struct {
	Reader *bufio.Reader
	Out    io.Writer
	// Email is used instead of asking when set.
	Email string
}

// Credentials asks for the relational account.
func (p *Prompter) Credentials(_ context.Context) (string, string, error) {
	email := p.Email
	if email == "" {
		var err error
		if email, err = GetSimpleText(p.Reader, "Email", p.Out); err != nil {
			return "", "", err
		}
	}
	pw, err := GetPassword(p.Out)
	if err != nil {
		return "", "", err
	}
	defer common.WipeByteArray(pw)
	return email, string(pw), nil
}

// Notify shows the consent URL.
func (p *Prompter) Notify(authURL string) {
	fmt.Fprintf(p.Out, "Open this URL in a browser to grant access:\n  %s\n", authURL)
}

// AuthCode asks for the code shown after consent.
func (p *Prompter) AuthCode(_ context.Context, authURL string) (string, error) {
	p.Notify(authURL)
	return GetSimpleText(p.Reader, "Paste the authorization code", p.Out)
}

// BuildBackend creates the adapter selected by cfg, wrapped in a circuit
// breaker when enabled. BackendNone yields a zero Backend.
func BuildBackend(ctx context.Context, cfg *config.Config, p *Prompter, log logging.Logger) (syncer.Backend, error) {
	var (
		b   syncer.Backend
		err error
	)
	switch cfg.Backend {
	case "", config.BackendNone:
		return syncer.Backend{}, nil
	case config.BackendBucket:
		b, err = buildBucket(ctx, cfg.Bucket, log)
	case config.BackendRelational:
		b, err = buildRelational(ctx, cfg.Relational, p, log)
	case config.BackendDocstore:
		b, err = buildDocstore(cfg.Docstore, p, log)
	default:
		return syncer.Backend{}, fmt.Errorf("%w: unknown backend %q", common.ErrValidation, cfg.Backend)
	}
	if err != nil {
		return syncer.Backend{}, err
	}
	if cfg.Breaker {
		b.Adapter = backends.WithBreaker(b.Adapter, backends.DefaultBreakerSettings(), log)
	}
	return b, nil
}

func buildBucket(ctx context.Context, c config.BucketConfig, log logging.Logger) (syncer.Backend, error) {
	var store bucket.ObjectStore
	switch strings.ToLower(c.Store) {
	case config.StoreS3:
		s3, err := bucket.NewS3Store(ctx, bucket.S3Config{
			Endpoint:  c.S3.Endpoint,
			Region:    c.S3.Region,
			Bucket:    c.S3.Bucket,
			Key:       c.S3.Key,
			AccessKey: c.S3.AccessKey,
			SecretKey: c.S3.SecretKey,
			PathStyle: c.S3.PathStyle,
		})
		if err != nil {
			return syncer.Backend{}, err
		}
		store = s3
	default:
		store = bucket.NewHTTPStore(c.URL, c.APIKey, http.DefaultClient)
	}
	return syncer.Backend{Adapter: bucket.New(store, log)}, nil
}

func buildRelational(ctx context.Context, c config.RelationalConfig, p *Prompter, log logging.Logger) (syncer.Backend, error) {
	auth := &relational.PasswordAuthenticator{
		URL:    c.AuthURL,
		APIKey: c.APIKey,
		Client: http.DefaultClient,
	}
	if p != nil {
		auth.Credentials = p.Credentials
	}
	a, err := relational.Open(c.DSN, auth, relational.Options{PageSize: c.PageSize}, log)
	if err != nil {
		return syncer.Backend{}, err
	}
	if c.Migrate {
		if err := a.Migrate(ctx); err != nil {
			_ = a.Close()
			return syncer.Backend{}, fmt.Errorf("relational migrate: %w", err)
		}
	}

	var feed backends.ChangeFeed
	if c.RealtimeURL != "" {
		feed = relational.NewGatewayFeed(c.RealtimeURL, a.Session, log)
	} else {
		feed = relational.NewNotifyFeed(c.DSN, a.OwnerID, log)
	}
	return syncer.Backend{Adapter: a, Feed: feed}, nil
}

func buildDocstore(c config.DocstoreConfig, p *Prompter, log logging.Logger) (syncer.Backend, error) {
	cache := docstore.NewTokenCache(c.TokenFile)
	if c.TokenFile == "" {
		var err error
		if cache, err = docstore.DefaultTokenCache(); err != nil {
			return syncer.Backend{}, fmt.Errorf("token cache: %w", err)
		}
	}

	auth := &docstore.OAuthAuthenticator{
		Config: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: c.AuthURL, TokenURL: c.TokenURL},
			Scopes:       []string{docstore.Scope},
		},
		Cache:      cache,
		ListenAddr: c.ListenAddr,
		Log:        log,
	}
	if p != nil {
		auth.Notify = p.Notify
		if c.ManualCode {
			auth.Config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
			auth.ReadCode = p.AuthCode
		}
	}
	a := docstore.New(auth, docstore.Options{APIURL: c.APIURL, UploadURL: c.UploadURL, FileName: c.FileName}, log)
	return syncer.Backend{Adapter: a}, nil
}
