// Package docstore implements the document storage backend: the snapshot is
// one JSON file in the application data folder of a cloud drive, reached
// over an OAuth2 authenticated REST API.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/normalize"
	"golang.org/x/oauth2"
)

// Name identifies the backend in configuration and logs.
const Name = "docstore"

// Authorizer obtains tokens and keeps them fresh. OAuthAuthenticator is the
// production implementation.
type Authorizer interface {
	AuthenticateToken(ctx context.Context) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
	Forget() error
}

// Options locate the API and the document.
type Options struct {
	APIURL    string
	UploadURL string
	FileName  string
}

// Adapter is the docstore backend.
type Adapter struct {
	auth Authorizer
	opts Options
	log  logging.Logger

	mu     sync.Mutex
	drive  *driveClient
	token  *oauth2.Token
	fileID string
}

var (
	_ backends.Adapter          = (*Adapter)(nil)
	_ backends.ModifiedReporter = (*Adapter)(nil)
	_ backends.RevisionLister   = (*Adapter)(nil)
)

// New returns a signed-out adapter.
func New(auth Authorizer, opts Options, log logging.Logger) *Adapter {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = DefaultUploadURL
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	return &Adapter{auth: auth, opts: opts, log: logging.OrNop(log).With("backend", Name)}
}

func (a *Adapter) Name() string { return Name }

// SignIn authorizes and builds the API client. The cached file id is reset.
func (a *Adapter) SignIn(ctx context.Context) (*backends.Session, error) {
	if a.auth == nil {
		return nil, fmt.Errorf("%w: no authorizer", common.ErrNotConfigured)
	}
	tok, err := a.auth.AuthenticateToken(ctx)
	if err != nil {
		return nil, err
	}
	// The client outlives the sign-in call, so it must not inherit its deadline.
	bg := context.WithoutCancel(ctx)
	client := oauth2.NewClient(bg, a.auth.TokenSource(bg, tok))

	a.mu.Lock()
	a.token = tok
	a.fileID = ""
	a.drive = &driveClient{
		http:      client,
		apiURL:    a.opts.APIURL,
		uploadURL: a.opts.UploadURL,
		fileName:  a.opts.FileName,
	}
	a.mu.Unlock()

	a.log.Info(ctx, "signed in")
	return sessionFromToken(tok), nil
}

// SignOut drops the client, the token and the file id, and clears the token
// cache.
func (a *Adapter) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.drive = nil
	a.token = nil
	a.fileID = ""
	a.mu.Unlock()

	a.log.Info(ctx, "signed out")
	if a.auth == nil {
		return nil
	}
	return a.auth.Forget()
}

// SignedIn reports whether a client is available.
func (a *Adapter) SignedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drive != nil
}

// FileID returns the cached document id, or "".
func (a *Adapter) FileID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fileID
}

func (a *Adapter) client() (*driveClient, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.drive == nil {
		return nil, fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	return a.drive, nil
}

// lookup returns the document id, using the cached one when present. It
// returns "" when the document does not exist yet.
func (a *Adapter) lookup(ctx context.Context, d *driveClient) (string, error) {
	a.mu.Lock()
	id := a.fileID
	a.mu.Unlock()
	if id != "" {
		return id, nil
	}

	f, err := d.find(ctx)
	if err != nil || f == nil {
		return "", err
	}
	a.remember(f.ID)
	return f.ID, nil
}

func (a *Adapter) remember(id string) {
	a.mu.Lock()
	a.fileID = id
	a.mu.Unlock()
}

// forget clears the cached id if it still equals id.
func (a *Adapter) forget(id string) {
	a.mu.Lock()
	if a.fileID == id {
		a.fileID = ""
	}
	a.mu.Unlock()
}

// Load downloads the document. A missing document, an empty body or one that
// cannot be parsed all yield an empty snapshot.
func (a *Adapter) Load(ctx context.Context) (*models.Snapshot, error) {
	d, err := a.client()
	if err != nil {
		return nil, err
	}
	id, err := a.lookup(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("docstore lookup: %w", err)
	}
	if id == "" {
		a.log.Info(ctx, "no remote document yet")
		return models.EmptySnapshot(), nil
	}

	data, err := d.download(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		a.log.Warn(ctx, "remote document disappeared", "file_id", id)
		a.forget(id)
		return models.EmptySnapshot(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("docstore load: %w", err)
	}
	return a.decode(ctx, data), nil
}

func (a *Adapter) decode(ctx context.Context, data []byte) *models.Snapshot {
	snap, skipped, err := normalize.DecodeDocument(data)
	if err != nil {
		a.log.Warn(ctx, "remote document is malformed, using empty snapshot", "error", err, "bytes", len(data))
		return models.EmptySnapshot()
	}
	if skipped > 0 {
		a.log.Warn(ctx, "skipped invalid records", "count", skipped)
	}
	return snap
}

// Save uploads snap, creating the document on first use. If the cached file
// was deleted remotely it is recreated once.
func (a *Adapter) Save(ctx context.Context, snap *models.Snapshot) error {
	d, err := a.client()
	if err != nil {
		return err
	}
	data, err := normalize.EncodeDocument(snap)
	if err != nil {
		return fmt.Errorf("docstore encode: %w", err)
	}

	for attempt := 0; ; attempt++ {
		id, err := a.lookup(ctx, d)
		if err != nil {
			return fmt.Errorf("docstore lookup: %w", err)
		}
		if id == "" {
			f, err := d.create(ctx)
			if err != nil {
				return fmt.Errorf("docstore create: %w", err)
			}
			a.log.Info(ctx, "created remote document", "file_id", f.ID)
			a.remember(f.ID)
			id = f.ID
		}

		_, err = d.upload(ctx, id, data)
		if errors.Is(err, common.ErrNotFound) && attempt == 0 {
			a.forget(id)
			continue
		}
		if err != nil {
			return fmt.Errorf("docstore save: %w", err)
		}
		a.log.Debug(ctx, "snapshot saved", "items", snap.Count(), "bytes", len(data))
		return nil
	}
}

// RemoteModified returns the document's modifiedTime, or zero when it does
// not exist.
func (a *Adapter) RemoteModified(ctx context.Context) (time.Time, error) {
	d, err := a.client()
	if err != nil {
		return time.Time{}, err
	}
	id, err := a.lookup(ctx, d)
	if err != nil || id == "" {
		return time.Time{}, err
	}
	f, err := d.metadata(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		a.forget(id)
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("docstore metadata: %w", err)
	}
	return f.ModifiedTime, nil
}

// Revisions lists stored versions of the document, oldest first.
func (a *Adapter) Revisions(ctx context.Context) ([]backends.Revision, error) {
	d, err := a.client()
	if err != nil {
		return nil, err
	}
	id, err := a.lookup(ctx, d)
	if err != nil || id == "" {
		return nil, err
	}
	revs, err := d.revisions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("docstore revisions: %w", err)
	}
	out := make([]backends.Revision, 0, len(revs))
	for _, r := range revs {
		out = append(out, backends.Revision{ID: r.ID, Modified: r.ModifiedTime, Size: r.size()})
	}
	return out, nil
}

// LoadRevision downloads one stored version. It never writes anything back.
func (a *Adapter) LoadRevision(ctx context.Context, rev string) (*models.Snapshot, error) {
	d, err := a.client()
	if err != nil {
		return nil, err
	}
	id, err := a.lookup(ctx, d)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no remote document", common.ErrNotFound)
	}
	data, err := d.revisionContent(ctx, id, rev)
	if err != nil {
		return nil, fmt.Errorf("docstore revision %s: %w", rev, err)
	}
	return a.decode(ctx, data), nil
}
