package docstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/discshelf/internal/filex"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DefaultTokenFile is the cache file name inside the application directory.
const DefaultTokenFile = "docstore-token.json"

// TokenCache persists the OAuth token between runs.
type TokenCache struct {
	path string
}

// NewTokenCache returns a cache stored at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// DefaultTokenCache stores the token in the per-user application directory.
func DefaultTokenCache() (*TokenCache, error) {
	path, err := filex.AppPath(DefaultTokenFile)
	if err != nil {
		return nil, err
	}
	return NewTokenCache(path), nil
}

func (c *TokenCache) Path() string { return c.path }

// Load returns the cached token, or (nil, nil) when there is none.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	if c == nil {
		return nil, nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token cache: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token cache: %w", err)
	}
	return &tok, nil
}

// Save writes tok readable by the current user only.
func (c *TokenCache) Save(tok *oauth2.Token) error {
	if c == nil {
		return nil
	}
	if tok == nil {
		return errors.New("cannot save nil token")
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return filex.WriteFileAtomic(c.path, data, 0o600)
}

// Clear removes the cached token. A missing file is not an error.
func (c *TokenCache) Clear() error {
	if c == nil {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token cache: %w", err)
	}
	return nil
}
