package bucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/netx"
)

// HTTPStore keeps the document at a plain URL: GET reads, PUT replaces, HEAD
// reports Last-Modified.
type HTTPStore struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPStore returns a store for url. apiKey is optional.
func NewHTTPStore(url, apiKey string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{url: url, apiKey: apiKey, client: client}
}

func (s *HTTPStore) header() http.Header {
	h := http.Header{}
	if s.apiKey != "" {
		h.Set(common.APIKeyHeaderName, s.apiKey)
	}
	return h
}

func (s *HTTPStore) Get(ctx context.Context) ([]byte, error) {
	req, err := netx.NewRequest(ctx, http.MethodGet, s.url, nil, s.header())
	if err != nil {
		return nil, err
	}
	body, _, err := netx.Do(s.client, req)
	return body, err
}

func (s *HTTPStore) Put(ctx context.Context, data []byte) error {
	h := s.header()
	h.Set("Content-Type", common.DocumentContentType)
	req, err := netx.NewRequest(ctx, http.MethodPut, s.url, bytes.NewReader(data), h)
	if err != nil {
		return err
	}
	_, _, err = netx.Do(s.client, req)
	return err
}

func (s *HTTPStore) Modified(ctx context.Context) (time.Time, error) {
	req, err := netx.NewRequest(ctx, http.MethodHead, s.url, nil, s.header())
	if err != nil {
		return time.Time{}, err
	}
	_, h, err := netx.Do(s.client, req)
	if err != nil {
		return time.Time{}, err
	}
	lm := h.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, fmt.Errorf("%w: no Last-Modified header", common.ErrUnsupported)
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, errors.Join(common.ErrMalformedRemote, err)
	}
	return t, nil
}
