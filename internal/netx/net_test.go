package netx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusUnauthorized, common.ErrUnauthorized},
		{http.StatusForbidden, common.ErrUnauthorized},
		{http.StatusNotFound, common.ErrNotFound},
		{http.StatusPreconditionFailed, common.ErrConflict},
		{http.StatusTooManyRequests, common.ErrQuotaExceeded},
		{http.StatusBadGateway, common.ErrTransient},
		{http.StatusServiceUnavailable, common.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.True(t, errors.Is(MapStatus(tt.code), tt.want))
		})
	}
	assert.Equal(t, common.KindUnknown, common.Kind(MapStatus(http.StatusTeapot)))
}

func TestDo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "k", r.Header.Get(common.APIKeyHeaderName))
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("X-Echo", "1")
			_, _ = w.Write(body)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("no such key"))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer ts.Close()

	ctx := context.Background()
	hdr := http.Header{common.APIKeyHeaderName: []string{"k"}}

	t.Run("2xx returns body and headers", func(t *testing.T) {
		req, err := NewRequest(ctx, http.MethodPut, ts.URL+"/ok", strings.NewReader("hello"), hdr)
		require.NoError(t, err)
		body, h, err := Do(ts.Client(), req)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
		assert.Equal(t, "1", h.Get("X-Echo"))
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		req, _ := NewRequest(ctx, http.MethodGet, ts.URL+"/missing", nil, nil)
		_, _, err := Do(ts.Client(), req)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusNotFound, se.Code)
		assert.Equal(t, "no such key", se.Body)
		assert.True(t, errors.Is(err, common.ErrNotFound))
	})

	t.Run("5xx is transient", func(t *testing.T) {
		req, _ := NewRequest(ctx, http.MethodGet, ts.URL+"/boom", nil, nil)
		_, _, err := Do(nil, req)
		assert.True(t, common.Retryable(err))
	})
}

func TestDo_TransportErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	req, _ := NewRequest(context.Background(), http.MethodGet, url, nil, nil)
	_, _, err := Do(nil, req)
	assert.True(t, errors.Is(err, common.ErrTransient))
}

func TestDo_CancelledContextIsNotTransient(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := NewRequest(ctx, http.MethodGet, ts.URL, nil, nil)
	_, _, err := Do(nil, req)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, common.ErrTransient))
}

func TestNewStatusError_TruncatesBody(t *testing.T) {
	e := NewStatusError(500, []byte(strings.Repeat("x", maxErrorBody+10)))
	assert.Len(t, e.Body, maxErrorBody)
	assert.Contains(t, e.Error(), "http 500")
}
