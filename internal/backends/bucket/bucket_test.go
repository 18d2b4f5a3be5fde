package bucket

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/logging"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-memory bucket speaking GET/PUT/HEAD.
type fakeServer struct {
	mu       sync.Mutex
	body     []byte
	exists   bool
	modified time.Time
	status   int
	apiKey   string
	puts     int
	// rawModified, when set, replaces the Last-Modified header verbatim.
	rawModified string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.apiKey != "" && r.Header.Get(common.APIKeyHeaderName) != f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	switch r.Method {
	case http.MethodPut:
		f.body, _ = io.ReadAll(r.Body)
		f.exists = true
		f.modified = time.Now().UTC().Truncate(time.Second)
		f.puts++
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Last-Modified", f.modified.Format(http.TimeFormat))
		if f.rawModified != "" {
			w.Header().Set("Last-Modified", f.rawModified)
		}
		if r.Method == http.MethodGet {
			_, _ = w.Write(f.body)
		}
	}
}

func newTestAdapter(t *testing.T, f *fakeServer, key string) *Adapter {
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return New(NewHTTPStore(ts.URL+"/discshelf", key, ts.Client()), logging.Nop())
}

func TestLoad_MissingKeyIsEmpty(t *testing.T) {
	a := newTestAdapter(t, &fakeServer{}, "")
	snap, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Count())

	m, err := a.RemoteModified(context.Background())
	require.NoError(t, err)
	assert.True(t, m.IsZero())
}

func TestLoad_EmptyBodyIsEmpty(t *testing.T) {
	a := newTestAdapter(t, &fakeServer{exists: true}, "")
	snap, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Count())
}

func TestLoad_MalformedBodyIsEmpty(t *testing.T) {
	a := newTestAdapter(t, &fakeServer{exists: true, body: []byte("<html>oops")}, "")
	snap, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Count())
}

func TestLoad_LegacyArray(t *testing.T) {
	a := newTestAdapter(t, &fakeServer{exists: true, body: []byte(`[{"id":"1","artistName":"U2","album":"War"}]`)}, "")
	snap, err := a.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Collection, 1)
	assert.Equal(t, "U2", snap.Collection[0].Artist)
}

func TestSaveThenLoad(t *testing.T) {
	f := &fakeServer{apiKey: "secret"}
	a := newTestAdapter(t, f, "secret")
	ctx := context.Background()

	in := models.EmptySnapshot()
	in.Collection = []models.Record{{ID: "1", Artist: "U2", Title: "War", Format: models.FormatVinyl, State: models.StatePendingLocal}}
	in.Wantlist = []models.Record{{ID: "2", Artist: "Can", Title: "Tago Mago"}}
	require.NoError(t, a.Save(ctx, in))
	require.NoError(t, a.Save(ctx, in))
	assert.Equal(t, 2, f.puts)
	assert.NotContains(t, string(f.body), "pending-local")

	out, err := a.Load(ctx)
	require.NoError(t, err)
	require.Len(t, out.Collection, 1)
	assert.Equal(t, models.StateConfirmedRemote, out.Collection[0].State)
	assert.Len(t, out.Wantlist, 1)

	m, err := a.RemoteModified(ctx)
	require.NoError(t, err)
	assert.False(t, m.IsZero())
}

func TestErrorsAreMapped(t *testing.T) {
	ctx := context.Background()

	a := newTestAdapter(t, &fakeServer{apiKey: "secret"}, "wrong")
	_, err := a.Load(ctx)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))

	a = newTestAdapter(t, &fakeServer{status: http.StatusServiceUnavailable}, "")
	err = a.Save(ctx, models.EmptySnapshot())
	assert.True(t, errors.Is(err, common.ErrTransient))

	a = newTestAdapter(t, &fakeServer{status: http.StatusTooManyRequests}, "")
	err = a.Save(ctx, models.EmptySnapshot())
	assert.True(t, errors.Is(err, common.ErrQuotaExceeded))
}

func TestSignInOutAreNoops(t *testing.T) {
	a := New(NewHTTPStore("http://unused", "", nil), nil)
	s, err := a.SignIn(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, a.SignOut(context.Background()))
	assert.Equal(t, Name, a.Name())
}

func TestRemoteModified_MalformedMarkerIsUnsupported(t *testing.T) {
	ctx := context.Background()
	f := &fakeServer{exists: true, body: []byte(`{"collection":[],"wantlist":[]}`), rawModified: "yesterday-ish"}
	a := newTestAdapter(t, f, "")

	_, err := a.RemoteModified(ctx)
	require.ErrorIs(t, err, common.ErrUnsupported)
	assert.False(t, errors.Is(err, common.ErrMalformedRemote))

	require.NoError(t, a.Save(ctx, models.EmptySnapshot()))
	snap, err := a.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Count())
}
