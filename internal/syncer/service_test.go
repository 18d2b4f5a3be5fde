package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/discshelf/internal/backends"
	"github.com/dmitrijs2005/discshelf/internal/common"
	"github.com/dmitrijs2005/discshelf/internal/conflict"
	"github.com/dmitrijs2005/discshelf/internal/enrich"
	"github.com/dmitrijs2005/discshelf/internal/local"
	"github.com/dmitrijs2005/discshelf/internal/models"
	"github.com/dmitrijs2005/discshelf/internal/syncstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, b Backend) (*Service, *memLocal) {
	t.Helper()
	lc := newMemLocal()
	s := New(b, Options{Local: lc, SignInTimeout: time.Second})
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, lc
}

func rec(artist, title string) models.Record {
	return models.Record{Artist: artist, Title: title, Format: models.FormatCD}
}

func TestNew_NotConfiguredStaysDisabled(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Backend{})
	assert.Equal(t, syncstate.StatusDisabled, s.Status().Status)

	_, err := s.Load(ctx)
	require.ErrorIs(t, err, common.ErrNotConfigured)
	require.ErrorIs(t, s.Save(ctx), common.ErrNotConfigured)
	_, err = s.SignIn(ctx)
	require.ErrorIs(t, err, common.ErrNotConfigured)

	assert.Equal(t, syncstate.StatusDisabled, s.Status().Status)
	assert.Equal(t, "none", s.BackendName())
}

func TestStart_LoadsLocalSnapshot(t *testing.T) {
	s, lc := newService(t, Backend{Adapter: newFakeAdapter()})
	lc.snap.Collection = []models.Record{{ID: "a", Artist: "Can", Title: "Tago Mago"}}

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, s.Collection().List(models.ListCollection), 1)
}

func TestLoad_EmptyRemoteIsSynced(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	s, lc := newService(t, Backend{Adapter: f})

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Count())
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
	assert.Equal(t, 1, lc.saves)
}

func TestLoad_ReplacesCollection(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	f.remote.Wantlist = []models.Record{{ID: "w1", Artist: "Talk Talk", Title: "Spirit of Eden"}}
	s, lc := newService(t, Backend{Adapter: f})

	_, err := s.AddRecord(ctx, models.ListCollection, rec("Low", "Double Negative"))
	require.NoError(t, err)

	_, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Collection().List(models.ListCollection))
	assert.Len(t, s.Collection().List(models.ListWantlist), 1)
	assert.Len(t, lc.stored().Wantlist, 1)
}

func TestLoad_PanicBecomesError(t *testing.T) {
	f := newFakeAdapter()
	f.panicLoad = true
	s, _ := newService(t, Backend{Adapter: f})

	_, err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, syncstate.StatusError, s.Status().Status)
}

func TestSave_ConflictBlocksRemoteWrite(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.modified = t0.Add(time.Hour)
	f.remote.Collection = []models.Record{
		{ID: "r1", Artist: "U2", Title: "War"},
		{ID: "r2", Artist: "U2", Title: "Boy"},
	}
	s, lc := newService(t, Backend{Adapter: f})
	lc.marker = t0

	_, err := s.AddRecord(ctx, models.ListCollection, rec("U2", "October"))
	require.NoError(t, err)

	err = s.Save(ctx)
	var ce *conflict.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Remote.Items)
	assert.Equal(t, 1, ce.Local.Items)
	assert.Equal(t, syncstate.StatusConflict, s.Status().Status)
	assert.Equal(t, common.KindConflict, s.Status().Kind)
	assert.Equal(t, 0, f.saveCount())
	assert.Same(t, ce, s.PendingConflict())

	require.NoError(t, s.Resolve(ctx, conflict.KeepLocal))
	assert.Equal(t, 1, f.saveCount())
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
	assert.Nil(t, s.PendingConflict())
	assert.Equal(t, f.modified, lc.marker)
}

func TestResolve_PullRemote(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	f.modified = time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	f.remote.Collection = []models.Record{{ID: "r1", Artist: "U2", Title: "War"}}
	s, _ := newService(t, Backend{Adapter: f})

	_, err := s.AddRecord(ctx, models.ListCollection, rec("U2", "October"))
	require.NoError(t, err)
	require.ErrorIs(t, s.Save(ctx), common.ErrConflict)

	require.NoError(t, s.Resolve(ctx, conflict.PullRemote))
	list := s.Collection().List(models.ListCollection)
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, 0, f.saveCount())

	require.ErrorIs(t, s.Resolve(ctx, conflict.Resolution(42)), common.ErrValidation)
}

func TestSave_UnchangedSnapshotIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	s, _ := newService(t, Backend{Adapter: f})

	_, err := s.AddRecord(ctx, models.ListCollection, rec("Björk", "Homogenic"))
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx))
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, 1, f.saveCount())

	list := s.Collection().List(models.ListCollection)
	require.Len(t, list, 1)
	assert.Equal(t, models.StateConfirmedRemote, list[0].State)

	_, err = s.AddRecord(ctx, models.ListCollection, rec("Björk", "Vespertine"))
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, 2, f.saveCount())

	require.NoError(t, s.ForceSave(ctx))
	assert.Equal(t, 3, f.saveCount())
}

func TestSave_ConcurrentSavesAreCoalesced(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	f.saveGate = make(chan struct{})
	f.saveStarted = make(chan struct{})
	started := f.saveStarted
	s, _ := newService(t, Backend{Adapter: f})

	_, err := s.AddRecord(ctx, models.ListCollection, rec("Slint", "Spiderland"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	save := func() {
		defer wg.Done()
		errs <- s.Save(ctx)
	}
	wg.Add(1)
	go save()
	<-started

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go save()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.saveGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.saveCount())
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
}

func TestSave_UnauthorizedSignsOutLocally(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	s, lc := newService(t, Backend{Adapter: f})
	lc.marker = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.saveErr = common.ErrUnauthorized

	err := s.Save(ctx)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	st := s.Status()
	assert.Equal(t, syncstate.StatusError, st.Status)
	assert.Equal(t, common.KindUnauthorized, st.Kind)
	assert.Equal(t, 1, f.signOuts)
	assert.True(t, lc.marker.IsZero())
}

func TestSave_TransientErrorKeepsSession(t *testing.T) {
	f := newFakeAdapter()
	f.saveErr = common.ErrTransient
	s, _ := newService(t, Backend{Adapter: f})

	require.ErrorIs(t, s.Save(context.Background()), common.ErrTransient)
	assert.Equal(t, common.KindTransient, s.Status().Kind)
	assert.Equal(t, 0, f.signOuts)
}

func TestSave_WithoutMarkerSupport(t *testing.T) {
	f := newFakeAdapter()
	f.modified = time.Now()
	s, _ := newService(t, Backend{Adapter: plainAdapter{f}})

	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 1, f.saveCount())
}

func TestSave_UnreadableMarkerIsSkipped(t *testing.T) {
	f := newFakeAdapter()
	f.remote.Collection = []models.Record{{ID: "r1", Artist: "Low", Title: "Things We Lost in the Fire"}}
	f.markerErr = fmt.Errorf("%w: unreadable marker", common.ErrUnsupported)
	s, _ := newService(t, Backend{Adapter: f})

	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
	assert.Equal(t, 1, f.saveCount())
}

func TestSignOut_ClearsSessionAndLoadFails(t *testing.T) {
	ctx := context.Background()
	f := newFakeAdapter()
	s, lc := newService(t, Backend{Adapter: f})

	_, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SignOut(ctx))

	st := s.Status()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.True(t, st.LastSynced.IsZero())
	assert.True(t, lc.marker.IsZero())

	_, err = s.Load(ctx)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, common.KindUnauthorized, s.Status().Kind)
}

func TestSignIn(t *testing.T) {
	f := newFakeAdapter()
	f.signedIn = false
	s, _ := newService(t, Backend{Adapter: f})

	sess, err := s.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "owner-1", sess.OwnerID)
	assert.Equal(t, syncstate.StatusIdle, s.Status().Status)
	assert.Equal(t, "signed in", s.Status().Message)
}

func TestSignIn_TimeoutReturnsToIdle(t *testing.T) {
	f := newFakeAdapter()
	f.signIn = func(ctx context.Context) (*backends.Session, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s := New(Backend{Adapter: f}, Options{Local: newMemLocal(), SignInTimeout: 20 * time.Millisecond})

	_, err := s.SignIn(context.Background())
	require.ErrorIs(t, err, common.ErrSignInTimeout)
	st := s.Status()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Contains(t, st.Message, "timed out")
}

func TestSignIn_FailureIsError(t *testing.T) {
	f := newFakeAdapter()
	f.signIn = func(context.Context) (*backends.Session, error) {
		return nil, common.ErrUnauthorized
	}
	s, _ := newService(t, Backend{Adapter: f})

	_, err := s.SignIn(context.Background())
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, syncstate.StatusError, s.Status().Status)
}

func TestSetLive_WithoutFeed(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Backend{Adapter: newFakeAdapter()})

	require.ErrorIs(t, s.SetLive(ctx, true), common.ErrUnsupported)
	require.NoError(t, s.SetLive(ctx, false))
	assert.False(t, s.Live())
}

func TestLive_EchoReplacesOptimisticRecord(t *testing.T) {
	ctx := context.Background()
	feed := &fakeFeed{}
	s, lc := newService(t, Backend{Adapter: plainAdapter{newFakeAdapter()}, Feed: feed})

	require.NoError(t, s.SetLive(ctx, true))
	assert.True(t, s.Live())
	assert.Equal(t, ModeLive, lc.settings[local.KeySyncMode])

	added, err := s.AddRecord(ctx, models.ListCollection, rec("U2", "War"))
	require.NoError(t, err)
	assert.True(t, models.IsLocalID(added.ID))
	assert.True(t, added.Pending())

	require.True(t, feed.emit(backends.Change{
		List:   models.ListCollection,
		Type:   backends.ChangeInsert,
		Record: models.Record{ID: "42", Artist: "U2", Title: "War", Format: models.FormatCD},
	}))

	list := s.Collection().List(models.ListCollection)
	require.Len(t, list, 1)
	assert.Equal(t, "42", list[0].ID)
	assert.Equal(t, models.StateConfirmedRemote, list[0].State)
	assert.Equal(t, "42", lc.stored().Collection[0].ID)

	require.NoError(t, s.SetLive(ctx, false))
	assert.False(t, s.Live())
	assert.Equal(t, ModeManual, lc.settings[local.KeySyncMode])
	assert.False(t, feed.emit(backends.Change{List: models.ListCollection, Type: backends.ChangeDelete, OldID: "42"}))
}

func TestLive_InsertPushesRow(t *testing.T) {
	ctx := context.Background()
	row := &rowAdapter{fakeAdapter: newFakeAdapter()}
	feed := &fakeFeed{}
	s, _ := newService(t, Backend{Adapter: row, Feed: feed})
	require.NoError(t, s.SetLive(ctx, true))

	added, err := s.AddRecord(ctx, models.ListWantlist, rec("Arthur Russell", "World of Echo"))
	require.NoError(t, err)
	assert.Equal(t, "row-1", added.ID)
	assert.Equal(t, "owner-1", added.OwnerID)
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)

	feed.emit(backends.Change{List: models.ListWantlist, Type: backends.ChangeInsert, Record: added})
	list := s.Collection().List(models.ListWantlist)
	require.Len(t, list, 1)
	assert.Equal(t, "row-1", list[0].ID)
	require.Len(t, row.inserted, 1)
}

func TestLive_OwnWritesDoNotConflictOnSave(t *testing.T) {
	ctx := context.Background()
	fa := newFakeAdapter()
	fa.modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := &rowAdapter{fakeAdapter: fa, advance: true}
	s, lc := newService(t, Backend{Adapter: row, Feed: &fakeFeed{}})

	_, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetLive(ctx, true))

	added, err := s.AddRecord(ctx, models.ListCollection, rec("Talk Talk", "Spirit of Eden"))
	require.NoError(t, err)
	edit := added
	edit.Year = 1988
	_, err = s.UpdateRecord(ctx, models.ListCollection, edit)
	require.NoError(t, err)

	marker, err := lc.LastRemoteModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, row.remoteMarker(), marker)

	require.NoError(t, s.Save(ctx))
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
	assert.Nil(t, s.PendingConflict())
	assert.Equal(t, 1, fa.saveCount())
}

func TestLive_EchoRefreshesRemoteMarker(t *testing.T) {
	ctx := context.Background()
	fa := newFakeAdapter()
	fa.modified = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{}
	s, lc := newService(t, Backend{Adapter: fa, Feed: feed})
	_, err := s.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SetLive(ctx, true))

	fa.mu.Lock()
	fa.modified = fa.modified.Add(time.Hour)
	fa.mu.Unlock()
	require.True(t, feed.emit(backends.Change{
		List:   models.ListCollection,
		Type:   backends.ChangeInsert,
		Record: models.Record{ID: "7", Artist: "Can", Title: "Tago Mago", Format: models.FormatVinyl},
	}))

	marker, err := lc.LastRemoteModified(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), marker)
}

func TestSetLive_SubscribeFailureIsError(t *testing.T) {
	ctx := context.Background()
	s, lc := newService(t, Backend{Adapter: newFakeAdapter(), Feed: failingFeed{err: common.ErrTransient}})

	require.ErrorIs(t, s.SetLive(ctx, true), common.ErrTransient)
	st := s.Status()
	assert.Equal(t, syncstate.StatusError, st.Status)
	assert.Equal(t, common.KindTransient, st.Kind)
	assert.False(t, s.Live())
	_, stored := lc.settings[local.KeySyncMode]
	assert.False(t, stored)
}

func TestSetLive_StartsThroughLoading(t *testing.T) {
	s, _ := newService(t, Backend{Adapter: newFakeAdapter(), Feed: &fakeFeed{}})
	var seen []syncstate.Status
	stop := s.Subscribe(func(st syncstate.State) { seen = append(seen, st.Status) })
	defer stop()

	require.NoError(t, s.SetLive(context.Background(), true))
	require.NoError(t, s.SetLive(context.Background(), true))
	assert.Equal(t, []syncstate.Status{syncstate.StatusLoading, syncstate.StatusSynced}, seen)
}

func TestSignIn_ResumesStoredLiveMode(t *testing.T) {
	ctx := context.Background()
	s, lc := newService(t, Backend{Adapter: newFakeAdapter(), Feed: &fakeFeed{}})
	require.NoError(t, lc.SetSetting(ctx, local.KeySyncMode, ModeLive))

	_, err := s.SignIn(ctx)
	require.NoError(t, err)
	assert.True(t, s.Live())
	assert.Equal(t, syncstate.StatusSynced, s.Status().Status)
}

func TestSignIn_ManualModeStaysManual(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Backend{Adapter: newFakeAdapter(), Feed: &fakeFeed{}})

	_, err := s.SignIn(ctx)
	require.NoError(t, err)
	assert.False(t, s.Live())
	assert.Equal(t, syncstate.StatusIdle, s.Status().Status)
}

func TestSignOut_StopsLive(t *testing.T) {
	ctx := context.Background()
	feed := &fakeFeed{}
	s, _ := newService(t, Backend{Adapter: newFakeAdapter(), Feed: feed})
	require.NoError(t, s.SetLive(ctx, true))

	require.NoError(t, s.SignOut(ctx))
	assert.False(t, s.Live())
}

func TestRecords_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	s, lc := newService(t, Backend{Adapter: newFakeAdapter()})

	added, err := s.AddRecord(ctx, models.ListCollection, rec("Portishead", "Dummy"))
	require.NoError(t, err)

	edit := rec("Portishead", "Dummy")
	edit.ID = added.ID
	edit.Year = 1994
	edit.CreatedAt = time.Now().Add(-time.Hour)
	out, err := s.UpdateRecord(ctx, models.ListCollection, edit)
	require.NoError(t, err)
	assert.Equal(t, added.ID, out.ID)
	assert.Equal(t, added.CreatedAt, out.CreatedAt)
	assert.Equal(t, 1994, lc.stored().Collection[0].Year)

	got, err := s.Get(models.ListCollection, added.ID)
	require.NoError(t, err)
	assert.Equal(t, 1994, got.Year)

	require.NoError(t, s.DeleteRecord(ctx, models.ListCollection, added.ID))
	assert.Empty(t, lc.stored().Collection)
	require.ErrorIs(t, s.DeleteRecord(ctx, models.ListCollection, added.ID), common.ErrNotFound)
	_, err = s.Get(models.ListCollection, added.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestAddRecord_RejectsInvalid(t *testing.T) {
	s, lc := newService(t, Backend{Adapter: newFakeAdapter()})

	_, err := s.AddRecord(context.Background(), models.ListCollection, rec("  ", "Untitled"))
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, 0, lc.saves)
}

func TestFindDuplicates(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Backend{Adapter: newFakeAdapter()})

	_, err := s.AddRecord(ctx, models.ListCollection, rec("Radiohead", "OK Computer"))
	require.NoError(t, err)
	_, err = s.AddRecord(ctx, models.ListWantlist, rec("Radiohead", "OK Computer"))
	require.NoError(t, err)
	_, err = s.AddRecord(ctx, models.ListCollection, rec("Radiohead", "Kid A"))
	require.NoError(t, err)

	got := s.FindDuplicates("Radiohead", "OK Computer")
	require.Len(t, got, 2)
	assert.Equal(t, models.ListCollection, got[0].List)
	assert.Equal(t, models.ListWantlist, got[1].List)

	assert.Empty(t, s.FindDuplicates("Massive Attack", "Mezzanine"))
}

type coverFinder struct{ url string }

func (c coverFinder) FindCover(context.Context, string, string) (string, error) {
	return c.url, nil
}

func TestAddRecord_EnrichesInBackground(t *testing.T) {
	ctx := context.Background()
	lc := newMemLocal()
	s := New(Backend{Adapter: newFakeAdapter()}, Options{
		Local:    lc,
		Enricher: &enrich.Runner{Cover: coverFinder{url: "https://covers.example/1.jpg"}},
	})

	added, err := s.AddRecord(ctx, models.ListCollection, rec("Stereolab", "Dots and Loops"))
	require.NoError(t, err)
	require.NoError(t, s.Close(ctx))

	got, err := s.Get(models.ListCollection, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://covers.example/1.jpg", got.CoverURL)
	assert.Equal(t, "https://covers.example/1.jpg", lc.stored().Collection[0].CoverURL)
}

type revAdapter struct {
	*fakeAdapter
	revs []backends.Revision
	old  *models.Snapshot
	err  error
}

func (r *revAdapter) Revisions(context.Context) ([]backends.Revision, error) {
	return r.revs, r.err
}

func (r *revAdapter) LoadRevision(_ context.Context, id string) (*models.Snapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	if id != "rev-1" {
		return nil, errors.New("unknown revision")
	}
	return r.old.Clone(), nil
}

func TestRevisions(t *testing.T) {
	ctx := context.Background()
	ra := &revAdapter{
		fakeAdapter: newFakeAdapter(),
		revs:        []backends.Revision{{ID: "rev-1", Size: 120}},
		old:         &models.Snapshot{Collection: []models.Record{{ID: "x", Artist: "Can", Title: "Future Days"}}, Wantlist: []models.Record{}},
	}
	s, lc := newService(t, Backend{Adapter: ra})

	revs, err := s.Revisions(ctx)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, syncstate.StatusIdle, s.Status().Status)

	snap, err := s.RestoreRevision(ctx, "rev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count())
	assert.Len(t, lc.stored().Collection, 1)
	assert.Equal(t, 0, ra.saveCount())
}

func TestRevisions_UnauthorizedSignsOut(t *testing.T) {
	ra := &revAdapter{fakeAdapter: newFakeAdapter(), err: common.ErrUnauthorized}
	s, _ := newService(t, Backend{Adapter: ra})

	_, err := s.Revisions(context.Background())
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, 1, ra.signOuts)
}

func TestRevisions_Unsupported(t *testing.T) {
	s, _ := newService(t, Backend{Adapter: newFakeAdapter()})
	_, err := s.Revisions(context.Background())
	require.ErrorIs(t, err, common.ErrUnsupported)
	_, err = s.RestoreRevision(context.Background(), "rev-1")
	require.ErrorIs(t, err, common.ErrUnsupported)
}

func TestReconfigure(t *testing.T) {
	ctx := context.Background()
	s, lc := newService(t, Backend{})
	require.Equal(t, syncstate.StatusDisabled, s.Status().Status)

	require.NoError(t, s.Reconfigure(ctx, Backend{Adapter: newFakeAdapter()}))
	assert.Equal(t, syncstate.StatusIdle, s.Status().Status)
	assert.Equal(t, "fake", s.BackendName())
	assert.Equal(t, "fake", lc.settings[local.KeyBackend])

	_, err := s.Load(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Reconfigure(ctx, Backend{}))
	assert.Equal(t, syncstate.StatusDisabled, s.Status().Status)
	assert.Equal(t, "none", lc.settings[local.KeyBackend])
}

func TestFormatView(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, Backend{})

	f, err := s.FormatView(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FormatCD, f)

	require.NoError(t, s.SetFormatView(ctx, models.FormatVinyl))
	f, err = s.FormatView(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.FormatVinyl, f)

	require.ErrorIs(t, s.SetFormatView(ctx, "cassette"), common.ErrValidation)
}

func TestSubscribe_SeesTransitions(t *testing.T) {
	s, _ := newService(t, Backend{Adapter: newFakeAdapter()})
	var (
		mu   sync.Mutex
		seen []syncstate.Status
	)
	stop := s.Subscribe(func(st syncstate.State) {
		mu.Lock()
		seen = append(seen, st.Status)
		mu.Unlock()
	})
	defer stop()

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []syncstate.Status{syncstate.StatusLoading, syncstate.StatusSynced}, seen)
}
