package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"flatwatch/internal/logger"
	"flatwatch/internal/model"
	"flatwatch/internal/report"
	"flatwatch/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	snapshot model.Snapshot
	err      error
}

func (f *fakeFetcher) FetchAll(context.Context) (model.Snapshot, error) {
	return f.snapshot, f.err
}

type sent struct {
	subject string
	body    string
}

type fakeNotifier struct {
	sent []sent
	err  error
}

// Notify fails like the real notifiers do when ctx is already done.
func (f *fakeNotifier) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.sent = append(f.sent, sent{subject: subject, body: body})
	return f.err
}

type cancelledFetcher struct{}

func (cancelledFetcher) FetchAll(ctx context.Context) (model.Snapshot, error) {
	return nil, &model.TransportError{URL: "https://wunderflats.com/1", Err: ctx.Err()}
}

type failingStore struct {
	loadErr error
	saveErr error
	saved   model.Snapshot
}

func (s *failingStore) Load(context.Context) (model.Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return model.Snapshot{}, nil
}

func (s *failingStore) Save(_ context.Context, snap model.Snapshot) error {
	s.saved = snap
	return s.saveErr
}

func flat(id string, price int) model.Listing {
	return model.Listing{ID: id, Title: "Flat " + id, Price: price, Calendar: "01.06.2025", Rooms: 3, People: 2, URL: "/" + id, Size: 85}
}

func newWatcher(f Fetcher, s snapshot.Store, n *fakeNotifier) *Watcher {
	return New(f, s, report.NewRenderer("https://wunderflats.com", "WunderFlats"), n, logger.NewMockLogger())
}

func TestRun_ReportsAdditionsAndSavesSnapshot(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "flats-cache.json"))
	require.NoError(t, store.Save(ctx, model.Snapshot{"A": flat("A", 1000)}))

	fresh := model.Snapshot{"A": flat("A", 1000), "B": flat("B", 1250)}
	n := &fakeNotifier{}
	w := newWatcher(&fakeFetcher{snapshot: fresh}, store, n)

	require.NoError(t, w.Run(ctx))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats: 1 new, 0 removed", n.sent[0].subject)
	newSection := n.sent[0].body[:strings.Index(n.sent[0].body, "REMOVED PROPERTIES")]
	assert.Contains(t, newSection, "Flat B")
	assert.NotContains(t, newSection, "Flat A")

	saved, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, fresh, saved)
}

func TestRun_FetchFailureSendsErrorReportAndKeepsCache(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "flats-cache.json"))
	old := model.Snapshot{"A": flat("A", 1000)}
	require.NoError(t, store.Save(ctx, old))

	fetchErr := &model.TransportError{URL: "https://wunderflats.com/2", Err: errors.New("connection reset")}
	n := &fakeNotifier{}
	w := newWatcher(&fakeFetcher{err: fetchErr}, store, n)

	err := w.Run(ctx)

	assert.ErrorIs(t, err, fetchErr)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats script error", n.sent[0].subject)
	assert.Contains(t, n.sent[0].body, "transport")
	assert.Contains(t, n.sent[0].body, "connection reset")

	cached, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, old, cached)
}

func TestRun_CancelledRunStillSendsErrorReport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &failingStore{}
	n := &fakeNotifier{}
	w := newWatcher(cancelledFetcher{}, store, n)

	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats script error", n.sent[0].subject)
	assert.Contains(t, n.sent[0].body, "transport")
	assert.Nil(t, store.saved)
}

func TestRun_CorruptCacheIsStorageError(t *testing.T) {
	store := &failingStore{loadErr: &model.StorageError{Op: "decode", Path: "flats-cache.json", Err: errors.New("bad json")}}
	n := &fakeNotifier{}
	w := newWatcher(&fakeFetcher{snapshot: model.Snapshot{}}, store, n)

	err := w.Run(context.Background())

	assert.Equal(t, "storage", model.ErrorKind(err))
	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats script error", n.sent[0].subject)
	assert.Nil(t, store.saved)
}

func TestRun_SaveFailureSendsErrorReport(t *testing.T) {
	store := &failingStore{saveErr: &model.StorageError{Op: "write", Path: "flats-cache.json", Err: errors.New("read-only file system")}}
	n := &fakeNotifier{}
	w := newWatcher(&fakeFetcher{snapshot: model.Snapshot{"A": flat("A", 1)}}, store, n)

	err := w.Run(context.Background())

	assert.Error(t, err)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats script error", n.sent[0].subject)
}

func TestRun_NotifyFailureIsReturned(t *testing.T) {
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "flats-cache.json"))
	notifyErr := errors.New("smtp down")
	n := &fakeNotifier{err: notifyErr}
	w := newWatcher(&fakeFetcher{snapshot: model.Snapshot{"A": flat("A", 1)}}, store, n)

	err := w.Run(context.Background())

	assert.ErrorIs(t, err, notifyErr)
	assert.Len(t, n.sent, 1, "no retry")

	saved, lerr := store.Load(context.Background())
	require.NoError(t, lerr)
	assert.Len(t, saved, 1, "snapshot is saved before notifying")
}

func TestRun_NoChanges(t *testing.T) {
	ctx := context.Background()
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "flats-cache.json"))
	s := model.Snapshot{"A": flat("A", 1000)}
	require.NoError(t, store.Save(ctx, s))
	n := &fakeNotifier{}

	require.NoError(t, newWatcher(&fakeFetcher{snapshot: s}, store, n).Run(ctx))

	require.Len(t, n.sent, 1)
	assert.Equal(t, "WunderFlats: no changes", n.sent[0].subject)
}

func TestLoadAndProcess_FirstRun(t *testing.T) {
	store := snapshot.NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	fresh := model.Snapshot{"A": flat("A", 1000), "B": flat("B", 900)}
	w := newWatcher(&fakeFetcher{snapshot: fresh}, store, &fakeNotifier{})

	state, err := w.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Old)

	out := w.Process(state)
	assert.Equal(t, fresh, out.Diff.Added)
	assert.Empty(t, out.Diff.Removed)
	assert.Equal(t, "WunderFlats: 2 new, 0 removed", out.Subject)

	// processing twice yields the same outcome
	assert.Equal(t, out, w.Process(state))
}
