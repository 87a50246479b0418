package changelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newTracker(t *testing.T, opts Options, trackerOpts ...TrackerOption) *Tracker {
	t.Helper()

	d, err := Derive(nil, articleTable(), opts)
	require.NoError(t, err)
	return NewTracker(d, trackerOpts...)
}

func TestTrackerScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(1), "title": "Initial", "age": int64(1)}

	require.NoError(t, save(ctx, tr, store, article, false))
	assert.Equal(t, 0, store.count("article_title_log"), "first save must not log")

	article["title"] = "Teschd"
	require.NoError(t, save(ctx, tr, store, article, true))
	require.Equal(t, 1, store.count("article_title_log"))
	assert.Equal(t, []any{int64(1)}, store.column("article_title_log", "version"))
	assert.Equal(t, []any{"Initial"}, store.column("article_title_log", "title"))

	rec, ok := tr.LastVersion("title")
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, "Initial", rec.Value)
	assert.Equal(t, []Value{{Column: "id", Value: int64(1)}}, rec.Key)

	article["age"] = int64(2)
	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, 1, store.count("article_title_log"))
	_, ok = tr.LastVersion("title")
	assert.False(t, ok, "unchanged field reports nothing changed")

	article["title"] = "Changed"
	require.NoError(t, save(ctx, tr, store, article, true))
	require.Equal(t, 2, store.count("article_title_log"))
	assert.Equal(t, []any{int64(1), int64(2)}, store.column("article_title_log", "version"))
	assert.Equal(t, []any{"Initial", "Teschd"}, store.column("article_title_log", "title"))

	rec, ok = tr.LastVersion("title")
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Version)
	assert.Equal(t, "Teschd", rec.Value)
}

func TestTrackerVersionsAreGapless(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(7), "title": "v0"}
	tr.PostHydrate(article)

	for _, title := range []string{"v1", "v2", "v3", "v4"} {
		article["title"] = title
		require.NoError(t, save(ctx, tr, store, article, true))
	}

	assert.Equal(t, []any{int64(1), int64(2), int64(3), int64(4)}, store.column("article_title_log", "version"))
	assert.Equal(t, []any{"v0", "v1", "v2", "v3"}, store.column("article_title_log", "title"))
}

func TestTrackerVersionsArePerOriginRow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.rows["article_title_log"] = [][]Value{
		{{Column: "id", Value: int64(2)}, {Column: "version", Value: int64(5)}, {Column: "title", Value: "other"}},
	}

	tr := newTracker(t, trackOptions("title"))
	article := entity{"id": int64(1), "title": "a"}
	tr.PostHydrate(article)

	article["title"] = "b"
	require.NoError(t, save(ctx, tr, store, article, true))

	rec, ok := tr.LastVersion("title")
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Version)
}

func TestTrackerReloadWithoutChange(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title", "body"))

	article := entity{"id": int64(1), "title": "Initial", "body": nil}
	tr.PostHydrate(article)
	assert.Equal(t, StateLoaded, tr.State())

	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, 0, store.count("article_title_log"))
	assert.Equal(t, 0, store.count("article_body_log"))
}

func TestTrackerFieldIndependence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title", "body"))

	article := entity{"id": int64(1), "title": "t", "body": "b"}
	tr.PostHydrate(article)

	article["body"] = "b2"
	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, 0, store.count("article_title_log"))
	assert.Equal(t, 1, store.count("article_body_log"))
	assert.False(t, tr.Dirty("title"))

	article["title"] = "t2"
	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, 1, store.count("article_title_log"))
	assert.Equal(t, 1, store.count("article_body_log"))
}

func TestTrackerComparesByValue(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("age", "title"))

	article := entity{"id": int64(1), "age": int64(2), "title": []byte("same")}
	tr.PostHydrate(article)

	article["age"] = 2
	article["title"] = "same"
	tr.PreSave(article)
	assert.False(t, tr.Dirty("age"))
	assert.False(t, tr.Dirty("title"))

	require.NoError(t, tr.PostUpdate(ctx, store, article))
	assert.Equal(t, 0, store.count("article_age_log"))
}

func TestTrackerLogsNullPreviousValue(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("body"))

	article := entity{"id": int64(1), "body": nil}
	tr.PostHydrate(article)

	article["body"] = "now set"
	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, []any{nil}, store.column("article_body_log", "body"))
}

func TestTrackerStates(t *testing.T) {
	tr := newTracker(t, trackOptions("title"))
	article := entity{"id": int64(1), "title": "x"}

	assert.Equal(t, StateUnloaded, tr.State())
	tr.PostHydrate(article)
	assert.Equal(t, StateLoaded, tr.State())
	tr.PreSave(article)
	assert.Equal(t, StateDirtyChecked, tr.State())
	tr.PostSave(article)
	assert.Equal(t, StateLoaded, tr.State())
	assert.Equal(t, "loaded", tr.State().String())
}

func TestAddVersionWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(1), "title": "x"}
	tr.PreSave(article)
	require.True(t, tr.Dirty("title"))

	rec, written, err := tr.AddVersion(ctx, store, article, "title")
	require.NoError(t, err)
	assert.False(t, written)
	assert.Zero(t, rec)
	assert.Equal(t, 0, store.count("article_title_log"))
}

func TestAddVersionUntrackedField(t *testing.T) {
	tr := newTracker(t, trackOptions("title"))

	_, _, err := tr.AddVersion(context.Background(), newMemStore(), entity{}, "age")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestTrackerStorageErrorKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(1), "title": "old"}
	tr.PostHydrate(article)
	article["title"] = "new"

	store.insertErr = errors.New("connection reset")
	tr.PreSave(article)
	err := tr.PostUpdate(ctx, store, article)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorage))

	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "insert version", storageErr.Op)
	assert.Equal(t, "article_title_log", storageErr.Table)

	snap, ok := tr.Snapshot("title")
	require.True(t, ok)
	assert.Equal(t, "old", snap)
	assert.True(t, tr.Dirty("title"))

	store.insertErr = nil
	require.NoError(t, tr.PostUpdate(ctx, store, article))
	assert.Equal(t, []any{"old"}, store.column("article_title_log", "title"))
}

func TestTrackerPartialFailureRestoresEveryField(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failAfter = 1
	tr := newTracker(t, trackOptions("title", "body"))

	article := entity{"id": int64(1), "title": "t", "body": "b"}
	tr.PostHydrate(article)
	article["title"] = "t2"
	article["body"] = "b2"

	tr.PreSave(article)
	require.Error(t, tr.PostUpdate(ctx, store, article))

	snap, _ := tr.Snapshot("title")
	assert.Equal(t, "t", snap, "snapshot of the written field is rolled back with the transaction")
	assert.True(t, tr.Dirty("title"))
	_, ok := tr.LastVersion("title")
	assert.False(t, ok)
}

func TestTrackerMaxVersionError(t *testing.T) {
	store := newMemStore()
	store.maxErr = errors.New("timeout")
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(1), "title": "a"}
	tr.PostHydrate(article)
	article["title"] = "b"
	tr.PreSave(article)

	err := tr.PostUpdate(context.Background(), store, article)
	var storageErr *StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "read last version", storageErr.Op)
}

func TestTrackerVersionConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))
	article := entity{"id": int64(1), "title": "a"}
	tr.PostHydrate(article)

	// a concurrent writer takes version 1 between the read and the insert
	store.insertErr = ErrVersionConflict
	article["title"] = "b"
	tr.PreSave(article)

	err := tr.PostUpdate(ctx, store, article)
	assert.True(t, errors.Is(err, ErrVersionConflict))
	assert.True(t, errors.Is(err, ErrStorage))
}

func TestTrackerStagedMetadata(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	opts := trackOptions("title", "body")
	opts.CreatedAt = true
	opts.CreatedBy = true
	opts.Comment = true
	tr := newTracker(t, opts, WithClock(func() time.Time { return now }))

	article := entity{"id": int64(1), "title": "a", "body": "x"}
	tr.PostHydrate(article)

	require.NoError(t, tr.SetChangeBy("title", "alice"))
	require.NoError(t, tr.SetChangeComment("title", "typo"))
	require.NoError(t, tr.SetChangeBy("body", "bob"))

	by, ok := tr.ChangeBy("title")
	require.True(t, ok)
	assert.Equal(t, "alice", by)

	article["title"] = "b"
	require.NoError(t, save(ctx, tr, store, article, true))

	assert.Equal(t, []any{now}, store.column("article_title_log", "log_created_at"))
	assert.Equal(t, []any{"alice"}, store.column("article_title_log", "log_created_by"))
	assert.Equal(t, []any{"typo"}, store.column("article_title_log", "log_comment"))

	rec, ok := tr.LastVersion("title")
	require.True(t, ok)
	require.NotNil(t, rec.CreatedBy)
	assert.Equal(t, "alice", *rec.CreatedBy)
	assert.Equal(t, now, *rec.CreatedAt)

	_, ok = tr.ChangeBy("title")
	assert.False(t, ok, "staged actor is consumed by the write")
	_, ok = tr.ChangeComment("title")
	assert.False(t, ok)

	by, ok = tr.ChangeBy("body")
	require.True(t, ok, "staged actor of an unchanged field is kept")
	assert.Equal(t, "bob", by)

	article["title"] = "c"
	require.NoError(t, save(ctx, tr, store, article, true))
	assert.Equal(t, []any{"alice", nil}, store.column("article_title_log", "log_created_by"))
}

func TestTrackerStagingRequiresOption(t *testing.T) {
	tr := newTracker(t, trackOptions("title"))

	err := tr.SetChangeBy("title", "alice")
	assert.True(t, errors.Is(err, ErrConfiguration))

	err = tr.SetChangeComment("title", "why")
	assert.True(t, errors.Is(err, ErrConfiguration))

	opts := trackOptions("title")
	opts.CreatedBy = true
	tr = newTracker(t, opts)
	assert.True(t, errors.Is(tr.SetChangeBy("age", "alice"), ErrConfiguration))
}

func TestTrackerSavepoint(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"))

	article := entity{"id": int64(1), "title": "a"}
	tr.PostHydrate(article)
	sp := tr.Savepoint()

	article["title"] = "b"
	require.NoError(t, save(ctx, tr, store, article, true))
	snap, _ := tr.Snapshot("title")
	assert.Equal(t, "b", snap)

	// the surrounding transaction did not commit
	tr.RollbackTo(sp)
	snap, _ = tr.Snapshot("title")
	assert.Equal(t, "a", snap)
	assert.Equal(t, StateLoaded, tr.State())
}

func TestWriterLogs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	store := newMemStore()
	tr := newTracker(t, trackOptions("title"), WithLogger(zap.New(core)))

	article := entity{"id": int64(1), "title": "a"}
	tr.PostHydrate(article)
	article["title"] = "b"
	require.NoError(t, save(context.Background(), tr, store, article, true))

	entries := logs.FilterMessage("version written").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "article_title_log", fields["table"])
	assert.Equal(t, int64(1), fields["version"])
}

func TestVersionRecordRowOrder(t *testing.T) {
	opts := trackOptions("title")
	opts.CreatedBy = true
	opts.Comment = true

	by := "alice"
	rec := VersionRecord{
		Field:     "title",
		Key:       []Value{{Column: "id", Value: 1}},
		Version:   3,
		Value:     "old",
		CreatedBy: &by,
	}

	assert.Equal(t, []Value{
		{Column: "id", Value: 1},
		{Column: "version", Value: int64(3)},
		{Column: "title", Value: "old"},
		{Column: "log_created_by", Value: "alice"},
		{Column: "log_comment", Value: nil},
	}, rec.Row(opts))
}
