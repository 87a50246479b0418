package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tordrt/fieldlog/internal/changelog"
	"github.com/tordrt/fieldlog/internal/schema"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func newArticleRepository(t *testing.T, opts changelog.Options) (*Repository, *SQLiteClient) {
	t.Helper()
	ctx := context.Background()

	client, err := NewSQLiteClient(ctx, filepath.Join(t.TempDir(), "fieldlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.GetDB().ExecContext(ctx,
		`CREATE TABLE article (id INTEGER PRIMARY KEY, title VARCHAR(255) NOT NULL, age INTEGER)`)
	require.NoError(t, err)

	origin, err := ExtractTable(ctx, NewSQLiteExtractor(client), "article")
	require.NoError(t, err)
	assert.True(t, origin.Column("id").AutoIncrement)

	catalog := &schema.Schema{Tables: []*schema.Table{origin}}
	d, err := changelog.Derive(catalog, origin, opts)
	require.NoError(t, err)
	require.NoError(t, client.Apply(ctx, CreateTablesSQL(SQLite, d.LogTables())))

	repo := NewRepository(client.GetDB(), SQLite, d, zaptest.NewLogger(t),
		changelog.WithClock(func() time.Time { return fixedNow }))
	return repo, client
}

func countRows(t *testing.T, client *SQLiteClient, table string) int {
	t.Helper()

	var n int
	err := client.GetDB().QueryRow(`SELECT COUNT(*) FROM ` + SQLite.Quote(table)).Scan(&n)
	require.NoError(t, err)
	return n
}

func titleOptions() changelog.Options {
	opts := changelog.DefaultOptions()
	opts.Log = []string{"title"}
	return opts
}

func TestRepositoryScenario(t *testing.T) {
	ctx := context.Background()
	repo, client := newArticleRepository(t, titleOptions())

	rec := repo.New(map[string]any{"title": "Initial", "age": 1})
	require.NoError(t, repo.Save(ctx, rec))
	assert.True(t, rec.Persisted())
	assert.Equal(t, int64(1), rec.FieldValue("id"))
	assert.Equal(t, 0, countRows(t, client, "article_title_log"))

	rec.Set("title", "Teschd")
	require.NoError(t, repo.Save(ctx, rec))
	assert.Equal(t, 1, countRows(t, client, "article_title_log"))

	rec.Set("age", 2)
	require.NoError(t, repo.Save(ctx, rec))
	assert.Equal(t, 1, countRows(t, client, "article_title_log"))

	rec.Set("title", "Changed")
	require.NoError(t, repo.Save(ctx, rec))

	history, err := repo.History(ctx, rec, "title")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Version)
	assert.Equal(t, "Initial", history[0].Value)
	assert.Equal(t, int64(2), history[1].Version)
	assert.Equal(t, "Teschd", history[1].Value)

	last, ok := rec.Tracker().LastVersion("title")
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Version)
}

func TestRepositoryFind(t *testing.T) {
	ctx := context.Background()
	repo, client := newArticleRepository(t, titleOptions())

	rec := repo.New(map[string]any{"title": "Initial"})
	require.NoError(t, repo.Save(ctx, rec))

	found, err := repo.Find(ctx, rec.FieldValue("id"))
	require.NoError(t, err)
	assert.Equal(t, "Initial", found.FieldValue("title"))
	assert.Nil(t, found.FieldValue("age"))
	assert.Equal(t, changelog.StateLoaded, found.Tracker().State())

	require.NoError(t, repo.Save(ctx, found))
	assert.Equal(t, 0, countRows(t, client, "article_title_log"), "saving a reloaded record unchanged logs nothing")

	found.Set("title", "Edited")
	require.NoError(t, repo.Save(ctx, found))
	assert.Equal(t, 1, countRows(t, client, "article_title_log"))

	_, err = repo.Find(ctx, int64(999))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.Find(ctx)
	assert.Error(t, err)
}

func TestRepositoryMetadata(t *testing.T) {
	ctx := context.Background()
	opts := titleOptions()
	opts.CreatedAt = true
	opts.CreatedBy = true
	opts.Comment = true
	repo, _ := newArticleRepository(t, opts)

	rec := repo.New(map[string]any{"title": "a"})
	require.NoError(t, repo.Save(ctx, rec))

	require.NoError(t, rec.Tracker().SetChangeBy("title", "alice"))
	require.NoError(t, rec.Tracker().SetChangeComment("title", "fix typo"))
	rec.Set("title", "b")
	require.NoError(t, repo.Save(ctx, rec))

	rec.Set("title", "c")
	require.NoError(t, repo.Save(ctx, rec))

	history, err := repo.History(ctx, rec, "title")
	require.NoError(t, err)
	require.Len(t, history, 2)

	first := history[0]
	assert.Equal(t, "a", first.Value)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, "alice", *first.CreatedBy)
	require.NotNil(t, first.Comment)
	assert.Equal(t, "fix typo", *first.Comment)
	require.NotNil(t, first.CreatedAt)
	assert.True(t, fixedNow.Equal(*first.CreatedAt))

	second := history[1]
	assert.Equal(t, "b", second.Value)
	assert.Nil(t, second.CreatedBy, "staged actor applies to one version only")
	assert.Nil(t, second.Comment)
}

func TestRepositoryFailedSaveKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	repo, client := newArticleRepository(t, titleOptions())

	rec := repo.New(map[string]any{"title": "kept"})
	require.NoError(t, repo.Save(ctx, rec))

	rec.Set("title", nil)
	require.Error(t, repo.Save(ctx, rec), "title is NOT NULL")
	assert.Equal(t, 0, countRows(t, client, "article_title_log"))

	snap, ok := rec.Tracker().Snapshot("title")
	require.True(t, ok)
	assert.Equal(t, "kept", snap)

	rec.Set("title", "replaced")
	require.NoError(t, repo.Save(ctx, rec))

	history, err := repo.History(ctx, rec, "title")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "kept", history[0].Value)
}

func TestRepositoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo, client := newArticleRepository(t, titleOptions())

	rec := repo.New(map[string]any{"title": "one"})
	require.NoError(t, repo.Save(ctx, rec))
	rec.Set("title", "two")
	require.NoError(t, repo.Save(ctx, rec))
	require.Equal(t, 1, countRows(t, client, "article_title_log"))

	require.NoError(t, repo.Delete(ctx, rec))
	assert.False(t, rec.Persisted())
	assert.Equal(t, 0, countRows(t, client, "article_title_log"))
}

func TestRepositoryHistoryUntracked(t *testing.T) {
	repo, _ := newArticleRepository(t, titleOptions())

	_, err := repo.History(context.Background(), repo.New(nil), "age")
	assert.Error(t, err)
}

func TestRepositoryVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo, client := newArticleRepository(t, titleOptions())

	rec := repo.New(map[string]any{"title": "a"})
	require.NoError(t, repo.Save(ctx, rec))

	store := NewSQLStore(SQLite, client.GetDB())
	table := repo.derivation.LogTable("title")
	row := []changelog.Value{
		{Column: "id", Value: rec.FieldValue("id")},
		{Column: "version", Value: int64(1)},
		{Column: "title", Value: "x"},
	}
	require.NoError(t, store.InsertVersion(ctx, table, row))

	err := store.InsertVersion(ctx, table, row)
	assert.True(t, errors.Is(err, changelog.ErrVersionConflict))

	last, err := store.MaxVersion(ctx, table, "version", row[:1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}

func TestToTimePtr(t *testing.T) {
	for _, v := range []any{
		fixedNow,
		[]byte("2024-05-06 07:08:09"),
		"2024-05-06 07:08:09.000000",
		"2024-05-06T07:08:09Z",
	} {
		got, err := toTimePtr(v)
		require.NoError(t, err, "%v", v)
		require.NotNil(t, got, "%v", v)
		assert.True(t, fixedNow.Equal(*got), "%v", v)
	}

	got, err := toTimePtr(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = toTimePtr([]byte("yesterday"))
	assert.Error(t, err, "unreadable timestamps are not dropped silently")

	_, err = toTimePtr(int64(1))
	assert.Error(t, err)
}
