package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/guard"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "menu.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_GetMenu_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	rec, err := s.GetMenu(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_SaveMenu_FirstSaveAccepted(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := menuDoc(5, "Entrees", "Desserts")
	res, err := s.SaveMenu(ctx, "biz-1", joes, doc)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.True(t, res.Decision.Accept)
	assert.NotEmpty(t, res.RunID)

	rec, err := s.GetMenu(ctx, "biz-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "biz-1", rec.BusinessID)
	assert.Equal(t, joes, rec.Business)
	assert.Equal(t, 10, rec.Document.ItemCount())
	assert.Len(t, rec.Document.Sections, 2)
	assert.Greater(t, rec.Quality, 0.0)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestSQLite_SaveMenu_ThinnerRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(6, "Entrees", "Desserts"))
	require.NoError(t, err)

	res, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(2, "Entrees"))
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, guard.ReasonThinner, res.Decision.Reason)

	rec, err := s.GetMenu(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 12, rec.Document.ItemCount(), "stored document is unchanged")
}

func TestSQLite_SaveMenu_NarrowedRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(3, "Entrees", "Desserts"))
	require.NoError(t, err)

	res, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(4, "Brunch"))
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, guard.ReasonNarrowed, res.Decision.Reason)
}

func TestSQLite_SaveMenu_RicherReplaces(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(4, "Entrees", "Desserts"))
	require.NoError(t, err)

	res, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(5, "Entrees", "Desserts", "Drinks"))
	require.NoError(t, err)
	assert.True(t, res.Stored)

	rec, err := s.GetMenu(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 15, rec.Document.ItemCount())
}

func TestSQLite_SaveMenu_RequiresID(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.SaveMenu(context.Background(), " ", joes, menuDoc(1, "Entrees"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "business id is required")
}

func TestSQLite_ListRuns(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(6, "Entrees", "Desserts"))
	require.NoError(t, err)
	second, err := s.SaveMenu(ctx, "biz-1", joes, menuDoc(1, "Entrees"))
	require.NoError(t, err)
	_, err = s.SaveMenu(ctx, "biz-2", joes, menuDoc(1, "Entrees"))
	require.NoError(t, err)

	runs, err := s.ListRuns(ctx, "biz-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, second.RunID, runs[0].ID)
	assert.False(t, runs[0].Accepted)
	assert.Equal(t, guard.ReasonThinner, runs[0].Reason)
	assert.Equal(t, 1, runs[0].Items)
	assert.Equal(t, 1, runs[0].Sections)

	assert.Equal(t, first.RunID, runs[1].ID)
	assert.True(t, runs[1].Accepted)
	assert.Equal(t, 12, runs[1].Items)

	limited, err := s.ListRuns(ctx, "biz-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "open.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "mongo"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")

	_, err = Open(ctx, config.StoreConfig{Driver: "postgres"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}
