package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendHistory(ctx, base.Add(time.Duration(i)*time.Minute), float64(40+i)))
	}

	points, err := s.RecentHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, 44.0, points[0].Percent, "newest first")
	assert.True(t, points[0].At.Equal(base.Add(4*time.Minute)))
	assert.Equal(t, 42.0, points[2].Percent)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRecentDefaultLimit(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for i := 0; i < DefaultLimit+5; i++ {
		require.NoError(t, s.AppendHistory(ctx, base.Add(time.Duration(i)*time.Second), 50))
	}

	points, err := s.RecentHistory(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, points, DefaultLimit)
}

func TestRecentEmpty(t *testing.T) {
	s := openMemory(t)
	points, err := s.RecentHistory(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestNonUTCTimesStoredAsUTC(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	loc := time.FixedZone("CEST", 2*60*60)

	require.NoError(t, s.AppendHistory(ctx, base.In(loc), 33))
	points, err := s.RecentHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].At.Equal(base))
	assert.Equal(t, time.UTC, points[0].At.Location())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)

	s, err := New(db)
	require.NoError(t, err)
	assert.NoError(t, s.AppendHistory(context.Background(), base, 12.5))
}

func TestMigrateNilDB(t *testing.T) {
	assert.Error(t, Migrate(nil))
	_, err := New(nil)
	assert.Error(t, err)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AppendHistory(ctx, base, 61))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	points, err := s.RecentHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, 61.0, points[0].Percent)
}

func TestAppendCancelledContext(t *testing.T) {
	s := openMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, s.AppendHistory(ctx, base, 10))
}
