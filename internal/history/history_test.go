package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "state", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	s := openTemp(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &Run{
		StartedAt: base, Duration: 1500 * time.Millisecond, Mode: "execute", SourceRoot: "/raw",
		NewFiles: 1, UnchangedFiles: 40, ExitCode: 1,
		Actions: []Action{
			{Artifact: "fact_perm/", Stage: 1, Command: "curate", Outcome: "success", Duration: time.Second},
			{Artifact: "employer_features.parquet", Stage: 2, Command: "features", Outcome: "failed", ExitCode: 2},
		},
	}
	second := &Run{
		StartedAt: base.Add(time.Hour), Mode: "execute", SourceRoot: "/raw",
		ManifestCommitted: true, ManifestDigest: "abc123",
	}

	// --- Act ---
	id1, err := s.Record(ctx, first)
	require.NoError(t, err)
	_, err = s.Record(ctx, second)
	require.NoError(t, err)
	runs, err := s.List(ctx, 10)

	// --- Assert ---
	require.NoError(t, err)
	_, err = uuid.Parse(id1)
	assert.NoError(t, err, "run IDs are UUIDs")

	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.True(t, runs[0].ManifestCommitted)
	assert.Equal(t, "abc123", runs[0].ManifestDigest)
	assert.Empty(t, runs[0].Actions)

	got := runs[1]
	assert.Equal(t, id1, got.ID)
	assert.True(t, base.Equal(got.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, 1, got.ExitCode)
	assert.False(t, got.ManifestCommitted)
	assert.Equal(t, first.Actions, got.Actions)
}

func TestList_Limit(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, &Run{StartedAt: time.Unix(int64(i), 0), Mode: "plan"})
		require.NoError(t, err)
	}

	runs, err := s.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRecord_KeepsExplicitID(t *testing.T) {
	s := openTemp(t)
	id, err := s.Record(context.Background(), &Run{ID: "fixed", StartedAt: time.Now(), Mode: "init"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)

	_, err = s.Record(context.Background(), &Run{ID: "fixed", StartedAt: time.Now(), Mode: "init"})
	assert.Error(t, err, "duplicate run IDs are rejected")
}

func TestOpen_ReopensExistingLedger(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Record(ctx, &Run{StartedAt: time.Now(), Mode: "plan"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
