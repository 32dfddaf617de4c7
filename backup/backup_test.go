package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cufee/botto-moderator/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSnapshotCopiesDocuments(t *testing.T) {
	t.Parallel()

	bolt, err := database.NewBoltStore(filepath.Join(t.TempDir(), "botto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	require.NoError(t, bolt.Save(database.LogChannelsDoc, map[string]string{"g1": "c1"}))
	require.NoError(t, bolt.Save(database.WarnCountsDoc, map[string]any{"g1": map[string]any{"warnings": map[string]int{"u1": 2}}}))

	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	path, err := Snapshot(bolt, database.Documents, dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-05-01_12-30-00"), path)

	data, err := os.ReadFile(filepath.Join(path, "logChannels.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"g1\": \"c1\"\n}", string(data))

	_, err = os.Stat(filepath.Join(path, "warnCounts.json"))
	assert.NoError(t, err)

	// Documents never written are left out
	_, err = os.Stat(filepath.Join(path, "mutes.json"))
	assert.True(t, os.IsNotExist(err))

	second, err := Snapshot(bolt, database.Documents, dir, now)
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
}

func TestPrune(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		_, err := newSnapshotDir(dir, base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
	}

	removed, err := Prune(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "2024-01-03_00-00-00", entries[0].Name())

	removed, err = Prune(dir, 0)
	require.NoError(t, err)
	assert.Zero(t, removed, "zero keeps everything")
}

func TestRunnerOnce(t *testing.T) {
	t.Parallel()

	store, err := database.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(database.MuteConfigDoc, map[string]any{}))

	dir := t.TempDir()
	r := NewRunner(store, database.Documents, dir, time.Hour, 2, zap.NewNop())
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}

	for range 4 {
		_, err := r.Once()
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
