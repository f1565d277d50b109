package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndGetRun(t *testing.T) {
	store := openStore(t)

	run := NewRun("jira")
	require.NoError(t, store.SaveRun(run))

	run.TaskID = "10042"
	run.Status = StatusCompleted
	run.Progress = 100
	run.Filename = "01012024_1200_export123.zip"
	run.Size = 2048
	run.Destinations = []string{"/backups/01012024_1200_export123.zip", "s3://b/01012024_1200_export123.zip"}
	require.NoError(t, store.SaveRun(run))

	got, err := store.GetRun(run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "jira", got.Product)
	assert.Equal(t, "10042", got.TaskID)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, int64(2048), got.Size)
	assert.Equal(t, run.Destinations, got.Destinations)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Second)
}

func TestGetRunMissing(t *testing.T) {
	store := openStore(t)

	got, err := store.GetRun("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListRunsNewestFirst(t *testing.T) {
	store := openStore(t)

	older := NewRun("confluence")
	older.StartedAt = time.Now().Add(-time.Hour)
	newer := NewRun("jira")

	require.NoError(t, store.SaveRun(older))
	require.NoError(t, store.SaveRun(newer))

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)
	assert.Nil(t, runs[0].Destinations)
}

func TestClosedStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.Error(t, store.SaveRun(NewRun("jira")))
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, StatusStarted.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimedOut.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}
