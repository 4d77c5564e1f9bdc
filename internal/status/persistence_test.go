package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "status.json")
	persistence := NewFileStatusPersistence(path)

	now := time.Now().UTC().Truncate(time.Second)
	testStatus := &SyncStatus{
		Phase:         SyncPhaseIdle,
		Outcome:       OutcomeSucceeded,
		Message:       "Refresh completed",
		Trigger:       "refresh",
		LastAttempt:   &now,
		LastAttemptID: "6b0f9c1e-0000-4000-8000-000000000000",
		LastSyncTime:  &now,
		LastSyncHash:  "abc123",
		RecordCount:   12,
		FeatureCount:  10,
		DroppedCount:  2,
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveStatus(ctx, testStatus))

	_, err := os.Stat(path)
	require.NoError(t, err)
	assert.NoFileExists(t, path+".tmp")

	loaded, err := persistence.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, testStatus, loaded)
}

func TestFileStatusPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(filepath.Join(t.TempDir(), "status.json"))

	loaded, err := persistence.LoadStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseIdle, loaded.Phase)
	assert.Nil(t, loaded.LastSyncTime)
}

func TestFileStatusPersistence_LoadCorrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStatusPersistence(path).LoadStatus(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal status data")
}

func TestFileStatusPersistence_SaveOverwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "status.json")
	persistence := NewFileStatusPersistence(path)
	ctx := context.Background()

	require.NoError(t, persistence.SaveStatus(ctx, &SyncStatus{Phase: SyncPhaseFetching, AttemptCount: 1}))
	require.NoError(t, persistence.SaveStatus(ctx, &SyncStatus{Phase: SyncPhaseIdle, Outcome: OutcomeFailed, AttemptCount: 2}))

	loaded, err := persistence.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseIdle, loaded.Phase)
	assert.Equal(t, OutcomeFailed, loaded.Outcome)
	assert.Equal(t, 2, loaded.AttemptCount)
}

func TestSyncStatus_Clone(t *testing.T) {
	t.Parallel()

	now := time.Now()
	original := &SyncStatus{Phase: SyncPhaseCommitting, LastAttempt: &now}
	clone := original.Clone()

	later := now.Add(time.Hour)
	*clone.LastAttempt = later
	clone.Phase = SyncPhaseIdle

	assert.Equal(t, now, *original.LastAttempt)
	assert.Equal(t, SyncPhaseCommitting, original.Phase)
	assert.True(t, original.InProgress())
	assert.False(t, clone.InProgress())

	var nilStatus *SyncStatus
	assert.Nil(t, nilStatus.Clone())
}
