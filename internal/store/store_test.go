package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oasisrun/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testModel = model.ModelIdentity{SupplierID: "AcmeCo", ModelID: "Flood01", ModelVersion: "1.0"}

func TestStore_RecordAndList(t *testing.T) {
	s := openTestStore(t)

	id, err := s.RecordStart(testModel, "/var/runs/ProgOasis-20260823")
	require.NoError(t, err)

	runs, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	got := runs[0]
	assert.Equal(t, id, got.ID)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "AcmeCo/Flood01/1.0", got.Model)
	assert.True(t, got.FinishedAt.IsZero(), "running run must have no finish time")

	require.NoError(t, s.RecordFinish(id, 0))
	runs, err = s.List(10)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, runs[0].Status)
	assert.Equal(t, 0, runs[0].ExitStatus)
	assert.False(t, runs[0].FinishedAt.IsZero(), "completed run must have a finish time")
}

func TestStore_FailedRun(t *testing.T) {
	s := openTestStore(t)

	id, err := s.RecordStart(testModel, "/var/runs/x")
	require.NoError(t, err)
	require.NoError(t, s.RecordFinish(id, 3))

	runs, err := s.List(1)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Equal(t, 3, runs[0].ExitStatus)
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := openTestStore(t)

	first, err := s.RecordStart(testModel, "/var/runs/a")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.RecordStart(testModel, "/var/runs/b")
	require.NoError(t, err)

	runs, err := s.List(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, first, runs[1].ID)

	limited, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)
}

func TestStore_RecordFinishUnknownRun(t *testing.T) {
	s := openTestStore(t)
	assert.Error(t, s.RecordFinish("no-such-run", 0))
}
