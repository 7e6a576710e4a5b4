package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pixperk/throttled/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestNewBoltDBJournal(t *testing.T) {
	tmpDir := t.TempDir()

	j, err := NewBoltDBJournal(filepath.Join(tmpDir, "nested"))
	require.NoError(t, err)
	defer j.Close()

	ops, err := j.LoadOperations()
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestSaveAndLoadOperations(t *testing.T) {
	tmpDir := t.TempDir()

	j, err := NewBoltDBJournal(tmpDir)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.SaveOperation("a", types.OperationConfig{MinInterval: time.Second}))
	require.NoError(t, j.SaveOperation("b", types.OperationConfig{MinInterval: 250 * time.Millisecond}))
	// overwrite
	require.NoError(t, j.SaveOperation("a", types.OperationConfig{MinInterval: 2 * time.Second}))

	ops, err := j.LoadOperations()
	require.NoError(t, err)
	assert.Len(t, ops, 2)
	assert.Equal(t, 2*time.Second, ops["a"].MinInterval)
	assert.Equal(t, 250*time.Millisecond, ops["b"].MinInterval)
}

func TestJournalSurvivesReopen(t *testing.T) {
	tmpDir := t.TempDir()

	j, err := NewBoltDBJournal(tmpDir)
	require.NoError(t, err)
	require.NoError(t, j.SaveOperation("persisted", types.OperationConfig{MinInterval: time.Minute}))
	require.NoError(t, j.Close())

	reopened, err := NewBoltDBJournal(tmpDir)
	require.NoError(t, err)
	defer reopened.Close()

	ops, err := reopened.LoadOperations()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ops["persisted"].MinInterval)
}

func TestCorruptValueSkipped(t *testing.T) {
	tmpDir := t.TempDir()

	j, err := NewBoltDBJournal(tmpDir)
	require.NoError(t, err)
	defer j.Close()

	err = j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(operationsBucket).Put([]byte("bad"), []byte("xyz"))
	})
	require.NoError(t, err)
	require.NoError(t, j.SaveOperation("good", types.OperationConfig{MinInterval: time.Second}))

	ops, err := j.LoadOperations()
	require.NoError(t, err)
	assert.Len(t, ops, 1)
	assert.Contains(t, ops, "good")
}
