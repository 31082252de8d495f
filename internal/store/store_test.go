package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.DB().Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	s.Close()

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestTx_RollbackDiscardsEverything(t *testing.T) {
	s := createTestStore(t)

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	_, err = tx.InsertEntry("hub-a")
	require.NoError(t, err)
	_, err = tx.AppendFact("flow-1", "directory.registered", "hub-a", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	err = s.View(context.Background(), func(tx *Tx) error {
		n, err := tx.CountEntries()
		require.NoError(t, err)
		assert.Zero(t, n)

		facts, err := tx.CountFacts(FactFilter{})
		require.NoError(t, err)
		assert.Zero(t, facts)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	s := createTestStore(t)

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, tx.Rollback())
	assert.Error(t, tx.Commit())
}

func TestTx_CancelledContextRollsBack(t *testing.T) {
	s := createTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.InsertEntry("hub-a")
	require.NoError(t, err)
	cancel()
	assert.Error(t, tx.Commit())

	err = s.View(context.Background(), func(tx *Tx) error {
		n, err := tx.CountEntries()
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}
