package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB(t *testing.T) {
	t.Run("file database creates directory and schema", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "plan.db")

		db, err := NewDB(path, nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"documents", "execution_metrics"} {
			var name string
			err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
			require.NoError(t, err, table)
			assert.Equal(t, table, name)
		}
	})

	t.Run("reopening is a no-op migration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.db")

		db, err := NewDB(path, nil)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		db, err = NewDB(path, nil)
		require.NoError(t, err)
		require.NoError(t, db.Close())
	})

	t.Run("memory database", func(t *testing.T) {
		db, err := NewDB(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.SQL.Exec(`INSERT INTO documents (path, collection, data, created_at, updated_at) VALUES ('a/b', 'a', '{}', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
		assert.NoError(t, err)
	})
}
