package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataSource(t *testing.T) {
	assert.Equal(t, "/tmp/c.db?"+connPragmas, dataSource("/tmp/c.db"))
	assert.Equal(t, "file:/tmp/c.db?mode=rwc&"+connPragmas, dataSource("file:/tmp/c.db?mode=rwc"))
}

func TestPragmasApplyToEveryConnection(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "clarity.db"))
	require.NoError(t, err)
	defer s.Close()

	// Holding the connections open forces the pool to hand out distinct ones.
	conns := make([]*sqlx.Conn, 4)
	for i := range conns {
		conns[i], err = s.db.Connx(ctx)
		require.NoError(t, err)
		defer conns[i].Close()
	}

	for i, c := range conns {
		var foreignKeys, busyTimeout int
		var journal string
		require.NoError(t, c.GetContext(ctx, &foreignKeys, "PRAGMA foreign_keys"))
		require.NoError(t, c.GetContext(ctx, &busyTimeout, "PRAGMA busy_timeout"))
		require.NoError(t, c.GetContext(ctx, &journal, "PRAGMA journal_mode"))
		assert.Equal(t, 1, foreignKeys, "connection %d", i)
		assert.Equal(t, 5000, busyTimeout, "connection %d", i)
		assert.Equal(t, "wal", journal, "connection %d", i)
	}
}
