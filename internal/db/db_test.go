package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT 1 FROM t WHERE a=? AND b=?", "SELECT 1 FROM t WHERE a=? AND b=?"},
		{"postgres numbered", Postgres, "SELECT 1 FROM t WHERE a=? AND b=?", "SELECT 1 FROM t WHERE a=$1 AND b=$2"},
		{"quoted question mark kept", Postgres, "SELECT '?' FROM t WHERE a=?", "SELECT '?' FROM t WHERE a=$1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, SQLite, conn.Dialect)
	require.NoError(t, conn.PingContext(context.Background()))
	_, err = os.Stat(filepath.Join(dir, ".staffline", "staffline.db"))
	assert.NoError(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	assert.Error(t, err)
}

func TestOpenPostgresRequiresDSN(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"})
	assert.Error(t, err)
}
