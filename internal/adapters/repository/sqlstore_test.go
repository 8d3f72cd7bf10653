//go:build cgo

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStore(t *testing.T) {
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	storeContract(t, func(t *testing.T) Store {
		dsn := "file:" + filepath.Join(t.TempDir(), "churn.db")
		s, err := Open(context.Background(), DriverSQLite, dsn, WithClock(func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		}))
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "churn.db")
	s, err := Open(context.Background(), DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, Migrate(s.DB(), DriverSQLite))
	require.NoError(t, s.Close())
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	require.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	require.Equal(t, "a = ?", lite.rebind("a = ?"))
}
