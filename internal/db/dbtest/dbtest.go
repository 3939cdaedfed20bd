// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-assess/internal/db"
)

var seq atomic.Int64

// Open returns a fresh in-memory database with the schema applied. Each
// call gets its own named memory database so tests do not share state.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:dbtest_%d?mode=memory&cache=shared", seq.Add(1))
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}
