//go:build integration

package postgres_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/nimbusgate/core/internal/testutil/containers"
)

// dbAdapter wraps pgxpool.Pool to implement postgres.Pooler interface for tests
type dbAdapter struct {
	p *pgxpool.Pool
}

func (a *dbAdapter) Ping(ctx context.Context) error { return a.p.Ping(ctx) }
func (a *dbAdapter) Close()                         { a.p.Close() }
func (a *dbAdapter) Pool() *pgxpool.Pool            { return a.p }

// setupTestDB starts a throwaway Postgres container with the repo's
// migrations applied. The returned cleanup closes the pool; the container
// itself is cleaned up by the containers helper via t.Cleanup.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	pool := containers.NewPostgres(t)
	containers.MigrateWithPath(t, pool, testMigrationsDir(t))
	return pool, pool.Close
}

// testMigrationsDir resolves the repo-root migrations directory relative to
// this source file so tests pass regardless of working directory.
func testMigrationsDir(t *testing.T) string {
	t.Helper()

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "runtime.Caller failed")

	path := filepath.Clean(filepath.Join(filepath.Dir(filename), "../../../migrations"))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
