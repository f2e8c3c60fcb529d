package tenant

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/authrelay/internal/domain"
)

func seedSQLite(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(Schema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO tenants (tenant_id, destination_url) VALUES
		('acme', 'https://acme.example/hook'),
		('initech', NULL),
		('hooli', '')`)
	require.NoError(t, err)
}

func newMemorySQLite(t *testing.T) *SQLRegistry {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	seedSQLite(t, db)
	return NewSQLite(db)
}

func TestSQLiteResolve(t *testing.T) {
	r := newMemorySQLite(t)

	dest, err := r.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/hook", dest)
}

func TestSQLiteResolve_NotFound(t *testing.T) {
	r := newMemorySQLite(t)

	for _, id := range []string{"nonexistent", "Acme", "initech", "hooli"} {
		_, err := r.Resolve(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrUnknownTenant, id)
	}
}

func TestSQLiteResolve_StoreFault(t *testing.T) {
	r := newMemorySQLite(t)
	require.NoError(t, r.Close())

	_, err := r.Resolve(context.Background(), "acme")
	assert.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	assert.NotErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestSQLiteResolve_EmptyIDSkipsQuery(t *testing.T) {
	r := newMemorySQLite(t)
	require.NoError(t, r.Close())

	// a closed handle would fail any query; the empty ID must never reach it
	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestOpen_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	seedSQLite(t, db)
	require.NoError(t, db.Close())

	store, err := Open(context.Background(), "sqlite://"+path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Ping(context.Background()))
	dest, err := store.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example/hook", dest)
}
