package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	postgresResolveQuery = `SELECT destination_url FROM tenants WHERE tenant_id = $1`
	sqliteResolveQuery   = `SELECT destination_url FROM tenants WHERE tenant_id = ?`
)

// SQLRegistry reads tenants from a `tenants` table (see Schema) through
// database/sql. It serves both the PostgreSQL and SQLite backends.
type SQLRegistry struct {
	db    *sql.DB
	query string
}

// NewPostgres wraps an open PostgreSQL handle.
func NewPostgres(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db, query: postgresResolveQuery}
}

// NewSQLite wraps an open SQLite handle.
func NewSQLite(db *sql.DB) *SQLRegistry {
	return &SQLRegistry{db: db, query: sqliteResolveQuery}
}

// OpenPostgres connects to PostgreSQL using the pgx driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLRegistry, error) {
	db, err := openSQL(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return NewPostgres(db), nil
}

// OpenSQLite opens a SQLite database file read-only.
func OpenSQLite(ctx context.Context, path string) (*SQLRegistry, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := openSQL(ctx, "sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	return NewSQLite(db), nil
}

func openSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Resolve returns the destination URL for tenantID.
func (s *SQLRegistry) Resolve(ctx context.Context, tenantID string) (string, error) {
	if err := checkID(tenantID); err != nil {
		return "", err
	}
	var dest sql.NullString
	err := s.db.QueryRowContext(ctx, s.query, tenantID).Scan(&dest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFound(tenantID)
		}
		return "", unavailable("resolve tenant", err)
	}
	return destination(tenantID, dest.String)
}

// Ping checks the database is reachable.
func (s *SQLRegistry) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle.
func (s *SQLRegistry) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
