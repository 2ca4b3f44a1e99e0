// Package storage persists imported taxonomy and abundance rows through
// database/sql. SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq) are
// supported.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name onto a dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3", "":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// DB is the import store.
type DB struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	newID   func() string
}

// New wraps an existing handle.
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect, now: time.Now, newID: uuid.NewString}
}

// Open connects, pings, and migrates.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	sqlDB, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		// one writer; SAVEPOINTs are per connection
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	d := New(sqlDB, dialect)
	if err := d.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Migrate creates the tables if they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites '?' placeholders to $n for PostgreSQL.
func (d *DB) rebind(q string) string {
	if d.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RowError reports one row that could not be stored.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }

// BulkResult summarizes a bulk insert.
type BulkResult struct {
	Created int
	Failed  int
	Errors  []RowError
}

// insertEach runs the replace statement and then one insert per item inside
// a single transaction. Each insert sits behind a savepoint so a failed row
// is rolled back alone.
func (d *DB) insertEach(ctx context.Context, replace string, replaceArgs []any, n int, build func(i int) (string, []any, error)) (BulkResult, error) {
	var res BulkResult
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, d.rebind(replace), replaceArgs...); err != nil {
		return res, fmt.Errorf("clear previous rows: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return BulkResult{}, err
		}
		q, args, err := build(i)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: i + 1, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "SAVEPOINT bulk_row"); err != nil {
			return BulkResult{}, fmt.Errorf("savepoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, d.rebind(q), args...); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT bulk_row"); rbErr != nil {
				return BulkResult{}, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: i + 1, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT bulk_row"); err != nil {
			return BulkResult{}, fmt.Errorf("release savepoint: %w", err)
		}
		res.Created++
	}
	if err := tx.Commit(); err != nil {
		return BulkResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
