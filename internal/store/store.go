package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	_ "modernc.org/sqlite"              // Register sqlite as database/sql driver

	"lexform-backend/internal/config"
)

var ErrNotFound = errors.New("not found")
var ErrUniqueViolation = errors.New("unique constraint violation")

// Querier is implemented by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store wraps a database connection and dialect.
type Store struct {
	DB      *sql.DB
	Dialect Dialect
	driver  string
}

// New creates a Store from config.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	dialect := NewDialect(driver)
	dsn := cfg.DSN()

	if driver == "sqlite" {
		if cfg.Path != "" {
			if err := os.MkdirAll(cfg.Path, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		// Pragmas in the DSN apply to every pooled connection.
		dsn += "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite: single writer
		db.SetMaxOpenConns(1)
	} else if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{
		DB:      db,
		Dialect: dialect,
		driver:  driver,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() {
	s.DB.Close()
}

// Repo returns a repository that runs statements directly on the pool.
func (s *Store) Repo() *Repo {
	return &Repo{q: s.DB, d: s.Dialect}
}

// WithTx runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(r *Repo) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&Repo{q: tx, d: s.Dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", s.Dialect.MapError(err))
	}
	return nil
}

// Repo exposes typed queries over a Querier. Statements are written with
// $N placeholders and rebound for the active dialect.
type Repo struct {
	q Querier
	d Dialect
}

func (r *Repo) query(ctx context.Context, sqlStr string, args ...any) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.d.Rebind(sqlStr), args...)
}

func (r *Repo) queryRow(ctx context.Context, sqlStr string, args ...any) *sql.Row {
	return r.q.QueryRowContext(ctx, r.d.Rebind(sqlStr), args...)
}

func (r *Repo) exec(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	return Exec(ctx, r.q, r.d, sqlStr, args...)
}

// QueryRows executes a query and returns results as []map[string]any.
func QueryRows(ctx context.Context, q Querier, d Dialect, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := q.QueryContext(ctx, d.Rebind(sqlStr), args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return results, nil
}

// Exec executes a statement and returns the number of rows affected.
func Exec(ctx context.Context, q Querier, d Dialect, sqlStr string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, d.Rebind(sqlStr), args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", d.MapError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// normalizeValue converts database-specific types to JSON-serializable Go types.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case []byte:
		// database/sql often returns []byte for TEXT columns
		s := string(val)
		if t, ok := parseTimestamp(s); ok {
			return t
		}
		return s
	case string:
		if t, ok := parseTimestamp(val); ok {
			return t
		}
		return val
	default:
		return val
	}
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// scanTime is a sql.Scanner for timestamp columns that come back as
// time.Time (postgres) or text (sqlite).
type scanTime struct {
	t time.Time
}

func (st *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		st.t = time.Time{}
	case time.Time:
		st.t = v
	case string:
		st.t, _ = parseTimestamp(v)
	case []byte:
		st.t, _ = parseTimestamp(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
