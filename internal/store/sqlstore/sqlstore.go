// Package sqlstore keeps offers in a single SQL table of id/body rows. It
// supports sqlite3, postgres and mysql through database/sql.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"offer-api/internal/store"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

type dialect struct {
	createTable string
	get         string
	upsert      string
	delete      string
	keys        string
}

func dialectFor(driverName, table string) (dialect, error) {
	switch driverName {
	case DriverSQLite:
		return dialect{
			createTable: `CREATE TABLE IF NOT EXISTS ` + table + ` (
				id TEXT PRIMARY KEY,
				body BLOB NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			get: `SELECT body FROM ` + table + ` WHERE id = ?`,
			upsert: `INSERT INTO ` + table + ` (id, body, created_at, updated_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			delete: `DELETE FROM ` + table + ` WHERE id = ?`,
			keys:   `SELECT id FROM ` + table + ` ORDER BY rowid`,
		}, nil
	case DriverPostgres:
		return dialect{
			createTable: `CREATE TABLE IF NOT EXISTS ` + table + ` (
				id TEXT PRIMARY KEY,
				body BYTEA NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			get: `SELECT body FROM ` + table + ` WHERE id = $1`,
			upsert: `INSERT INTO ` + table + ` (id, body, created_at, updated_at) VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
			delete: `DELETE FROM ` + table + ` WHERE id = $1`,
			keys:   `SELECT id FROM ` + table + ` ORDER BY created_at, id`,
		}, nil
	case DriverMySQL:
		return dialect{
			createTable: `CREATE TABLE IF NOT EXISTS ` + table + ` (
				id VARCHAR(191) PRIMARY KEY,
				body LONGBLOB NOT NULL,
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NOT NULL
			)`,
			get: `SELECT body FROM ` + table + ` WHERE id = ?`,
			upsert: `INSERT INTO ` + table + ` (id, body, created_at, updated_at) VALUES (?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`,
			delete: `DELETE FROM ` + table + ` WHERE id = ?`,
			keys:   `SELECT id FROM ` + table + ` ORDER BY created_at, id`,
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported sql driver %q", driverName)
	}
}

// Store is a store.Store backed by a SQL database.
type Store struct {
	conn    *sql.DB
	driver  string
	queries dialect
}

var _ store.Store = (*Store)(nil)

// sqliteDSN adds the busy timeout and WAL journal to a sqlite path, keeping
// any query parameters already on it.
func sqliteDSN(path string) string {
	const params = "_busy_timeout=5000&_journal_mode=WAL"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Open connects to the database, verifies the connection and creates the
// table if it doesn't exist. The table is named after the namespace.
func Open(ctx context.Context, driverName, dsn, namespace string) (*Store, error) {
	if !tableName.MatchString(namespace) {
		return nil, fmt.Errorf("invalid namespace %q for a table name", namespace)
	}
	queries, err := dialectFor(driverName, namespace)
	if err != nil {
		return nil, err
	}

	if driverName == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	if driverName == DriverSQLite {
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", store.ErrUnavailable, err)
	}

	s := &Store{conn: conn, driver: driverName, queries: queries}
	if err := s.initSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, s.queries.createTable); err != nil {
		return fmt.Errorf("failed to execute schema query: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.conn.QueryRowContext(ctx, s.queries.get, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, classify("get", err)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	now := s.timestamp()
	if _, err := s.conn.ExecContext(ctx, s.queries.upsert, key, value, now, now); err != nil {
		return classify("put", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, s.queries.delete, key); err != nil {
		return classify("delete", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, s.queries.keys)
	if err != nil {
		return nil, classify("keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("keys", err)
	}
	return keys, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) timestamp() any {
	now := time.Now().UTC()
	if s.driver == DriverSQLite {
		return now.Format(time.RFC3339Nano)
	}
	return now
}

func classify(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
