// Package sqlstore implements the repository interfaces on top of sqlx.
//
// Two backends share the same queries:
//   - SQLite through modernc.org/sqlite (pure Go, no CGo), the default and
//     what the tests use with ":memory:"
//   - PostgreSQL through pgx's database/sql driver
//
// Queries are written with "?" placeholders and passed through Rebind, which
// turns them into $1, $2... for PostgreSQL.
//
// TRANSACTIONS:
// Every multi-statement write goes through withTx, which rolls back on any
// error (or panic) and commits otherwise. Inside a transaction only the *Tx
// may be used: the SQLite pool has a single connection, so touching s.db
// while a transaction is open would block forever.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/estudogame/internal/apperror"
	"github.com/sakif/estudogame/internal/repository"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "pgx"
)

func init() {
	// sqlx only knows mattn's "sqlite3" name; modernc registers "sqlite".
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

// Store is the sqlx-backed implementation of every repository interface.
type Store struct {
	db *sqlx.DB
}

var (
	_ repository.AccountRepository   = (*Store)(nil)
	_ repository.ChallengeRepository = (*Store)(nil)
	_ repository.SessionRepository   = (*Store)(nil)
	_ repository.Ledger              = (*Store)(nil)
)

// Open connects to the database named by databaseURL and runs migrations.
//
//	sqlite://data/estudogame.db   file database
//	sqlite://:memory:             in-memory database (tests)
//	postgres://user:pw@host/db    PostgreSQL
func Open(databaseURL string) (*Store, error) {
	driver, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: opening database: %w", err)
	}

	if driver == driverSQLite {
		// One connection: SQLite has a single writer anyway, and an
		// in-memory database exists only inside the connection that made it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: running migrations: %w", err)
	}

	return s, nil
}

// parseURL maps a DATABASE_URL to a driver name and its DSN.
func parseURL(databaseURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		path := strings.TrimPrefix(databaseURL, "sqlite://")
		if path == "" {
			return "", "", fmt.Errorf("sqlstore: empty sqlite path in %q", databaseURL)
		}
		return driverSQLite, sqliteDSN(path), nil
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return driverPostgres, databaseURL, nil
	default:
		return "", "", fmt.Errorf("sqlstore: unsupported database URL %q", databaseURL)
	}
}

// sqliteDSN appends the connection pragmas. _time_format=sqlite stores
// timestamps as "2006-01-02 15:04:05.999999999-07:00" so that they compare
// correctly as text and parse back into time.Time.
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_time_format", "sqlite")
	return path + "?" + q.Encode()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) isPostgres() bool {
	return s.db.DriverName() == driverPostgres
}

// forUpdate returns the row-locking suffix for SELECTs inside accounting
// transactions. SQLite has no row locks; its single connection already
// serialises writers.
func (s *Store) forUpdate() string {
	if s.isPostgres() {
		return " FOR UPDATE"
	}
	return ""
}

// withTx runs fn inside a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation recognises unique/primary-key violations from both
// drivers.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}

	return false
}

// notFound converts sql.ErrNoRows into the domain not-found error.
func notFound(err error, resource string, id int64) error {
	return notFoundKey(err, resource, strconv.FormatInt(id, 10))
}

func notFoundKey(err error, resource, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, key)
	}
	return err
}

// expectOneRow turns an UPDATE/DELETE that matched nothing into not-found.
func expectOneRow(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: reading affected rows: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, strconv.FormatInt(id, 10))
	}
	return nil
}
