package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"prodtrack/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so every query helper can
// run inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS production_lines (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	sector           TEXT NOT NULL DEFAULT '',
	nominal_capacity INTEGER NOT NULL CHECK (nominal_capacity > 0)
);
CREATE INDEX IF NOT EXISTS idx_production_lines_sector ON production_lines(sector);

CREATE TABLE IF NOT EXISTS production_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	line_id          INTEGER NOT NULL REFERENCES production_lines(id) ON DELETE CASCADE,
	record_date      TEXT NOT NULL,
	shift            TEXT NOT NULL,
	produced         INTEGER NOT NULL DEFAULT 0,
	defective        INTEGER NOT NULL DEFAULT 0,
	downtime_minutes INTEGER NOT NULL DEFAULT 0,
	finalized        INTEGER NOT NULL DEFAULT 0,
	finalized_at     DATETIME,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	UNIQUE (line_id, record_date, shift)
);
CREATE INDEX IF NOT EXISTS idx_production_records_date ON production_records(record_date);

CREATE TABLE IF NOT EXISTS hourly_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id  INTEGER NOT NULL REFERENCES production_records(id) ON DELETE CASCADE,
	start_time TEXT NOT NULL,
	end_time   TEXT NOT NULL,
	produced   INTEGER NOT NULL DEFAULT 0,
	defective  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_hourly_entries_record ON hourly_entries(record_id, start_time);

CREATE TABLE IF NOT EXISTS stoppage_events (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	record_id        INTEGER NOT NULL REFERENCES production_records(id) ON DELETE CASCADE,
	start_time       TEXT NOT NULL,
	end_time         TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	reason           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_stoppage_events_record ON stoppage_events(record_id, start_time);

CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	username     TEXT NOT NULL UNIQUE,
	is_superuser INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sector_permissions (
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	sector  TEXT NOT NULL,
	PRIMARY KEY (user_id, sector)
);
`

// InitDB opens the database and brings the schema up to date. Write
// transactions take the database lock at BEGIN so a read-children,
// write-aggregates sequence cannot interleave with another writer.
func InitDB(path string) (*sql.DB, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	// Migration: stoppage categories were added after the first release.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('stoppage_events') WHERE name = 'category'`).Scan(&colCount)
	if colCount == 0 {
		if _, err := db.Exec(`ALTER TABLE stoppage_events ADD COLUMN category TEXT NOT NULL DEFAULT ''`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add stoppage_events.category: %w", err)
		}
	}

	return db, nil
}

// buildDSN merges the connection parameters the store depends on into path.
// Foreign keys and immediate transactions are always forced; a caller's
// busy timeout is kept.
func buildDSN(path string) (string, error) {
	base, rawQuery, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("invalid database path %q: %w", path, err)
	}
	params.Set("_foreign_keys", "on")
	params.Set("_txlock", "immediate")
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", "5000")
	}
	return base + "?" + params.Encode(), nil
}

// WithTx runs fn in a transaction, committing only if fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func notFound(what string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

func clockText(c domain.Clock) string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
}

func dateText(t time.Time) string {
	return t.Format(domain.DateLayout)
}
