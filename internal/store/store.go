// Package store implements the persistent specification store for Socrates.
//
// Uses modernc.org/sqlite (pure Go, no CGO) so the binary cross-compiles
// cleanly. Specifications are versioned by lineage and never edited in
// place; conflicts, category maturity rows and the activity log live
// beside them in the same database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var openDB = sql.Open

// DBFile is the database file name inside the data directory.
const DBFile = "socrates.db"

// Config holds store configuration.
type Config struct {
	DataDir string
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the specification store backed by SQLite.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type storeHooks struct {
	exec    func(ctx context.Context, db dbtx, query string, args ...any) (sql.Result, error)
	query   func(ctx context.Context, db dbtx, query string, args ...any) (*sql.Rows, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db dbtx, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		query: func(ctx context.Context, db dbtx, query string, args ...any) (*sql.Rows, error) {
			return db.QueryContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db dbtx, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryHook(ctx context.Context, db dbtx, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(ctx, db, query, args...)
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, DBFile)
	db, err := openDB("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	s := &Store{db: db, cfg: cfg, hooks: defaultStoreHooks()}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	return s, nil
}

// connPragmas run on every connection the pool opens. Setting them with
// db.Exec would only reach whichever connection served that call.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
}

// dsn builds the driver DSN for path. Write transactions start with
// BEGIN IMMEDIATE so two writers queue on busy_timeout instead of
// failing when a read lock cannot be upgraded.
func dsn(path string) string {
	q := make([]string, 0, len(connPragmas)+1)
	for _, p := range connPragmas {
		q = append(q, "_pragma="+p)
	}
	q = append(q, "_txlock=immediate")
	return path + "?" + strings.Join(q, "&")
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			phase          TEXT NOT NULL DEFAULT 'discovery',
			maturity_score REAL NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS specifications (
			id            TEXT    PRIMARY KEY,
			project_id    TEXT    NOT NULL,
			lineage_id    TEXT    NOT NULL,
			category      TEXT    NOT NULL,
			content       TEXT    NOT NULL,
			source        TEXT    NOT NULL,
			confidence    REAL    NOT NULL,
			version       INTEGER NOT NULL,
			is_current    INTEGER NOT NULL DEFAULT 1,
			superseded_by TEXT,
			deleted_at    TEXT,
			unanalyzed    INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL,
			FOREIGN KEY (project_id)    REFERENCES projects(id),
			FOREIGN KEY (superseded_by) REFERENCES specifications(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_spec_version ON specifications(lineage_id, version);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_spec_current ON specifications(lineage_id) WHERE is_current = 1;
		CREATE INDEX IF NOT EXISTS idx_spec_project        ON specifications(project_id, category);

		CREATE TABLE IF NOT EXISTS conflicts (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			type        TEXT NOT NULL,
			severity    TEXT NOT NULL,
			involved    TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'open',
			reason      TEXT NOT NULL,
			decision    TEXT,
			rationale   TEXT,
			override    INTEGER NOT NULL DEFAULT 0,
			dedupe_key  TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			resolved_at TEXT,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conflict_dedupe ON conflicts(project_id, type, dedupe_key);
		CREATE INDEX IF NOT EXISTS idx_conflict_status        ON conflicts(project_id, status);

		CREATE TABLE IF NOT EXISTS category_maturity (
			project_id       TEXT    NOT NULL,
			category         TEXT    NOT NULL,
			spec_count       INTEGER NOT NULL,
			completeness     REAL    NOT NULL,
			required_minimum REAL    NOT NULL,
			satisfied        INTEGER NOT NULL,
			missing_topics   TEXT    NOT NULL DEFAULT '[]',
			updated_at       TEXT    NOT NULL,
			PRIMARY KEY (project_id, category),
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE TABLE IF NOT EXISTS activities (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			category   TEXT NOT NULL DEFAULT '',
			target     TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_activity_project ON activities(project_id, id);
	`
	if _, err := s.execHook(ctx, s.db, schema); err != nil {
		return err
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
