package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownEntity = errors.New("unknown entity")
)

func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1, fold)
}

// fold lower-cases its argument with Go's Unicode rules. SQLite's lower()
// only folds ASCII.
func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	case nil:
		return nil, nil
	default:
		return strings.ToLower(fmt.Sprint(v)), nil
	}
}

// connPragmas run once on the single pooled connection.
var connPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// migrations[i] takes the schema from user_version i to i+1.
var migrations = []string{
	schemaV1,
	schemaV2,
}

const schemaV1 = `
	CREATE TABLE IF NOT EXISTS tags (
		id    TEXT PRIMARY KEY,
		name  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS issues (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL DEFAULT '',
		content           TEXT NOT NULL DEFAULT '',
		created_date      TEXT NOT NULL,
		modified_date     TEXT NOT NULL,
		completed         INTEGER NOT NULL DEFAULT 0,
		priority          INTEGER NOT NULL DEFAULT 1,
		reminder_enabled  INTEGER NOT NULL DEFAULT 0,
		reminder_time     TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_issues_modified ON issues(modified_date);
	CREATE INDEX IF NOT EXISTS idx_issues_created  ON issues(created_date);

	CREATE TABLE IF NOT EXISTS issue_tags (
		issue_id  TEXT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		tag_id    TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (issue_id, tag_id)
	);

	CREATE INDEX IF NOT EXISTS idx_issue_tags_tag ON issue_tags(tag_id);

	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO settings (key, value) VALUES
		('full_version_unlocked', 'false'),
		('remote_cursor',         '');
`

// schemaV2 backs the top-issues query.
const schemaV2 = `
	CREATE INDEX IF NOT EXISTS idx_issues_open_priority ON issues(completed, priority DESC);
`

type Store struct {
	db *sql.DB
	sq squirrel.StatementBuilderType
}

// New opens (or creates) the SQLite database at dbPath and brings its
// schema up to date.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas and :memory: databases live on a single connection.
	db.SetMaxOpenConns(1)

	for _, p := range connPragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	s := &Store{
		db: db,
		sq: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewMemory opens a private in-memory store.
func NewMemory() (*Store, error) {
	return New(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) schemaVersion() (int, error) {
	var v int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// migrate applies each pending migration in its own transaction together
// with the user_version bump.
func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	for v := version; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin schema v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("schema v%d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema v%d: %w", v+1, err)
		}
	}
	return nil
}

// DefaultDBPath is issuedesk.db under the user config directory.
func DefaultDBPath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "issuedesk", "issuedesk.db"), nil
}
