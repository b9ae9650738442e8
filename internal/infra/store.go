package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/brick_mon/internal/domain"
)

const storeDBName = "brickmon.db"

// SQLCipherStore implements domain.Store and domain.DaemonRegistry on a
// SQLCipher encrypted SQLite database. Times are stored as unix milliseconds.
type SQLCipherStore struct {
	db             *sql.DB
	dbPath         string
	processManager domain.ProcessManager
}

// NewSQLCipherStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSQLCipherStore(dataDir string, key []byte, pm domain.ProcessManager) (*SQLCipherStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer keeps StartSession/CompleteSession transactions serialized
	// across the daemon's goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &SQLCipherStore{db: db, dbPath: dbPath, processManager: pm}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLCipherStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocked_items (
		id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		challenge_kind TEXT NOT NULL,
		wait_minutes INTEGER NOT NULL DEFAULT 0,
		tap_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		challenge_kind TEXT NOT NULL,
		wait_minutes INTEGER NOT NULL DEFAULT 0,
		tap_count INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		duration_days INTEGER NOT NULL,
		ends_at INTEGER NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS goal_items (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		identifier TEXT NOT NULL,
		kind TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS goal_items_goal ON goal_items(goal_id);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		identifiers TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		whole_device INTEGER NOT NULL DEFAULT 0,
		start_hour INTEGER NOT NULL,
		start_minute INTEGER NOT NULL,
		end_hour INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		active_days INTEGER NOT NULL,
		challenge_kind TEXT NOT NULL DEFAULT '',
		wait_minutes INTEGER NOT NULL DEFAULT 0,
		tap_count INTEGER NOT NULL DEFAULT 0,
		allow_emergency INTEGER NOT NULL DEFAULT 0,
		session_type TEXT NOT NULL DEFAULT '',
		allowlist TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		current_start INTEGER,
		current_end INTEGER
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL DEFAULT 0,
		schedule_id TEXT NOT NULL DEFAULT '',
		allow_emergency INTEGER NOT NULL DEFAULT 0,
		allowlist TEXT NOT NULL DEFAULT '',
		current_start INTEGER,
		current_end INTEGER,
		is_bricked INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS session_logs (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		scheduled_ms INTEGER NOT NULL,
		actual_ms INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		bypass_attempts INTEGER NOT NULL DEFAULT 0,
		essential_access TEXT NOT NULL DEFAULT '',
		override_reason TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS session_logs_session ON session_logs(session_id);

	CREATE TABLE IF NOT EXISTS essential_apps (
		package TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_system INTEGER NOT NULL DEFAULT 0,
		is_user_added INTEGER NOT NULL DEFAULT 0,
		session_types TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS temporary_unlocks (
		identifier TEXT PRIMARY KEY,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timer_states (
		identifier TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLCipherStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *SQLCipherStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLCipherStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// matchClause matches column against the bound identifier; contains mode
// matches in either direction.
func matchClause(mode domain.MatchMode, column string) string {
	if mode == domain.MatchContains {
		return fmt.Sprintf("(instr(?, %[1]s) > 0 OR instr(%[1]s, ?) > 0)", column)
	}
	return column + " = ?"
}

func matchArgs(mode domain.MatchMode, identifier string) []any {
	if mode == domain.MatchContains {
		return []any{identifier, identifier}
	}
	return []any{identifier}
}

func joinSessionTypes(types []domain.SessionType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitSessionTypes(s string) []domain.SessionType {
	var out []domain.SessionType
	for _, p := range domain.SplitAllowlist(s) {
		out = append(out, domain.SessionType(p))
	}
	return out
}

func notFound(err error) error {
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	return err
}

var (
	_ domain.Store          = (*SQLCipherStore)(nil)
	_ domain.DaemonRegistry = (*SQLCipherStore)(nil)
)
