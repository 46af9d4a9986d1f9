package netman

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Persister backed by a sqlite database, for installs where
// the settings store is shared with other subsystems on the device.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and if needed bootstraps) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create settings directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set settings db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set settings db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS networks (
	name TEXT PRIMARY KEY,
	secret TEXT NOT NULL,
	priority INTEGER NOT NULL,
	auto_connect INTEGER NOT NULL,
	last_connected_at TEXT,
	attempt_count INTEGER NOT NULL,
	last_signal INTEGER NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize networks schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Save(networks []KnownNetwork) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin network save: %w", ErrPersistence)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM networks`); err != nil {
		return fmt.Errorf("clear networks: %w", ErrPersistence)
	}
	for _, n := range networks {
		var lastConnected any
		if n.LastConnectedAt != nil {
			lastConnected = n.LastConnectedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.Exec(
			`INSERT INTO networks (name, secret, priority, auto_connect, last_connected_at, attempt_count, last_signal)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.Name, n.Secret, n.Priority, boolToInt(n.AutoConnect), lastConnected, n.AttemptCount, n.LastSignal,
		); err != nil {
			return fmt.Errorf("insert network %q: %w", n.Name, ErrPersistence)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit network save: %w", ErrPersistence)
	}
	return nil
}

func (s *SQLiteStore) Load() ([]KnownNetwork, error) {
	rows, err := s.db.Query(
		`SELECT name, secret, priority, auto_connect, last_connected_at, attempt_count, last_signal
		 FROM networks ORDER BY priority DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", ErrPersistence)
	}
	defer rows.Close()

	var out []KnownNetwork
	for rows.Next() {
		var n KnownNetwork
		var autoConnect int
		var lastConnected sql.NullString
		if err := rows.Scan(&n.Name, &n.Secret, &n.Priority, &autoConnect, &lastConnected, &n.AttemptCount, &n.LastSignal); err != nil {
			return nil, fmt.Errorf("scan network row: %w", ErrPersistence)
		}
		n.AutoConnect = autoConnect != 0
		if lastConnected.Valid {
			t, err := time.Parse(time.RFC3339Nano, lastConnected.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_connected_at for %q: %w", n.Name, ErrPersistence)
			}
			n.LastConnectedAt = &t
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate networks: %w", ErrPersistence)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
