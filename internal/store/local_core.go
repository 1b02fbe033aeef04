package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mapkeep/internal/logging"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernC = "sqlite"
	DriverMattn   = "sqlite3"
)

// LocalStore is a durable Driver backed by a single SQLite key-value table.
//
// Usage Example:
//
//	ls, _ := store.NewLocalStore("data/mapkeep.db", store.DriverModernC)
//	defer ls.Close()
//	_ = ls.Set(ctx, "fmg:game_1:map_5:user_9:v2", []byte(`{"locationIds":[101]}`))
//	raw, ok, _ := ls.Get(ctx, "fmg:game_1:map_5:user_9:v2")
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore opens (creating if needed) the SQLite database at path.
// driverName selects the database/sql driver; empty means DriverModernC.
func NewLocalStore(path, driverName string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if driverName == "" {
		driverName = DriverModernC
	}
	if driverName != DriverModernC && driverName != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driverName)
	}

	logging.Store("Initializing LocalStore at path: %s (driver=%s)", path, driverName)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.Get(logging.CategoryStore).Error("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore initialization complete")
	return s, nil
}

// initialize creates the key-value table and applies column migrations.
func (s *LocalStore) initialize() error {
	kvTable := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
	`
	if _, err := s.db.Exec(kvTable); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return RunMigrations(s.db)
}

// Get implements Driver.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements Driver.
func (s *LocalStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	logging.StoreDebug("Set %s (%d bytes)", key, len(value))
	return nil
}

// Remove implements Driver.
func (s *LocalStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("store: remove %q: %w", key, err)
	}
	logging.StoreDebug("Removed %s", key)
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *LocalStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("store: list keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Path returns the database path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
