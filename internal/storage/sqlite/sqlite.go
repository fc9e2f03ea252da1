package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pomotimer/internal/session"
	"pomotimer/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) *SQLiteStore {
	return &SQLiteStore{dbPath: dbPath}
}

var _ storage.StateStore = (*SQLiteStore)(nil)

const createStateTableSQL = `
CREATE TABLE IF NOT EXISTS timer_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const upsertStateSQL = `
INSERT INTO timer_state (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`

func (s *SQLiteStore) Init(ctx context.Context) error {
	dir := filepath.Dir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create db directory %s: %w", dir, err)
	}

	log.Printf("Initializing SQLite state store at: %s", s.dbPath)
	db, err := sql.Open("sqlite3", s.dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// One connection: the scheduler's writer is the only writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Minute * 5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, createStateTableSQL); err != nil {
		db.Close()
		return fmt.Errorf("failed to create timer_state table: %w", err)
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, storage.ErrClosed
	}
	return s.db, nil
}

// SaveSnapshot writes every key in one transaction so a cold read never sees
// half of a transition.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin state transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertStateSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare state upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for key, value := range storage.Encode(snap) {
		if _, err := stmt.ExecContext(ctx, key, value, now); err != nil {
			return fmt.Errorf("failed to write state key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context) (session.Snapshot, error) {
	db, err := s.handle()
	if err != nil {
		return session.Default(), err
	}

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM timer_state`)
	if err != nil {
		return session.Default(), fmt.Errorf("failed to query timer state: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return session.Default(), fmt.Errorf("failed to scan state row: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return session.Default(), fmt.Errorf("error iterating state rows: %w", err)
	}

	return storage.Decode(values), nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db != nil {
		log.Println("Closing state store.")
		return db.Close()
	}
	return nil
}
