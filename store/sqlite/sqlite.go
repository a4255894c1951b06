// Package sqlite provides the SQLite-backed Store implementation.
// It uses modernc.org/sqlite (pure Go, no CGO) so the binary is fully static
// and works in scratch/alpine Docker images without a C compiler.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
)

// DB implements store.Store using SQLite via database/sql.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	// SQLite serialises writes; one connection avoids SQLITE_BUSY on writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies the schema.  New versions should only ADD statements here
// so that existing databases keep working without a migration tool.
func (s *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS todo_lists (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			data       TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS user_sessions (
			id         TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			expires_at INTEGER NOT NULL  -- unix seconds
		)`,

		// The hourly sweep filters on expiry alone.
		`CREATE INDEX IF NOT EXISTS idx_sessions_expiry
			ON user_sessions(expires_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ---- todo lists ----

func (s *DB) LoadList(ctx context.Context, id uuid.UUID) (todo.TodoList, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM todo_lists WHERE id = ?`, id.String(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return todo.TodoList{}, store.ErrNotFound
	}
	if err != nil {
		return todo.TodoList{}, fmt.Errorf("load list %s: %w", id, err)
	}
	var list todo.TodoList
	if err := json.Unmarshal(raw, &list); err != nil {
		return todo.TodoList{}, fmt.Errorf("decode list %s: %w", id, err)
	}
	return list, nil
}

func (s *DB) StoreList(ctx context.Context, list todo.TodoList) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode list %s: %w", list.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO todo_lists (id, name, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, list.ID.String(), list.Name, raw, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *DB) GetListName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM todo_lists WHERE id = ?`, id.String(),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return name, err
}

// ---- sessions ----

func (s *DB) LoadSession(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_sessions WHERE id = ? AND expires_at > ?`,
		id, time.Now().Unix(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return raw, err
}

func (s *DB) StoreSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, data, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data       = excluded.data,
			expires_at = excluded.expires_at
	`, id, data, expiresAt.Unix())
	return err
}

func (s *DB) DestroySession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = ?`, id)
	return err
}

func (s *DB) ClearSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_sessions`)
	return err
}

func (s *DB) DeleteExpiredSessions(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE expires_at < ?`, time.Now().Unix())
	return err
}

// ---- lifecycle ----

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Close() error { return s.db.Close() }
