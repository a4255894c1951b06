// Package postgres is the PostgreSQL store backend, built on pgx/v5 with
// schema migrations embedded in the binary. List documents live in a JSONB
// column with the name denormalised alongside so membership listings never
// decode whole documents.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB is the PostgreSQL-backed store.Store.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects a pool to dsn, verifies it answers, and applies any pending
// migrations before handing the store out.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &DB{pool: pool}, nil
}

// RunMigrations applies all pending up-migrations against dsn. Safe to call
// multiple times; ErrNoChange counts as success. Called by initdb (as
// exported) and by Open (internally).
func RunMigrations(dsn string) error { return runMigrations(dsn) }

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(dsn))
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// toMigrateURL converts a postgres:// or postgresql:// DSN to the pgx5://
// scheme expected by golang-migrate's pgx/v5 driver.
func toMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + dsn[len(prefix):]
		}
	}
	return "pgx5://" + dsn
}

// ---- todo lists ----

func (d *DB) LoadList(ctx context.Context, id uuid.UUID) (todo.TodoList, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx, `SELECT data FROM todo_lists WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (d *DB) StoreList(ctx context.Context, list todo.TodoList) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode list %s: %w", list.ID, err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO todo_lists (id, name, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			name       = excluded.name,
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, list.ID, list.Name, raw)
	return err
}

func (d *DB) GetListName(ctx context.Context, id uuid.UUID) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT name FROM todo_lists WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return name, err
}

// ---- sessions ----

func (d *DB) LoadSession(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := d.pool.QueryRow(ctx,
		`SELECT data FROM user_sessions WHERE id = $1 AND expires_at > now()`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return raw, err
}

func (d *DB) StoreSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO user_sessions (id, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			data       = excluded.data,
			expires_at = excluded.expires_at
	`, id, data, expiresAt)
	return err
}

func (d *DB) DestroySession(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return err
}

func (d *DB) ClearSessions(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM user_sessions`)
	return err
}

func (d *DB) DeleteExpiredSessions(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at < now()`)
	return err
}

// ---- lifecycle ----

func (d *DB) Ping(ctx context.Context) error { return d.pool.Ping(ctx) }

func (d *DB) Close() error {
	d.pool.Close()
	return nil
}
