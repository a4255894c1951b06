// Package redis provides the Redis-backed Store implementation. List
// documents are JSON strings under list:<id>; session blobs live under
// session:<id> with a TTL so Redis expires them natively.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv8 "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
)

const (
	listPrefix    = "list:"
	sessionPrefix = "session:"
)

// Options configures the Redis connection.
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// DB implements store.Store on a single Redis connection pool.
type DB struct {
	client *redisv8.Client
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, opts Options) (*DB, error) {
	client := redisv8.NewClient(&redisv8.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &DB{client: client}, nil
}

// ---- todo lists ----

func (d *DB) LoadList(ctx context.Context, id uuid.UUID) (todo.TodoList, error) {
	raw, err := d.client.Get(ctx, listPrefix+id.String()).Bytes()
	if errors.Is(err, redisv8.Nil) {
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
	return d.client.Set(ctx, listPrefix+list.ID.String(), raw, 0).Err()
}

// GetListName decodes the stored document; Redis has no cheap column read
// the way the SQL backends do.
func (d *DB) GetListName(ctx context.Context, id uuid.UUID) (string, error) {
	list, err := d.LoadList(ctx, id)
	if err != nil {
		return "", err
	}
	return list.Name, nil
}

// ---- sessions ----

func (d *DB) LoadSession(ctx context.Context, id string) ([]byte, error) {
	raw, err := d.client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redisv8.Nil) {
		return nil, store.ErrNotFound
	}
	return raw, err
}

func (d *DB) StoreSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return d.DestroySession(ctx, id)
	}
	return d.client.Set(ctx, sessionPrefix+id, data, ttl).Err()
}

func (d *DB) DestroySession(ctx context.Context, id string) error {
	return d.client.Del(ctx, sessionPrefix+id).Err()
}

// ClearSessions walks session:* with SCAN so large keyspaces do not block
// the server the way KEYS would.
func (d *DB) ClearSessions(ctx context.Context) error {
	iter := d.client.Scan(ctx, 0, sessionPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := d.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// DeleteExpiredSessions is a no-op: session keys carry a TTL and Redis
// expires them natively.
func (d *DB) DeleteExpiredSessions(ctx context.Context) error { return nil }

// ---- lifecycle ----

func (d *DB) Ping(ctx context.Context) error { return d.client.Ping(ctx).Err() }

func (d *DB) Close() error { return d.client.Close() }
