// Package memory provides an in-memory Store for tests and ephemeral runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
)

// DB implements store.Store with plain maps. Lists are deep-copied on the
// way in and out so callers never share memory with the store.
type DB struct {
	mu       sync.RWMutex
	lists    map[uuid.UUID]todo.TodoList
	sessions map[string]sessionRow
}

type sessionRow struct {
	data      []byte
	expiresAt time.Time
}

// Open returns an empty in-memory store.
func Open() *DB {
	return &DB{
		lists:    make(map[uuid.UUID]todo.TodoList),
		sessions: make(map[string]sessionRow),
	}
}

// ---- todo lists ----

func (d *DB) LoadList(ctx context.Context, id uuid.UUID) (todo.TodoList, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.lists[id]
	if !ok {
		return todo.TodoList{}, store.ErrNotFound
	}
	return l.Clone(), nil
}

func (d *DB) StoreList(ctx context.Context, list todo.TodoList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lists[list.ID] = list.Clone()
	return nil
}

func (d *DB) GetListName(ctx context.Context, id uuid.UUID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.lists[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return l.Name, nil
}

// ---- sessions ----

func (d *DB) LoadSession(ctx context.Context, id string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	row, ok := d.sessions[id]
	if !ok || expired(row, time.Now()) {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(row.data))
	copy(out, row.data)
	return out, nil
}

func (d *DB) StoreSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	row := sessionRow{data: make([]byte, len(data)), expiresAt: expiresAt}
	copy(row.data, data)
	d.sessions[id] = row
	return nil
}

func (d *DB) DestroySession(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sessions, id)
	return nil
}

func (d *DB) ClearSessions(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions = make(map[string]sessionRow)
	return nil
}

func (d *DB) DeleteExpiredSessions(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	for id, row := range d.sessions {
		if expired(row, now) {
			delete(d.sessions, id)
		}
	}
	return nil
}

func expired(row sessionRow, now time.Time) bool {
	return !row.expiresAt.IsZero() && row.expiresAt.Before(now)
}

// ---- lifecycle ----

func (d *DB) Ping(ctx context.Context) error { return nil }

func (d *DB) Close() error { return nil }
