// Package store defines the persistence contracts for coodo-backend.
// Lists are whole JSON documents keyed by list id; sessions are opaque JSON
// blobs keyed by session id. Concrete backends live in the postgres, redis,
// sqlite and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/todo"
)

// ErrNotFound is returned when the requested document does not exist.
// Callers distinguish it from transient failures with errors.Is.
var ErrNotFound = errors.New("not found")

// ---- todo lists ----

// TodoStore persists list documents.
type TodoStore interface {
	// LoadList fetches the full document. Returns ErrNotFound when no list
	// exists for id.
	LoadList(ctx context.Context, id uuid.UUID) (todo.TodoList, error)

	// StoreList upserts the whole document keyed by list.ID.
	StoreList(ctx context.Context, list todo.TodoList) error

	// GetListName fetches only the list's name. Returns ErrNotFound when no
	// list exists for id.
	GetListName(ctx context.Context, id uuid.UUID) (string, error)
}

// ---- sessions ----

// SessionStore persists opaque session blobs.
type SessionStore interface {
	// LoadSession returns the blob stored under id. Returns ErrNotFound for
	// unknown or expired sessions.
	LoadSession(ctx context.Context, id string) ([]byte, error)

	// StoreSession upserts the blob together with its expiry.
	StoreSession(ctx context.Context, id string, data []byte, expiresAt time.Time) error

	// DestroySession removes the blob. Unknown ids are not an error.
	DestroySession(ctx context.Context, id string) error

	// ClearSessions removes every stored session.
	ClearSessions(ctx context.Context) error

	// DeleteExpiredSessions removes sessions whose expiry has passed.
	// Backends that expire sessions natively may make this a no-op.
	DeleteExpiredSessions(ctx context.Context) error
}

// ---- combined ----

// Store is the full surface a concrete backend provides.
type Store interface {
	TodoStore
	SessionStore

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
