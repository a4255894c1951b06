package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
	"github.com/whisper-darkly/coodo-backend/user"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an existing database must not trip over the schema.
	db, err = Open(path)
	require.NoError(t, err)
	assert.NoError(t, db.Ping(context.Background()))
	require.NoError(t, db.Close())
}

func TestDB_ListRoundTrip(t *testing.T) {
	db := openTestDB(t)
	alice := user.User{ID: uuid.New(), Handle: "alice"}
	list := todo.NewList()
	list.Name = "groceries"
	list.Apply(todo.TodoCommand{Issuer: alice, Command: todo.NewCreateTask()})
	list.Apply(todo.TodoCommand{Issuer: alice, Command: todo.NewUserJoin(alice)})

	require.NoError(t, db.StoreList(context.Background(), list))
	got, err := db.LoadList(context.Background(), list.ID)
	require.NoError(t, err)

	assert.Equal(t, list, got, "the document survives the JSON round trip unchanged")
}

func TestDB_ListNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LoadList(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = db.GetListName(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDB_StoreList_Upserts(t *testing.T) {
	db := openTestDB(t)
	list := todo.NewList()
	list.Name = "before"
	require.NoError(t, db.StoreList(context.Background(), list))

	list.Name = "after"
	require.NoError(t, db.StoreList(context.Background(), list))

	name, err := db.GetListName(context.Background(), list.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", name)

	var count int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM todo_lists`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDB_SessionRoundTrip(t *testing.T) {
	db := openTestDB(t)
	blob := []byte(`{"user":{"id":"x"}}`)

	require.NoError(t, db.StoreSession(context.Background(), "sid-1", blob, time.Now().Add(time.Hour)))
	got, err := db.LoadSession(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	// Upsert replaces the blob and the expiry.
	require.NoError(t, db.StoreSession(context.Background(), "sid-1", []byte("v2"), time.Now().Add(time.Hour)))
	got, err = db.LoadSession(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDB_LoadSession_FiltersExpired(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.StoreSession(context.Background(), "dead", []byte("x"), time.Now().Add(-time.Minute)))

	_, err := db.LoadSession(context.Background(), "dead")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDB_DeleteExpiredSessions(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.StoreSession(context.Background(), "dead", []byte("x"), time.Now().Add(-time.Minute)))
	require.NoError(t, db.StoreSession(context.Background(), "alive", []byte("y"), time.Now().Add(time.Hour)))

	require.NoError(t, db.DeleteExpiredSessions(context.Background()))

	var count int
	require.NoError(t, db.db.QueryRow(`SELECT COUNT(*) FROM user_sessions`).Scan(&count))
	assert.Equal(t, 1, count)

	_, err := db.LoadSession(context.Background(), "alive")
	assert.NoError(t, err)
}

func TestDB_DestroyAndClearSessions(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.StoreSession(context.Background(), "a", []byte("x"), time.Now().Add(time.Hour)))
	require.NoError(t, db.StoreSession(context.Background(), "b", []byte("y"), time.Now().Add(time.Hour)))

	require.NoError(t, db.DestroySession(context.Background(), "a"))
	require.NoError(t, db.DestroySession(context.Background(), "a"), "unknown ids are not an error")
	_, err := db.LoadSession(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, db.ClearSessions(context.Background()))
	_, err = db.LoadSession(context.Background(), "b")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
