package manager

import (
	"context"
	"log/slog"
	"time"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
)

// storeTimeout bounds each store write. Writes run on a fresh context, never
// a request context, so a disconnecting client cannot cancel a flush that is
// already in flight.
const storeTimeout = 5 * time.Second

// actor owns one list document. It is the only goroutine that ever mutates
// it; everyone else sees snapshots through the handle's watch slot. Applied
// changes mark the document dirty, and a ticker flushes dirty state to the
// store, so a burst of edits costs one write per interval rather than one
// per command.
type actor struct {
	list     todo.TodoList
	handle   *ListHandle
	store    store.TodoStore
	interval time.Duration
	dirty    bool
}

func (a *actor) run() {
	slog.Debug("manager: actor started", "list", a.list.ID)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-a.handle.intake:
			a.apply(cmd)
		case <-ticker.C:
			a.flush()
		case <-a.handle.done:
			a.drain()
			a.flush()
			slog.Debug("manager: actor stopped", "list", a.list.ID)
			return
		}
	}
}

// apply runs one command against the document and publishes the result.
// A user_leave whose issuer has reconnected under a newer epoch is dropped:
// the stale goodbye must not knock the successor connection out of
// connectedUsers.
func (a *actor) apply(cmd todo.TodoCommand) {
	if cmd.Command.Type == todo.CmdUserLeave && a.handle.presence.superseded(cmd.Issuer.ID, cmd.Epoch) {
		return
	}
	if !a.list.Apply(cmd) {
		return
	}
	a.handle.watch.publish(a.list.Clone())
	a.dirty = true
}

// flush stores the document if it changed since the last successful write.
// The dirty flag survives a failure, so the next tick retries.
func (a *actor) flush() {
	if !a.dirty {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := a.store.StoreList(ctx, a.list.Clone()); err != nil {
		slog.Warn("manager: store todo list", "list", a.list.ID, "error", err)
		return
	}
	a.dirty = false
}

// drain applies everything queued before teardown so the leave commands of
// departing users make it into the final stored document.
func (a *actor) drain() {
	for {
		select {
		case cmd := <-a.handle.intake:
			a.apply(cmd)
		default:
			return
		}
	}
}
