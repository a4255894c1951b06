package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/todo"
)

// ErrClosed is returned for operations on a list whose actor has been torn
// down, and by Join once the registry itself is shut down.
var ErrClosed = errors.New("todo list closed")

// intakeBuffer is the per-list command queue depth. Senders block once it
// fills, back-pressuring chatty clients instead of growing memory.
const intakeBuffer = 16

// ListHandle is the shared endpoint of one live list: the command queue its
// actor consumes, the snapshot slot it publishes to, and the table of
// connections currently attached.
type ListHandle struct {
	id       uuid.UUID
	intake   chan todo.TodoCommand
	done     chan struct{}
	once     sync.Once
	watch    *watch
	presence *presenceTable
}

func newListHandle(list todo.TodoList) *ListHandle {
	return &ListHandle{
		id:       list.ID,
		intake:   make(chan todo.TodoCommand, intakeBuffer),
		done:     make(chan struct{}),
		watch:    newWatch(list.Clone()),
		presence: newPresenceTable(),
	}
}

// close tells the actor to drain, flush and exit. The intake channel itself
// is never closed: evicted connections may still race sends against
// teardown, and send-on-closed panics while send-past-done just fails.
func (h *ListHandle) close() {
	h.once.Do(func() { close(h.done) })
}

func (h *ListHandle) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// send queues a command for the actor.
func (h *ListHandle) send(ctx context.Context, cmd todo.TodoCommand) error {
	if h.closed() {
		return ErrClosed
	}
	select {
	case h.intake <- cmd:
		return nil
	case <-h.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- presence ----

// presence is one connection's claim on a user slot. The epoch orders
// connections of the same user; evict is closed when a newer connection
// takes the slot over.
type presence struct {
	evict chan struct{}
	epoch uint64
}

// presenceTable tracks which connection currently represents each user on a
// list. One user holds at most one slot; a second join evicts the first.
// Once the table is closed no further registrations are accepted, which
// makes the empty-then-teardown decision race-free.
type presenceTable struct {
	mu      sync.Mutex
	closed  bool
	epoch   uint64
	entries map[uuid.UUID]*presence
}

func newPresenceTable() *presenceTable {
	return &presenceTable{entries: make(map[uuid.UUID]*presence)}
}

// register claims the slot for userID, evicting any current holder. The
// previous holder's evict channel is closed exactly once, here; voluntary
// disconnects never close it. Returns ok=false when the table is closed.
func (p *presenceTable) register(userID uuid.UUID) (epoch uint64, evict chan struct{}, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, nil, false
	}
	if prev, held := p.entries[userID]; held {
		close(prev.evict)
	}
	p.epoch++
	ent := &presence{evict: make(chan struct{}), epoch: p.epoch}
	p.entries[userID] = ent
	return ent.epoch, ent.evict, true
}

// disconnect releases the slot, but only if it is still held by the same
// epoch; an evicted connection must not release its successor's slot.
func (p *presenceTable) disconnect(userID uuid.UUID, epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ent, held := p.entries[userID]
	if !held || ent.epoch != epoch {
		return false
	}
	delete(p.entries, userID)
	return true
}

// superseded reports whether userID now holds a connection other than epoch.
// The actor uses it to drop stale user_leave commands after a reconnect.
func (p *presenceTable) superseded(userID uuid.UUID, epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ent, held := p.entries[userID]
	return held && ent.epoch != epoch
}

// closeIfEmpty closes the table when no connections remain. Closing and the
// emptiness check share one critical section, so a register either lands
// before the decision (table stays open) or fails after it.
func (p *presenceTable) closeIfEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) > 0 {
		return false
	}
	p.closed = true
	return true
}

// forceClose closes the table regardless of remaining entries. Used on
// registry shutdown.
func (p *presenceTable) forceClose() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}
