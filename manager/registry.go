package manager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/store"
	"github.com/whisper-darkly/coodo-backend/todo"
	"github.com/whisper-darkly/coodo-backend/user"
)

// Registry tracks every list with at least one live connection. Joining a
// cold list loads it from the store and spawns its actor; the last leave
// tears the actor down again after a final flush.
type Registry struct {
	mu     sync.RWMutex
	lists  map[uuid.UUID]*ListHandle
	closed bool

	store    store.TodoStore
	interval time.Duration
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry. interval is the write-behind
// cadence handed to each actor.
func NewRegistry(st store.TodoStore, interval time.Duration) *Registry {
	return &Registry{
		lists:    make(map[uuid.UUID]*ListHandle),
		store:    st,
		interval: interval,
	}
}

// Join attaches u to list id, loading the document and spawning its actor
// if the list is not already live. A user_join command is queued before
// returning, so the subscription's first snapshot is the post-join state.
// Returns store.ErrNotFound when no such list exists.
func (r *Registry) Join(ctx context.Context, id uuid.UUID, u user.User) (*Subscription, error) {
	sub, err := r.attach(ctx, id, u)
	if err != nil {
		return nil, err
	}

	join := todo.TodoCommand{Issuer: u, Command: todo.NewUserJoin(u)}
	if err := sub.handle.send(ctx, join); err != nil {
		if errors.Is(err, ErrClosed) {
			select {
			case <-sub.evict:
				// A rival connection for the same user evicted this one and
				// then drained the list. The caller observes the eviction
				// the usual way.
				return sub, nil
			default:
			}
			return nil, err
		}
		// Context died while the queue was full. Roll the attachment back.
		sub.Leave(context.Background())
		return nil, err
	}
	return sub, nil
}

// attach registers the connection, using a live handle when one exists and
// loading the list outside any lock otherwise. Concurrent joins to the same
// cold list may both load; the loser adopts the winner's handle and its
// load result is discarded.
func (r *Registry) attach(ctx context.Context, id uuid.UUID, u user.User) (*Subscription, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrClosed
	}
	h := r.lists[id]
	r.mu.RUnlock()

	if h != nil {
		if sub := r.register(h, u); sub != nil {
			return sub, nil
		}
		// The handle drained and closed between lookup and register.
		// Fall through and bring the list back up.
	}

	list, err := r.store.LoadList(ctx, id)
	if err != nil {
		return nil, err
	}
	// A cold load means nobody is attached yet. A hard shutdown flushes
	// whoever was connected into the stored document; dropping them here
	// keeps connectedUsers in line with actual presence.
	list.ConnectedUsers = list.ConnectedUsers[:0]

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	h = r.lists[id]
	if h == nil {
		h = newListHandle(list)
		r.lists[id] = h
		r.spawn(h, list)
	}
	sub := r.register(h, u)
	if sub == nil {
		// Unreachable: teardown needs the write lock held here.
		return nil, ErrClosed
	}
	return sub, nil
}

func (r *Registry) register(h *ListHandle, u user.User) *Subscription {
	epoch, evict, ok := h.presence.register(u.ID)
	if !ok {
		return nil
	}
	return &Subscription{
		registry: r,
		handle:   h,
		watcher:  h.watch.subscribe(),
		user:     u,
		epoch:    epoch,
		evict:    evict,
	}
}

func (r *Registry) spawn(h *ListHandle, list todo.TodoList) {
	a := &actor{list: list, handle: h, store: r.store, interval: r.interval}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		a.run()
	}()
}

// release drops the handle once its presence table is empty. The identity
// check keeps a stale release, kept around by an evicted connection, from
// touching a newer incarnation of the same list.
func (r *Registry) release(h *ListHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lists[h.id] != h {
		return
	}
	if !h.presence.closeIfEmpty() {
		return
	}
	delete(r.lists, h.id)
	h.close()
}

// FillInfos resolves membership entries to fresh names. Live lists answer
// from the actor's latest snapshot, cold ones from the store; when neither
// works the entry keeps the name recorded in the session.
func (r *Registry) FillInfos(ctx context.Context, infos []todo.TodoListInfo) []todo.TodoListInfo {
	out := make([]todo.TodoListInfo, 0, len(infos))
	for _, info := range infos {
		r.mu.RLock()
		h := r.lists[info.ID]
		r.mu.RUnlock()

		if h != nil {
			list := h.watch.current()
			info.Name = list.Name
			out = append(out, info)
			continue
		}

		name, err := r.store.GetListName(ctx, info.ID)
		switch {
		case err == nil:
			info.Name = name
		case errors.Is(err, store.ErrNotFound):
			// Deleted list; keep the stale entry as the session recorded it.
		default:
			slog.Warn("manager: resolve list name", "list", info.ID, "error", err)
		}
		out = append(out, info)
	}
	return out
}

// Live reports whether the list currently has an actor. Mostly useful in
// tests and diagnostics.
func (r *Registry) Live(id uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lists[id] != nil
}

// Close tears down every actor and waits for their final flushes. Joins
// racing with Close fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		for id, h := range r.lists {
			h.presence.forceClose()
			delete(r.lists, id)
			h.close()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// ---- subscription ----

// Subscription is one connection's attachment to a live list: a snapshot
// stream, a way to submit commands as the joined user, and an eviction
// signal for when the same user connects again elsewhere.
type Subscription struct {
	registry *Registry
	handle   *ListHandle
	watcher  *Watcher
	user     user.User
	epoch    uint64
	evict    chan struct{}
	once     sync.Once
}

// User returns the identity this subscription acts as.
func (s *Subscription) User() user.User { return s.user }

// Changed returns a channel that is closed once a snapshot newer than the
// last Latest call has been published.
func (s *Subscription) Changed() <-chan struct{} { return s.watcher.Changed() }

// Latest returns the newest published snapshot and marks it seen.
func (s *Subscription) Latest() todo.TodoList { return s.watcher.Latest() }

// Evicted is closed when the same user joins this list again from another
// connection. The evicted connection must shut down without calling Leave
// on the user's behalf; its slot already belongs to the successor.
func (s *Subscription) Evicted() <-chan struct{} { return s.evict }

// Send submits a command on behalf of the subscribed user.
func (s *Subscription) Send(ctx context.Context, cmd todo.Command) error {
	return s.handle.send(ctx, todo.TodoCommand{Issuer: s.user, Command: cmd})
}

// Leave detaches the connection: a user_leave is queued for the actor, the
// presence slot is released, and the actor is torn down if this was the
// last connection. The goodbye is queued before the slot is released;
// releasing first would let a concurrent last leave drain the actor with
// this user still in the document. The epoch stamp lets the actor drop the
// goodbye if the user has reconnected in the meantime. Idempotent.
func (s *Subscription) Leave(ctx context.Context) {
	s.once.Do(func() {
		leave := todo.TodoCommand{
			Issuer:  s.user,
			Command: todo.NewUserLeave(s.user),
			Epoch:   s.epoch,
		}
		if err := s.handle.send(ctx, leave); err != nil {
			slog.Debug("manager: queue user_leave", "list", s.handle.id, "user", s.user.ID, "error", err)
		}
		s.handle.presence.disconnect(s.user.ID, s.epoch)
		s.registry.release(s.handle)
	})
}
