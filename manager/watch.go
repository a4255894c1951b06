// Package manager is the live-collaboration engine. Every active list is
// owned by exactly one actor goroutine that serialises commands, publishes
// snapshots to subscribed connections, and writes the list back to the store
// on a throttled cadence. The Registry tracks the handles of all live actors
// and tears them down when their last subscriber leaves.
package manager

import (
	"sync"

	"github.com/whisper-darkly/coodo-backend/todo"
)

// watch is a single-slot snapshot publisher: each publish overwrites the
// previous value, so slow readers coalesce to the newest state instead of
// queueing intermediate ones. Publication wakes every waiting Watcher by
// closing (and replacing) the notify channel.
type watch struct {
	mu      sync.Mutex
	value   todo.TodoList
	version uint64
	notify  chan struct{}
}

func newWatch(initial todo.TodoList) *watch {
	return &watch{value: initial, notify: make(chan struct{})}
}

func (w *watch) publish(list todo.TodoList) {
	w.mu.Lock()
	w.value = list
	w.version++
	close(w.notify)
	w.notify = make(chan struct{})
	w.mu.Unlock()
}

// current returns a clone of the newest value.
func (w *watch) current() todo.TodoList {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value.Clone()
}

// subscribe returns a Watcher whose cursor starts at the current version:
// it observes only values published after this call.
func (w *watch) subscribe() *Watcher {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &Watcher{watch: w, seen: w.version}
}

// closedCh is returned by Changed when an unseen value is already waiting.
var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Watcher is one subscriber's view of a watch slot. Observed snapshots are
// strictly monotone in version; intermediate values may be skipped. Not safe
// for concurrent use by multiple goroutines.
type Watcher struct {
	watch *watch
	seen  uint64
}

// Changed returns a channel that is closed once a value newer than the last
// one returned by Latest has been published. Suitable for select loops.
func (r *Watcher) Changed() <-chan struct{} {
	r.watch.mu.Lock()
	defer r.watch.mu.Unlock()
	if r.watch.version > r.seen {
		return closedCh
	}
	return r.watch.notify
}

// Latest returns a clone of the newest published value and marks it seen.
func (r *Watcher) Latest() todo.TodoList {
	r.watch.mu.Lock()
	defer r.watch.mu.Unlock()
	r.seen = r.watch.version
	return r.watch.value.Clone()
}
