package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-darkly/coodo-backend/todo"
)

func namedList(name string) todo.TodoList {
	l := todo.NewList()
	l.Name = name
	return l
}

func changed(w *Watcher) bool {
	select {
	case <-w.Changed():
		return true
	default:
		return false
	}
}

func TestWatcher_SeesOnlyValuesPublishedAfterSubscribe(t *testing.T) {
	w := newWatch(namedList("initial"))
	w.publish(namedList("before"))

	sub := w.subscribe()
	assert.False(t, changed(sub), "nothing published since subscribing")

	w.publish(namedList("after"))
	require.True(t, changed(sub))
	assert.Equal(t, "after", sub.Latest().Name)
	assert.False(t, changed(sub), "Latest marks the value seen")
}

func TestWatcher_CoalescesIntermediateValues(t *testing.T) {
	w := newWatch(namedList("initial"))
	sub := w.subscribe()

	w.publish(namedList("one"))
	w.publish(namedList("two"))
	w.publish(namedList("three"))

	require.True(t, changed(sub))
	assert.Equal(t, "three", sub.Latest().Name, "a slow reader gets the newest value, not a queue")
	assert.False(t, changed(sub))
}

func TestWatcher_ChangedWakesBlockedSelect(t *testing.T) {
	w := newWatch(namedList("initial"))
	sub := w.subscribe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		w.publish(namedList("wake"))
	}()

	select {
	case <-sub.Changed():
		assert.Equal(t, "wake", sub.Latest().Name)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not wake the watcher")
	}
}

func TestWatcher_IndependentCursors(t *testing.T) {
	w := newWatch(namedList("initial"))
	early := w.subscribe()
	w.publish(namedList("one"))
	late := w.subscribe()

	assert.True(t, changed(early))
	assert.False(t, changed(late))

	w.publish(namedList("two"))
	assert.Equal(t, "two", early.Latest().Name)
	assert.Equal(t, "two", late.Latest().Name)
}

func TestWatch_CurrentReturnsClone(t *testing.T) {
	w := newWatch(namedList("original"))

	got := w.current()
	got.Name = "tampered"
	got.Tasks = append(got.Tasks, todo.TodoTask{Name: "tampered"})

	assert.Equal(t, "original", w.current().Name)
	assert.Empty(t, w.current().Tasks)
}
