// Package todo holds the todo-list data model: the list document itself and
// the command set that mutates it. Everything here is a plain in-memory
// value; concurrency and persistence live in the manager and store packages.
package todo

import (
	"time"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/user"
)

// TodoTask is one entry in a list. The assignee starts as the creator and
// moves to whoever last toggled done.
type TodoTask struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Assignee user.User `json:"assignee"`
	Done     bool      `json:"done"`
}

// TodoList is the complete state of one collaborative list. It is mutated
// only by the actor that owns it; everyone else sees clones.
type TodoList struct {
	ID             uuid.UUID   `json:"id"`
	Name           string      `json:"name"`
	Tasks          []TodoTask  `json:"tasks"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastUpdatedAt  time.Time   `json:"lastUpdatedAt"`
	ConnectedUsers []user.User `json:"connectedUsers"`
}

// TodoListInfo is the {id, name} projection used for membership listings.
type TodoListInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// NewList returns an empty list with a fresh id. Slices are non-nil so the
// document serialises as [] rather than null.
func NewList() TodoList {
	now := time.Now().UTC()
	return TodoList{
		ID:             uuid.New(),
		Tasks:          []TodoTask{},
		CreatedAt:      now,
		LastUpdatedAt:  now,
		ConnectedUsers: []user.User{},
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (l *TodoList) Clone() TodoList {
	c := *l
	c.Tasks = make([]TodoTask, len(l.Tasks))
	copy(c.Tasks, l.Tasks)
	c.ConnectedUsers = make([]user.User, len(l.ConnectedUsers))
	copy(c.ConnectedUsers, l.ConnectedUsers)
	return c
}

// Info projects the list to its membership descriptor.
func (l *TodoList) Info() TodoListInfo {
	return TodoListInfo{ID: l.ID, Name: l.Name}
}

// touch stamps LastUpdatedAt, keeping it monotone even if the clock steps
// backwards between mutations.
func (l *TodoList) touch() {
	if now := time.Now().UTC(); now.After(l.LastUpdatedAt) {
		l.LastUpdatedAt = now
	}
}

func (l *TodoList) findTask(id uuid.UUID) *TodoTask {
	for i := range l.Tasks {
		if l.Tasks[i].ID == id {
			return &l.Tasks[i]
		}
	}
	return nil
}

func (l *TodoList) addUser(u user.User) {
	for _, existing := range l.ConnectedUsers {
		if existing.ID == u.ID {
			return
		}
	}
	l.ConnectedUsers = append(l.ConnectedUsers, u)
}

func (l *TodoList) removeUser(id uuid.UUID) {
	users := l.ConnectedUsers[:0]
	for _, u := range l.ConnectedUsers {
		if u.ID != id {
			users = append(users, u)
		}
	}
	l.ConnectedUsers = users
}
