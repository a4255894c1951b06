package todo

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/whisper-darkly/coodo-backend/user"
)

// CommandType discriminates the command union on the wire.
type CommandType string

const (
	CmdCreateTask  CommandType = "create_task"
	CmdTaskCommand CommandType = "task_command"
	CmdUserJoin    CommandType = "user_join"
	CmdUserLeave   CommandType = "user_leave"
	CmdSetListName CommandType = "set_list_name"
)

// TaskAction is the nested discriminator carried by task_command frames.
type TaskAction string

const (
	ActionSetDone     TaskAction = "set_done"
	ActionRename      TaskAction = "rename"
	ActionSetAssignee TaskAction = "set_assignee"
)

// TaskCommand targets one existing task. Which of Done, Name and Assignee is
// meaningful is selected by Action.
type TaskCommand struct {
	Task     uuid.UUID
	Action   TaskAction
	Done     bool
	Name     string
	Assignee user.User
}

// Command is a single mutation of a todo list. Type selects the payload
// field that is meaningful; the rest stay zero.
type Command struct {
	Type CommandType
	Task *TaskCommand // task_command
	User *user.User   // user_join / user_leave
	Name string       // set_list_name
}

// TodoCommand pairs a command with the authenticated user who issued it.
// The issuer always comes from the session, never from the wire.
//
// Epoch is set on server-injected user_leave commands and identifies the
// connection that issued the leave; the actor drops a leave whose user has
// since reconnected under a newer epoch, so a slow goodbye can never knock
// the successor session out of connectedUsers.
type TodoCommand struct {
	Issuer  user.User
	Command Command
	Epoch   uint64
}

// ---- constructors ----

func NewCreateTask() Command { return Command{Type: CmdCreateTask} }

func NewSetListName(name string) Command { return Command{Type: CmdSetListName, Name: name} }

func NewTaskSetDone(task uuid.UUID, done bool) Command {
	return Command{Type: CmdTaskCommand, Task: &TaskCommand{Task: task, Action: ActionSetDone, Done: done}}
}

func NewTaskRename(task uuid.UUID, name string) Command {
	return Command{Type: CmdTaskCommand, Task: &TaskCommand{Task: task, Action: ActionRename, Name: name}}
}

func NewTaskSetAssignee(task uuid.UUID, assignee user.User) Command {
	return Command{Type: CmdTaskCommand, Task: &TaskCommand{Task: task, Action: ActionSetAssignee, Assignee: assignee}}
}

func NewUserJoin(u user.User) Command { return Command{Type: CmdUserJoin, User: &u} }

func NewUserLeave(u user.User) Command { return Command{Type: CmdUserLeave, User: &u} }

// ---- application ----

// Apply mutates the list according to the command. It reports whether the
// list changed; a task command naming an unknown task leaves the list
// untouched, so nothing is published or stored for it.
func (l *TodoList) Apply(tc TodoCommand) bool {
	cmd := tc.Command
	switch cmd.Type {
	case CmdCreateTask:
		l.Tasks = append(l.Tasks, TodoTask{ID: uuid.New(), Assignee: tc.Issuer})
	case CmdTaskCommand:
		if cmd.Task == nil {
			return false
		}
		task := l.findTask(cmd.Task.Task)
		if task == nil {
			return false
		}
		switch cmd.Task.Action {
		case ActionSetDone:
			task.Done = cmd.Task.Done
			task.Assignee = tc.Issuer
		case ActionRename:
			task.Name = cmd.Task.Name
		case ActionSetAssignee:
			task.Assignee = cmd.Task.Assignee
		default:
			return false
		}
	case CmdUserJoin:
		if cmd.User == nil {
			return false
		}
		l.addUser(*cmd.User)
	case CmdUserLeave:
		if cmd.User == nil {
			return false
		}
		l.removeUser(cmd.User.ID)
	case CmdSetListName:
		l.Name = cmd.Name
	default:
		return false
	}
	l.touch()
	return true
}

// ---- wire codec ----

// Frames look like {"type": t, "data": d}; task commands nest a second
// {"task": id, "action": a, "data": d} envelope inside data.

type commandEnvelope struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type taskEnvelope struct {
	Task   uuid.UUID       `json:"task"`
	Action TaskAction      `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ParseCommand decodes one inbound frame. user_join and user_leave are
// injected by the server after authentication and are never accepted from
// the wire.
func ParseCommand(b []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(b, &c); err != nil {
		return Command{}, err
	}
	if c.Type == CmdUserJoin || c.Type == CmdUserLeave {
		return Command{}, fmt.Errorf("command type %q is server-internal", c.Type)
	}
	return c, nil
}

// UnmarshalJSON decodes the wire envelope into the union.
func (c *Command) UnmarshalJSON(b []byte) error {
	var env commandEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case CmdCreateTask:
		*c = Command{Type: CmdCreateTask}
	case CmdSetListName:
		var name string
		if err := json.Unmarshal(env.Data, &name); err != nil {
			return fmt.Errorf("set_list_name data: %w", err)
		}
		*c = Command{Type: CmdSetListName, Name: name}
	case CmdTaskCommand:
		tc, err := parseTaskCommand(env.Data)
		if err != nil {
			return err
		}
		*c = Command{Type: CmdTaskCommand, Task: tc}
	case CmdUserJoin, CmdUserLeave:
		var u user.User
		if err := json.Unmarshal(env.Data, &u); err != nil {
			return fmt.Errorf("%s data: %w", env.Type, err)
		}
		*c = Command{Type: env.Type, User: &u}
	default:
		return fmt.Errorf("unknown command type %q", env.Type)
	}
	return nil
}

func parseTaskCommand(raw json.RawMessage) (*TaskCommand, error) {
	var env taskEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("task_command data: %w", err)
	}
	tc := &TaskCommand{Task: env.Task, Action: env.Action}
	switch env.Action {
	case ActionSetDone:
		if err := json.Unmarshal(env.Data, &tc.Done); err != nil {
			return nil, fmt.Errorf("set_done data: %w", err)
		}
	case ActionRename:
		if err := json.Unmarshal(env.Data, &tc.Name); err != nil {
			return nil, fmt.Errorf("rename data: %w", err)
		}
	case ActionSetAssignee:
		if err := json.Unmarshal(env.Data, &tc.Assignee); err != nil {
			return nil, fmt.Errorf("set_assignee data: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown task action %q", env.Action)
	}
	return tc, nil
}

// MarshalJSON encodes the command back into its wire envelope. Used by the
// API client; the server itself only ever decodes commands.
func (c Command) MarshalJSON() ([]byte, error) {
	env := commandEnvelope{Type: c.Type}
	var payload any
	switch c.Type {
	case CmdCreateTask:
		// no payload
	case CmdSetListName:
		payload = c.Name
	case CmdTaskCommand:
		if c.Task == nil {
			return nil, fmt.Errorf("task_command without task payload")
		}
		var data any
		switch c.Task.Action {
		case ActionSetDone:
			data = c.Task.Done
		case ActionRename:
			data = c.Task.Name
		case ActionSetAssignee:
			data = c.Task.Assignee
		default:
			return nil, fmt.Errorf("unknown task action %q", c.Task.Action)
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		payload = taskEnvelope{Task: c.Task.Task, Action: c.Task.Action, Data: raw}
	case CmdUserJoin, CmdUserLeave:
		if c.User == nil {
			return nil, fmt.Errorf("%s without user payload", c.Type)
		}
		payload = *c.User
	default:
		return nil, fmt.Errorf("unknown command type %q", c.Type)
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
