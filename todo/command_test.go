package todo

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper-darkly/coodo-backend/user"
)

func testUser(handle string) user.User {
	return user.User{ID: uuid.New(), Handle: handle}
}

func TestApply_CreateTask(t *testing.T) {
	list := NewList()
	alice := testUser("brisk-copper-lemur")

	changed := list.Apply(TodoCommand{Issuer: alice, Command: NewCreateTask()})

	assert.True(t, changed)
	require.Len(t, list.Tasks, 1)
	task := list.Tasks[0]
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Empty(t, task.Name)
	assert.False(t, task.Done)
	assert.Equal(t, alice, task.Assignee, "a new task belongs to its creator")
}

func TestApply_SetDone_ClaimsTask(t *testing.T) {
	list := NewList()
	alice := testUser("alice")
	bob := testUser("bob")
	list.Apply(TodoCommand{Issuer: alice, Command: NewCreateTask()})
	taskID := list.Tasks[0].ID

	changed := list.Apply(TodoCommand{Issuer: bob, Command: NewTaskSetDone(taskID, true)})

	assert.True(t, changed)
	assert.True(t, list.Tasks[0].Done)
	assert.Equal(t, bob, list.Tasks[0].Assignee, "toggling done reassigns the task to the toggler")

	// Unchecking claims it too.
	list.Apply(TodoCommand{Issuer: alice, Command: NewTaskSetDone(taskID, false)})
	assert.False(t, list.Tasks[0].Done)
	assert.Equal(t, alice, list.Tasks[0].Assignee)
}

func TestApply_Rename_KeepsAssignee(t *testing.T) {
	list := NewList()
	alice := testUser("alice")
	bob := testUser("bob")
	list.Apply(TodoCommand{Issuer: alice, Command: NewCreateTask()})
	taskID := list.Tasks[0].ID

	changed := list.Apply(TodoCommand{Issuer: bob, Command: NewTaskRename(taskID, "buy milk")})

	assert.True(t, changed)
	assert.Equal(t, "buy milk", list.Tasks[0].Name)
	assert.Equal(t, alice, list.Tasks[0].Assignee, "renaming must not claim the task")
}

func TestApply_SetAssignee(t *testing.T) {
	list := NewList()
	alice := testUser("alice")
	bob := testUser("bob")
	list.Apply(TodoCommand{Issuer: alice, Command: NewCreateTask()})
	taskID := list.Tasks[0].ID

	changed := list.Apply(TodoCommand{Issuer: alice, Command: NewTaskSetAssignee(taskID, bob)})

	assert.True(t, changed)
	assert.Equal(t, bob, list.Tasks[0].Assignee)
}

func TestApply_UnknownTask_LeavesListUntouched(t *testing.T) {
	list := NewList()
	alice := testUser("alice")
	list.Apply(TodoCommand{Issuer: alice, Command: NewCreateTask()})
	before := list.Clone()

	changed := list.Apply(TodoCommand{Issuer: alice, Command: NewTaskSetDone(uuid.New(), true)})

	assert.False(t, changed)
	assert.Equal(t, before, list)
}

func TestApply_SetListName(t *testing.T) {
	list := NewList()
	alice := testUser("alice")

	changed := list.Apply(TodoCommand{Issuer: alice, Command: NewSetListName("groceries")})

	assert.True(t, changed)
	assert.Equal(t, "groceries", list.Name)

	// Renaming to the same name is idempotent on the document.
	list.Apply(TodoCommand{Issuer: alice, Command: NewSetListName("groceries")})
	assert.Equal(t, "groceries", list.Name)
}

func TestApply_UserJoin_DedupsButStillChanges(t *testing.T) {
	list := NewList()
	alice := testUser("alice")

	assert.True(t, list.Apply(TodoCommand{Issuer: alice, Command: NewUserJoin(alice)}))
	require.Len(t, list.ConnectedUsers, 1)

	// A second join of the same user must not duplicate the entry, but it
	// still counts as a change: the rejoined connection needs a snapshot
	// published for it.
	assert.True(t, list.Apply(TodoCommand{Issuer: alice, Command: NewUserJoin(alice)}))
	assert.Len(t, list.ConnectedUsers, 1)
}

func TestApply_UserLeave(t *testing.T) {
	list := NewList()
	alice := testUser("alice")
	bob := testUser("bob")
	list.Apply(TodoCommand{Issuer: alice, Command: NewUserJoin(alice)})
	list.Apply(TodoCommand{Issuer: bob, Command: NewUserJoin(bob)})

	assert.True(t, list.Apply(TodoCommand{Issuer: alice, Command: NewUserLeave(alice)}))
	assert.Equal(t, []user.User{bob}, list.ConnectedUsers)
}

func TestApply_MissingPayloads(t *testing.T) {
	list := NewList()
	issuer := testUser("alice")

	assert.False(t, list.Apply(TodoCommand{Issuer: issuer, Command: Command{Type: CmdTaskCommand}}))
	assert.False(t, list.Apply(TodoCommand{Issuer: issuer, Command: Command{Type: CmdUserJoin}}))
	assert.False(t, list.Apply(TodoCommand{Issuer: issuer, Command: Command{Type: CmdUserLeave}}))
	assert.False(t, list.Apply(TodoCommand{Issuer: issuer, Command: Command{Type: "sabotage"}}))
}

// ---- wire codec ----

func TestParseCommand_Frames(t *testing.T) {
	taskID := uuid.New()
	assignee := testUser("witty-jade-otter")
	assigneeJSON, err := json.Marshal(assignee)
	require.NoError(t, err)

	tests := []struct {
		name  string
		frame string
		want  Command
	}{
		{
			name:  "create task",
			frame: `{"type":"create_task"}`,
			want:  NewCreateTask(),
		},
		{
			name:  "set list name",
			frame: `{"type":"set_list_name","data":"groceries"}`,
			want:  NewSetListName("groceries"),
		},
		{
			name:  "set done",
			frame: fmt.Sprintf(`{"type":"task_command","data":{"task":%q,"action":"set_done","data":true}}`, taskID),
			want:  NewTaskSetDone(taskID, true),
		},
		{
			name:  "rename",
			frame: fmt.Sprintf(`{"type":"task_command","data":{"task":%q,"action":"rename","data":"buy milk"}}`, taskID),
			want:  NewTaskRename(taskID, "buy milk"),
		},
		{
			name:  "set assignee",
			frame: fmt.Sprintf(`{"type":"task_command","data":{"task":%q,"action":"set_assignee","data":%s}}`, taskID, assigneeJSON),
			want:  NewTaskSetAssignee(taskID, assignee),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_RejectsServerInternalTypes(t *testing.T) {
	u, err := json.Marshal(testUser("alice"))
	require.NoError(t, err)

	for _, typ := range []string{"user_join", "user_leave"} {
		frame := fmt.Sprintf(`{"type":%q,"data":%s}`, typ, u)
		_, err := ParseCommand([]byte(frame))
		assert.Error(t, err, "type %s must never be accepted from the wire", typ)
		assert.Contains(t, err.Error(), "server-internal")
	}
}

func TestParseCommand_Malformed(t *testing.T) {
	frames := []string{
		`not json at all`,
		`{"type":"launch_missiles"}`,
		`{"type":"set_list_name"}`,
		`{"type":"task_command","data":{"task":"nope","action":"set_done","data":true}}`,
		fmt.Sprintf(`{"type":"task_command","data":{"task":%q,"action":"explode","data":true}}`, uuid.New()),
		fmt.Sprintf(`{"type":"task_command","data":{"task":%q,"action":"set_done","data":"yes"}}`, uuid.New()),
	}
	for _, frame := range frames {
		_, err := ParseCommand([]byte(frame))
		assert.Error(t, err, "frame %s", frame)
	}
}

func TestCommand_MarshalProducesParsableFrames(t *testing.T) {
	taskID := uuid.New()
	cmds := []Command{
		NewCreateTask(),
		NewSetListName("weekend plans"),
		NewTaskRename(taskID, "water the plants"),
		NewTaskSetDone(taskID, true),
		NewTaskSetAssignee(taskID, testUser("calm-teal-heron")),
	}
	for _, cmd := range cmds {
		raw, err := json.Marshal(cmd)
		require.NoError(t, err)
		got, err := ParseCommand(raw)
		require.NoError(t, err, "frame %s", raw)
		assert.Equal(t, cmd, got)
	}
}

func TestCommand_MarshalEnvelopeShape(t *testing.T) {
	taskID := uuid.New()
	raw, err := json.Marshal(NewTaskSetDone(taskID, true))
	require.NoError(t, err)

	var env struct {
		Type string `json:"type"`
		Data struct {
			Task   uuid.UUID       `json:"task"`
			Action string          `json:"action"`
			Data   json.RawMessage `json:"data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "task_command", env.Type)
	assert.Equal(t, taskID, env.Data.Task)
	assert.Equal(t, "set_done", env.Data.Action)
	assert.JSONEq(t, "true", string(env.Data.Data))
}
