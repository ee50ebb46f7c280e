package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

func TestTaskUnmarshalFlattened(t *testing.T) {
	raw := `{"action":"email","mode":"send","recipient":"a@b.com","subject":"Hi","max_results":5}`

	var task models.Task
	require.NoError(t, json.Unmarshal([]byte(raw), &task))

	assert.Equal(t, "email", task.Action)
	assert.Equal(t, "send", task.Mode)
	assert.Equal(t, "a@b.com", task.Field("recipient"))
	assert.Equal(t, "Hi", task.Field("subject"))

	// action/mode are routing keys, not arguments
	_, hasAction := task.Fields["action"]
	_, hasMode := task.Fields["mode"]
	assert.False(t, hasAction)
	assert.False(t, hasMode)
	assert.Equal(t, float64(5), task.Fields["max_results"])
}

func TestTaskMarshalFlattened(t *testing.T) {
	task := models.Task{
		Action: "email",
		Mode:   "read",
		Fields: map[string]any{"query": "is:unread"},
	}

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "email", flat["action"])
	assert.Equal(t, "read", flat["mode"])
	assert.Equal(t, "is:unread", flat["query"])
}

func TestTaskField(t *testing.T) {
	task := models.Task{Fields: map[string]any{
		"recipient": "a@b.com",
		"count":     3,
		"nothing":   nil,
	}}

	assert.Equal(t, "a@b.com", task.Field("recipient"))
	assert.Equal(t, "", task.Field("nothing"))
	assert.Equal(t, "", task.Field("absent"))
	assert.Equal(t, "3", task.Field("count"), "non-string values render as JSON")
}

func TestWorkflowStatusTerminal(t *testing.T) {
	assert.False(t, models.PendingWorkflowStatus.Terminal())
	assert.False(t, models.InProgressWorkflowStatus.Terminal())
	assert.True(t, models.CompletedWorkflowStatus.Terminal())
	assert.True(t, models.FailedWorkflowStatus.Terminal())
	assert.True(t, models.CancelledWorkflowStatus.Terminal())
}
