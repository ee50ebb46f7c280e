package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

func emailTask(mode string, fields map[string]any) models.Task {
	return models.Task{Action: "email", Mode: mode, Fields: fields}
}

func TestValidateEmailTasks(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []models.Task
		missing []string
	}{
		{
			name: "valid send task",
			tasks: []models.Task{
				emailTask("send", map[string]any{"recipient": "a@b.com", "subject": "Hi"}),
			},
		},
		{
			name: "absent recipient and subject",
			tasks: []models.Task{
				emailTask("send", map[string]any{"body": "hello"}),
			},
			missing: []string{"recipient", "subject"},
		},
		{
			name: "placeholder recipient treated as absent",
			tasks: []models.Task{
				emailTask("send", map[string]any{"recipient": "recipient@example.com", "subject": "Hi"}),
			},
			missing: []string{"recipient"},
		},
		{
			name: "placeholder subject treated as absent",
			tasks: []models.Task{
				emailTask("send", map[string]any{"recipient": "a@b.com", "subject": "Email Subject"}),
			},
			missing: []string{"subject"},
		},
		{
			name: "whitespace only is absent",
			tasks: []models.Task{
				emailTask("send", map[string]any{"recipient": "   ", "subject": "Hi"}),
			},
			missing: []string{"recipient"},
		},
		{
			name: "read mode needs only a query",
			tasks: []models.Task{
				emailTask("read", map[string]any{"query": "from:a@b.com"}),
			},
		},
		{
			name: "read mode placeholder query",
			tasks: []models.Task{
				emailTask("read", map[string]any{"query": "search query"}),
			},
			missing: []string{"query"},
		},
		{
			name: "unknown send-like mode checked as send",
			tasks: []models.Task{
				emailTask("forward", map[string]any{"recipient": "a@b.com"}),
			},
			missing: []string{"subject"},
		},
		{
			name: "non-email tasks are skipped",
			tasks: []models.Task{
				{Action: "calendar", Mode: "create", Fields: map[string]any{}},
			},
		},
		{
			name: "duplicates reported once in first-seen order",
			tasks: []models.Task{
				emailTask("send", map[string]any{"subject": "Hi"}),
				emailTask("send", map[string]any{}),
				emailTask("read", map[string]any{}),
			},
			missing: []string{"recipient", "subject", "query"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := validateEmailTasks(tt.tasks, DefaultPlaceholders)
			assert.Equal(t, tt.missing, got)
		})
	}
}

func TestMissingFieldsMessage(t *testing.T) {
	assert.Equal(t,
		"You have not provided recipient, subject. Please repeat with all required fields.",
		missingFieldsMessage([]string{"recipient", "subject"}))
	assert.Equal(t,
		"You have not provided query. Please repeat with all required fields.",
		missingFieldsMessage([]string{"query"}))
}

func TestPrepareArguments(t *testing.T) {
	t.Run("send defaults optional fields", func(t *testing.T) {
		args, err := prepareArguments(emailTask("send", map[string]any{"recipient": "a@b.com", "subject": "Hi"}))
		assert.NoError(t, err)
		assert.Equal(t, "send", args["mode"])
		assert.Equal(t, "", args["body"])
		assert.Equal(t, "", args["cc"])
		assert.Equal(t, "", args["bcc"])
	})

	t.Run("read rejects a blank query", func(t *testing.T) {
		_, err := prepareArguments(emailTask("read", map[string]any{"query": "  "}))
		assert.EqualError(t, err, "missing required field 'query' for email read action")
	})

	t.Run("read passes the query through", func(t *testing.T) {
		args, err := prepareArguments(emailTask("read", map[string]any{"query": "is:unread"}))
		assert.NoError(t, err)
		assert.Equal(t, "is:unread", args["query"])
	})
}
