package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/capability"
	"github.com/vijay-varadarajan/AutoAgent/pkg/engine"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

const (
	sendScope = "https://mail.example.com/send"
	readScope = "https://mail.example.com/read"
)

type testLogger struct{ t *testing.T }

func (l testLogger) Infof(format string, args ...interface{})  { l.t.Logf("INFO "+format, args...) }
func (l testLogger) Warnf(format string, args ...interface{})  { l.t.Logf("WARN "+format, args...) }
func (l testLogger) Errorf(format string, args ...interface{}) { l.t.Logf("ERROR "+format, args...) }

// recordingNotifier tracks the thinking-message lifecycle and final texts.
type recordingNotifier struct {
	announced int
	updates   []string
	retired   int
	finals    []string
}

func (n *recordingNotifier) Announce(ctx context.Context, text string) (int, error) {
	n.announced++
	return 42, nil
}

func (n *recordingNotifier) Update(ctx context.Context, id int, text string) error {
	n.updates = append(n.updates, text)
	return nil
}

func (n *recordingNotifier) Retire(ctx context.Context, id int) error {
	n.retired++
	return nil
}

func (n *recordingNotifier) Finalize(ctx context.Context, text string) error {
	n.finals = append(n.finals, text)
	return nil
}

// fakeCapability invokes a configurable function and records every call.
type fakeCapability struct {
	name   string
	scopes []string
	invoke func(args map[string]any) (string, error)

	calls []map[string]any
}

func (c *fakeCapability) Name() string             { return c.name }
func (c *fakeCapability) RequiredScopes() []string { return c.scopes }

func (c *fakeCapability) Invoke(ctx context.Context, args map[string]any) (string, error) {
	c.calls = append(c.calls, args)
	return c.invoke(args)
}

type fixture struct {
	store    storage.Store
	registry *capability.Registry
	gate     *auth.Gate
	notifier *recordingNotifier
	send     *fakeCapability
	read     *fakeCapability
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    storage.NewMockStore(),
		registry: capability.NewRegistry(),
		notifier: &recordingNotifier{},
		send: &fakeCapability{
			name:   "send_email",
			scopes: []string{sendScope},
			invoke: func(args map[string]any) (string, error) {
				return "Email sent successfully to a@b.com with message ID: 123", nil
			},
		},
		read: &fakeCapability{
			name:   "read_email",
			scopes: []string{readScope},
			invoke: func(args map[string]any) (string, error) {
				return "Found 2 emails:", nil
			},
		},
	}
	f.registry.Register("email", "send", "send_email", []string{sendScope}, func(userID string) (capability.Capability, error) {
		return f.send, nil
	})
	f.registry.Register("email", "read", "read_email", []string{readScope}, func(userID string) (capability.Capability, error) {
		return f.read, nil
	})
	f.gate = auth.NewGate(f.store, f.registry)
	return f
}

func (f *fixture) grant(t *testing.T, userID string, scopes ...string) {
	require.NoError(t, f.store.SaveTokens(models.TokenRecord{
		UserID:      userID,
		AccessToken: "at",
		Scopes:      scopes,
	}))
}

func (f *fixture) saveWorkflow(t *testing.T, userID string, tasks ...models.Task) string {
	id, err := f.store.SaveWorkflow(models.Workflow{
		UserID: userID,
		Prompt: "test prompt",
		Tasks:  tasks,
		Status: models.PendingWorkflowStatus,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) executor(t *testing.T, workflowID string) *engine.Executor {
	exec := engine.NewExecutor(f.store, f.registry, f.gate, f.notifier, testLogger{t}, workflowID)
	require.True(t, exec.Load())
	return exec
}

func (f *fixture) status(t *testing.T, id string) models.WorkflowStatus {
	wf, err := f.store.GetWorkflow(id)
	require.NoError(t, err)
	return wf.Status
}

func (f *fixture) logEntries(t *testing.T, id string) []models.LogEntry {
	entries, err := f.store.GetExecutionLog(id)
	require.NoError(t, err)
	return entries
}

func sendTask(recipient, subject, body string) models.Task {
	return models.Task{
		Action: "email",
		Mode:   "send",
		Fields: map[string]any{"recipient": recipient, "subject": subject, "body": body},
	}
}

func TestExecuteSingleSendTask(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)
	id := f.saveWorkflow(t, "u1", sendTask("a@b.com", "Hi", "hello"))

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Suspended)
	assert.Equal(t, "Email sent successfully to a@b.com with message ID: 123", result.Message)
	assert.Len(t, result.Tasks, 1)
	assert.True(t, result.Tasks[0].Success)
	assert.Equal(t, models.CompletedWorkflowStatus, f.status(t, id))

	// Summary first, primary result second
	require.Len(t, f.notifier.finals, 2)
	assert.Equal(t, "🎉 Workflow completed successfully!", f.notifier.finals[0])
	assert.Equal(t, result.Message, f.notifier.finals[1])

	// Thinking message created exactly once and always retired
	assert.Equal(t, 1, f.notifier.announced)
	assert.Equal(t, 1, f.notifier.retired)
}

func TestExecuteValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)
	id := f.saveWorkflow(t, "u1", models.Task{
		Action: "email",
		Mode:   "send",
		Fields: map[string]any{"recipient": "recipient@example.com", "body": "hi"},
	})

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "You have not provided recipient, subject. Please repeat with all required fields.", result.Message)
	assert.Equal(t, models.FailedWorkflowStatus, f.status(t, id))
	assert.Empty(t, f.send.calls, "no capability may run after a validation failure")

	entries := f.logEntries(t, id)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, models.ErrorLogEntry, last.Type)
	assert.Equal(t, "VALIDATION_ERROR", last.ErrorCode)
	assert.Equal(t, 1, f.notifier.retired)
}

func TestExecuteSuspendsWithoutGrant(t *testing.T) {
	f := newFixture(t)
	id := f.saveWorkflow(t, "u1", sendTask("a@b.com", "Hi", "hello"))

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Suspended)
	assert.False(t, result.Success)
	assert.Equal(t, []string{sendScope}, result.MissingScopes)
	assert.Equal(t, models.PendingWorkflowStatus, f.status(t, id), "suspended workflow stays pending")
	assert.Empty(t, f.send.calls)

	entries := f.logEntries(t, id)
	require.Len(t, entries, 1)
	assert.Equal(t, models.InfoLogEntry, entries[0].Type)
	assert.Equal(t, "Workflow awaiting authorization", entries[0].Message)
	assert.Equal(t, 1, f.notifier.retired)
	assert.Empty(t, f.notifier.finals, "the caller sends the single permission prompt with the consent URL")
}

func TestSuspendThenResumeAfterGrant(t *testing.T) {
	f := newFixture(t)
	id := f.saveWorkflow(t, "u1", sendTask("a@b.com", "Hi", "hello"))

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)
	require.True(t, result.Suspended)

	f.grant(t, "u1", sendScope)
	resumer := engine.NewResumer(f.store, f.registry, f.gate, func(userID string) engine.Notifier {
		return f.notifier
	}, testLogger{t})

	result, err = resumer.Run(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.CompletedWorkflowStatus, f.status(t, id))
	assert.Len(t, f.send.calls, 1)
}

func TestResumeWithNothingPending(t *testing.T) {
	f := newFixture(t)
	resumer := engine.NewResumer(f.store, f.registry, f.gate, func(userID string) engine.Notifier {
		return engine.NopNotifier{}
	}, testLogger{t})

	_, err := resumer.Run(context.Background(), "nobody")
	assert.ErrorIs(t, err, engine.ErrNoPending)
}

func TestExecuteZeroTasks(t *testing.T) {
	f := newFixture(t)
	id := f.saveWorkflow(t, "u1")

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "🎉 Workflow completed: no tasks to execute.", result.Message)
	assert.Equal(t, models.CompletedWorkflowStatus, f.status(t, id))

	var sawWarning bool
	for _, e := range f.logEntries(t, id) {
		if e.Type == models.WarningLogEntry && e.Message == "No tasks found in workflow" {
			sawWarning = true
		}
	}
	assert.True(t, sawWarning)
}

func TestExecuteSequentialOrderWithMidFailure(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)

	var order []string
	f.send.invoke = func(args map[string]any) (string, error) {
		subject, _ := args["subject"].(string)
		order = append(order, subject)
		if subject == "B" {
			return "", assert.AnError
		}
		return "sent " + subject, nil
	}

	id := f.saveWorkflow(t, "u1",
		sendTask("a@b.com", "A", "x"),
		sendTask("a@b.com", "B", "x"),
		sendTask("a@b.com", "C", "x"),
	)

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	// A failing task never aborts the loop.
	assert.Equal(t, []string{"A", "B", "C"}, order)
	assert.True(t, result.Success, "partial success is a completed run")
	assert.Equal(t, "⚠️ Workflow completed with 1 failures", result.Message)
	assert.Equal(t, models.CompletedWorkflowStatus, f.status(t, id))

	require.Len(t, result.Tasks, 3)
	assert.True(t, result.Tasks[0].Success)
	assert.False(t, result.Tasks[1].Success)
	assert.True(t, result.Tasks[2].Success)

	var warnings int
	for _, e := range f.logEntries(t, id) {
		if e.Type == models.WarningLogEntry {
			warnings++
			assert.Equal(t, "Workflow completed with 1 failed tasks", e.Message)
		}
	}
	assert.Equal(t, 1, warnings)
}

func TestExecuteAllTasksFailed(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)
	f.send.invoke = func(args map[string]any) (string, error) {
		return "", assert.AnError
	}
	id := f.saveWorkflow(t, "u1", sendTask("a@b.com", "Hi", "x"))

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, "❌ Workflow failed - all tasks failed", result.Message)
	assert.Equal(t, models.FailedWorkflowStatus, f.status(t, id))

	entries := f.logEntries(t, id)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "EXECUTION_FAILURE", last.ErrorCode)
	assert.Equal(t, "Workflow execution failed: All tasks failed", last.Message)
}

func TestExecuteUnknownActionMode(t *testing.T) {
	f := newFixture(t)
	id := f.saveWorkflow(t, "u1", models.Task{Action: "fax", Mode: "send"})

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, "No tool available for action: fax and mode: send", result.Tasks[0].Error)
	assert.Equal(t, models.FailedWorkflowStatus, f.status(t, id))
}

func TestExecuteMissingActionOrMode(t *testing.T) {
	f := newFixture(t)
	id := f.saveWorkflow(t, "u1",
		models.Task{Mode: "send"},
		models.Task{Action: "fax"},
	)

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Tasks, 2)
	assert.Equal(t, "No action specified in task", result.Tasks[0].Error)
	assert.Equal(t, "No mode specified in task", result.Tasks[1].Error)
	assert.Equal(t, models.FailedWorkflowStatus, f.status(t, id))
}

func TestExecuteSendModeArgumentDefaults(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)
	id := f.saveWorkflow(t, "u1", models.Task{
		Action: "email",
		Mode:   "send",
		Fields: map[string]any{"recipient": "a@b.com", "subject": "Hi"},
	})

	_, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, f.send.calls, 1)
	args := f.send.calls[0]
	assert.Equal(t, "send", args["mode"])
	assert.Equal(t, "", args["body"])
	assert.Equal(t, "", args["cc"])
	assert.Equal(t, "", args["bcc"])
	_, hasAction := args["action"]
	assert.False(t, hasAction, "action is routing metadata, not an argument")
}

func TestExecuteRecoversFromPanickingCapability(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope, readScope)
	f.send.invoke = func(args map[string]any) (string, error) {
		panic("boom")
	}
	id := f.saveWorkflow(t, "u1",
		sendTask("a@b.com", "Hi", "x"),
		models.Task{Action: "email", Mode: "read", Fields: map[string]any{"query": "from:a@b.com"}},
	)

	result, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Tasks, 2)
	assert.False(t, result.Tasks[0].Success)
	assert.Contains(t, result.Tasks[0].Error, "boom")
	assert.True(t, result.Tasks[1].Success, "the loop survives a panicking capability")
	assert.Equal(t, models.CompletedWorkflowStatus, f.status(t, id))
}

func TestExecuteSkipsFinishedWorkflow(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)

	for _, status := range []models.WorkflowStatus{
		models.CompletedWorkflowStatus,
		models.FailedWorkflowStatus,
		models.CancelledWorkflowStatus,
	} {
		t.Run(string(status), func(t *testing.T) {
			id, err := f.store.SaveWorkflow(models.Workflow{
				UserID: "u1",
				Tasks:  []models.Task{sendTask("a@b.com", "Hi", "x")},
				Status: status,
			})
			require.NoError(t, err)

			result, err := f.executor(t, id).Execute(context.Background())
			require.NoError(t, err)

			assert.False(t, result.Success)
			assert.Equal(t, "Workflow already finished: "+string(status), result.Message)
			assert.Equal(t, status, f.status(t, id), "status untouched")
			assert.Empty(t, f.logEntries(t, id), "no side effects on a finished workflow")
		})
	}
	assert.Empty(t, f.send.calls)
	assert.Equal(t, 0, f.notifier.announced)
}

func TestExecuteWithoutLoad(t *testing.T) {
	f := newFixture(t)
	exec := engine.NewExecutor(f.store, f.registry, f.gate, nil, testLogger{t}, "missing")
	assert.False(t, exec.Load())

	_, err := exec.Execute(context.Background())
	assert.Error(t, err)
}

func TestCapabilityHandleCachedPerRun(t *testing.T) {
	f := newFixture(t)
	f.grant(t, "u1", sendScope)

	var constructed int
	f.registry.Register("email", "send", "send_email", []string{sendScope}, func(userID string) (capability.Capability, error) {
		constructed++
		return f.send, nil
	})

	id := f.saveWorkflow(t, "u1",
		sendTask("a@b.com", "A", "x"),
		sendTask("a@b.com", "B", "x"),
	)

	_, err := f.executor(t, id).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, constructed, "one credential binding per (action, mode) pair per run")
	assert.Len(t, f.send.calls, 2)
}
