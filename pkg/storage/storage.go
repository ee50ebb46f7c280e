package storage

import (
	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

// ErrNotFound is returned when a workflow, token record or chat binding
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotRetryable is returned by RetryWorkflow when the workflow is not in
// the "failed" state. Only failed workflows may be reset to pending.
var ErrNotRetryable = errors.New("workflow is not in a retryable state")

// Store defines the persistence operations for AutoAgent. All operations
// are idempotent at the data level: repeating an identical status update is
// harmless, and log appends are strictly additive.
type Store interface {
	// Workflow operations
	SaveWorkflow(wf models.Workflow) (string, error)
	GetWorkflow(id string) (models.Workflow, error)
	UpdateWorkflowStatus(id string, status models.WorkflowStatus) error
	ListWorkflowsByStatus(userID string, status models.WorkflowStatus) ([]models.Workflow, error)
	RetryWorkflow(id string) error

	// Execution log operations (append-only)
	AppendLogEntry(entry models.LogEntry) error
	GetExecutionLog(workflowID string) ([]models.LogEntry, error)

	// OAuth token operations
	SaveTokens(rec models.TokenRecord) error
	GetTokens(userID string) (models.TokenRecord, error)

	// Chat binding operations
	SaveChatBinding(userID string, chatID int64) error
	GetChatBinding(userID string) (int64, error)

	Close() error
}
