package models

import "time"

type WorkflowStatus string

const (
	PendingWorkflowStatus    WorkflowStatus = "pending"
	InProgressWorkflowStatus WorkflowStatus = "in_progress"
	CompletedWorkflowStatus  WorkflowStatus = "completed"
	FailedWorkflowStatus     WorkflowStatus = "failed"
	CancelledWorkflowStatus  WorkflowStatus = "cancelled"
)

// Terminal reports whether a workflow in this status has finished its current
// execution attempt. Terminal workflows only run again after an explicit
// retry reset ("failed" -> "pending").
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case CompletedWorkflowStatus, FailedWorkflowStatus, CancelledWorkflowStatus:
		return true
	}
	return false
}

// Workflow is a persisted, ordered list of tasks plus lifecycle status.
type Workflow struct {
	ID        string         `json:"id" db:"id"`                 // Opaque identifier (UUID), assigned on save
	UserID    string         `json:"user_id" db:"user_id"`       // Owner; required for capability resolution
	Prompt    string         `json:"prompt" db:"prompt"`         // Raw natural-language request
	Frequency string         `json:"frequency" db:"frequency"`   // Scheduling hint (e.g., "once"); recorded only
	Tasks     []Task         `json:"tasks"`                      // Execution order is list order
	Status    WorkflowStatus `json:"status" db:"status"`         // Lifecycle state
	CreatedAt time.Time      `json:"created_at" db:"created_at"` // Creation timestamp
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"` // Refreshed on status change or log append
}
