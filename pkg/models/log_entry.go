package models

import "time"

type LogEntryType string

const (
	InfoLogEntry     LogEntryType = "info"
	SuccessLogEntry  LogEntryType = "success"
	WarningLogEntry  LogEntryType = "warning"
	ErrorLogEntry    LogEntryType = "error"
	ToolCallLogEntry LogEntryType = "tool_call"
)

// LogEntry is an immutable record appended to a workflow's execution log.
// Entries are never mutated or removed; they form the audit trail of what
// the engine attempted and decided.
type LogEntry struct {
	ID         int64          `json:"id" db:"id"`                           // Auto-incremented log ID
	WorkflowID string         `json:"workflow_id" db:"workflow_id"`         // Parent workflow
	Type       LogEntryType   `json:"type" db:"type"`                       // info, success, warning, error, tool_call
	Message    string         `json:"message" db:"message"`                 // Human-readable description
	Details    map[string]any `json:"details,omitempty"`                    // Free-form structured payload
	ToolName   string         `json:"tool_name,omitempty" db:"tool_name"`   // Capability that produced this entry
	ErrorCode  string         `json:"error_code,omitempty" db:"error_code"` // VALIDATION_ERROR, EXECUTION_FAILURE, EXECUTION_ERROR
	LoggedAt   time.Time      `json:"logged_at" db:"logged_at"`             // Timestamp of log entry
}
