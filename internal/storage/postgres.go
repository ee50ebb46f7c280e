package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

// PostgresStore implements storage.Store on Postgres. Workflow tasks, log
// details and granted scopes are persisted as JSONB.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type workflowRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Prompt    string    `db:"prompt"`
	Frequency string    `db:"frequency"`
	Tasks     []byte    `db:"tasks"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r workflowRow) toModel() (models.Workflow, error) {
	wf := models.Workflow{
		ID:        r.ID,
		UserID:    r.UserID,
		Prompt:    r.Prompt,
		Frequency: r.Frequency,
		Status:    models.WorkflowStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if len(r.Tasks) > 0 {
		if err := json.Unmarshal(r.Tasks, &wf.Tasks); err != nil {
			return models.Workflow{}, errors.Wrapf(err, "decoding tasks of workflow %s", r.ID)
		}
	}
	return wf, nil
}

// SaveWorkflow inserts a new workflow and returns its assigned ID.
func (s *PostgresStore) SaveWorkflow(wf models.Workflow) (string, error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = models.PendingWorkflowStatus
	}
	tasks, err := json.Marshal(wf.Tasks)
	if err != nil {
		return "", errors.Wrap(err, "encoding tasks")
	}
	_, err = s.db.Exec(`
		INSERT INTO workflows (id, user_id, prompt, frequency, tasks, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		wf.ID, wf.UserID, wf.Prompt, wf.Frequency, tasks, wf.Status)
	if err != nil {
		return "", errors.Wrap(err, "save workflow")
	}
	return wf.ID, nil
}

func (s *PostgresStore) GetWorkflow(id string) (models.Workflow, error) {
	var row workflowRow
	err := s.db.Get(&row, "SELECT * FROM workflows WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return models.Workflow{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Workflow{}, errors.Wrapf(err, "get workflow %s", id)
	}
	return row.toModel()
}

// UpdateWorkflowStatus sets the status and refreshes updated_at. Repeating
// an identical update is harmless.
func (s *PostgresStore) UpdateWorkflowStatus(id string, status models.WorkflowStatus) error {
	res, err := s.db.Exec(
		"UPDATE workflows SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2",
		status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListWorkflowsByStatus returns the owner's workflows in the given status,
// newest first.
func (s *PostgresStore) ListWorkflowsByStatus(userID string, status models.WorkflowStatus) ([]models.Workflow, error) {
	var rows []workflowRow
	err := s.db.Select(&rows,
		"SELECT * FROM workflows WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC",
		userID, status)
	if err != nil {
		return nil, errors.Wrapf(err, "list workflows for user %s", userID)
	}
	out := make([]models.Workflow, 0, len(rows))
	for _, r := range rows {
		wf, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// RetryWorkflow resets a failed workflow to pending. Only the
// failed -> pending transition is allowed.
func (s *PostgresStore) RetryWorkflow(id string) error {
	res, err := s.db.Exec(
		"UPDATE workflows SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 AND status = $3",
		models.PendingWorkflowStatus, id, models.FailedWorkflowStatus)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetWorkflow(id); getErr != nil {
			return getErr
		}
		return storage.ErrNotRetryable
	}
	return s.AppendLogEntry(models.LogEntry{
		WorkflowID: id,
		Type:       models.InfoLogEntry,
		Message:    "Workflow reset for retry",
	})
}

// AppendLogEntry appends to the execution log and refreshes the parent
// workflow's updated_at. Entries are never mutated or removed.
func (s *PostgresStore) AppendLogEntry(entry models.LogEntry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(err, "encoding log details")
		}
	}
	_, err := s.db.Exec(`
		INSERT INTO execution_log (workflow_id, type, message, details, tool_name, error_code, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)`,
		entry.WorkflowID, entry.Type, entry.Message, details, entry.ToolName, entry.ErrorCode)
	if err != nil {
		return errors.Wrapf(err, "append log entry for workflow %s", entry.WorkflowID)
	}
	_, err = s.db.Exec("UPDATE workflows SET updated_at = CURRENT_TIMESTAMP WHERE id = $1", entry.WorkflowID)
	return err
}

type logEntryRow struct {
	ID         int64     `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	Type       string    `db:"type"`
	Message    string    `db:"message"`
	Details    []byte    `db:"details"`
	ToolName   string    `db:"tool_name"`
	ErrorCode  string    `db:"error_code"`
	LoggedAt   time.Time `db:"logged_at"`
}

func (s *PostgresStore) GetExecutionLog(workflowID string) ([]models.LogEntry, error) {
	var rows []logEntryRow
	err := s.db.Select(&rows,
		"SELECT * FROM execution_log WHERE workflow_id = $1 ORDER BY id", workflowID)
	if err != nil {
		return nil, errors.Wrapf(err, "get execution log for workflow %s", workflowID)
	}
	out := make([]models.LogEntry, 0, len(rows))
	for _, r := range rows {
		entry := models.LogEntry{
			ID:         r.ID,
			WorkflowID: r.WorkflowID,
			Type:       models.LogEntryType(r.Type),
			Message:    r.Message,
			ToolName:   r.ToolName,
			ErrorCode:  r.ErrorCode,
			LoggedAt:   r.LoggedAt,
		}
		if len(r.Details) > 0 {
			if err := json.Unmarshal(r.Details, &entry.Details); err != nil {
				return nil, errors.Wrapf(err, "decoding details of log entry %d", r.ID)
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

// SaveTokens upserts the user's OAuth grant.
func (s *PostgresStore) SaveTokens(rec models.TokenRecord) error {
	scopes, err := json.Marshal(rec.Scopes)
	if err != nil {
		return errors.Wrap(err, "encoding scopes")
	}
	_, err = s.db.Exec(`
		INSERT INTO google_tokens (user_id, access_token, refresh_token, expiry, scopes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			scopes = EXCLUDED.scopes`,
		rec.UserID, rec.AccessToken, rec.RefreshToken, rec.Expiry, scopes)
	return err
}

type tokenRow struct {
	UserID       string    `db:"user_id"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	Expiry       time.Time `db:"expiry"`
	Scopes       []byte    `db:"scopes"`
}

func (s *PostgresStore) GetTokens(userID string) (models.TokenRecord, error) {
	var row tokenRow
	err := s.db.Get(&row, "SELECT * FROM google_tokens WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return models.TokenRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TokenRecord{}, errors.Wrapf(err, "get tokens for user %s", userID)
	}
	rec := models.TokenRecord{
		UserID:       row.UserID,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		Expiry:       row.Expiry,
	}
	if len(row.Scopes) > 0 {
		if err := json.Unmarshal(row.Scopes, &rec.Scopes); err != nil {
			return models.TokenRecord{}, errors.Wrap(err, "decoding scopes")
		}
	}
	return rec, nil
}

// SaveChatBinding upserts the user's Telegram chat binding.
func (s *PostgresStore) SaveChatBinding(userID string, chatID int64) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_bindings (user_id, chat_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET chat_id = EXCLUDED.chat_id`,
		userID, chatID)
	return err
}

func (s *PostgresStore) GetChatBinding(userID string) (int64, error) {
	var chatID int64
	err := s.db.Get(&chatID, "SELECT chat_id FROM chat_bindings WHERE user_id = $1", userID)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "get chat binding for user %s", userID)
	}
	return chatID, nil
}
