package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

// mockStore implements Store with in-memory storage
type mockStore struct {
	mu        sync.Mutex
	workflows []models.Workflow
	logs      []models.LogEntry
	tokens    map[string]models.TokenRecord
	chats     map[string]int64
	nextLogID int64
}

func NewMockStore() Store {
	return &mockStore{
		tokens: make(map[string]models.TokenRecord),
		chats:  make(map[string]int64),
	}
}

func (m *mockStore) SaveWorkflow(wf models.Workflow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	m.workflows = append(m.workflows, wf)
	return wf.ID, nil
}

func (m *mockStore) GetWorkflow(id string) (models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wf := range m.workflows {
		if wf.ID == id {
			return wf, nil
		}
	}
	return models.Workflow{}, ErrNotFound
}

func (m *mockStore) UpdateWorkflowStatus(id string, status models.WorkflowStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, wf := range m.workflows {
		if wf.ID == id {
			m.workflows[i].Status = status
			m.workflows[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) ListWorkflowsByStatus(userID string, status models.WorkflowStatus) ([]models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Workflow
	for _, wf := range m.workflows {
		if wf.UserID == userID && wf.Status == status {
			out = append(out, wf)
		}
	}
	// Newest first, matching the Postgres store's ORDER BY created_at DESC
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockStore) RetryWorkflow(id string) error {
	m.mu.Lock()
	for i, wf := range m.workflows {
		if wf.ID == id {
			if wf.Status != models.FailedWorkflowStatus {
				m.mu.Unlock()
				return ErrNotRetryable
			}
			m.workflows[i].Status = models.PendingWorkflowStatus
			m.workflows[i].UpdatedAt = time.Now()
			m.mu.Unlock()
			return m.AppendLogEntry(models.LogEntry{
				WorkflowID: id,
				Type:       models.InfoLogEntry,
				Message:    "Workflow reset for retry",
			})
		}
	}
	m.mu.Unlock()
	return ErrNotFound
}

func (m *mockStore) AppendLogEntry(entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextLogID++
	entry.ID = m.nextLogID
	if entry.LoggedAt.IsZero() {
		entry.LoggedAt = time.Now()
	}
	m.logs = append(m.logs, entry)
	for i, wf := range m.workflows {
		if wf.ID == entry.WorkflowID {
			m.workflows[i].UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *mockStore) GetExecutionLog(workflowID string) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LogEntry
	for _, e := range m.logs {
		if e.WorkflowID == workflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) SaveTokens(rec models.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[rec.UserID] = rec
	return nil
}

func (m *mockStore) GetTokens(userID string) (models.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[userID]
	if !ok {
		return models.TokenRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *mockStore) SaveChatBinding(userID string, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[userID] = chatID
	return nil
}

func (m *mockStore) GetChatBinding(userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.chats[userID]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

func (m *mockStore) Close() error {
	return nil
}
