package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/internal/log"
	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/engine"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

// NewMux builds the HTTP routes. The OAuth callback is the important one:
// Google redirects the user here after consent, and a successful exchange
// resumes the user's suspended workflow.
func NewMux(store storage.Store, manager *auth.Manager, resumer *engine.Resumer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/workflows", listWorkflowsHandler(store))
	mux.HandleFunc("/workflows/log", executionLogHandler(store))
	mux.HandleFunc("/workflows/retry", retryWorkflowHandler(store))
	mux.HandleFunc("/api/oauth/callback", oauthCallbackHandler(manager, resumer))
	return mux
}

func StartServer(port string, store storage.Store, manager *auth.Manager, resumer *engine.Resumer) error {
	log.GetLogger().Infof("Starting AutoAgent server on :%s", port)
	return http.ListenAndServe(":"+port, NewMux(store, manager, resumer))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "AutoAgent server is running")
}

func listWorkflowsHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "Missing 'user_id' parameter", http.StatusBadRequest)
			return
		}
		status := models.WorkflowStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = models.PendingWorkflowStatus
		}
		workflows, err := store.ListWorkflowsByStatus(userID, status)
		if err != nil {
			log.GetLogger().Errorf("Failed to list workflows: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list workflows: %v", err), http.StatusInternalServerError)
			return
		}
		if len(workflows) == 0 {
			fmt.Fprintf(w, "No workflows found.\n")
			return
		}
		for _, wf := range workflows {
			fmt.Fprintf(w, "- ID: %s, Status: %s, Tasks: %d, Created: %s\n",
				wf.ID, wf.Status, len(wf.Tasks), wf.CreatedAt.Format(time.RFC3339))
		}
	}
}

func executionLogHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.URL.Query().Get("id")
		if id == "" {
			http.Error(w, "Missing 'id' parameter", http.StatusBadRequest)
			return
		}
		entries, err := store.GetExecutionLog(id)
		if err != nil {
			log.GetLogger().Errorf("Failed to fetch execution log for %s: %v", id, err)
			http.Error(w, fmt.Sprintf("Failed to fetch execution log: %v", err), http.StatusInternalServerError)
			return
		}
		if len(entries) == 0 {
			fmt.Fprintf(w, "No log entries found.\n")
			return
		}
		for _, e := range entries {
			fmt.Fprintf(w, "[%s] %s: %s\n", e.LoggedAt.Format(time.RFC3339), e.Type, e.Message)
		}
	}
}

func retryWorkflowHandler(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := r.FormValue("id")
		if id == "" {
			http.Error(w, "Missing 'id' parameter", http.StatusBadRequest)
			return
		}
		if err := store.RetryWorkflow(id); err != nil {
			switch errors.Cause(err) {
			case storage.ErrNotFound:
				http.Error(w, "Workflow not found", http.StatusNotFound)
			case storage.ErrNotRetryable:
				http.Error(w, "Workflow is not in a retryable state", http.StatusConflict)
			default:
				log.GetLogger().Errorf("Failed to retry workflow %s: %v", id, err)
				http.Error(w, fmt.Sprintf("Failed to retry workflow: %v", err), http.StatusInternalServerError)
			}
			return
		}
		fmt.Fprintf(w, "Workflow %s queued for retry\n", id)
	}
}

func oauthCallbackHandler(manager *auth.Manager, resumer *engine.Resumer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if userID == "" || code == "" {
			http.Error(w, "Missing 'state' or 'code' parameter", http.StatusBadRequest)
			return
		}

		if _, err := manager.Exchange(r.Context(), userID, code); err != nil {
			log.GetLogger().Errorf("OAuth exchange failed for user %s: %v", userID, err)
			http.Error(w, "Authorization failed. Please try again.", http.StatusBadGateway)
			return
		}

		// The user's browser should not wait on workflow execution. The
		// request context dies when this handler returns, so the resume
		// runs on its own context.
		go func() {
			if _, err := resumer.Run(context.Background(), userID); err != nil && errors.Cause(err) != engine.ErrNoPending {
				log.GetLogger().Errorf("Resuming workflows for user %s: %v", userID, err)
			}
		}()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><h2>Authorization successful!</h2><p>You can close this tab and return to Telegram.</p></body></html>")
	}
}
