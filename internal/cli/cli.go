package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vijay-varadarajan/AutoAgent/internal/log"
	internal_storage "github.com/vijay-varadarajan/AutoAgent/internal/storage"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

func SetupCLI(rootCmd *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list [user-id]",
		Short: "List a user's workflows by status (CLI)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			status, err := cmd.Flags().GetString("status")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving status flag: %v", err)
				os.Exit(1)
			}
			store := initStore(dbConnStr)
			defer store.Close()
			listWorkflows(store, args[0], models.WorkflowStatus(status))
		},
	}
	listCmd.Flags().String("status", string(models.PendingWorkflowStatus), "Workflow status to filter by")

	logCmd := &cobra.Command{
		Use:   "log [workflow-id]",
		Short: "Print a workflow's execution log (CLI)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			store := initStore(dbConnStr)
			defer store.Close()
			printExecutionLog(store, args[0])
		},
	}

	retryCmd := &cobra.Command{
		Use:   "retry [workflow-id]",
		Short: "Reset a failed workflow to pending (CLI)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbConnStr, err := cmd.Flags().GetString("db")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving db flag: %v", err)
				os.Exit(1)
			}
			store := initStore(dbConnStr)
			defer store.Close()
			retryWorkflow(store, args[0])
		},
	}

	rootCmd.AddCommand(listCmd, logCmd, retryCmd)
}

func listWorkflows(store *internal_storage.PostgresStore, userID string, status models.WorkflowStatus) {
	workflows, err := store.ListWorkflowsByStatus(userID, status)
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list workflows: %v\n", err)
		os.Exit(1)
	}
	if len(workflows) == 0 {
		fmt.Fprintf(os.Stdout, "No workflows found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Workflows:\n")
	for _, wf := range workflows {
		fmt.Fprintf(os.Stdout, "- ID: %s, Status: %s, Tasks: %d, Created: %s\n",
			wf.ID, wf.Status, len(wf.Tasks), wf.CreatedAt.Format(time.RFC3339))
	}
}

func printExecutionLog(store *internal_storage.PostgresStore, workflowID string) {
	entries, err := store.GetExecutionLog(workflowID)
	if err != nil {
		log.GetLogger().Errorf("Failed to fetch execution log: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to fetch execution log: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stdout, "No log entries found.\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", e.LoggedAt.Format(time.RFC3339), e.Type, e.Message)
	}
}

func retryWorkflow(store *internal_storage.PostgresStore, workflowID string) {
	if err := store.RetryWorkflow(workflowID); err != nil {
		log.GetLogger().Errorf("Failed to retry workflow: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to retry workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Workflow %s queued for retry\n", workflowID)
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
