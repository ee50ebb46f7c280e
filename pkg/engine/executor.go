// Package engine drives a persisted workflow through validation,
// authorization gating, sequential task execution and terminal status
// reporting, streaming progress through a Notifier along the way.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/capability"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

// Logger defines the logging interface for the Executor
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Error codes recorded on terminal failure log entries.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeExecutionFailure = "EXECUTION_FAILURE"
	CodeExecutionError   = "EXECUTION_ERROR"
)

// TaskResult is the structured outcome of one task.
type TaskResult struct {
	Success bool        `json:"success"`
	Result  string      `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Action  string      `json:"action"`
	Mode    string      `json:"mode"`
	Task    models.Task `json:"task"`
}

// Result is the outcome of one Execute call. Suspended means the workflow
// stayed pending awaiting authorization; it is not a failure. Partial
// success (some tasks failed) still reports Success: the workflow's job was
// to run N independent actions, and doing some of them is a completed
// attempt with a warning. Only zero successes constitutes failure.
type Result struct {
	Success       bool
	Suspended     bool
	Message       string
	MissingScopes []string
	Tasks         []TaskResult
}

// Executor runs a single workflow from load to terminal status. One
// instance serves exactly one execution attempt; the capability handle
// cache and thinking-message state die with it.
type Executor struct {
	store        storage.Store
	registry     *capability.Registry
	gate         *auth.Gate
	notifier     Notifier
	logger       Logger
	placeholders PlaceholderPolicy

	workflowID string
	wf         models.Workflow
	loaded     bool

	handles      map[capability.Key]capability.Capability
	thinkingID   int
	thinkingLive bool
}

func NewExecutor(store storage.Store, registry *capability.Registry, gate *auth.Gate, notifier Notifier, logger Logger, workflowID string) *Executor {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Executor{
		store:        store,
		registry:     registry,
		gate:         gate,
		notifier:     notifier,
		logger:       logger,
		placeholders: DefaultPlaceholders,
		workflowID:   workflowID,
		handles:      make(map[capability.Key]capability.Capability),
	}
}

// SetPlaceholderPolicy overrides the denylist used by structural
// validation.
func (e *Executor) SetPlaceholderPolicy(p PlaceholderPolicy) {
	e.placeholders = p
}

// Load fetches the workflow. It returns false, rather than an error, when
// the workflow does not exist or carries no owner: a workflow without an
// owner cannot be executed because capability resolution needs a user
// identity.
func (e *Executor) Load() bool {
	wf, err := e.store.GetWorkflow(e.workflowID)
	if err != nil {
		e.logger.Errorf("Workflow %s not found: %v", e.workflowID, err)
		return false
	}
	if wf.UserID == "" {
		e.logger.Errorf("No user id found in workflow %s", e.workflowID)
		return false
	}
	e.wf = wf
	e.loaded = true
	e.logger.Infof("Loaded workflow %s for user %s", e.workflowID, wf.UserID)
	return true
}

// Execute is the main driver. Expected outcomes (validation failure,
// authorization suspend, total task failure) come back as Result values
// with a nil error; a non-nil error means an engine-level failure such as
// the store rejecting a status transition.
func (e *Executor) Execute(ctx context.Context) (Result, error) {
	if !e.loaded {
		return Result{}, errors.New("workflow not loaded")
	}
	// Finished workflows only run again after an explicit retry reset.
	if e.wf.Status.Terminal() {
		e.logger.Warnf("Workflow %s already finished with status %s, skipping execution", e.workflowID, e.wf.Status)
		return Result{Message: fmt.Sprintf("Workflow already finished: %s", e.wf.Status)}, nil
	}
	e.logger.Infof("Starting workflow execution for %s", e.workflowID)

	e.announceThinking(ctx, "🤔 Preparing to execute workflow...")
	tasks := e.wf.Tasks

	// Structural validation: all-or-nothing, before any side effect.
	e.updateThinking(ctx, "🔍 Validating email requirements...")
	if missing := validateEmailTasks(tasks, e.placeholders); len(missing) > 0 {
		msg := missingFieldsMessage(missing)
		e.logger.Errorf("Email validation failed for workflow %s: %s", e.workflowID, msg)
		e.retireThinking(ctx)
		e.failExecution("Email validation failed: "+msg, CodeValidationError)
		e.finalize(ctx, "❌ "+msg)
		return Result{Message: msg}, nil
	}

	// Authorization: evaluated for the workflow as a whole. Missing scopes
	// suspend the run; the workflow stays pending and resumes on a later
	// Execute call once new grants are observed.
	e.updateThinking(ctx, "🔍 Checking permissions...")
	required := e.gate.RequiredScopes(e.wf)
	if missing := e.gate.MissingScopes(e.wf.UserID, required); len(missing) > 0 {
		e.logger.Infof("Workflow %s awaiting authorization, missing scopes: %v", e.workflowID, missing)
		e.appendLog(models.InfoLogEntry, "Workflow awaiting authorization",
			map[string]any{"missing_scopes": missing}, "", "")
		e.retireThinking(ctx)
		// The caller owns the permission prompt: it knows the consent URL,
		// so a second message from here would only duplicate it.
		return Result{Suspended: true, MissingScopes: missing, Message: "Awaiting authorization"}, nil
	}

	// pending -> in_progress. If the store rejects the transition, abort
	// with no further side effects.
	if err := e.startExecution(); err != nil {
		e.logger.Errorf("Failed to start execution of workflow %s: %v", e.workflowID, err)
		e.retireThinking(ctx)
		return Result{}, err
	}
	e.updateThinking(ctx, "🚀 Starting workflow execution...")

	// Zero tasks is not an error.
	if len(tasks) == 0 {
		e.logger.Warnf("No tasks found in workflow %s", e.workflowID)
		e.appendLog(models.WarningLogEntry, "No tasks found in workflow", nil, "", "")
		e.updateThinking(ctx, "⚠️ No tasks to execute")
		e.retireThinking(ctx)
		if err := e.completeExecution(nil); err != nil {
			return e.engineFailure(ctx, err)
		}
		msg := "🎉 Workflow completed: no tasks to execute."
		e.finalize(ctx, msg)
		return Result{Success: true, Message: msg}, nil
	}

	// Sequential task execution, strictly in list order. A failing task
	// never aborts the loop; every subsequent task still runs.
	results := make([]TaskResult, 0, len(tasks))
	for i, task := range tasks {
		action := task.Action
		if action == "" {
			action = "unknown"
		}
		e.logger.Infof("Executing task %d/%d: %s", i+1, len(tasks), action)
		e.updateThinking(ctx, fmt.Sprintf("⚡ Executing %s...", action))

		res := e.executeTask(ctx, task, i+1)
		results = append(results, res)

		toolName := e.toolName(task)
		if res.Success {
			e.updateThinking(ctx, fmt.Sprintf("✅ Completed %s", action))
			e.appendLog(models.SuccessLogEntry,
				fmt.Sprintf("Tool '%s' executed successfully", toolName),
				map[string]any{"result": res.Result, "task_index": i + 1}, toolName, "")
		} else {
			e.logger.Warnf("Task %d failed: %s", i+1, res.Error)
			e.updateThinking(ctx, fmt.Sprintf("❌ Failed: %s", action))
			e.appendLog(models.ErrorLogEntry,
				fmt.Sprintf("Tool '%s' executed with errors", toolName),
				map[string]any{"error": res.Error, "task_index": i + 1}, toolName, "")
		}
	}

	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	failed := len(tasks) - successful
	e.logger.Infof("Execution complete for workflow %s: %d/%d tasks successful", e.workflowID, successful, len(tasks))

	switch {
	case failed == 0:
		e.updateThinking(ctx, "🎉 All tasks completed successfully!")
		e.retireThinking(ctx)
		if err := e.completeExecution(results); err != nil {
			return e.engineFailure(ctx, err)
		}
		e.finalize(ctx, "🎉 Workflow completed successfully!")
		primary := results[0].Result
		if primary == "" {
			primary = "No result"
		}
		e.finalize(ctx, primary)
		return Result{Success: true, Message: primary, Tasks: results}, nil

	case successful > 0:
		// Partial success is a completed run, not a failed one.
		e.appendLog(models.WarningLogEntry,
			fmt.Sprintf("Workflow completed with %d failed tasks", failed), nil, "", "")
		e.updateThinking(ctx, fmt.Sprintf("⚠️ Completed with %d failures", failed))
		e.retireThinking(ctx)
		if err := e.completeExecution(results); err != nil {
			return e.engineFailure(ctx, err)
		}
		msg := fmt.Sprintf("⚠️ Workflow completed with %d failures", failed)
		e.finalize(ctx, msg)
		return Result{Success: true, Message: msg, Tasks: results}, nil

	default:
		e.updateThinking(ctx, "💥 All tasks failed")
		e.retireThinking(ctx)
		e.failExecution("All tasks failed", CodeExecutionFailure)
		msg := "❌ Workflow failed - all tasks failed"
		e.finalize(ctx, msg)
		return Result{Message: msg, Tasks: results}, nil
	}
}

// executeTask runs a single task. Every failure path produces a structured
// result; a panicking capability is recovered into one so the loop always
// survives.
func (e *Executor) executeTask(ctx context.Context, task models.Task, taskNumber int) (res TaskResult) {
	res = TaskResult{Action: task.Action, Mode: task.Mode, Task: task}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Task %d (%s) panicked: %v", taskNumber, task.Action, r)
			res.Success = false
			res.Result = ""
			res.Error = fmt.Sprintf("Task execution failed: %v", r)
		}
	}()

	if task.Action == "" {
		res.Error = "No action specified in task"
		return
	}
	if task.Mode == "" {
		res.Error = "No mode specified in task"
		return
	}

	cap, err := e.resolveCapability(task.Action, task.Mode)
	if err != nil {
		if errors.Is(err, capability.ErrNoCapability) {
			res.Error = fmt.Sprintf("No tool available for action: %s and mode: %s", task.Action, task.Mode)
		} else {
			res.Error = fmt.Sprintf("Task execution failed: %v", err)
		}
		return
	}

	args, err := prepareArguments(task)
	if err != nil {
		res.Error = fmt.Sprintf("Task execution failed: %v", err)
		return
	}

	e.appendLog(models.ToolCallLogEntry,
		fmt.Sprintf("Executing task %d: %s", taskNumber, task.Action),
		map[string]any{"args": args}, cap.Name(), "")

	out, err := cap.Invoke(ctx, args)
	if err != nil {
		e.logger.Errorf("Task %d (%s) failed: %v", taskNumber, task.Action, err)
		res.Error = fmt.Sprintf("Task execution failed: %v", err)
		return
	}
	res.Success = true
	res.Result = out
	return
}

// resolveCapability consults the per-run handle cache before the registry,
// so credential binding happens once per (action, mode) pair per run.
func (e *Executor) resolveCapability(action, mode string) (capability.Capability, error) {
	key := capability.Key{Action: action, Mode: mode}
	if c, ok := e.handles[key]; ok {
		return c, nil
	}
	c, err := e.registry.Resolve(action, mode, e.wf.UserID)
	if err != nil {
		return nil, err
	}
	e.handles[key] = c
	return c, nil
}

// prepareArguments assembles capability arguments from the task's fields:
// everything except the action key, plus the mode. Send mode defaults the
// optional body/cc/bcc fields to empty strings; read mode rejects an absent
// query before any invocation happens.
func prepareArguments(task models.Task) (map[string]any, error) {
	args := make(map[string]any, len(task.Fields)+1)
	for k, v := range task.Fields {
		args[k] = v
	}
	args["mode"] = task.Mode

	if task.Action == "email" {
		switch task.Mode {
		case "read":
			if q, _ := args["query"].(string); strings.TrimSpace(q) == "" {
				return nil, errors.New("missing required field 'query' for email read action")
			}
		case "send":
			for _, field := range []string{"body", "cc", "bcc"} {
				if v, ok := args[field]; !ok || v == nil {
					args[field] = ""
				}
			}
		}
	}
	return args, nil
}

func (e *Executor) toolName(task models.Task) string {
	if name, ok := e.registry.Name(task.Action, task.Mode); ok {
		return name
	}
	return task.Action
}

// availableTools lists the registered tool names resolvable for this
// workflow's task list, in first-use order.
func (e *Executor) availableTools() []string {
	var tools []string
	seen := make(map[string]struct{})
	for _, task := range e.wf.Tasks {
		name, ok := e.registry.Name(task.Action, task.Mode)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		tools = append(tools, name)
	}
	return tools
}

func (e *Executor) startExecution() error {
	if err := e.store.UpdateWorkflowStatus(e.workflowID, models.InProgressWorkflowStatus); err != nil {
		return errors.Wrap(err, "starting workflow execution")
	}
	e.appendLog(models.InfoLogEntry, "Workflow execution started",
		map[string]any{"available_tools": e.availableTools()}, "", "")
	return nil
}

func (e *Executor) completeExecution(results []TaskResult) error {
	if err := e.store.UpdateWorkflowStatus(e.workflowID, models.CompletedWorkflowStatus); err != nil {
		return errors.Wrap(err, "completing workflow execution")
	}
	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
		}
	}
	e.appendLog(models.SuccessLogEntry, "Workflow execution completed successfully", map[string]any{
		"total_tasks":       len(results),
		"successful_tasks":  successful,
		"failed_tasks":      len(results) - successful,
		"execution_results": summarize(results),
	}, "", "")
	return nil
}

// failExecution is best-effort: a store outage while recording failure is
// logged but cannot be recovered from here.
func (e *Executor) failExecution(message, errorCode string) {
	if err := e.store.UpdateWorkflowStatus(e.workflowID, models.FailedWorkflowStatus); err != nil {
		e.logger.Errorf("Failed to mark workflow %s as failed: %v", e.workflowID, err)
		return
	}
	e.appendLog(models.ErrorLogEntry, "Workflow execution failed: "+message, nil, "", errorCode)
}

// engineFailure handles errors escaping the per-task boundary: the workflow
// lands in failed/EXECUTION_ERROR with the error description both logged
// and sent to the user.
func (e *Executor) engineFailure(ctx context.Context, err error) (Result, error) {
	desc := fmt.Sprintf("Workflow execution failed: %v", err)
	e.logger.Errorf("%s", desc)
	e.retireThinking(ctx)
	e.failExecution(err.Error(), CodeExecutionError)
	e.finalize(ctx, "💥 "+desc)
	return Result{Message: desc}, err
}

func summarize(results []TaskResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		entry := map[string]any{
			"success": r.Success,
			"action":  r.Action,
			"mode":    r.Mode,
		}
		if r.Success {
			entry["result"] = r.Result
		} else {
			entry["error"] = r.Error
		}
		out = append(out, entry)
	}
	return out
}

// appendLog writes an execution-log entry; append failures degrade to a
// process-log line rather than aborting the run.
func (e *Executor) appendLog(entryType models.LogEntryType, message string, details map[string]any, toolName, errorCode string) {
	err := e.store.AppendLogEntry(models.LogEntry{
		WorkflowID: e.workflowID,
		Type:       entryType,
		Message:    message,
		Details:    details,
		ToolName:   toolName,
		ErrorCode:  errorCode,
	})
	if err != nil {
		e.logger.Errorf("Failed to append log entry for workflow %s: %v", e.workflowID, err)
	}
}

// Thinking-message helpers. Notification failures are logged and swallowed;
// they never abort task execution. retireThinking is idempotent so every
// exit path can call it without leaving the message dangling.

func (e *Executor) announceThinking(ctx context.Context, text string) {
	id, err := e.notifier.Announce(ctx, text)
	if err != nil {
		e.logger.Errorf("Failed to send thinking message: %v", err)
		return
	}
	e.thinkingID = id
	e.thinkingLive = true
}

func (e *Executor) updateThinking(ctx context.Context, text string) {
	if !e.thinkingLive {
		return
	}
	if err := e.notifier.Update(ctx, e.thinkingID, text); err != nil {
		e.logger.Errorf("Failed to update thinking message: %v", err)
	}
}

func (e *Executor) retireThinking(ctx context.Context) {
	if !e.thinkingLive {
		return
	}
	if err := e.notifier.Retire(ctx, e.thinkingID); err != nil {
		e.logger.Errorf("Failed to delete thinking message: %v", err)
	}
	e.thinkingLive = false
}

func (e *Executor) finalize(ctx context.Context, text string) {
	if err := e.notifier.Finalize(ctx, text); err != nil {
		e.logger.Errorf("Failed to send final message: %v", err)
	}
}
