package engine

import (
	"fmt"
	"strings"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

// PlaceholderPolicy lists example-looking values the intent parser emits
// when the user never supplied a field. A field holding one of these is
// treated as absent, so un-filled template values don't silently proceed.
// The exact contents are product policy, not a correctness invariant;
// callers may substitute their own.
type PlaceholderPolicy map[string][]string

var DefaultPlaceholders = PlaceholderPolicy{
	"recipient": {"recipient@example.com", "email@example.com", "user@example.com", "example@email.com"},
	"subject":   {"Subject", "Email subject", "Email Subject", "subject", "SUBJECT"},
	"query":     {"query", "search query", "Search Query", "QUERY", "search"},
}

func (p PlaceholderPolicy) isPlaceholder(field, value string) bool {
	for _, v := range p[field] {
		if v == value {
			return true
		}
	}
	return false
}

// validateEmailTasks applies mode-specific required-field rules to every
// email task: read mode needs a usable query, any other mode needs a usable
// recipient and subject. Returns the missing field names, deduplicated in
// first-seen order; empty means the task list is structurally valid.
// Validation runs once for the whole list before any task executes.
func validateEmailTasks(tasks []models.Task, policy PlaceholderPolicy) []string {
	var missing []string
	seen := make(map[string]struct{})
	report := func(field string) {
		if _, ok := seen[field]; ok {
			return
		}
		seen[field] = struct{}{}
		missing = append(missing, field)
	}

	for _, task := range tasks {
		if task.Action != "email" {
			continue
		}
		if task.Mode == "read" {
			query := strings.TrimSpace(task.Field("query"))
			if query == "" || policy.isPlaceholder("query", query) {
				report("query")
			}
			continue
		}
		recipient := strings.TrimSpace(task.Field("recipient"))
		if recipient == "" || policy.isPlaceholder("recipient", recipient) {
			report("recipient")
		}
		subject := strings.TrimSpace(task.Field("subject"))
		if subject == "" || policy.isPlaceholder("subject", subject) {
			report("subject")
		}
	}
	return missing
}

// missingFieldsMessage renders the user-facing validation failure text.
func missingFieldsMessage(fields []string) string {
	return fmt.Sprintf("You have not provided %s. Please repeat with all required fields.", strings.Join(fields, ", "))
}
