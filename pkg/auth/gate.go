// Package auth decides whether a workflow may execute given the owner's
// granted Google OAuth scopes, and manages the token lifecycle behind the
// capabilities.
package auth

import (
	"sort"

	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
)

// TokenReader is the slice of the store the gate needs: the owner's granted
// scopes. A storage.ErrNotFound result is treated as "nothing granted".
type TokenReader interface {
	GetTokens(userID string) (models.TokenRecord, error)
}

// ScopeDirectory answers which scopes an (action, mode) pair needs.
// Implemented by capability.Registry.
type ScopeDirectory interface {
	Scopes(action, mode string) ([]string, bool)
	ActionScopes(action string) []string
}

// Gate computes required and missing scopes for a workflow. Authorization
// is evaluated for the workflow as a whole before any task runs; a single
// missing scope suspends the entire workflow.
type Gate struct {
	tokens TokenReader
	dir    ScopeDirectory
}

func NewGate(tokens TokenReader, dir ScopeDirectory) *Gate {
	return &Gate{tokens: tokens, dir: dir}
}

// RequiredScopes derives the minimal scope set for the workflow's tasks.
// A known (action, mode) pair contributes its registered scopes; an unknown
// mode under a known action falls back to the union of the action's scopes.
// Result is sorted and deduplicated.
func (g *Gate) RequiredScopes(wf models.Workflow) []string {
	seen := make(map[string]struct{})
	for _, task := range wf.Tasks {
		scopes, ok := g.dir.Scopes(task.Action, task.Mode)
		if !ok {
			scopes = g.dir.ActionScopes(task.Action)
		}
		for _, s := range scopes {
			seen[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MissingScopes diffs required against the owner's granted set. A missing
// token record means nothing is granted.
func (g *Gate) MissingScopes(userID string, required []string) []string {
	rec, err := g.tokens.GetTokens(userID)
	if err != nil {
		return append([]string(nil), required...)
	}
	var missing []string
	for _, s := range required {
		if !rec.HasScope(s) {
			missing = append(missing, s)
		}
	}
	return missing
}
