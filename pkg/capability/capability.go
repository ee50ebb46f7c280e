// Package capability maps (action, mode) pairs to user-scoped
// implementations of external effects, and tells the authorization gate
// which OAuth scopes each pair needs.
package capability

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// ErrNoCapability is returned by Resolve for an unknown (action, mode)
// pair. Callers turn it into a per-task failure rather than aborting the
// whole workflow.
var ErrNoCapability = errors.New("no capability registered")

// Capability is a live, user-scoped binding to one (action, mode) pair.
// Invoke performs the actual external effect and returns a human-readable
// result string.
type Capability interface {
	Name() string
	RequiredScopes() []string
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Factory produces a capability bound to one user. Construction may fail,
// e.g. on malformed configuration; that surfaces as an error, not a panic.
type Factory func(userID string) (Capability, error)

// Key identifies a capability registration.
type Key struct {
	Action string
	Mode   string
}

type registration struct {
	name    string
	scopes  []string
	factory Factory
}

// Registry is a static lookup table from (action, mode) to capability
// factories. Resolution is total: an unknown pair yields ErrNoCapability.
type Registry struct {
	entries map[Key]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]registration)}
}

// Register installs a factory for the (action, mode) pair. The name is the
// tool name used in execution-log entries; scopes are the OAuth scopes the
// produced capability requires.
func (r *Registry) Register(action, mode, name string, scopes []string, factory Factory) {
	r.entries[Key{Action: action, Mode: mode}] = registration{
		name:    name,
		scopes:  scopes,
		factory: factory,
	}
}

// Resolve constructs a capability bound to the given user. It returns
// ErrNoCapability for an unknown pair and wraps factory failures.
func (r *Registry) Resolve(action, mode, userID string) (Capability, error) {
	reg, ok := r.entries[Key{Action: action, Mode: mode}]
	if !ok {
		return nil, ErrNoCapability
	}
	cap, err := reg.factory(userID)
	if err != nil {
		return nil, errors.Wrapf(err, "creating capability '%s'", reg.name)
	}
	return cap, nil
}

// Name returns the registered tool name for the pair, or false if unknown.
func (r *Registry) Name(action, mode string) (string, bool) {
	reg, ok := r.entries[Key{Action: action, Mode: mode}]
	if !ok {
		return "", false
	}
	return reg.name, true
}

// Scopes returns the scope set registered for the pair, or false if the
// pair is unknown.
func (r *Registry) Scopes(action, mode string) ([]string, bool) {
	reg, ok := r.entries[Key{Action: action, Mode: mode}]
	if !ok {
		return nil, false
	}
	return reg.scopes, true
}

// AllScopes returns the union of every registered scope, sorted. The OAuth
// consent URL requests this set so a single grant covers all capabilities.
func (r *Registry) AllScopes() []string {
	seen := make(map[string]struct{})
	for _, reg := range r.entries {
		for _, s := range reg.scopes {
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

// ActionScopes returns the union of all scopes registered under an action,
// sorted. Used as the fail-safe requirement for unknown modes: better to
// request broader access than to under-provision.
func (r *Registry) ActionScopes(action string) []string {
	seen := make(map[string]struct{})
	for key, reg := range r.entries {
		if key.Action != action {
			continue
		}
		for _, s := range reg.scopes {
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
