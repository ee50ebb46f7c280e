package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/capability"
	"github.com/vijay-varadarajan/AutoAgent/pkg/models"
	"github.com/vijay-varadarajan/AutoAgent/pkg/storage"
)

// ErrNoPending is returned by Resumer.Run when the owner has no pending
// workflows to resume.
var ErrNoPending = errors.New("no pending workflows")

// NotifierFactory builds an owner-bound notifier for a resumption run.
// There is no live message exchange at that point, so the factory is
// expected to return a background-capable backend.
type NotifierFactory func(userID string) Notifier

// Resumer re-runs suspended workflows after an external event, typically
// an OAuth callback reporting new grants.
type Resumer struct {
	store     storage.Store
	registry  *capability.Registry
	gate      *auth.Gate
	notifiers NotifierFactory
	logger    Logger
}

func NewResumer(store storage.Store, registry *capability.Registry, gate *auth.Gate, notifiers NotifierFactory, logger Logger) *Resumer {
	return &Resumer{
		store:     store,
		registry:  registry,
		gate:      gate,
		notifiers: notifiers,
		logger:    logger,
	}
}

// Run executes the owner's most recently created pending workflow as a
// fresh Execute call. Older pending workflows stay queued for later
// triggers.
func (r *Resumer) Run(ctx context.Context, userID string) (Result, error) {
	pending, err := r.store.ListWorkflowsByStatus(userID, models.PendingWorkflowStatus)
	if err != nil {
		return Result{}, errors.Wrapf(err, "listing pending workflows for user %s", userID)
	}
	if len(pending) == 0 {
		r.logger.Infof("No pending workflows for user %s", userID)
		return Result{}, ErrNoPending
	}

	wf := pending[0]
	r.logger.Infof("Resuming workflow %s for user %s", wf.ID, userID)

	exec := NewExecutor(r.store, r.registry, r.gate, r.notifiers(userID), r.logger, wf.ID)
	if !exec.Load() {
		return Result{}, errors.Errorf("failed to load workflow %s", wf.ID)
	}
	return exec.Execute(ctx)
}
