package checkpoint

import (
	"context"
	"fmt"

	"github.com/dagline/dagline/pkg/engine"
	"github.com/dagline/dagline/pkg/models"
)

// RecoveryPlanner is the C8 entry point: load the last durable
// checkpoint for an execution and hand it to the scheduler to rebuild
// and resume. Kept as a thin pairing of Store and Scheduler rather
// than folding LoadCheckpoint into the scheduler itself, so pkg/engine
// stays free of a storage-backend dependency (same reasoning as
// CheckpointWriter's placement).
type RecoveryPlanner struct {
	store     *Store
	scheduler *engine.Scheduler
}

func NewRecoveryPlanner(store *Store, scheduler *engine.Scheduler) *RecoveryPlanner {
	return &RecoveryPlanner{store: store, scheduler: scheduler}
}

// Recover loads executionID's checkpoint and resumes it under a new
// execution id. Only "running" or "waiting" checkpoints are
// recoverable — a checkpoint already "completed"/"failed" has nothing
// left to resume.
func (p *RecoveryPlanner) Recover(ctx context.Context, executionID string, opts *engine.ExecutionOptions) (*models.ExecutionContext, error) {
	cp, err := p.store.LoadCheckpoint(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp.Status != models.ExecutionStatusRunning && cp.Status != models.ExecutionStatusWaiting {
		return nil, fmt.Errorf("execution %s is not recoverable from status %s", executionID, cp.Status)
	}
	return p.scheduler.Recover(ctx, cp, opts)
}

// ListRecoverable surfaces every execution left non-terminal by an
// unclean shutdown, for a caller to iterate over. The CLI's `resume`
// subcommand does not call it; it requires an explicit execution id.
func (p *RecoveryPlanner) ListRecoverable(ctx context.Context) ([]string, error) {
	return p.store.ListRecoverable(ctx)
}
