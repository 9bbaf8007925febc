package engine

import (
	"context"

	"github.com/dagline/dagline/pkg/models"
)

// CheckpointWriter is the durable-write contract (C7) the scheduler
// depends on. Every call must complete (durably) before the caller
// proceeds — in particular, NodeFinish must return before any
// downstream node becomes eligible to run, which is the ordering
// invariant that makes crash recovery safe (spec §4.7).
//
// Declared here rather than imported from internal/checkpoint so this
// package has no dependency on a concrete storage backend; production
// wiring supplies a store that implements it.
type CheckpointWriter interface {
	StartExecution(ctx context.Context, workflow *models.Workflow, ec *models.ExecutionContext) error
	NodeStart(ctx context.Context, executionID string, node *models.Node, inputSnapshot map[string]interface{}) error
	NodeFinish(ctx context.Context, executionID string, node *models.Node, result *models.NodeResult, inDegreeSnapshot map[string]int) error
	FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errMessage string) error
}

// NoOpCheckpointWriter discards every call; useful for tests and for
// StandaloneExecutor-style in-memory runs that don't need crash
// recovery.
type NoOpCheckpointWriter struct{}

func (NoOpCheckpointWriter) StartExecution(ctx context.Context, workflow *models.Workflow, ec *models.ExecutionContext) error {
	return nil
}

func (NoOpCheckpointWriter) NodeStart(ctx context.Context, executionID string, node *models.Node, inputSnapshot map[string]interface{}) error {
	return nil
}

func (NoOpCheckpointWriter) NodeFinish(ctx context.Context, executionID string, node *models.Node, result *models.NodeResult, inDegreeSnapshot map[string]int) error {
	return nil
}

func (NoOpCheckpointWriter) FinishExecution(ctx context.Context, executionID string, status models.ExecutionStatus, errMessage string) error {
	return nil
}
