package engine

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
)

// dispatchResult carries an executor's outcome across the timeout race.
type dispatchResult struct {
	result *models.NodeResult
	err    error
}

// Dispatcher runs one node-execution attempt under a timeout, per
// spec §4.6 step 2 ("call the dispatcher (C5) with the node and
// context, under its timeout"). The executor runs in its own
// goroutine; if the deadline elapses first, Dispatcher returns
// synthetically, since the embedded executors (http via context,
// script via goja.Interrupt) are not guaranteed to unwind instantly —
// the scheduler must not block the whole execution on a slow node.
type Dispatcher struct {
	registry *executor.Registry
}

func NewDispatcher(registry *executor.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Run executes req.Node via its registered executor, racing timeout
// against completion. timeout <= 0 means no deadline.
func (d *Dispatcher) Run(ctx context.Context, req executor.Request, timeout time.Duration) (*models.NodeResult, error) {
	ex, err := d.registry.Get(req.Node.Type)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan dispatchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- dispatchResult{err: &models.NodeError{NodeID: req.Node.ID, Kind: models.ErrKindInternal, Message: "executor panicked"}}
			}
		}()
		result, err := ex.Execute(runCtx, req)
		done <- dispatchResult{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-runCtx.Done():
		end := time.Now()
		return &models.NodeResult{
			NodeID:     req.Node.ID,
			Status:     models.NodeResultFailed,
			ErrorKind:  models.ErrKindTimeout,
			Error:      "node execution exceeded its timeout",
			StartedAt:  start,
			EndedAt:    end,
			DurationMs: end.Sub(start).Milliseconds(),
		}, nil
	}
}
