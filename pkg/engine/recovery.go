package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dagline/dagline/pkg/dag"
	"github.com/dagline/dagline/pkg/models"
)

// Recover rebuilds a run from a persisted models.Checkpoint and
// resumes it under a fresh execution identifier chained to the
// original (spec §4.8). It computes the ready set exactly as Launch
// does — zero in-degree, not already completed — except the in-degree
// values come from the checkpoint's snapshot rather than a freshly
// built graph, since some of that in-degree has already been consumed
// by nodes that finished before the crash.
//
// Recovery is idempotent: calling Recover twice against the same
// checkpoint computes the same ready set both times, because the
// checkpoint itself is never mutated by this call — only the new
// execution it spawns is.
func (s *Scheduler) Recover(ctx context.Context, checkpoint *models.Checkpoint, opts *ExecutionOptions) (*models.ExecutionContext, error) {
	graph, err := dag.BuildAndValidate(checkpoint.Workflow)
	if err != nil {
		return nil, err
	}

	effectiveOpts := opts.orDefaults()

	ec := &models.ExecutionContext{
		ExecutionID:   uuid.NewString(),
		WorkflowID:    checkpoint.WorkflowID,
		TenantID:      checkpoint.TenantID,
		Status:        models.ExecutionStatusRunning,
		Input:         checkpoint.Input,
		Globals:       checkpoint.Globals,
		Results:       make(map[string]*models.NodeResult, len(checkpoint.Results)),
		StartedAt:     time.Now(),
		RecoveredFrom: checkpoint.ExecutionID,
	}
	for id, r := range checkpoint.Results {
		ec.Results[id] = r
	}

	if err := s.checkpoint.StartExecution(ctx, checkpoint.Workflow, ec); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		s:        s,
		ctx:      runCtx,
		cancel:   cancel,
		graph:    graph,
		ec:       ec,
		opts:     effectiveOpts,
		inDegree: make(map[string]*atomic.Int64, len(graph.Nodes)),
		liveIn:   make(map[string]*atomic.Int64, len(graph.Nodes)),
	}
	for id := range graph.Nodes {
		v := &atomic.Int64{}
		if d, ok := checkpoint.InDegree[id]; ok {
			v.Store(int64(d))
		} else {
			v.Store(int64(graph.InDegree[id]))
		}
		r.inDegree[id] = v
		// Arrivals consumed before the checkpoint count as live.
		live := &atomic.Int64{}
		if consumed := int64(graph.InDegree[id]) - v.Load(); consumed > 0 {
			live.Store(consumed)
		}
		r.liveIn[id] = live
	}
	for id := range checkpoint.Completed {
		r.scheduled.Store(id, struct{}{})
	}

	s.notify(ctx, Event{Type: EventExecutionStarted, ExecutionID: ec.ExecutionID, WorkflowID: ec.WorkflowID, Status: "recovered", Timestamp: time.Now()})

	activeRuns.put(ec.ExecutionID, r)

	for id, v := range r.inDegree {
		if v.Load() == 0 && !checkpoint.Completed[id] {
			r.submit(id)
		}
	}

	r.drainAndFinalize()
	return ec, nil
}
