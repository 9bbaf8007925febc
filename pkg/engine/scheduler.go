package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dagline/dagline/pkg/dag"
	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/expr"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/vars"
)

// Scheduler is the concurrent node dispatcher (C6): every node fires
// the instant its own in-degree counter reaches zero, rather than
// waiting on a synchronous BFS-layer barrier.
type Scheduler struct {
	dispatcher         *Dispatcher
	checkpoint         CheckpointWriter
	notifier           Notifier
	waits              *WaitRegistry
	defaultRetry       RetryPolicy
	defaultNodeTimeout time.Duration
	system             map[string]interface{}
}

// SchedulerOptions configures scheduler-wide defaults; per-execution
// overrides go through ExecutionOptions passed to Launch.
type SchedulerOptions struct {
	Checkpoint         CheckpointWriter
	Notifier           Notifier
	DefaultRetry       RetryPolicy
	DefaultNodeTimeout time.Duration
	System             map[string]interface{}
}

func NewScheduler(registry *executor.Registry, opts SchedulerOptions) *Scheduler {
	if opts.Checkpoint == nil {
		opts.Checkpoint = NoOpCheckpointWriter{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NoOpNotifier{}
	}
	if (opts.DefaultRetry == RetryPolicy{}) {
		opts.DefaultRetry = DefaultRetryPolicy()
	}
	if opts.DefaultNodeTimeout <= 0 {
		opts.DefaultNodeTimeout = 30 * time.Second
	}
	return &Scheduler{
		dispatcher:         NewDispatcher(registry),
		checkpoint:         opts.Checkpoint,
		notifier:           opts.Notifier,
		waits:              NewWaitRegistry(),
		defaultRetry:       opts.DefaultRetry,
		defaultNodeTimeout: opts.DefaultNodeTimeout,
		system:             opts.System,
	}
}

// run holds the mutable state of one in-flight execution.
type run struct {
	s       *Scheduler
	ctx     context.Context
	cancel  context.CancelFunc
	graph   *dag.Graph
	ec      *models.ExecutionContext
	opts    ExecutionOptions

	inDegree map[string]*atomic.Int64
	liveIn    map[string]*atomic.Int64 // live (non-pruned) inbound edges seen so far, per node
	scheduled sync.Map // nodeID -> struct{}, guards against double-submit
	waiting   sync.Map // nodeID -> struct{}, nodes currently suspended
	loopIters sync.Map // "source->target" -> *atomic.Int64, loop-edge fire counts

	resultsMu sync.RWMutex
	wg        sync.WaitGroup
	drainMu   sync.Mutex

	failOnce   sync.Once
	failErr    error
	failedNode string
}

// drainAndFinalize blocks until every currently in-flight node
// goroutine has returned, then computes and persists the execution's
// resulting status (completed, waiting, or failed). Serialized by
// drainMu so a Resume racing a still-finishing Launch drain can't
// observe or persist a half-computed status.
func (r *run) drainAndFinalize() {
	r.drainMu.Lock()
	defer r.drainMu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	<-drained
	r.finalize()
}

// Launch validates the workflow (C1), initializes per-node in-degree
// counters, persists the initial checkpoint, and submits every
// zero-in-degree node as an independent unit of concurrent work (spec
// §4.6 "Launch"). It blocks until the execution reaches a terminal
// state or becomes `waiting`.
func (s *Scheduler) Launch(ctx context.Context, workflow *models.Workflow, input map[string]interface{}, globals map[string]interface{}, opts *ExecutionOptions) (*models.ExecutionContext, error) {
	graph, err := dag.BuildAndValidate(workflow)
	if err != nil {
		return nil, err
	}

	effectiveOpts := opts.orDefaults()

	ec := &models.ExecutionContext{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflow.ID,
		TenantID:    workflow.TenantID,
		Status:      models.ExecutionStatusRunning,
		Input:       input,
		Globals:     globals,
		Results:     make(map[string]*models.NodeResult),
		StartedAt:   time.Now(),
	}

	if err := s.checkpoint.StartExecution(ctx, workflow, ec); err != nil {
		return nil, fmt.Errorf("checkpoint start failed: %w", err)
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
	for id, d := range graph.InDegree {
		v := &atomic.Int64{}
		v.Store(int64(d))
		r.inDegree[id] = v
		r.liveIn[id] = &atomic.Int64{}
	}

	s.notify(ctx, Event{Type: EventExecutionStarted, ExecutionID: ec.ExecutionID, WorkflowID: workflow.ID, Timestamp: time.Now()})

	activeRuns.put(ec.ExecutionID, r)

	for _, node := range graph.Roots() {
		r.submit(node.ID)
	}

	r.drainAndFinalize()
	return ec, nil
}

// Resume delivers a (executionId, waitTicket, payload) tuple to the
// node suspended under that ticket, per spec §4.6 "Resume from wait".
// It is a no-op (returning models.ErrWaitTicketNotFound) if the ticket
// is unknown or has already been resolved — the idempotence spec §6
// requires.
//
// Resume only handles the in-process case: a Scheduler that is still
// holding the execution's run state in memory. Recovering a waiting
// execution after a process restart goes through the recovery planner
// (C8) instead, which rebuilds a run from a checkpoint.
func (s *Scheduler) Resume(ctx context.Context, executionID, waitTicket string, payload map[string]interface{}) error {
	entry, ok := s.waits.resolve(executionID, waitTicket)
	if !ok {
		return errTicketNotPending(waitTicket)
	}
	run, ok := activeRuns.get(executionID)
	if !ok {
		return fmt.Errorf("%w: execution %s is not active in this process", models.ErrExecutionNotFound, executionID)
	}

	result := &models.NodeResult{
		NodeID:    entry.nodeID,
		Status:    models.NodeResultSuccess,
		Output:    payload,
		StartedAt: time.Now(),
		EndedAt:   time.Now(),
	}
	run.waiting.Delete(entry.nodeID)
	node := run.graph.Nodes[entry.nodeID]

	run.wg.Add(1)
	go func() {
		defer run.wg.Done()
		run.completeNode(node, result)
	}()
	run.drainAndFinalize()
	return nil
}

func (r *run) submit(nodeID string) {
	if _, loaded := r.scheduled.LoadOrStore(nodeID, struct{}{}); loaded {
		return
	}
	r.launch(nodeID)
}

// launch starts a node's goroutine without touching the scheduled
// guard — for callers (planFanOut's ready list) that already claimed
// the node via scheduled.LoadOrStore themselves.
func (r *run) launch(nodeID string) {
	r.wg.Add(1)
	go r.runNode(nodeID)
}

func (r *run) runNode(nodeID string) {
	defer r.wg.Done()
	if r.ctx.Err() != nil {
		return
	}

	node := r.graph.Nodes[nodeID]
	start := time.Now()

	inputSnapshot := r.snapshotResults()
	if err := r.s.checkpoint.NodeStart(r.ctx, r.ec.ExecutionID, node, toInterfaceMap(inputSnapshot)); err != nil {
		r.fail(node, err.Error())
		return
	}
	r.s.notify(r.ctx, Event{Type: EventNodeStarted, ExecutionID: r.ec.ExecutionID, WorkflowID: r.ec.WorkflowID, NodeID: node.ID, NodeType: node.Type, Timestamp: start})

	retryPolicy := resolveRetryPolicy(node.Retry, r.effectiveRetryDefault())
	timeout := r.effectiveTimeout(node)

	var result *models.NodeResult
	attempt := 0
	for {
		attempt++
		req := r.buildRequest(node)
		res, err := r.s.dispatcher.Run(r.ctx, req, timeout)
		if err != nil {
			end := time.Now()
			res = &models.NodeResult{
				NodeID:     node.ID,
				Status:     models.NodeResultFailed,
				ErrorKind:  models.ErrKindInternal,
				Error:      err.Error(),
				StartedAt:  start,
				EndedAt:    end,
				DurationMs: end.Sub(start).Milliseconds(),
			}
		}
		res.RetryCount = attempt - 1

		if res.Status == models.NodeResultFailed && retryableKind(res.ErrorKind) && attempt < retryPolicy.MaxAttempts {
			r.s.notify(r.ctx, Event{Type: EventNodeRetrying, ExecutionID: r.ec.ExecutionID, NodeID: node.ID, NodeType: node.Type, Error: res.Error, Timestamp: time.Now()})
			delay := retryPolicy.delayForAttempt(attempt)
			select {
			case <-time.After(delay):
				continue
			case <-r.ctx.Done():
				result = res
			}
		} else {
			result = res
		}
		break
	}

	r.completeNode(node, result)
}

// completeNode is the "Completion routine" of spec §4.6. On success,
// every successor's in-degree/live-count is decremented (and any
// further-downstream pruning cascaded) before the checkpoint write, so
// the persisted snapshot already reflects this node's effect on its
// successors; only once that write returns are the now-ready
// successors actually launched (spec §4.7's "durable before downstream
// eligible").
func (r *run) completeNode(node *models.Node, result *models.NodeResult) {
	r.storeResult(node.ID, result)

	var ready []string
	if result.Status == models.NodeResultSuccess {
		ready = r.planFanOut(node)
	}

	snapshot := r.snapshotInDegree()
	if err := r.s.checkpoint.NodeFinish(r.ctx, r.ec.ExecutionID, node, result, snapshot); err != nil {
		r.fail(node, fmt.Sprintf("checkpoint write failed: %v", err))
		return
	}

	switch result.Status {
	case models.NodeResultWaiting:
		r.waiting.Store(node.ID, struct{}{})
		r.s.waits.register(r.ec.ExecutionID, node.ID, result.WaitTicket)
		activeRuns.put(r.ec.ExecutionID, r)
		r.s.notify(r.ctx, Event{Type: EventNodeWaiting, ExecutionID: r.ec.ExecutionID, NodeID: node.ID, NodeType: node.Type, Timestamp: time.Now()})
		return

	case models.NodeResultFailed:
		r.s.notify(r.ctx, Event{Type: EventNodeFailed, ExecutionID: r.ec.ExecutionID, NodeID: node.ID, NodeType: node.Type, Error: result.Error, Timestamp: time.Now()})
		r.fail(node, result.Error)
		return

	case models.NodeResultSuccess:
		r.s.notify(r.ctx, Event{Type: EventNodeCompleted, ExecutionID: r.ec.ExecutionID, NodeID: node.ID, NodeType: node.Type, DurationMs: result.DurationMs, Timestamp: time.Now()})
		r.waiting.Delete(node.ID)
		r.fireLoopEdges(node)
		for _, id := range ready {
			r.launch(id)
		}
	}
}

// planFanOut evaluates every non-loop outgoing edge of node and
// delivers it to its target (spec §4.6's MERGE-compatible pruning
// rule), mutating in-degree/live-count counters and recursively
// cascading through any node that turns out fully pruned. It returns
// the node IDs now ready to execute without launching them, so the
// caller can persist the resulting counter state before anything
// downstream actually runs.
func (r *run) planFanOut(node *models.Node) []string {
	var ready []string
	r.planEdges(node, &ready)
	return ready
}

func (r *run) planEdges(node *models.Node, ready *[]string) {
	for _, edge := range r.graph.EdgesBySource[node.ID] {
		if edge.Loop != nil {
			continue // loop edges are re-fired separately, outside in-degree accounting
		}

		conditionTrue := true
		if edge.Condition != "" {
			scope := r.scopeSnapshot()
			v, err := expr.Evaluate(edge.Condition, scope)
			if err != nil {
				conditionTrue = false
			} else {
				conditionTrue = v
			}
		}
		if !conditionTrue {
			r.s.notify(r.ctx, Event{Type: EventNodePruned, ExecutionID: r.ec.ExecutionID, NodeID: edge.TargetNodeID, Timestamp: time.Now()})
		}

		r.planArrival(edge.TargetNodeID, conditionTrue, ready)
	}
}

// planArrival records one inbound edge's arrival at target: live marks
// it toward the target's live-inbound count, and the shared in-degree
// counter is always decremented. Once every inbound edge has arrived,
// the target is ready to execute if at least one was live (spec
// §4.6(e) — a MERGE/end with one live predecessor still fires);
// otherwise every one of its inbound edges was pruned, so the target
// itself is recorded as pruned (no execution, no result) and its own
// out-edges are planned through planEdges, each by its own condition:
// an unconditional out-edge of a pruned node still arrives live.
func (r *run) planArrival(targetID string, live bool, ready *[]string) {
	if live {
		r.liveIn[targetID].Add(1)
	}
	remaining := r.inDegree[targetID].Add(-1)
	if remaining > 0 {
		return
	}
	if _, loaded := r.scheduled.LoadOrStore(targetID, struct{}{}); loaded {
		return
	}
	if r.liveIn[targetID].Load() > 0 {
		*ready = append(*ready, targetID)
		return
	}
	r.s.notify(r.ctx, Event{Type: EventNodePruned, ExecutionID: r.ec.ExecutionID, NodeID: targetID, Timestamp: time.Now()})
	r.planEdges(r.graph.Nodes[targetID], ready)
}

// fireLoopEdges re-submits every loop back-edge leaving node. It runs
// after the node's checkpoint write; unlike the non-loop edges above,
// loop iteration counts aren't part of the durable in-degree snapshot.
func (r *run) fireLoopEdges(node *models.Node) {
	for _, edge := range r.graph.EdgesBySource[node.ID] {
		if edge.Loop != nil {
			r.fireLoopEdge(edge)
		}
	}
}

// fireLoopEdge re-submits a loop edge's target outside the normal
// in-degree accounting, bounded by its configured MaxIterations — the
// scheduler-native equivalent of the teacher's wave-range reset, but
// re-firing a single node rather than a whole barrier layer (spec
// SPEC_FULL §4).
func (r *run) fireLoopEdge(edge *models.Edge) {
	key := edge.SourceNodeID + "->" + edge.TargetNodeID
	counterIface, _ := r.loopIters.LoadOrStore(key, &atomic.Int64{})
	counter := counterIface.(*atomic.Int64)
	fired := counter.Add(1)

	if int(fired) > edge.Loop.MaxIterations {
		r.s.notify(r.ctx, Event{Type: EventNodePruned, ExecutionID: r.ec.ExecutionID, NodeID: edge.TargetNodeID, Status: "loop-exhausted", Timestamp: time.Now()})
		return
	}

	r.scheduled.Delete(edge.TargetNodeID)
	r.submit(edge.TargetNodeID)
}

// fail records the first terminal failure and cancels every other
// in-flight node, per spec §4.6 step (d).
func (r *run) fail(node *models.Node, message string) {
	r.failOnce.Do(func() {
		r.failErr = fmt.Errorf("%s", message)
		r.failedNode = node.ID
		r.cancel()
	})
}

// finalize computes the execution's terminal status once the run has
// drained (no node in flight) and persists it.
func (r *run) finalize() {
	ec := r.ec
	ec.EndedAt = time.Now()

	hasWaiting := false
	r.waiting.Range(func(key, _ interface{}) bool {
		hasWaiting = true
		return false
	})

	switch {
	case r.failErr != nil:
		ec.Status = models.ExecutionStatusFailed
		ec.Error = r.failErr.Error()
		ec.FailedNode = r.failedNode
	case hasWaiting:
		ec.Status = models.ExecutionStatusWaiting
	default:
		ec.Status = models.ExecutionStatusCompleted
	}

	eventType := EventExecutionCompleted
	switch ec.Status {
	case models.ExecutionStatusFailed:
		eventType = EventExecutionFailed
	case models.ExecutionStatusWaiting:
		eventType = EventExecutionWaiting
	}
	r.s.notify(context.Background(), Event{Type: eventType, ExecutionID: ec.ExecutionID, WorkflowID: ec.WorkflowID, Status: string(ec.Status), Error: ec.Error, Timestamp: time.Now()})

	if ec.Status != models.ExecutionStatusWaiting {
		r.s.waits.release(ec.ExecutionID)
		activeRuns.delete(ec.ExecutionID)
		r.cancel()
	}

	_ = r.s.checkpoint.FinishExecution(context.Background(), ec.ExecutionID, ec.Status, ec.Error)
}

func (r *run) effectiveRetryDefault() RetryPolicy {
	if r.opts.Retry != nil {
		return *r.opts.Retry
	}
	return r.s.defaultRetry
}

func (r *run) effectiveTimeout(node *models.Node) time.Duration {
	var configMs float64
	switch v := node.Config["timeout"].(type) {
	case float64:
		configMs = v
	case int:
		configMs = float64(v)
	case int64:
		configMs = float64(v)
	}
	if configMs > 0 {
		return time.Duration(configMs * float64(time.Millisecond))
	}
	if node.TimeoutMs > 0 {
		return time.Duration(node.TimeoutMs) * time.Millisecond
	}
	if r.opts.NodeTimeout > 0 {
		return r.opts.NodeTimeout
	}
	return r.s.defaultNodeTimeout
}

func retryableKind(kind models.ErrorKind) bool {
	switch kind {
	case models.ErrKindTimeout, models.ErrKindRemoteFailure:
		return true
	default:
		return false
	}
}

// buildRequest snapshots current results and assembles the
// executor.Request (C2 resolver/scope plus edge-ordered parent ids)
// for one node dispatch.
func (r *run) buildRequest(node *models.Node) executor.Request {
	ecView := *r.ec
	ecView.Results = r.snapshotResults()

	system := r.mergedSystem()
	scope := vars.NewScope(&ecView, system)
	resolver := vars.NewResolver(scope, r.opts.StrictMode)

	parents := r.graph.ParentsByNode[node.ID]
	parentIDs := make([]string, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, p.ID)
	}

	return executor.Request{
		Node:      node,
		Context:   &ecView,
		Resolver:  resolver,
		Scope:     scope,
		ParentIDs: parentIDs,
	}
}

// scopeSnapshot builds a *vars.Scope over the current results for edge
// condition evaluation, independent of any one node's dispatch.
func (r *run) scopeSnapshot() *vars.Scope {
	ecView := *r.ec
	ecView.Results = r.snapshotResults()
	return vars.NewScope(&ecView, r.mergedSystem())
}

func (r *run) mergedSystem() map[string]interface{} {
	if len(r.opts.System) == 0 {
		return r.s.system
	}
	merged := make(map[string]interface{}, len(r.s.system)+len(r.opts.System))
	for k, v := range r.s.system {
		merged[k] = v
	}
	for k, v := range r.opts.System {
		merged[k] = v
	}
	return merged
}

func (r *run) snapshotResults() map[string]*models.NodeResult {
	r.resultsMu.RLock()
	defer r.resultsMu.RUnlock()
	snapshot := make(map[string]*models.NodeResult, len(r.ec.Results))
	for k, v := range r.ec.Results {
		snapshot[k] = v
	}
	return snapshot
}

func (r *run) storeResult(nodeID string, result *models.NodeResult) {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	r.ec.Results[nodeID] = result
}

func (r *run) snapshotInDegree() map[string]int {
	snapshot := make(map[string]int, len(r.inDegree))
	for id, v := range r.inDegree {
		snapshot[id] = int(v.Load())
	}
	return snapshot
}

func toInterfaceMap(results map[string]*models.NodeResult) map[string]interface{} {
	out := make(map[string]interface{}, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out
}

func (s *Scheduler) notify(ctx context.Context, event Event) {
	defer func() { recover() }()
	s.notifier.Notify(ctx, event)
}
