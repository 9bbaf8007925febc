package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/executor/builtin"
	"github.com/dagline/dagline/pkg/models"
)

func newTestRegistry(t *testing.T) *executor.Registry {
	t.Helper()
	reg := executor.NewRegistry()
	require.NoError(t, builtin.RegisterAll(reg, nil, nil))
	return reg
}

func waitFor(t *testing.T, ec *models.ExecutionContext, status models.ExecutionStatus) {
	t.Helper()
	require.Equal(t, status, ec.Status, "error=%s", ec.Error)
}

// TestScheduler_LinearChain exercises a straight trigger -> log -> end
// chain: every node after the trigger has in-degree 1, firing
// sequentially to Completed.
func TestScheduler_LinearChain(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-linear",
		Name: "linear",
		Nodes: []*models.Node{
			{ID: "start", Type: string(models.NodeKindTrigger), Config: map[string]interface{}{}},
			{ID: "mid", Type: string(models.NodeKindLog), Config: map[string]interface{}{"message": "hello"}},
			{ID: "end", Type: string(models.NodeKindEnd), Config: map[string]interface{}{}},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "start", TargetNodeID: "mid"},
			{SourceNodeID: "mid", TargetNodeID: "end"},
		},
	}

	s := NewScheduler(newTestRegistry(t), SchedulerOptions{})
	ec, err := s.Launch(context.Background(), wf, map[string]interface{}{"a": 1}, nil, nil)
	require.NoError(t, err)
	waitFor(t, ec, models.ExecutionStatusCompleted)
	require.Len(t, ec.Results, 3)

	endOut, ok := ec.Results["end"].Output["mid"].(map[string]interface{})
	require.True(t, ok, "expected end to aggregate mid's output, got %v", ec.Results["end"].Output)
	_ = endOut
}

// TestScheduler_ConditionalBranchPrunesAndMerges builds an if node
// fanning into two log branches joined by a merge with excludeNulls,
// verifying the pruned branch is skipped and in-degree still resolves.
func TestScheduler_ConditionalBranchPrunesAndMerges(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-branch",
		Name: "branch",
		Nodes: []*models.Node{
			{ID: "start", Type: string(models.NodeKindTrigger), Config: map[string]interface{}{}},
			{ID: "gate", Type: string(models.NodeKindIf), Config: map[string]interface{}{"condition": "true"}},
			{ID: "onTrue", Type: string(models.NodeKindLog), Config: map[string]interface{}{"message": "yes"}},
			{ID: "onFalse", Type: string(models.NodeKindLog), Config: map[string]interface{}{"message": "no"}},
			{ID: "join", Type: string(models.NodeKindMerge), Config: map[string]interface{}{"mergeStrategy": "all"}},
			{ID: "end", Type: string(models.NodeKindEnd), Config: map[string]interface{}{}},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "start", TargetNodeID: "gate"},
			{SourceNodeID: "gate", TargetNodeID: "onTrue", Condition: "gate.result == true"},
			{SourceNodeID: "gate", TargetNodeID: "onFalse", Condition: "gate.result == false"},
			{SourceNodeID: "onTrue", TargetNodeID: "join"},
			{SourceNodeID: "onFalse", TargetNodeID: "join"},
			{SourceNodeID: "join", TargetNodeID: "end"},
		},
	}

	s := NewScheduler(newTestRegistry(t), SchedulerOptions{})
	ec, err := s.Launch(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	waitFor(t, ec, models.ExecutionStatusCompleted)

	_, ran := ec.Results["onFalse"]
	require.False(t, ran, "expected onFalse branch never to run, got result %v", ec.Results["onFalse"])

	join := ec.Results["join"]
	require.NotNil(t, join)
	require.Equal(t, models.NodeResultSuccess, join.Status, "expected join to succeed despite one pruned predecessor")
	require.Equal(t, 1, join.Output["count"], "expected merge to exclude the pruned branch")
}

// TestScheduler_WaitSuspendsAndResumeCompletes drives a wait node to
// Waiting, confirms the execution parks rather than finishing, then
// resumes it through its ticket and confirms it reaches Completed.
func TestScheduler_WaitSuspendsAndResumeCompletes(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-wait",
		Name: "wait",
		Nodes: []*models.Node{
			{ID: "start", Type: string(models.NodeKindTrigger), Config: map[string]interface{}{}},
			{ID: "pause", Type: string(models.NodeKindWait), Config: map[string]interface{}{"timeout": 60000}},
			{ID: "end", Type: string(models.NodeKindEnd), Config: map[string]interface{}{}},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "start", TargetNodeID: "pause"},
			{SourceNodeID: "pause", TargetNodeID: "end"},
		},
	}

	s := NewScheduler(newTestRegistry(t), SchedulerOptions{})
	ec, err := s.Launch(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	waitFor(t, ec, models.ExecutionStatusWaiting)

	ticket := ec.Results["pause"].WaitTicket
	require.NotEmpty(t, ticket, "expected a wait ticket on the pause node result")

	require.NoError(t, s.Resume(context.Background(), ec.ExecutionID, ticket, map[string]interface{}{"approved": true}))
	waitFor(t, ec, models.ExecutionStatusCompleted)

	err = s.Resume(context.Background(), ec.ExecutionID, ticket, map[string]interface{}{"approved": true})
	require.Error(t, err, "expected a second resume on the same ticket to fail")
}

// TestScheduler_FailedNodeMarksExecutionFailed runs a single root node
// that fails immediately; the execution must end Failed and name the
// node that failed.
func TestScheduler_FailedNodeMarksExecutionFailed(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-fail",
		Name: "fail",
		Nodes: []*models.Node{
			{ID: "bad", Type: string(models.NodeKindHTTP), Config: map[string]interface{}{"url": "http://127.0.0.1:0/nope", "method": "GET"}},
		},
	}

	s := NewScheduler(newTestRegistry(t), SchedulerOptions{DefaultNodeTimeout: 2 * time.Second})
	ec, err := s.Launch(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	waitFor(t, ec, models.ExecutionStatusFailed)
	require.Equal(t, "bad", ec.FailedNode)
}

// TestScheduler_LoopEdgeReSubmitsUntilMaxIterations verifies a loop
// back-edge re-fires its target the configured number of times rather
// than looping forever or being treated as a cycle.
func TestScheduler_LoopEdgeReSubmitsUntilMaxIterations(t *testing.T) {
	wf := &models.Workflow{
		ID:   "wf-loop",
		Name: "loop",
		Nodes: []*models.Node{
			{ID: "start", Type: string(models.NodeKindTrigger), Config: map[string]interface{}{}},
			{ID: "body", Type: string(models.NodeKindLog), Config: map[string]interface{}{"message": "iterate"}},
			{ID: "end", Type: string(models.NodeKindEnd), Config: map[string]interface{}{}},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "start", TargetNodeID: "body"},
			{SourceNodeID: "body", TargetNodeID: "body", Loop: &models.LoopConfig{MaxIterations: 2}},
			{SourceNodeID: "body", TargetNodeID: "end"},
		},
	}

	s := NewScheduler(newTestRegistry(t), SchedulerOptions{})
	ec, err := s.Launch(context.Background(), wf, nil, nil, nil)
	require.NoError(t, err)
	waitFor(t, ec, models.ExecutionStatusCompleted)

	_, ran := ec.Results["body"]
	require.True(t, ran, "expected body node to have run")
}
