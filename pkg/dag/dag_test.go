package dag

import (
	"errors"
	"testing"

	"github.com/dagline/dagline/pkg/models"
)

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:   "wf-1",
		Name: "linear",
		Nodes: []*models.Node{
			{ID: "a", Type: string(models.NodeKindTrigger)},
			{ID: "b", Type: string(models.NodeKindLog), Config: map[string]interface{}{}},
			{ID: "c", Type: string(models.NodeKindEnd)},
		},
		Edges: []*models.Edge{
			{SourceNodeID: "a", TargetNodeID: "b"},
			{SourceNodeID: "b", TargetNodeID: "c"},
		},
	}
}

func TestBuildAndValidate_Linear(t *testing.T) {
	t.Parallel()
	g, err := BuildAndValidate(linearWorkflow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Roots()) != 1 || g.Roots()[0].ID != "a" {
		t.Fatalf("expected single root 'a', got %+v", g.Roots())
	}
	if len(g.Leaves()) != 1 || g.Leaves()[0].ID != "c" {
		t.Fatalf("expected single leaf 'c', got %+v", g.Leaves())
	}
	if g.InDegree["b"] != 1 || g.InDegree["c"] != 1 || g.InDegree["a"] != 0 {
		t.Fatalf("unexpected in-degree map: %+v", g.InDegree)
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "a", Type: string(models.NodeKindEnd)})

	_, err := BuildAndValidate(wf)
	if !errors.Is(err, models.ErrWorkflowInvalid) {
		t.Fatalf("expected ErrWorkflowInvalid, got %v", err)
	}
}

func TestValidate_DanglingEdge(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{SourceNodeID: "b", TargetNodeID: "ghost"})

	_, err := BuildAndValidate(wf)
	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestValidate_Cycle(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{SourceNodeID: "c", TargetNodeID: "a"})

	_, err := BuildAndValidate(wf)
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *models.ValidationError, got %v (%T)", err, err)
	}
	if len(ve.NodeIDs) == 0 {
		t.Fatalf("expected stalled node set in validation error, got none")
	}
}

func TestValidate_CycleIgnoresLoopEdges(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, &models.Edge{
		SourceNodeID: "c", TargetNodeID: "a",
		Loop: &models.LoopConfig{MaxIterations: 3},
	})

	if _, err := BuildAndValidate(wf); err != nil {
		t.Fatalf("loop edge should not trip acyclicity check: %v", err)
	}
}

func TestValidate_DisconnectedNode(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, &models.Node{ID: "island", Type: string(models.NodeKindLog), Config: map[string]interface{}{}})

	_, err := BuildAndValidate(wf)
	if !errors.Is(err, models.ErrDisconnectedNode) {
		t.Fatalf("expected ErrDisconnectedNode, got %v", err)
	}
}

func TestValidate_KindSpecificConfig(t *testing.T) {
	t.Parallel()
	wf := linearWorkflow()
	wf.Nodes[1] = &models.Node{ID: "b", Type: string(models.NodeKindHTTP), Config: map[string]interface{}{}}

	_, err := BuildAndValidate(wf)
	if err == nil {
		t.Fatal("expected error for http node missing url")
	}
}

func TestSortByPriority(t *testing.T) {
	t.Parallel()
	nodes := []*models.Node{
		{ID: "low", Metadata: map[string]interface{}{"priority": 1}},
		{ID: "high", Metadata: map[string]interface{}{"priority": 10}},
		{ID: "mid", Metadata: map[string]interface{}{"priority": 5}},
		{ID: "default"},
	}
	sorted := SortByPriority(nodes)
	order := []string{sorted[0].ID, sorted[1].ID, sorted[2].ID, sorted[3].ID}
	want := []string{"high", "mid", "low", "default"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("priority order = %v, want %v", order, want)
		}
	}
}
