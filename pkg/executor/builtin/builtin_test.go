package builtin

import (
	"context"
	"testing"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/vars"
)

func newRequest(node *models.Node, ec *models.ExecutionContext, parentIDs []string) executor.Request {
	scope := vars.NewScope(ec, nil)
	return executor.Request{
		Node:      node,
		Context:   ec,
		Resolver:  vars.NewResolver(scope, false),
		Scope:     scope,
		ParentIDs: parentIDs,
	}
}

func TestTriggerExecutor_RepublishesInput(t *testing.T) {
	ec := &models.ExecutionContext{Input: map[string]interface{}{"a": 1}, Results: map[string]*models.NodeResult{}}
	node := &models.Node{ID: "T", Type: string(models.NodeKindTrigger), Config: map[string]interface{}{}}
	result, err := NewTriggerExecutor().Execute(context.Background(), newRequest(node, ec, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.NodeResultSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if result.Output["a"] != 1 {
		t.Errorf("expected input to be republished, got %v", result.Output)
	}
	if result.Output["triggerType"] != "manual" {
		t.Errorf("expected default triggerType manual, got %v", result.Output["triggerType"])
	}
}

func TestMergeExecutor_All(t *testing.T) {
	ec := &models.ExecutionContext{
		Results: map[string]*models.NodeResult{
			"A": {NodeID: "A", Status: models.NodeResultSuccess, Output: map[string]interface{}{"x": 1.0}},
			"B": {NodeID: "B", Status: models.NodeResultSuccess, Output: map[string]interface{}{"y": 2.0}},
		},
	}
	node := &models.Node{ID: "M", Type: string(models.NodeKindMerge), Config: map[string]interface{}{"mergeStrategy": "all"}}
	result, err := NewMergeExecutor().Execute(context.Background(), newRequest(node, ec, []string{"A", "B"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["count"] != 2 {
		t.Errorf("expected count 2, got %v", result.Output["count"])
	}
	merged := result.Output["merged"].(map[string]interface{})
	if merged["A"].(map[string]interface{})["x"] != 1.0 {
		t.Errorf("expected A.x preserved, got %v", merged)
	}
}

func TestMergeExecutor_FirstRespectsEdgeOrder(t *testing.T) {
	ec := &models.ExecutionContext{
		Results: map[string]*models.NodeResult{
			"A": {NodeID: "A", Status: models.NodeResultSuccess, Output: map[string]interface{}{"v": "a"}},
			"B": {NodeID: "B", Status: models.NodeResultSuccess, Output: map[string]interface{}{"v": "b"}},
		},
	}
	node := &models.Node{ID: "M", Type: string(models.NodeKindMerge), Config: map[string]interface{}{"mergeStrategy": "first"}}
	result, err := NewMergeExecutor().Execute(context.Background(), newRequest(node, ec, []string{"B", "A"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["nodeId"] != "B" {
		t.Errorf("expected B first per edge order, got %v", result.Output["nodeId"])
	}
}

func TestMergeExecutor_ExcludeNullsDropsPruned(t *testing.T) {
	ec := &models.ExecutionContext{
		Results: map[string]*models.NodeResult{
			"A": {NodeID: "A", Status: models.NodeResultSuccess, Output: map[string]interface{}{"x": 1.0}},
			"B": {NodeID: "B", Status: models.NodeResultFailed},
		},
	}
	node := &models.Node{ID: "M", Type: string(models.NodeKindMerge), Config: map[string]interface{}{"mergeStrategy": "all"}}
	result, err := NewMergeExecutor().Execute(context.Background(), newRequest(node, ec, []string{"A", "B"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["count"] != 1 {
		t.Errorf("expected only A to contribute, got count %v", result.Output["count"])
	}
}

func TestMergeExecutor_ValidateRejectsUnknownStrategy(t *testing.T) {
	node := &models.Node{ID: "M", Type: string(models.NodeKindMerge), Config: map[string]interface{}{"mergeStrategy": "bogus"}}
	if err := NewMergeExecutor().Validate(node); err == nil {
		t.Error("expected validation error for unknown merge strategy")
	}
}

func TestWaitExecutor_ReturnsWaitingStatusWithTicket(t *testing.T) {
	ec := &models.ExecutionContext{Results: map[string]*models.NodeResult{}}
	node := &models.Node{ID: "W", Type: string(models.NodeKindWait), Config: map[string]interface{}{"timeout": 1000}}
	result, err := NewWaitExecutor().Execute(context.Background(), newRequest(node, ec, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != models.NodeResultWaiting {
		t.Fatalf("expected waiting status, got %s", result.Status)
	}
	if result.WaitTicket == "" {
		t.Error("expected a non-empty wait ticket")
	}
	if result.Output["status"] != "WAITING" {
		t.Errorf("expected output status WAITING, got %v", result.Output["status"])
	}
}

func TestEndExecutor_DefaultAggregatesPredecessorOutputs(t *testing.T) {
	ec := &models.ExecutionContext{
		ExecutionID: "exec-1",
		Results: map[string]*models.NodeResult{
			"A": {NodeID: "A", Status: models.NodeResultSuccess, Output: map[string]interface{}{"x": 1.0}},
		},
	}
	node := &models.Node{ID: "End", Type: string(models.NodeKindEnd), Config: map[string]interface{}{}}
	result, err := NewEndExecutor().Execute(context.Background(), newRequest(node, ec, []string{"A"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, ok := result.Output["A"].(map[string]interface{})
	if !ok || a["x"] != 1.0 {
		t.Errorf("expected predecessor A's output under key A, got %v", result.Output)
	}
	meta, ok := result.Output["_metadata"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected _metadata block, got %v", result.Output)
	}
	if meta["executionId"] != "exec-1" {
		t.Errorf("expected executionId in metadata, got %v", meta)
	}
}

func TestIfExecutor_SelectsBranchValue(t *testing.T) {
	ec := &models.ExecutionContext{
		Results: map[string]*models.NodeResult{
			"trigger": {NodeID: "trigger", Status: models.NodeResultSuccess, Output: map[string]interface{}{"triggerType": "manual"}},
		},
	}
	node := &models.Node{ID: "If", Type: string(models.NodeKindIf), Config: map[string]interface{}{
		"condition": `trigger.triggerType == "manual"`,
	}}
	result, err := NewIfExecutor().Execute(context.Background(), newRequest(node, ec, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != true {
		t.Errorf("expected condition true, got %v", result.Output)
	}
}

func TestHTTPExecutor_ValidateRequiresURL(t *testing.T) {
	node := &models.Node{ID: "H", Type: string(models.NodeKindHTTP), Config: map[string]interface{}{}}
	if err := NewHTTPExecutor().Validate(node); err == nil {
		t.Error("expected validation error for missing url")
	}
}

func TestScriptExecutor_ValidateRequiresCode(t *testing.T) {
	node := &models.Node{ID: "S", Type: string(models.NodeKindScript), Config: map[string]interface{}{}}
	if err := NewScriptExecutor(nil).Validate(node); err == nil {
		t.Error("expected validation error for missing code")
	}
}
