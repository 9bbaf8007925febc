package builtin

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/vars"
)

// EndExecutor is the terminal node. Without config.aggregateOutputs it
// emits the mapping from each completed predecessor id to that
// predecessor's output; with it, each output key is computed from a
// named aggregation spec ({ fromNodes, transform }). An _metadata
// block with execution/node-count statistics is always appended, per
// spec §4.5.
type EndExecutor struct {
	*executor.BaseExecutor
}

func NewEndExecutor() *EndExecutor {
	return &EndExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindEnd))}
}

func (e *EndExecutor) Validate(node *models.Node) error { return nil }

func (e *EndExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	var output map[string]interface{}
	aggSpec, hasAgg := req.Node.Config["aggregateOutputs"].(map[string]interface{})
	if hasAgg {
		output = e.aggregate(req, aggSpec)
	} else {
		output = make(map[string]interface{}, len(req.ParentIDs))
		for _, id := range req.ParentIDs {
			result, ok := req.Context.Results[id]
			if !ok || result == nil {
				continue
			}
			output[id] = result.Output
		}
	}

	successCount := 0
	failedCount := 0
	for _, result := range req.Context.Results {
		switch result.Status {
		case models.NodeResultSuccess:
			successCount++
		case models.NodeResultFailed:
			failedCount++
		}
	}
	output["_metadata"] = map[string]interface{}{
		"executionId":  req.Context.ExecutionID,
		"workflowId":   req.Context.WorkflowID,
		"nodeCount":    len(req.Context.Results),
		"successCount": successCount,
		"failedCount":  failedCount,
	}

	return success(req.Node.ID, start, output), nil
}

// aggregate computes one output key per entry in spec, where each
// entry names { fromNodes: []string, transform: <nested structure> }.
// String leaves inside transform are resolved against the scope
// narrowed to just those named predecessors (spec §4.5) before being
// assigned verbatim; an entry without fromNodes falls back to the full
// scope.
func (e *EndExecutor) aggregate(req executor.Request, spec map[string]interface{}) map[string]interface{} {
	output := make(map[string]interface{}, len(spec))
	for key, raw := range spec {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		transform := entry["transform"]
		resolver := req.Resolver
		if fromNodes, ok := e.GetStringSlice(entry, "fromNodes"); ok {
			resolver = resolver.WithScope(scopedTo(req.Scope, fromNodes))
		}
		resolved, err := resolver.Resolve(transform)
		if err != nil {
			output[key] = transform
			continue
		}
		output[key] = resolved
	}
	return output
}

// scopedTo narrows scope's node results to just the named predecessors,
// keeping the input/global/system namespaces intact.
func scopedTo(scope *vars.Scope, nodeIDs []string) *vars.Scope {
	results := make(map[string]*models.NodeResult, len(nodeIDs))
	for _, id := range nodeIDs {
		if result, ok := scope.Results[id]; ok {
			results[id] = result
		}
	}
	return &vars.Scope{
		Input:   scope.Input,
		Global:  scope.Global,
		System:  scope.System,
		Results: results,
	}
}
