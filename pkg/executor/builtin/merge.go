package builtin

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
)

// MergeExecutor combines the outputs of multiple predecessor nodes per
// spec §4.5. config.mergeStrategy selects the shape:
//
//	all   -> { merged: {nodeId: output}, nodeIds, count }
//	first -> { nodeId, result, count } for the first participating
//	         predecessor in source-edge order (under the default
//	         excludeNulls, the first with a successful result)
//	last  -> same shape as first, but the last such predecessor
//	array -> { results: [{nodeId, result}...], count }
//
// config.includeNodeIds optionally restricts which predecessors
// participate; config.excludeNulls (default true) drops predecessors
// whose result is absent, failed, or has a nil output.
type MergeExecutor struct {
	*executor.BaseExecutor
}

func NewMergeExecutor() *MergeExecutor {
	return &MergeExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindMerge))}
}

func (e *MergeExecutor) Validate(node *models.Node) error {
	strategy := e.GetStringDefault(node.Config, "mergeStrategy", "all")
	switch strategy {
	case "all", "first", "last", "array":
		return nil
	default:
		return &models.ValidationError{Field: "config.mergeStrategy", Message: "must be one of all, first, last, array", NodeIDs: []string{node.ID}}
	}
}

func (e *MergeExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	strategy := e.GetStringDefault(req.Node.Config, "mergeStrategy", "all")
	excludeNulls := e.GetBoolDefault(req.Node.Config, "excludeNulls", true)
	include, hasInclude := e.GetStringSlice(req.Node.Config, "includeNodeIds")
	allowed := make(map[string]bool, len(include))
	for _, id := range include {
		allowed[id] = true
	}

	// req.ParentIDs already reflects source-edge definition order.
	var ordered []string
	for _, id := range req.ParentIDs {
		if hasInclude && !allowed[id] {
			continue
		}
		result, ok := req.Context.Results[id]
		if excludeNulls {
			if !ok || result == nil || result.Status != models.NodeResultSuccess || result.Output == nil {
				continue
			}
		} else if !ok || result == nil {
			continue
		}
		ordered = append(ordered, id)
	}

	switch strategy {
	case "first":
		return e.singleResult(req, start, ordered, true)
	case "last":
		return e.singleResult(req, start, ordered, false)
	case "array":
		results := make([]map[string]interface{}, 0, len(ordered))
		for _, id := range ordered {
			results = append(results, map[string]interface{}{
				"nodeId": id,
				"result": req.Context.Results[id].Output,
			})
		}
		return success(req.Node.ID, start, map[string]interface{}{
			"results": results,
			"count":   len(results),
		}), nil
	default: // all
		merged := make(map[string]interface{}, len(ordered))
		for _, id := range ordered {
			merged[id] = req.Context.Results[id].Output
		}
		return success(req.Node.ID, start, map[string]interface{}{
			"merged":  merged,
			"nodeIds": ordered,
			"count":   len(ordered),
		}), nil
	}
}

func (e *MergeExecutor) singleResult(req executor.Request, start time.Time, ordered []string, first bool) (*models.NodeResult, error) {
	if len(ordered) == 0 {
		return success(req.Node.ID, start, map[string]interface{}{
			"nodeId": nil,
			"result": nil,
			"count":  0,
		}), nil
	}
	id := ordered[0]
	if !first {
		id = ordered[len(ordered)-1]
	}
	return success(req.Node.ID, start, map[string]interface{}{
		"nodeId": id,
		"result": req.Context.Results[id].Output,
		"count":  1,
	}), nil
}
