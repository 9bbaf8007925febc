package builtin

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
	"github.com/google/uuid"
)

// WaitExecutor records a suspension and never advances the graph on its
// own; the scheduler holds downstream in-degrees for W's successors
// until an external resume(executionId, ticket, payload) call rewrites
// this node's result as success, per spec §4.5/§4.6.
type WaitExecutor struct {
	*executor.BaseExecutor
}

func NewWaitExecutor() *WaitExecutor {
	return &WaitExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindWait))}
}

func (e *WaitExecutor) Validate(node *models.Node) error { return nil }

func (e *WaitExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	timeoutMs := int64(e.GetIntDefault(req.Node.Config, "timeout", int(time.Hour.Milliseconds())))
	timeoutAt := start.Add(time.Duration(timeoutMs) * time.Millisecond)

	ticket := uuid.NewString()
	output := map[string]interface{}{
		"status":     "WAITING",
		"waitTicket": ticket,
		"timeoutAt":  timeoutAt,
	}
	if cb, ok := req.Node.Config["callbackUrl"].(string); ok && cb != "" {
		resolved, err := req.Resolver.ResolveString(cb)
		if err == nil {
			output["callbackUrl"] = resolved
		} else {
			output["callbackUrl"] = cb
		}
	}
	if data, ok := req.Node.Config["callbackData"]; ok {
		resolvedData, err := req.Resolver.Resolve(data)
		if err == nil {
			output["callbackData"] = resolvedData
		} else {
			output["callbackData"] = data
		}
	}

	return waiting(req.Node.ID, start, ticket, output), nil
}
