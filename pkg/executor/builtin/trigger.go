package builtin

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
)

// TriggerExecutor is the entry node: it reads the execution's input
// and kind-specific metadata (webhook headers/body, cron scheduled
// time, event payload) and republishes them as its own output. Always
// succeeds, per spec §4.5.
type TriggerExecutor struct {
	*executor.BaseExecutor
}

func NewTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindTrigger))}
}

func (e *TriggerExecutor) Validate(node *models.Node) error { return nil }

func (e *TriggerExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	output := make(map[string]interface{}, len(req.Context.Input)+1)
	for k, v := range req.Context.Input {
		output[k] = v
	}

	triggerKind := e.GetStringDefault(req.Node.Config, "triggerType", "manual")
	output["triggerType"] = triggerKind

	if meta, err := e.GetMap(req.Node.Config, "metadata"); err == nil {
		resolved, rerr := req.Resolver.ResolveMap(meta)
		if rerr == nil {
			output["metadata"] = resolved
		}
	}

	return success(req.Node.ID, start, output), nil
}
