package builtin

import (
	"context"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/expr"
	"github.com/dagline/dagline/pkg/models"
)

// IfExecutor evaluates its condition via pkg/expr. Output:
// { result: bool, selected: string }. The actual flow split happens at
// edge conditions, not here — this node only reports its own verdict,
// per spec §4.5.
type IfExecutor struct {
	*executor.BaseExecutor
}

func NewIfExecutor() *IfExecutor {
	return &IfExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindIf))}
}

func (e *IfExecutor) Validate(node *models.Node) error { return nil }

func (e *IfExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	condition := e.GetStringDefault(req.Node.Config, "condition", "")
	result, err := expr.Evaluate(condition, req.Scope)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindExpressionRuntime, err.Error(), nil), nil
	}

	trueValue := e.GetStringDefault(req.Node.Config, "trueValue", "true")
	falseValue := e.GetStringDefault(req.Node.Config, "falseValue", "false")
	selected := falseValue
	if result {
		selected = trueValue
	}

	return success(req.Node.ID, start, map[string]interface{}{
		"result":   result,
		"selected": selected,
	}), nil
}
