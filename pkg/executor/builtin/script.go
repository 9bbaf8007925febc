package builtin

import (
	"context"
	"errors"
	"time"

	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/sandbox"
)

// ScriptExecutor delegates to the sandbox pool (C4). Output:
// { returnValue, output, duration }. Empty code, a script error, or a
// resource violation yields failed. No language key is read: code
// always runs as JavaScript in the goja sandbox.
type ScriptExecutor struct {
	*executor.BaseExecutor
	pool *sandbox.Pool
}

func NewScriptExecutor(pool *sandbox.Pool) *ScriptExecutor {
	return &ScriptExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindScript)), pool: pool}
}

func (e *ScriptExecutor) Validate(node *models.Node) error {
	code, _ := node.Config["code"].(string)
	if code == "" {
		return &models.ValidationError{Field: "config.code", Message: "script node requires non-empty code", NodeIDs: []string{node.ID}}
	}
	return nil
}

func (e *ScriptExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	code, _ := req.Node.Config["code"].(string)
	if code == "" {
		return failed(req.Node.ID, start, models.ErrKindValidation, "script node requires non-empty code", nil), nil
	}

	limits := sandbox.DefaultLimits()
	if ms := e.GetIntDefault(req.Node.Config, "timeout", 0); ms > 0 {
		limits.WallClock = time.Duration(ms) * time.Millisecond
	}

	bindings := sandbox.Bindings{
		Input:  req.Context.Input,
		Global: req.Context.Globals,
		System: req.Scope.System,
		Nodes:  req.Context.Results,
	}

	result, err := e.pool.Run(ctx, code, bindings, limits)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrResourceLimit):
			return failed(req.Node.ID, start, models.ErrKindResourceLimit, err.Error(), nil), nil
		case errors.Is(err, models.ErrSandboxUnavailable):
			return failed(req.Node.ID, start, models.ErrKindInternal, err.Error(), nil), nil
		default:
			return failed(req.Node.ID, start, models.ErrKindExpressionRuntime, err.Error(), nil), nil
		}
	}

	output := map[string]interface{}{
		"returnValue": result.ReturnValue,
		"output":      result.CapturedOutput,
		"duration":    result.DurationMs,
	}
	if !result.Success {
		return failed(req.Node.ID, start, models.ErrKindExpressionRuntime, "script did not complete successfully", output), nil
	}
	return success(req.Node.ID, start, output), nil
}
