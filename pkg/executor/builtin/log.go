package builtin

import (
	"context"
	"fmt"
	"time"

	"github.com/dagline/dagline/internal/logger"
	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
)

// LogExecutor emits a message at a caller-selected level with full
// variable resolution. Succeeds with an empty output mapping, per spec
// §4.5, unless resolving the message fails in strict mode, which
// yields failed with unresolved-variable.
type LogExecutor struct {
	*executor.BaseExecutor
	log *logger.Logger
}

func NewLogExecutor(log *logger.Logger) *LogExecutor {
	return &LogExecutor{BaseExecutor: executor.NewBaseExecutor(string(models.NodeKindLog)), log: log}
}

func (e *LogExecutor) Validate(node *models.Node) error { return nil }

func (e *LogExecutor) Execute(ctx context.Context, req executor.Request) (*models.NodeResult, error) {
	start := time.Now()

	level := e.GetStringDefault(req.Node.Config, "level", "info")
	message, _ := req.Node.Config["message"].(string)
	resolved, err := req.Resolver.ResolveString(message)
	if err != nil {
		return failed(req.Node.ID, start, models.ErrKindUnresolvedVariable, err.Error(), nil), nil
	}
	text := toText(resolved)

	log := e.log
	if log == nil {
		log = logger.Default()
	}
	scoped := log.WithNode(req.Node.ID, req.Node.Type)
	switch level {
	case "debug":
		scoped.Debug(text)
	case "warn":
		scoped.Warn(text)
	case "error":
		scoped.Error(text)
	default:
		scoped.Info(text)
	}

	return success(req.Node.ID, start, map[string]interface{}{}), nil
}

func toText(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
