package builtin

import (
	"github.com/dagline/dagline/internal/logger"
	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/sandbox"
)

// RegisterAll wires every builtin executor into reg. pool and log may
// be nil; the script and log executors fall back to sensible defaults
// (a freshly sized pool, the package default logger) when so.
func RegisterAll(reg *executor.Registry, pool *sandbox.Pool, log *logger.Logger) error {
	if pool == nil {
		pool = sandbox.NewPool(sandbox.PoolOptions{})
	}

	executors := map[string]executor.Executor{
		string(models.NodeKindTrigger): NewTriggerExecutor(),
		string(models.NodeKindHTTP):    NewHTTPExecutor(),
		string(models.NodeKindLog):     NewLogExecutor(log),
		string(models.NodeKindScript):  NewScriptExecutor(pool),
		string(models.NodeKindIf):      NewIfExecutor(),
		string(models.NodeKindMerge):   NewMergeExecutor(),
		string(models.NodeKindWait):    NewWaitExecutor(),
		string(models.NodeKindEnd):     NewEndExecutor(),
	}

	for kind, ex := range executors {
		if err := reg.Register(kind, ex); err != nil {
			return err
		}
	}
	return nil
}
