// Package executor defines the node-executor contract (C5): a
// kind-keyed registry dispatching to the concrete implementations in
// pkg/executor/builtin.
package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/vars"
)

// Request bundles everything one node execution needs: the node
// itself, the execution context it runs within, and a scope-bound
// resolver for config-string interpolation (C2).
type Request struct {
	Node     *models.Node
	Context  *models.ExecutionContext
	Resolver *vars.Resolver
	Scope    *vars.Scope

	// ParentIDs lists this node's direct predecessors in workflow
	// edge-definition order, the ordering spec §4.5 requires merge to
	// fall back on when its predecessor collection is unordered.
	ParentIDs []string
}

// Executor is the per-kind contract every builtin implements.
type Executor interface {
	// Execute runs the node and returns its result. It must not panic
	// for ordinary failures — those belong in the returned NodeResult's
	// Failed status; a returned error signals a programmer/infra error
	// that the dispatcher treats as an internal failure.
	Execute(ctx context.Context, req Request) (*models.NodeResult, error)

	// Validate checks kind-specific config beyond what models.Node.Validate
	// already enforces (e.g. type-checking optional fields).
	Validate(node *models.Node) error
}

// Registry is a thread-safe kind -> Executor lookup.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry returns an empty registry; callers register builtins via
// builtin.RegisterAll to avoid an import cycle between this package
// and pkg/executor/builtin.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

func (r *Registry) Register(kind string, ex Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == "" {
		return fmt.Errorf("node kind cannot be empty")
	}
	if ex == nil {
		return fmt.Errorf("executor cannot be nil")
	}
	r.executors[kind] = ex
	return nil
}

func (r *Registry) Get(kind string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ex, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, kind)
	}
	return ex, nil
}

func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[kind]
	return ok
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}

// BaseExecutor carries the config-accessor helpers every builtin needs
// (mirrors the teacher's BaseExecutor get-or-default accessors).
type BaseExecutor struct {
	Kind string
}

func NewBaseExecutor(kind string) *BaseExecutor { return &BaseExecutor{Kind: kind} }

func (b *BaseExecutor) GetString(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", fmt.Errorf("field not found: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return s, nil
}

func (b *BaseExecutor) GetStringDefault(config map[string]interface{}, key, def string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (b *BaseExecutor) GetIntDefault(config map[string]interface{}, key string, def int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return def
	}
}

func (b *BaseExecutor) GetBoolDefault(config map[string]interface{}, key string, def bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return def
}

func (b *BaseExecutor) GetMap(config map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := config[key]
	if !ok {
		return nil, fmt.Errorf("field not found: %s", key)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("field %s is not a map", key)
	}
	return m, nil
}

func (b *BaseExecutor) GetStringSlice(config map[string]interface{}, key string) ([]string, bool) {
	v, ok := config[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
