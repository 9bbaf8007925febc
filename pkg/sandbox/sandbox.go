// Package sandbox runs capability-limited JavaScript-equivalent script
// nodes on a pooled set of goja runtimes. No filesystem, network,
// subprocess, or reflection access is exposed to script code; only the
// host builtins installed by installHostBuiltins are callable.
package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/dagline/dagline/pkg/models"
)

// Result is the invocation outcome spec §4.4 names:
// { returnValue, capturedOutput, durationMs, success }.
type Result struct {
	ReturnValue    interface{}
	CapturedOutput []string
	DurationMs     int64
	Success        bool
}

// Limits bounds a single invocation.
type Limits struct {
	WallClock     time.Duration // default 5s, caller-overridable
	MaxStatements int64         // not enforced by Run
	MaxMemoryMB   int64         // not enforced by Run (goja has no hard memory cap)
}

// DefaultLimits matches spec §4.4's default wall-clock of 5 seconds.
func DefaultLimits() Limits {
	return Limits{WallClock: 5 * time.Second}
}

// Bindings is the data exposed to a script invocation: __input,
// __global, __system, and nodes (completed-node outputs).
type Bindings struct {
	Input  map[string]interface{}
	Global map[string]interface{}
	System map[string]interface{}
	Nodes  map[string]*models.NodeResult
}

// instance wraps one goja.Runtime. Not safe for concurrent use — the
// pool enforces exclusive leases.
type instance struct {
	vm *goja.Runtime
}

func newInstance() *instance {
	return &instance{vm: goja.New()}
}

// Run executes source under limits with bindings, wrapping the source
// so a top-level `return` yields the invocation's return value.
func (in *instance) Run(source string, b Bindings, limits Limits) (*Result, error) {
	vm := in.vm
	vm.ClearInterrupt()

	captured := make([]string, 0, 8)
	installHostBuiltins(vm, &captured)

	if err := bindValue(vm, "__input", b.Input); err != nil {
		return nil, err
	}
	if err := bindValue(vm, "__global", b.Global); err != nil {
		return nil, err
	}
	if err := bindValue(vm, "__system", b.System); err != nil {
		return nil, err
	}
	nodeOutputs := make(map[string]interface{}, len(b.Nodes))
	for id, r := range b.Nodes {
		if r != nil {
			nodeOutputs[id] = r.Output
		}
	}
	if err := bindValue(vm, "nodes", nodeOutputs); err != nil {
		return nil, err
	}

	wrapped := "(function(){\n" + source + "\n})()"

	wallClock := limits.WallClock
	if wallClock <= 0 {
		wallClock = DefaultLimits().WallClock
	}

	timer := time.AfterFunc(wallClock, func() {
		vm.Interrupt(fmt.Errorf("%w: wall-clock timeout of %s exceeded", models.ErrResourceLimit, wallClock))
	})
	defer timer.Stop()

	start := time.Now()
	value, err := vm.RunString(wrapped)
	duration := time.Since(start)

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w", models.ErrResourceLimit)
		}
		return &Result{
			CapturedOutput: captured,
			DurationMs:     duration.Milliseconds(),
			Success:        false,
		}, fmt.Errorf("script error: %w", err)
	}

	return &Result{
		ReturnValue:    value.Export(),
		CapturedOutput: captured,
		DurationMs:     duration.Milliseconds(),
		Success:        true,
	}, nil
}

func bindValue(vm *goja.Runtime, name string, v interface{}) error {
	if v == nil {
		v = map[string]interface{}{}
	}
	return vm.Set(name, v)
}

// installHostBuiltins exposes exactly the host primitives spec §4.4
// allows: log, error, sleep, now, JSON encode/decode, base64
// encode/decode. Everything else (require, process, global object
// constructors beyond the JS language itself) stays unreachable
// because goja never wires them in unless explicitly Set.
func installHostBuiltins(vm *goja.Runtime, captured *[]string) {
	vm.Set("log", func(args ...interface{}) {
		*captured = append(*captured, fmt.Sprint(args...))
	})
	vm.Set("error", func(args ...interface{}) {
		*captured = append(*captured, "[error] "+fmt.Sprint(args...))
	})
	vm.Set("sleep", func(ms int64) {
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	})
	vm.Set("now", func() int64 {
		return time.Now().UnixMilli()
	})
	vm.Set("jsonEncode", func(v interface{}) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	vm.Set("jsonDecode", func(s string) (interface{}, error) {
		var v interface{}
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		return v, nil
	})
	vm.Set("base64Encode", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	})
	vm.Set("base64Decode", func(s string) (string, error) {
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}
