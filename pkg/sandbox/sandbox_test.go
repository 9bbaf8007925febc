package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dagline/dagline/pkg/models"
)

func TestPool_RunReturnsValue(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1})
	res, err := p.Run(context.Background(), "return 1 + 2;", Bindings{}, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.ReturnValue != int64(3) {
		t.Fatalf("expected 3, got %v (%T)", res.ReturnValue, res.ReturnValue)
	}
}

func TestPool_BindingsVisibleToScript(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1})
	b := Bindings{Input: map[string]interface{}{"name": "ada"}}
	res, err := p.Run(context.Background(), "return __input.name;", b, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReturnValue != "ada" {
		t.Fatalf("expected 'ada', got %v", res.ReturnValue)
	}
}

func TestPool_LogCapturesOutput(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1})
	res, err := p.Run(context.Background(), "log('hi'); return true;", Bindings{}, DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.CapturedOutput) != 1 || res.CapturedOutput[0] != "hi" {
		t.Fatalf("expected captured output ['hi'], got %v", res.CapturedOutput)
	}
}

func TestPool_WallClockTimeout(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1})
	limits := Limits{WallClock: 50 * time.Millisecond}
	_, err := p.Run(context.Background(), "while (true) {}", Bindings{}, limits)
	if !errors.Is(err, models.ErrResourceLimit) {
		t.Fatalf("expected ErrResourceLimit, got %v", err)
	}
}

func TestPool_NoFilesystemOrProcessAccess(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1})
	cases := []string{
		"return typeof require;",
		"return typeof process;",
	}
	for _, src := range cases {
		res, err := p.Run(context.Background(), src, Bindings{}, DefaultLimits())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", src, err)
		}
		if res.ReturnValue != "undefined" {
			t.Fatalf("expected 'undefined' capability surface for %q, got %v", src, res.ReturnValue)
		}
	}
}

func TestPool_LeaseReleaseRoundTrips(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1, MaxSize: 1})
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Idle() != 0 {
		t.Fatalf("expected 0 idle while leased, got %d", p.Idle())
	}
	lease.Release()
	if p.Idle() != 1 {
		t.Fatalf("expected 1 idle after release, got %d", p.Idle())
	}
}

func TestPool_ExhaustionReportsSandboxUnavailable(t *testing.T) {
	p := NewPool(PoolOptions{Size: 1, MaxSize: 1, LeaseWait: 20 * time.Millisecond})
	lease, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer lease.Release()

	_, err = p.Acquire(context.Background())
	if !errors.Is(err, models.ErrSandboxUnavailable) {
		t.Fatalf("expected ErrSandboxUnavailable, got %v", err)
	}
}
