package script

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/handle"
	"github.com/suredesigns/alier-bridge/internal/transport/loopback"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

func newTestRuntime(t *testing.T, host *loopback.Host) *Runtime {
	t.Helper()
	d := dispatch.New(host, handle.New())
	host.Bind(d, nil)

	r, err := New(DefaultConfig(), d, nil)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRuntimeExecution(t *testing.T) {
	r := newTestRuntime(t, loopback.NewHost(nil))

	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{
			name:    "simple return",
			script:  "42",
			wantErr: false,
		},
		{
			name:    "console log",
			script:  "console.log('hello'); 'test'",
			wantErr: false,
		},
		{
			name:    "math operations",
			script:  "Math.sqrt(16)",
			wantErr: false,
		},
		{
			name:    "syntax error",
			script:  "function {",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Run(context.Background(), tt.script)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && result == nil {
				t.Error("Run() returned nil result")
			}
		})
	}
}

func TestRuntimeSecurity(t *testing.T) {
	r := newTestRuntime(t, loopback.NewHost(nil))

	dangerous := []struct {
		name   string
		script string
	}{
		{name: "require blocked", script: "require('fs')"},
		{name: "process blocked", script: "process.exit(1)"},
		{name: "module blocked", script: "module.exports = {}"},
	}

	for _, tt := range dangerous {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Run(context.Background(), tt.script); err == nil {
				t.Error("expected blocked global to throw")
			}
		})
	}
}

func TestCallSyncFromScript(t *testing.T) {
	host := loopback.NewHost(nil)
	host.Register("double", false, func(args []any) (any, error) {
		n, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("want a number, got %T", args[0])
		}
		return n * 2, nil
	})
	r := newTestRuntime(t, host)

	result, err := r.Run(context.Background(), "native.callSync('double', 21)")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got, ok := result.(int64); !ok || got != 42 {
		t.Errorf("callSync result = %v (%T), want 42", result, result)
	}
}

func TestCallSyncErrorThrows(t *testing.T) {
	host := loopback.NewHost(nil)
	host.Register("explode", false, func(args []any) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	r := newTestRuntime(t, host)

	result, err := r.Run(context.Background(), `
		(function() {
			try {
				native.callSync('explode');
				return 'no throw';
			} catch (e) {
				return String(e);
			}
		})()`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	msg, ok := result.(string)
	if !ok || !strings.Contains(msg, "boom") {
		t.Errorf("caught %q, want the native error message", result)
	}
}

func TestCallAsyncFromScript(t *testing.T) {
	host := loopback.NewHost(nil)
	host.Register("echo", true, func(args []any) (any, error) {
		return args[0], nil
	})
	r := newTestRuntime(t, host)

	_, err := r.Run(context.Background(), `
		var settled = null;
		native.callAsync('echo', function(err, result) {
			settled = err !== null ? 'error:' + err : result;
		}, 'ping');`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := r.Run(context.Background(), "settled")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if got != nil {
			if got != "ping" {
				t.Errorf("settled = %v, want %q", got, "ping")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("async call never settled")
}

func TestScriptFunctionsRegisterOnce(t *testing.T) {
	var seen []wire.Handle
	host := loopback.NewHost(nil)
	host.Register("observe", false, func(args []any) (any, error) {
		h, ok := args[0].(wire.Handle)
		if !ok {
			return nil, fmt.Errorf("want a handle, got %T", args[0])
		}
		seen = append(seen, h)
		return nil, nil
	})
	r := newTestRuntime(t, host)

	_, err := r.Run(context.Background(), `
		var fn = function listener() {};
		native.callSync('observe', fn);
		native.callSync('observe', fn);`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("host saw %d handles, want 2", len(seen))
	}
	if seen[0].ID != seen[1].ID {
		t.Errorf("same script function got two ids: %q and %q", seen[0].ID, seen[1].ID)
	}
	if seen[0].Type != "function" || seen[0].Name != "listener" {
		t.Errorf("descriptor = %+v, want a named function handle", seen[0])
	}
}

func TestNativeInvokesScriptFunction(t *testing.T) {
	var captured wire.Handle
	host := loopback.NewHost(nil)
	host.Register("subscribe", false, func(args []any) (any, error) {
		captured = args[0].(wire.Handle)
		return nil, nil
	})
	reg := handle.New()
	d := dispatch.New(host, reg)
	host.Bind(d, nil)

	r, err := New(DefaultConfig(), d, nil)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	defer r.Close()

	_, err = r.Run(context.Background(), `
		var calls = [];
		native.callSync('subscribe', function(event) { calls.push(event); });`)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if captured.IsZero() {
		t.Fatal("host never captured the listener handle")
	}

	if _, err := d.InvokeByHandle(captured, []any{"resumed"}, false); err != nil {
		t.Fatalf("InvokeByHandle() error = %v", err)
	}

	got, err := r.Run(context.Background(), "calls.join(',')")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != "resumed" {
		t.Errorf("listener saw %v, want %q", got, "resumed")
	}
}

func TestEntry(t *testing.T) {
	r := newTestRuntime(t, loopback.NewHost(nil))

	if _, err := r.Run(context.Background(), "function main() { return 'ran'; }"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	entry, err := r.Entry("main")
	if err != nil {
		t.Fatalf("Entry() error = %v", err)
	}
	got, err := entry()
	if err != nil {
		t.Fatalf("entry() error = %v", err)
	}
	if got != "ran" {
		t.Errorf("entry() = %v, want %q", got, "ran")
	}

	if _, err := r.Entry("missing"); err == nil {
		t.Error("Entry() on a non-function should fail")
	}
}
