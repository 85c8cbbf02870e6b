package dispatch

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/handle"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// RemoteError wraps an {error:{message}} reported by the native side. Its
// message names the failing function alongside the remote text.
type RemoteError struct {
	Func    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("native call %q failed: %s", e.Func, e.Message)
}

// ErrProtocol reports a native reply that is not a {result}|{error}
// envelope.
var ErrProtocol = errors.New("dispatch: malformed native reply")

// Envelope field names fixed by the wire contract.
const (
	envResult  = "result"
	envError   = "error"
	envMessage = "message"
)

// Calling convention labels used for instrumentation.
const (
	ConventionSync  = "sync"
	ConventionAsync = "async"
)

// Dispatcher implements both calling conventions over one registry and
// transport.
type Dispatcher struct {
	transport Transport
	registry  *handle.Registry
	log       *zap.Logger
	recorder  Recorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithRecorder attaches a call activity recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a dispatcher over the given transport and registry.
func New(t Transport, reg *handle.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		registry:  reg,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry exposes the shared handle registry.
func (d *Dispatcher) Registry() *handle.Registry {
	return d.registry
}

// Transport exposes the underlying transport.
func (d *Dispatcher) Transport() Transport {
	return d.transport
}

// CallAsync invokes a native function asynchronously. The returned Future
// settles when the native side invokes the callback handle with {result} or
// {error}; if it never calls back, the future never settles and the
// callback handle stays registered (callers compose timeouts via
// Future.Await's context).
//
// Marshalling failures are structural and surface immediately.
func (d *Dispatcher) CallAsync(name string, args ...any) (*Future, error) {
	fut := NewFuture()
	start := time.Now()

	cb := &wire.Callable{
		Name: "settle:" + name,
		Fn: func(cbArgs []any) (any, error) {
			result, remoteErr := parsePayload(name, cbArgs)
			if remoteErr != nil {
				fut.Reject(remoteErr)
			} else {
				fut.Resolve(result)
			}
			if d.recorder != nil {
				d.recorder.PendingCalls(-1)
				d.recorder.RecordCall(ConventionAsync, name, time.Since(start), remoteErr)
			}
			return nil, nil
		},
	}
	cbHandle := d.registry.Register(cb)

	wireArgs, err := d.marshalArgs(args)
	if err != nil {
		d.registry.Release(cbHandle)
		return nil, err
	}

	if d.recorder != nil {
		d.recorder.PendingCalls(1)
	}
	if err := d.transport.InvokeAsync(name, cbHandle, wireArgs); err != nil {
		d.registry.Release(cbHandle)
		if d.recorder != nil {
			d.recorder.PendingCalls(-1)
		}
		return nil, fmt.Errorf("deliver async call %q: %w", name, err)
	}

	d.log.Debug("async call delivered",
		zap.String("function", name),
		zap.String("callback", cbHandle.ID))
	return fut, nil
}

// CallSync invokes a native function synchronously, blocking the caller
// until the native entry point returns. The native implementation must not
// call back into this side before returning.
func (d *Dispatcher) CallSync(name string, args ...any) (any, error) {
	wireArgs, err := d.marshalArgs(args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := d.transport.InvokeSync(name, wireArgs)
	if err != nil {
		return nil, fmt.Errorf("deliver sync call %q: %w", name, err)
	}

	decoded, err := wire.DecodeText(text)
	if err != nil {
		return nil, err
	}
	env, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProtocol, text)
	}

	result, remoteErr := splitEnvelope(name, env)
	if d.recorder != nil {
		d.recorder.RecordCall(ConventionSync, name, time.Since(start), remoteErr)
	}
	if remoteErr != nil {
		return nil, remoteErr
	}
	return result, nil
}

// InvokeByHandle is the native-callable receiver: it resolves h, invokes
// the referenced callable with args, and marshals the outcome back to an
// envelope text. When dispose is set the registry entry is released before
// the call, making the callable one-shot even if it re-enters.
func (d *Dispatcher) InvokeByHandle(h wire.Handle, args []any, dispose bool) (string, error) {
	v, err := d.registry.Resolve(h)
	if err != nil {
		return "", err
	}
	c, ok := v.(*wire.Callable)
	if !ok {
		return "", fmt.Errorf("%w: id %s is not callable", handle.ErrNotFound, h.ID)
	}
	if dispose {
		d.registry.Release(h)
	}

	ret, callErr := c.Invoke(args)
	return d.EncodeEnvelope(ret, callErr)
}

// EncodeEnvelope renders a {result}|{error:{message}} reply as wire text.
// Transports use it for the native-to-scripting return path as well.
func (d *Dispatcher) EncodeEnvelope(result any, callErr error) (string, error) {
	if callErr != nil {
		return wire.EncodeText(wire.Map(map[string]wire.Value{
			envError: wire.Map(map[string]wire.Value{
				envMessage: wire.String(callErr.Error()),
			}),
		}))
	}
	wv, err := wire.Marshal(result, d.registry)
	if err != nil {
		return "", err
	}
	return wire.EncodeText(wire.Map(map[string]wire.Value{envResult: wv}))
}

func (d *Dispatcher) marshalArgs(args []any) ([]wire.Value, error) {
	out := make([]wire.Value, len(args))
	for i, a := range args {
		wv, err := wire.Marshal(a, d.registry)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = wv
	}
	return out, nil
}

// parsePayload interprets the single argument the native side passes to a
// settlement callback.
func parsePayload(name string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	env, ok := args[0].(map[string]any)
	if !ok {
		return args[0], nil
	}
	return splitEnvelope(name, env)
}

func splitEnvelope(name string, env map[string]any) (any, error) {
	if raw, ok := env[envError]; ok && raw != nil {
		msg := "unknown error"
		if m, ok := raw.(map[string]any); ok {
			if s, ok := m[envMessage].(string); ok {
				msg = s
			}
		} else if s, ok := raw.(string); ok {
			msg = s
		}
		return nil, &RemoteError{Func: name, Message: msg}
	}
	return env[envResult], nil
}
