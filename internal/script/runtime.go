// Package script embeds a sandboxed JavaScript runtime on the scripting
// side of the bridge. Scripts reach the native host through a "native"
// global backed by the dispatcher; functions a script passes across the
// boundary become registered callables that the native side can invoke
// by handle.
package script

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// Config defines script runtime configuration.
type Config struct {
	MaxCallStack  int  // Maximum JS call stack depth
	EnableConsole bool // Allow console.log/warn/error/info
}

// DefaultConfig returns the standard sandbox limits.
func DefaultConfig() Config {
	return Config{
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

// Runtime wraps a goja VM wired to a dispatcher.
type Runtime struct {
	vm         *goja.Runtime
	config     Config
	dispatcher *dispatch.Dispatcher
	log        *zap.Logger
	mu         sync.Mutex

	// callables maps script function objects to their bridge callables so
	// the same function always registers under the same handle.
	callables map[*goja.Object]*wire.Callable
}

// New creates a runtime bound to d.
func New(config Config, d *dispatch.Dispatcher, log *zap.Logger) (*Runtime, error) {
	if d == nil {
		return nil, fmt.Errorf("script: nil dispatcher")
	}
	if log == nil {
		log = zap.NewNop()
	}

	vm := goja.New()
	if config.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStack)
	}

	r := &Runtime{
		vm:         vm,
		config:     config,
		dispatcher: d,
		log:        log,
		callables:  make(map[*goja.Object]*wire.Callable),
	}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

// Run evaluates src, interrupting execution when ctx is cancelled.
func (r *Runtime) Run(ctx context.Context, src string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	val, err := r.vm.RunString(src)
	if err != nil {
		return nil, err
	}
	return r.exportValue(val), nil
}

// Entry looks up a global function and adapts it into a Go callable
// suitable as a startup entry point.
func (r *Runtime) Entry(name string) (func() (any, error), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, ok := goja.AssertFunction(r.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("script: global %q is not a function", name)
	}

	return func() (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		val, err := fn(goja.Undefined())
		if err != nil {
			return nil, err
		}
		return r.exportValue(val), nil
	}, nil
}

// setupGlobals removes dangerous globals and installs console and the
// native bridge object.
func (r *Runtime) setupGlobals() error {
	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		console.Set("log", r.makeConsoleFunc(zapcore.InfoLevel))
		console.Set("info", r.makeConsoleFunc(zapcore.InfoLevel))
		console.Set("warn", r.makeConsoleFunc(zapcore.WarnLevel))
		console.Set("error", r.makeConsoleFunc(zapcore.ErrorLevel))
		r.vm.Set("console", console)
	}

	native := r.vm.NewObject()
	native.Set("callSync", r.callSync)
	native.Set("callAsync", r.callAsync)
	return r.vm.Set("native", native)
}

// makeConsoleFunc creates a console function routed to the logger.
func (r *Runtime) makeConsoleFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}
		r.log.Log(level, msg)
		return goja.Undefined()
	}
}

// callSync implements native.callSync(name, ...args). Native errors
// surface as thrown JS exceptions.
func (r *Runtime) callSync(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) == 0 {
		panic(r.vm.ToValue("native.callSync needs a function name"))
	}
	name := call.Arguments[0].String()

	args, err := r.exportArgs(call.Arguments[1:])
	if err != nil {
		panic(r.vm.ToValue(err.Error()))
	}

	result, err := r.dispatcher.CallSync(name, args...)
	if err != nil {
		panic(r.vm.ToValue(err.Error()))
	}
	return r.toJS(result)
}

// toJS converts a bridge result into a script value.
func (r *Runtime) toJS(v any) goja.Value {
	if v == wire.Undefined {
		return goja.Undefined()
	}
	return r.vm.ToValue(v)
}

// callAsync implements native.callAsync(name, done, ...args) where done is
// invoked node-style as done(errorMessage, result) once the native side
// settles the call.
func (r *Runtime) callAsync(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 2 {
		panic(r.vm.ToValue("native.callAsync needs a function name and a completion callback"))
	}
	name := call.Arguments[0].String()
	done, ok := goja.AssertFunction(call.Arguments[1])
	if !ok {
		panic(r.vm.ToValue("native.callAsync completion must be a function"))
	}

	args, err := r.exportArgs(call.Arguments[2:])
	if err != nil {
		panic(r.vm.ToValue(err.Error()))
	}

	fut, err := r.dispatcher.CallAsync(name, args...)
	if err != nil {
		panic(r.vm.ToValue(err.Error()))
	}

	go func() {
		result, callErr := fut.Await(context.Background())

		r.mu.Lock()
		defer r.mu.Unlock()
		var errVal goja.Value = goja.Null()
		if callErr != nil {
			errVal = r.vm.ToValue(callErr.Error())
		}
		if _, err := done(goja.Undefined(), errVal, r.toJS(result)); err != nil {
			r.log.Warn("async completion callback failed",
				zap.String("function", name), zap.Error(err))
		}
	}()
	return goja.Undefined()
}

// exportArgs converts script call arguments to bridge values.
func (r *Runtime) exportArgs(args []goja.Value) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := r.exportArg(arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// exportArg converts one script value. Functions become callables so the
// native side can invoke them by handle; everything else exports to its
// plain Go form and flows through the codec's own vocabulary checks.
func (r *Runtime) exportArg(arg goja.Value) (any, error) {
	switch {
	case arg == nil, goja.IsUndefined(arg):
		return wire.Undefined, nil
	case goja.IsNull(arg):
		return nil, nil
	}

	if obj, ok := arg.(*goja.Object); ok {
		if fn, ok := goja.AssertFunction(arg); ok {
			return r.callableFor(obj, fn), nil
		}
	}
	return normalize(arg.Export()), nil
}

// normalize widens integer-valued script numbers to float64, recursing
// into exported objects and arrays. A JS number is always a double on the
// wire; goja exports whole numbers as int64, which the codec reserves for
// bigint rejection.
func normalize(v any) any {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	}
	return v
}

// callableFor returns the cached callable for a script function, creating
// and memoizing it on first sight so handle identity is stable.
func (r *Runtime) callableFor(obj *goja.Object, fn goja.Callable) *wire.Callable {
	if c, ok := r.callables[obj]; ok {
		return c
	}

	name := "anonymous"
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) && n.String() != "" {
		name = n.String()
	}

	c := &wire.Callable{
		Name: name,
		Fn: func(args []any) (any, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			jsArgs := make([]goja.Value, len(args))
			for i, a := range args {
				jsArgs[i] = r.vm.ToValue(a)
			}
			val, err := fn(goja.Undefined(), jsArgs...)
			if err != nil {
				return nil, err
			}
			return normalize(r.exportValue(val)), nil
		},
	}
	r.callables[obj] = c
	return c
}

// exportValue converts a goja value to its Go form.
func (r *Runtime) exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Close releases the runtime.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vm = nil
	r.callables = nil
	return nil
}
