package loopback

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/boot"
	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// Func is a native capability: it receives arguments lowered to the dynamic
// representation and returns a result or an error.
type Func func(args []any) (any, error)

type hostEntry struct {
	fn    Func
	async bool
}

// Host is the in-process native side. It implements dispatch.Transport for
// the scripting side and owns the native half of the startup handshake.
type Host struct {
	mu        sync.RWMutex
	functions map[string]hostEntry
	env       map[string]string
	scripts   map[string]string
	signals   []string

	receiver  dispatch.Receiver
	notify    func(topic string)
	bootstrap wire.Handle

	log *zap.Logger
}

// NewHost creates an empty host.
func NewHost(log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		functions: make(map[string]hostEntry),
		env:       make(map[string]string),
		scripts:   make(map[string]string),
		log:       log,
	}
}

// Register adds a native capability under name. Async capabilities are
// announced as such during the handshake.
func (h *Host) Register(name string, async bool, fn Func) {
	h.mu.Lock()
	h.functions[name] = hostEntry{fn: fn, async: async}
	h.mu.Unlock()
}

// SetEnv records an environment variable announced during the handshake.
func (h *Host) SetEnv(key, value string) {
	h.mu.Lock()
	h.env[key] = value
	h.mu.Unlock()
}

// AddScript stores a text resource served by LoadText.
func (h *Host) AddScript(path, text string) {
	h.mu.Lock()
	h.scripts[path] = text
	h.mu.Unlock()
}

// Bind attaches the scripting side: the receiver for inbound calls and the
// notify hook delivering native signals (normally the sequencer's Signal).
func (h *Host) Bind(receiver dispatch.Receiver, notify func(topic string)) {
	h.mu.Lock()
	h.receiver = receiver
	h.notify = notify
	h.mu.Unlock()
}

// SetBootstrapHandle implements dispatch.BootstrapAware; the sequencer
// hands over the registration handle before announcing availability.
func (h *Host) SetBootstrapHandle(handle wire.Handle) {
	h.mu.Lock()
	h.bootstrap = handle
	h.mu.Unlock()
}

// Signals returns every handshake topic the scripting side has emitted, in
// order.
func (h *Host) Signals() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.signals...)
}

// InvokeSync implements dispatch.Transport. It runs the named capability
// on the calling goroutine and returns the reply envelope as wire text.
func (h *Host) InvokeSync(name string, args []wire.Value) (string, error) {
	fn, err := h.lookup(name)
	if err != nil {
		return encodeEnvelope(nil, err)
	}
	result, callErr := fn(exportArgs(args))
	return encodeEnvelope(result, callErr)
}

// InvokeAsync implements dispatch.Transport. The capability runs on a
// fresh goroutine and its outcome is delivered through the callback handle,
// disposing it with the call.
func (h *Host) InvokeAsync(name string, callback wire.Handle, args []wire.Value) error {
	fn, err := h.lookup(name)
	if err != nil {
		// Name resolution failures are still reported through the
		// callback, as a remote error.
		go h.deliver(callback, nil, err)
		return nil
	}

	exported := exportArgs(args)
	go func() {
		result, callErr := fn(exported)
		h.deliver(callback, result, callErr)
	}()
	return nil
}

// Signal implements dispatch.Transport: the scripting side announcing a
// handshake phase. Availability triggers the native registration pass.
func (h *Host) Signal(topic string) error {
	h.mu.Lock()
	h.signals = append(h.signals, topic)
	h.mu.Unlock()

	h.log.Debug("scripting signal", zap.String("topic", topic))

	if topic == boot.SignalRegistrationAvailable {
		return h.completeRegistration()
	}
	return nil
}

// LoadText implements dispatch.Transport.
func (h *Host) LoadText(path string) (string, error) {
	h.mu.RLock()
	text, ok := h.scripts[path]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("loopback: no text resource %q", path)
	}
	return text, nil
}

// completeRegistration is the native half of phase two: announce every
// capability and environment variable through the bootstrap handle, then
// signal completion.
func (h *Host) completeRegistration() error {
	h.mu.RLock()
	receiver := h.receiver
	notify := h.notify
	bootstrap := h.bootstrap
	names := make([]string, 0, len(h.functions))
	entries := make([]hostEntry, 0, len(h.functions))
	for name, e := range h.functions {
		names = append(names, name)
		entries = append(entries, e)
	}
	env := make(map[string]any, len(h.env))
	for k, v := range h.env {
		env[k] = v
	}
	h.mu.RUnlock()

	if receiver == nil {
		return errors.New("loopback: host not bound to a receiver")
	}
	if bootstrap.IsZero() {
		return errors.New("loopback: bootstrap handle not announced")
	}

	for i, name := range names {
		desc := map[string]any{"function": name, "async": entries[i].async}
		if _, err := receiver.InvokeByHandle(bootstrap, []any{desc}, false); err != nil {
			return fmt.Errorf("loopback: register %q: %w", name, err)
		}
	}
	if len(env) > 0 {
		if _, err := receiver.InvokeByHandle(bootstrap, []any{map[string]any{"env": env}}, false); err != nil {
			return fmt.Errorf("loopback: register env: %w", err)
		}
	}

	if notify != nil {
		notify(boot.SignalRegistrationComplete)
	}
	return nil
}

// deliver settles an asynchronous call through its callback handle. The
// payload crosses the text codec like any other wire traffic.
func (h *Host) deliver(callback wire.Handle, result any, callErr error) {
	h.mu.RLock()
	receiver := h.receiver
	h.mu.RUnlock()
	if receiver == nil {
		h.log.Error("async delivery with no receiver bound",
			zap.String("callback", callback.ID))
		return
	}

	text, err := encodeEnvelope(result, callErr)
	if err != nil {
		text, _ = encodeEnvelope(nil, err)
	}
	payload, err := wire.DecodeText(text)
	if err != nil {
		h.log.Error("async payload decode failed", zap.Error(err))
		return
	}

	if _, err := receiver.InvokeByHandle(callback, []any{payload}, true); err != nil {
		h.log.Error("async callback failed",
			zap.String("callback", callback.ID),
			zap.Error(err))
	}
}

func (h *Host) lookup(name string) (Func, error) {
	h.mu.RLock()
	entry, ok := h.functions[name]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("loopback: unknown native function %q", name)
	}
	return entry.fn, nil
}

func exportArgs(args []wire.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Export()
	}
	return out
}

// encodeEnvelope renders {result}|{error:{message}} as wire text. Host
// results are plain data, so no registrar is involved.
func encodeEnvelope(result any, callErr error) (string, error) {
	if callErr != nil {
		return wire.EncodeText(wire.Map(map[string]wire.Value{
			"error": wire.Map(map[string]wire.Value{
				"message": wire.String(callErr.Error()),
			}),
		}))
	}
	wv, err := wire.Marshal(result, nil)
	if err != nil {
		return "", err
	}
	return wire.EncodeText(wire.Map(map[string]wire.Value{"result": wv}))
}
