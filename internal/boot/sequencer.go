package boot

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/logging"
	"github.com/suredesigns/alier-bridge/internal/phase"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// Handshake signal names. These literals are the wire contract with the
// native side and must not be altered.
const (
	SignalRegistrationAvailable = "FUNCTION_REGISTRATION_AVAILABLE"
	SignalRegistrationComplete  = "FUNCTION_REGISTRATION_COMPLETE"
	SignalPrologueComplete      = "PROLOGUE_COMPLETE"
	SignalMainComplete          = "MAIN_FUNCTION_COMPLETE"
)

// Native functions the sequencer reads startup state from once
// registration has completed. The native side registers them in phase two.
const (
	FuncGetLogSettings       = "getLogSettings"
	FuncGetStartupParameters = "getStartupParameters"
	FuncSetSystemListener    = "setSystemEventListener"
)

// RegistrationFunctionName labels the single capability exposed before the
// handshake: registering a native function or environment variable.
const RegistrationFunctionName = "registerExposedFunction"

// ErrEntryNotCallable reports an application entry point that is not one of
// the supported callable shapes. It is structural and aborts the handshake.
var ErrEntryNotCallable = errors.New("boot: entry point is not callable")

// State is the sequencer lifecycle.
type State uint8

const (
	// StateInit is the freshly constructed context, before any phase.
	StateInit State = iota
	// StateReady means registration completed and startup state was read.
	StateReady
	// StateRunning means the entry point was dispatched.
	StateRunning
)

// FunctionInfo describes a native capability registered during phase two.
type FunctionInfo struct {
	Name  string
	Async bool
}

// Message is an internal notification translated from a native system
// event.
type Message struct {
	Topic   string
	Payload any
}

// Config assembles a Sequencer. The bootstrap context is explicitly
// constructed and owned by whatever composes the application; there is no
// package-level singleton.
type Config struct {
	Dispatcher  *dispatch.Dispatcher
	Coordinator *phase.Coordinator
	Logger      *logging.Logger
	// EventBuffer bounds the internal message queue; 0 means a default.
	EventBuffer int
}

// Sequencer drives the startup handshake and owns the state the native side
// registers during it.
type Sequencer struct {
	dispatcher  *dispatch.Dispatcher
	coordinator *phase.Coordinator
	log         *logging.Logger

	mu        sync.Mutex
	state     State
	env       map[string]string
	functions map[string]FunctionInfo
	params    map[string]any

	events chan Message
}

// New creates a sequencer in StateInit.
func New(cfg Config) (*Sequencer, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("boot: dispatcher is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("boot: coordinator is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNop()
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Sequencer{
		dispatcher:  cfg.Dispatcher,
		coordinator: cfg.Coordinator,
		log:         log,
		env:         make(map[string]string),
		functions:   make(map[string]FunctionInfo),
		params:      make(map[string]any),
		events:      make(chan Message, buf),
	}, nil
}

// State returns the current lifecycle state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Env returns the environment variable registered under key.
func (s *Sequencer) Env(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.env[key]
	return v, ok
}

// Function returns the descriptor of a registered native capability.
func (s *Sequencer) Function(name string) (FunctionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.functions[name]
	return f, ok
}

// Param returns a startup parameter read from the native side.
func (s *Sequencer) Param(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.params[key]
	return v, ok
}

// Events exposes the internal messages translated from native system
// events.
func (s *Sequencer) Events() <-chan Message {
	return s.events
}

// Dispatcher exposes the call dispatcher for application code.
func (s *Sequencer) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Coordinator exposes the phase coordinator, e.g. to compose custom
// rendezvous signals.
func (s *Sequencer) Coordinator() *phase.Coordinator {
	return s.coordinator
}

// Signal delivers a native-originated handshake signal to the coordinator.
// Transports route their inbound signal notifications here.
func (s *Sequencer) Signal(topic string) {
	s.coordinator.Signal(topic)
}

// Run drives the four handshake phases and dispatches entry. It blocks
// until the entry point returns. A failed handshake is fatal: no phase is
// retried.
func (s *Sequencer) Run(ctx context.Context, entry any) error {
	s.mu.Lock()
	if s.state != StateInit {
		s.mu.Unlock()
		return fmt.Errorf("boot: handshake already ran (state %d)", s.state)
	}
	s.mu.Unlock()

	// Validate the entry shape before touching the wire: a non-callable
	// entry point aborts the handshake without ever signalling.
	runEntry, err := s.entryRunner(entry)
	if err != nil {
		return err
	}

	transport := s.dispatcher.Transport()
	registry := s.dispatcher.Registry()

	// Phase one: expose the registration capability, then announce it.
	// This handle is intentionally long-lived; it is never released.
	regHandle := registry.Register(&wire.Callable{
		Name: RegistrationFunctionName,
		Fn:   s.registerCapability,
	})
	if aware, ok := transport.(dispatch.BootstrapAware); ok {
		aware.SetBootstrapHandle(regHandle)
	}

	// The waiter must be queued before the announcement: the native side
	// may complete registration synchronously, and completion signals are
	// not buffered.
	done := s.coordinator.Wait(SignalRegistrationComplete)

	s.log.Info("function registration available", zap.String("handle", regHandle.ID))
	if err := transport.Signal(SignalRegistrationAvailable); err != nil {
		return fmt.Errorf("boot: announce registration: %w", err)
	}

	// Phase two is native-driven; phase three is waiting it out.
	if _, err := done.Await(ctx); err != nil {
		return fmt.Errorf("boot: awaiting registration completion: %w", err)
	}
	s.log.Info("function registration complete",
		zap.Int("functions", len(s.functions)),
		zap.Int("env", len(s.env)))

	// Phase four: main dispatch.
	if err := s.installSystemListener(); err != nil {
		return err
	}
	s.applyLogSettings()
	s.readStartupParameters()

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()

	// The prologue signal decouples the native side from application
	// logic: it fires once the entry point is scheduled, before it runs.
	if err := transport.Signal(SignalPrologueComplete); err != nil {
		return fmt.Errorf("boot: announce prologue: %w", err)
	}

	s.mu.Lock()
	s.state = StateRunning
	s.mu.Unlock()

	if err := runEntry(); err != nil {
		return fmt.Errorf("boot: entry point: %w", err)
	}

	if err := transport.Signal(SignalMainComplete); err != nil {
		return fmt.Errorf("boot: announce main complete: %w", err)
	}
	return nil
}

// entryRunner maps the supported entry-point shapes onto a uniform runner.
// Iterator-producing shapes are drained to completion; their produced
// values are not used.
func (s *Sequencer) entryRunner(entry any) (func() error, error) {
	switch fn := entry.(type) {
	case func(*Sequencer) error:
		return func() error { return fn(s) }, nil
	case func(*Sequencer) (any, error):
		return func() error {
			_, err := fn(s)
			return err
		}, nil
	case func(*Sequencer) iter.Seq[any]:
		return func() error {
			for range fn(s) {
			}
			return nil
		}, nil
	case func(*Sequencer) iter.Seq2[any, error]:
		return func() error {
			for _, err := range fn(s) {
				if err != nil {
					return err
				}
			}
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrEntryNotCallable, entry)
	}
}

// registerCapability is the single native-callable exposed before the
// handshake. It accepts either a function descriptor or an environment
// block:
//
//	{"function": "name", "async": true}
//	{"env": {"KEY": "value", ...}}
func (s *Sequencer) registerCapability(args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("boot: registration requires a descriptor")
	}

	switch desc := args[0].(type) {
	case string:
		s.addFunction(FunctionInfo{Name: desc})
		return nil, nil
	case map[string]any:
		if env, ok := desc["env"].(map[string]any); ok {
			s.addEnv(env)
			return nil, nil
		}
		name, ok := desc["function"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("boot: registration descriptor missing function name: %v", desc)
		}
		async, _ := desc["async"].(bool)
		s.addFunction(FunctionInfo{Name: name, Async: async})
		return nil, nil
	default:
		return nil, fmt.Errorf("boot: unsupported registration descriptor %T", args[0])
	}
}

func (s *Sequencer) addFunction(f FunctionInfo) {
	s.mu.Lock()
	s.functions[f.Name] = f
	s.mu.Unlock()
	s.log.Debug("native function registered",
		zap.String("function", f.Name),
		zap.Bool("async", f.Async))
}

func (s *Sequencer) addEnv(env map[string]any) {
	s.mu.Lock()
	for k, v := range env {
		s.env[k] = fmt.Sprint(v)
	}
	s.mu.Unlock()
}

// installSystemListener hands the native side a long-lived callable that
// translates system events into internal messages.
func (s *Sequencer) installSystemListener() error {
	if _, ok := s.Function(FuncSetSystemListener); !ok {
		s.log.Debug("native side registered no system listener hook")
		return nil
	}

	listener := &wire.Callable{
		Name: "systemEvent",
		Fn: func(args []any) (any, error) {
			msg := Message{Topic: "system"}
			if len(args) > 0 {
				if topic, ok := args[0].(string); ok {
					msg.Topic = topic
					if len(args) > 1 {
						msg.Payload = args[1]
					}
				} else {
					msg.Payload = args[0]
				}
			}
			select {
			case s.events <- msg:
			default:
				s.log.Warn("system event dropped, queue full",
					zap.String("topic", msg.Topic))
			}
			return nil, nil
		},
	}

	if _, err := s.dispatcher.CallSync(FuncSetSystemListener, listener); err != nil {
		return fmt.Errorf("boot: install system listener: %w", err)
	}
	return nil
}

// applyLogSettings reads the native log filter and retunes the logger.
// Absence of the capability, or a malformed reply, leaves the filter as
// configured locally.
func (s *Sequencer) applyLogSettings() {
	if _, ok := s.Function(FuncGetLogSettings); !ok {
		return
	}
	reply, err := s.dispatcher.CallSync(FuncGetLogSettings)
	if err != nil {
		s.log.Warn("reading native log settings failed", zap.Error(err))
		return
	}
	settings, ok := reply.(map[string]any)
	if !ok {
		return
	}
	if level, ok := settings["level"].(string); ok && level != "" {
		if err := s.log.SetLevel(level); err != nil {
			s.log.Warn("native log level rejected",
				zap.String("level", level), zap.Error(err))
		}
	}
}

// readStartupParameters fetches the startup parameter block.
func (s *Sequencer) readStartupParameters() {
	if _, ok := s.Function(FuncGetStartupParameters); !ok {
		return
	}
	reply, err := s.dispatcher.CallSync(FuncGetStartupParameters)
	if err != nil {
		s.log.Warn("reading startup parameters failed", zap.Error(err))
		return
	}
	params, ok := reply.(map[string]any)
	if !ok {
		return
	}
	s.mu.Lock()
	for k, v := range params {
		s.params[k] = v
	}
	s.mu.Unlock()
}
