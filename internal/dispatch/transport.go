package dispatch

import (
	"time"

	"github.com/suredesigns/alier-bridge/internal/wire"
)

// Transport is the narrow call interface the host platform layer supplies.
// Implementations move serialized data between the runtimes; they never see
// live values.
type Transport interface {
	// InvokeAsync delivers a request. The native side must eventually
	// invoke the callable referenced by callback exactly once with
	// {result} or {error:{message}}.
	InvokeAsync(name string, callback wire.Handle, args []wire.Value) error

	// InvokeSync delivers a request and blocks until the native side
	// returns JSON text of {result} or {error:{message}}, using the wire
	// sentinel strings for non-finite numbers and undefined.
	InvokeSync(name string, args []wire.Value) (string, error)

	// Signal delivers a one-shot topic notification. Used only during the
	// startup handshake.
	Signal(topic string) error

	// LoadText fetches a text resource, e.g. the application entry script.
	LoadText(path string) (string, error)
}

// Receiver is the inbound half a transport delivers native-originated calls
// to. The dispatcher implements it.
type Receiver interface {
	InvokeByHandle(h wire.Handle, args []any, dispose bool) (string, error)
}

// BootstrapAware is implemented by transports that need to learn the
// long-lived function-registration handle before the handshake announces
// availability.
type BootstrapAware interface {
	SetBootstrapHandle(h wire.Handle)
}

// Recorder observes call activity. The monitoring package implements it;
// a nil Recorder disables observation.
type Recorder interface {
	RecordCall(convention, name string, d time.Duration, err error)
	PendingCalls(delta int)
}
