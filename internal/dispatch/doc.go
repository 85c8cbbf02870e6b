// Package dispatch implements the two calling conventions of the
// cross-runtime call bridge on top of the handle registry and the wire
// codec.
//
// CallAsync registers a one-shot settlement callable, hands its handle to
// the native asynchronous entry point, and settles the returned Future when
// the native side calls back with {result} or {error}. CallSync blocks on
// the native synchronous entry point and parses its JSON reply. The inverse
// direction, InvokeByHandle, is how the native side invokes values the
// scripting side registered.
//
// Neither convention imposes a timeout or cancellation: a caller abandoning
// an async call simply ignores its Future, and the pending callback handle
// stays registered until the native side eventually calls back. The
// Recorder hook exists so that such pending calls are at least visible.
//
// Synchronous calls must not be re-entered: a native InvokeSync
// implementation that calls back into this side before returning deadlocks.
package dispatch
