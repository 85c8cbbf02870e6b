// Package loopback provides an in-process native host implementing the
// bridge transport. It backs the demo binary and the integration tests: a
// function table plays the native side, and the handshake's native half is
// driven synchronously off the availability signal.
//
// Payloads still round-trip through the wire text codec, so loopback calls
// observe the same value vocabulary (and the same floating-point fidelity
// limits) as an out-of-process host.
package loopback
