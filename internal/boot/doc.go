// Package boot orchestrates the startup handshake between the scripting
// runtime and the native side, then hands control to the application entry
// point.
//
// The handshake has four strictly ordered phases. First the scripting side
// exposes a single native-callable capability for registering exposed
// functions and signals availability. The native side then registers every
// capability the scripting side may call, including environment variables,
// and signals completion. The scripting side waits for that completion,
// installs system-event listeners, reads log-filter configuration and
// startup parameters from the native side, announces the prologue complete,
// runs the entry point, and finally announces the main function complete.
//
// No phase may be skipped or reordered, and a failed handshake is fatal to
// startup; there is no retry.
package boot
