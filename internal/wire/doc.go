// Package wire implements the value codec for the cross-runtime call bridge.
//
// Every value crossing the runtime boundary is reduced to a restricted
// vocabulary: strings, booleans, finite numbers, null, undefined, handle
// descriptors (for callables), ISO-8601 timestamps, keyed mappings, and
// ordered lists. Non-finite numbers and undefined travel as the sentinel
// strings "NaN", "Infinity", "-Infinity" and "undefined".
//
// The vocabulary is a tagged variant (Value) with exhaustive switches in
// Marshal and the text codec, so an unsupported category fails fast instead
// of silently falling through. Symbols and 64-bit integers are deliberately
// unrepresentable and raise ErrUnsupported.
//
// The package also carries the Base64 codec and the data-URL decomposer used
// by the surrounding framework for payload transfer.
package wire
