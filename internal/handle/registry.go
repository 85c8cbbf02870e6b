// Package handle owns the bidirectional table mapping in-process values to
// the opaque handle descriptors the other runtime holds.
//
// The table is explicit: value identity to handle (so registering the same
// value twice yields the same handle) and decimal id back to value. Neither
// side's garbage collector sees across the boundary, so entries live until
// the calling side passes the one-shot dispose flag; some handles are
// intentionally long-lived.
package handle

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"

	"github.com/suredesigns/alier-bridge/internal/wire"
)

var (
	// ErrMalformed reports a handle record that is not a well-formed
	// {id,type,name} descriptor. This is a protocol violation, distinct
	// from a stale reference.
	ErrMalformed = errors.New("handle: malformed descriptor")

	// ErrNotFound reports an id with no live value, or a live value whose
	// run-time category no longer matches the descriptor. Type mismatches
	// deliberately land here: a stale id must never resolve to a
	// wrong-typed value.
	ErrNotFound = errors.New("handle: not found")
)

// EventKind distinguishes registry lifecycle events.
type EventKind uint8

const (
	EventRegistered EventKind = iota
	EventReleased
)

// Event describes a registry lifecycle change.
type Event struct {
	Kind   EventKind
	Handle wire.Handle
	Active int
}

// Observer receives registry lifecycle events, e.g. for instrumentation.
type Observer interface {
	OnHandleEvent(Event)
}

type entry struct {
	value any
	key   any
}

// Registry assigns opaque, strictly monotonic decimal ids to values that
// must be referenced from the other side. All mutation is mutex-guarded; id
// allocation never reuses a prior id while it might still be referenced by
// an in-flight native call.
type Registry struct {
	mu        sync.Mutex
	next      uint64
	byID      map[string]entry
	byKey     map[any]wire.Handle
	observers []Observer
}

// New creates an empty registry. Ids start at 1; 0 is never assigned.
func New() *Registry {
	return &Registry{
		next:  1,
		byID:  make(map[string]entry),
		byKey: make(map[any]wire.Handle),
	}
}

// Register returns the existing handle when v was already registered (by
// identity), otherwise allocates the next decimal id, records both
// directions, and returns the new handle.
func (r *Registry) Register(v any) wire.Handle {
	key := identityKey(v)

	r.mu.Lock()
	if key != nil {
		if h, ok := r.byKey[key]; ok {
			r.mu.Unlock()
			return h
		}
	}

	h := wire.Handle{
		ID:   strconv.FormatUint(r.next, 10),
		Type: wire.TypeOf(v),
		Name: displayName(v),
	}
	r.next++
	r.byID[h.ID] = entry{value: v, key: key}
	if key != nil {
		r.byKey[key] = h
	}
	active := len(r.byID)
	obs := r.observers
	r.mu.Unlock()

	for _, o := range obs {
		o.OnHandleEvent(Event{Kind: EventRegistered, Handle: h, Active: active})
	}
	return h
}

// Resolve returns the value h refers to. A malformed descriptor raises
// ErrMalformed; a missing id or a run-time category drifted away from
// h.Type yields ErrNotFound.
func (r *Registry) Resolve(h wire.Handle) (any, error) {
	if err := validate(h); err != nil {
		return nil, err
	}

	r.mu.Lock()
	e, ok := r.byID[h.ID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNotFound, h.ID)
	}
	if got := wire.TypeOf(e.value); got != h.Type {
		return nil, fmt.Errorf("%w: id %s holds %s, descriptor says %s", ErrNotFound, h.ID, got, h.Type)
	}
	return e.value, nil
}

// Release removes both directions for h's id and reports whether an entry
// was removed. The descriptor's type is not checked: release is keyed by id
// alone.
func (r *Registry) Release(h wire.Handle) bool {
	r.mu.Lock()
	e, ok := r.byID[h.ID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, h.ID)
	if e.key != nil {
		delete(r.byKey, e.key)
	}
	active := len(r.byID)
	obs := r.observers
	r.mu.Unlock()

	for _, o := range obs {
		o.OnHandleEvent(Event{Kind: EventReleased, Handle: h, Active: active})
	}
	return true
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func validate(h wire.Handle) error {
	if h.ID == "" || h.Type == "" {
		return fmt.Errorf("%w: empty id or type", ErrMalformed)
	}
	for i := 0; i < len(h.ID); i++ {
		if h.ID[i] < '0' || h.ID[i] > '9' {
			return fmt.Errorf("%w: id %q is not decimal", ErrMalformed, h.ID)
		}
	}
	return nil
}

// addrKey is an address-derived identity token for values that are not
// comparable, or whose comparability is not identity (maps, funcs).
type addrKey struct {
	ptr  uintptr
	kind reflect.Kind
}

// identityKey computes a stable identity token for v, or nil when v cannot
// be tracked by identity (each registration then allocates a fresh handle).
func identityKey(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return addrKey{ptr: rv.Pointer(), kind: rv.Kind()}
	case reflect.Slice:
		// A slice has no single address; the backing array pointer plus
		// length is the closest stable token.
		return addrKey{ptr: rv.Pointer(), kind: reflect.Slice}
	}
	if rv.Comparable() {
		return v
	}
	return nil
}

func displayName(v any) string {
	switch x := v.(type) {
	case *wire.Callable:
		return x.Name
	case nil:
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
