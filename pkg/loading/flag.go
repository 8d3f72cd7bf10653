// Package loading provides an observable boolean cell used to signal that an
// asynchronous operation is in flight.
package loading

import "sync"

// Flag is a caller-owned loading indicator. The zero value is ready to use
// and a nil *Flag ignores every call.
type Flag struct {
	mu        sync.Mutex
	value     bool
	observers []func(bool)
}

// New returns a Flag with the given observers attached.
func New(observers ...func(bool)) *Flag {
	f := &Flag{}
	for _, o := range observers {
		f.Observe(o)
	}
	return f
}

// Value reports the current state.
func (f *Flag) Value() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set stores v and notifies observers when the state changes.
func (f *Flag) Set(v bool) {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.value == v {
		f.mu.Unlock()
		return
	}
	f.value = v
	observers := append([]func(bool)(nil), f.observers...)
	f.mu.Unlock()

	for _, o := range observers {
		o(v)
	}
}

// Observe registers fn to be called synchronously on every change.
func (f *Flag) Observe(fn func(bool)) {
	if f == nil || fn == nil {
		return
	}
	f.mu.Lock()
	f.observers = append(f.observers, fn)
	f.mu.Unlock()
}

// Acquire sets the flag and returns a release func that clears it.
// Release is idempotent, so it is safe to both defer it and call it early.
//
// Concurrent holders of one flag are not counted: the first release clears
// it.
func (f *Flag) Acquire() (release func()) {
	f.Set(true)
	var once sync.Once
	return func() {
		once.Do(func() { f.Set(false) })
	}
}
