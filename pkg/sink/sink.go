// Package sink defines the contract through which lock state transitions are delivered
// to the host application, and the process-wide, write-once registration of the
// active sink.
package sink

import (
	"errors"
	"reflect"
	"sync/atomic"
)

const (
	// Topic is the event name of every lock state transition.
	Topic = "window_screen_lock_status://change_session_status"

	PayloadLock   = "lock"
	PayloadUnlock = "unlock"
)

// ErrAlreadyRegistered is returned when a Registry already holds a sink.
var ErrAlreadyRegistered = errors.New("sink already registered")

// Sink receives named events with a string payload.
// Emit errors are not retried by callers in this module.
type Sink interface {
	Emit(topic string, payload string) error
}

// Func adapts a function to the Sink interface.
type Func func(topic string, payload string) error

func (f Func) Emit(topic string, payload string) error {
	return f(topic, payload)
}

type holder struct {
	sink Sink
}

// Registry is a write-once cell holding a Sink.
// Register succeeds at most once; Get may be called concurrently with it and
// reports false until the registration is published.
//
// The zero value is an empty Registry.
type Registry struct {
	p atomic.Pointer[holder]
}

// Default is the process-wide registry.
var Default Registry

// ErrNilSink is returned by Register for a nil sink, including a nil pointer or
// func wrapped in the Sink interface.
var ErrNilSink = errors.New("sink cannot be nil")

// Register stores s. It returns ErrAlreadyRegistered if a sink was registered before.
func (r *Registry) Register(s Sink) error {
	if isNil(s) {
		return ErrNilSink
	}

	if !r.p.CompareAndSwap(nil, &holder{sink: s}) {
		return ErrAlreadyRegistered
	}

	return nil
}

// Get returns the registered sink, or false if nothing has been registered yet.
func (r *Registry) Get() (Sink, bool) {
	h := r.p.Load()
	if h == nil {
		return nil, false
	}

	return h.sink, true
}

func isNil(s Sink) bool {
	if s == nil {
		return true
	}

	switch v := reflect.ValueOf(s); v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
