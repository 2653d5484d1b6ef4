package logging

import (
	"fmt"
	"runtime/debug"
	"time"
)

// RecoveryHandler handles panics with logging, so a panicking generation
// goroutine cannot take the daemon down.
type RecoveryHandler struct {
	Component string
	OnPanic   func(err interface{}, stack string)
}

// NewRecoveryHandler creates a recovery handler for a component
func NewRecoveryHandler(component string) *RecoveryHandler {
	return &RecoveryHandler{Component: component}
}

// Wrap executes fn with panic recovery
func (r *RecoveryHandler) Wrap(fn func()) {
	defer r.recover()
	fn()
}

// WrapError executes fn with panic recovery, returning error on panic
func (r *RecoveryHandler) WrapError(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = r.handlePanic(rec, string(debug.Stack()))
		}
	}()
	return fn()
}

func (r *RecoveryHandler) recover() {
	if rec := recover(); rec != nil {
		r.handlePanic(rec, string(debug.Stack()))
	}
}

func (r *RecoveryHandler) handlePanic(rec interface{}, stack string) error {
	emit(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     LevelError,
		Component: r.Component,
		Event:     "panic_recovered",
		Error:     fmt.Sprintf("%v", rec),
		Extra: map[string]interface{}{
			"stack": stack,
		},
	})
	if r.OnPanic != nil {
		r.OnPanic(rec, stack)
	}
	return fmt.Errorf("panic in %s: %v", r.Component, rec)
}
