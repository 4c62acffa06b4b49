package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the full stack trace.
//
// Usage in defer statements:
//
//	func schedulerLoop() {
//	    defer observability.RecoverPanic(logger, "refresh scheduler")
//	    // ... code that might panic
//	}
//
// After logging, the panic is NOT re-raised. The goroutine returns normally,
// which may leave its owner without a scheduler; callers that need to restart
// or signal completion should use RecoverPanicWithCallback.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, and then runs the
// callback so owners can close channels, release locks, or mark state failed.
func RecoverPanicWithCallback(logger *Logger, context string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}

// MustRecover converts a recovered panic value into an error, nil when no
// panic occurred. The stack trace is not included; use RecoverPanic when the
// trace matters.
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
