// Package script runs the user-authored code attached to plugin
// definitions.
//
// A script receives a scope (a map of named values) and returns a map of
// bindings. Failures are reported in-band as a map holding a single
// "error" entry; Execute never panics and never returns a Go error.
package script

import (
	"context"

	"github.com/specialistvlad/nodegrid/internal/value"
)

// ErrorKey is the result key that marks a failed script run.
const ErrorKey = "error"

// Engine executes a script against a scope.
type Engine interface {
	Execute(ctx context.Context, code string, scope value.Map) value.Map
}

// Func adapts an ordinary function to the Engine interface.
type Func func(ctx context.Context, code string, scope value.Map) value.Map

// Execute calls f.
func (f Func) Execute(ctx context.Context, code string, scope value.Map) value.Map {
	return f(ctx, code, scope)
}

// Failure builds the in-band error result.
func Failure(msg string) value.Map {
	return value.Map{ErrorKey: value.Text(msg)}
}

// FailureMessage reports whether result is a failure and returns its
// message. Only a result whose sole binding is a non-null "error" fails; a
// script may still bind "error" next to other outputs.
func FailureMessage(result value.Map) (string, bool) {
	if len(result) != 1 {
		return "", false
	}
	v, ok := result[ErrorKey]
	if !ok || v.IsNull() {
		return "", false
	}
	return v.String(), true
}
