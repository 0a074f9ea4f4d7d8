package app

import "fmt"

// FailureKind classifies a business-rule failure.
type FailureKind string

// FailureKind values returned by engine operations.
const (
	FailureNotFound       FailureKind = "not_found"
	FailureScopeViolation FailureKind = "scope_violation"
	FailureInvalidValue   FailureKind = "invalid_value"
	FailureNotAMember     FailureKind = "not_a_member"
	FailureInvalidTitle   FailureKind = "invalid_title"
)

// Failure describes why an operation was rejected.
type Failure struct {
	Kind    FailureKind `json:"code"`
	Message string      `json:"message"`
}

// Outcome is either a successful payload or a failure; never both.
type Outcome[T any] struct {
	value   T
	failure *Failure
}

// Succeed wraps value in a successful outcome.
func Succeed[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Fail builds a failed outcome with a formatted message.
func Fail[T any](kind FailureKind, format string, args ...any) Outcome[T] {
	return FailWith[T](Failure{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// FailWith builds a failed outcome from an existing failure.
func FailWith[T any](f Failure) Outcome[T] {
	return Outcome[T]{failure: &f}
}

// OK reports whether the outcome carries a payload.
func (o Outcome[T]) OK() bool {
	return o.failure == nil
}

// Value returns the payload. Calling Value on a failed outcome panics.
func (o Outcome[T]) Value() T {
	if o.failure != nil {
		panic(fmt.Sprintf("app: Value called on failed outcome (%s: %s)", o.failure.Kind, o.failure.Message))
	}
	return o.value
}

// Failure returns the failure details and true when the outcome failed.
func (o Outcome[T]) Failure() (Failure, bool) {
	if o.failure == nil {
		return Failure{}, false
	}
	return *o.failure, true
}
