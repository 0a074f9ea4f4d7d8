package app

import "errors"

// ErrNotFound and related errors describe repository and runtime failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient storage failure")
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrUnauthenticated  = errors.New("unauthenticated")
)
