package models

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput    = errors.New("input message is required")
	ErrNotFound        = errors.New("conversation not found")
	ErrInvalidSession  = errors.New("invalid session")
	ErrUnsupportedRole = errors.New("unsupported message role")
)

// UpstreamError wraps a failure of the model client or the title generator.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure that is not a lookup miss.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
