package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, the directory clients and the handlers.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrCycle      = errors.New("committee move would create a cycle")
	ErrInUse      = errors.New("still referenced")
	ErrProtected  = errors.New("protected")
	ErrDuplicate  = errors.New("already exists")
)

// CustomError is returned by middleware and rendered by the fiber error handler.
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}

// ExternalServiceError wraps any failure talking to a directory system.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Service, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsExternal reports whether err came from a directory system.
func IsExternal(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext)
}

// NotFoundf wraps ErrNotFound with a description of the missing entity.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}
