package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAccessDenied means the engine refused the caller for lack of
	// privilege (on Windows: not running elevated).
	ErrAccessDenied = errors.New("access denied by filtering engine (administrator privileges required)")
	// ErrAlreadyOpen is returned when opening a session that is already open.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrSessionNotOpen is returned by operations on a closed session or connection.
	ErrSessionNotOpen = errors.New("session not open")
	// ErrFilterNotFound is returned when deleting a filter that does not exist.
	ErrFilterNotFound = errors.New("filter not found")
	// ErrUnsupported is returned when the native engine is not available on
	// this platform.
	ErrUnsupported = errors.New("native filtering engine not supported on this platform")
)

// NativeError is a failed native call that does not map onto one of the
// sentinel errors.
type NativeError struct {
	Op   string // e.g. "add filter"
	Code uint32 // native status code
	Err  error
}

func (e *NativeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("native %s failed (code 0x%08x): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("native %s failed (code 0x%08x)", e.Op, e.Code)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// Code extracts the native status code from err, if it carries one.
func Code(err error) (uint32, bool) {
	var nerr *NativeError
	if errors.As(err, &nerr) {
		return nerr.Code, true
	}
	return 0, false
}
