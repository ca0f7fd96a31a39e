package session

import (
	"fmt"
	"strings"

	"github.com/bolasblack/gowfp/internal/engine"
)

// Stage names the step of AddFilter that failed.
type Stage string

const (
	StageParse   Stage = "parse"
	StageInstall Stage = "install"
)

// FilterError reports a rejected AddFilter call. Nothing was installed.
type FilterError struct {
	Text  string
	Name  string
	Stage Stage
	Err   error
}

func (e *FilterError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("add filter %q (%s): %s failed: %v", e.Name, e.Text, e.Stage, e.Err)
	}
	return fmt.Sprintf("add filter %q: %s failed: %v", e.Text, e.Stage, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// RemovalFailure is one filter that could not be removed.
type RemovalFailure struct {
	ID   engine.FilterID
	Name string
	Err  error
}

func (f RemovalFailure) String() string {
	if f.Name != "" {
		return fmt.Sprintf("%s (%s): %v", f.ID, f.Name, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.ID, f.Err)
}

// CleanupError is returned by Close when some filters stayed installed or
// the engine connection failed to close. Close still attempted every
// removal and released the connection.
type CleanupError struct {
	SessionID  string
	Failures   []RemovalFailure
	ReleaseErr error
}

func (e *CleanupError) Error() string {
	var parts []string
	for _, f := range e.Failures {
		parts = append(parts, f.String())
	}
	if e.ReleaseErr != nil {
		parts = append(parts, "release engine: "+e.ReleaseErr.Error())
	}
	return fmt.Sprintf("cleanup of session %s: %d filter(s) not removed: %s",
		e.SessionID, len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes every underlying error to errors.Is and errors.As.
func (e *CleanupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	if e.ReleaseErr != nil {
		errs = append(errs, e.ReleaseErr)
	}
	return errs
}
