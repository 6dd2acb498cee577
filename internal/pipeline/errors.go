package pipeline

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Install while another run is active.
var ErrAlreadyRunning = errors.New("install already running")

// FatalError aborts the remaining steps of a run.
type FatalError struct {
	Step string
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(step string, format string, args ...any) error {
	return &FatalError{Step: step, Err: fmt.Errorf(format, args...)}
}

// IsFatal reports whether err aborted an install run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
