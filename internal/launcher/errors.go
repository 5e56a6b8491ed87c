package launcher

import (
	"errors"
	"fmt"
)

// ErrLaunchFailure matches every *LaunchError via errors.Is.
var ErrLaunchFailure = errors.New("launch failure")

// ErrNotFound is wrapped when no fallback step can resolve the executable.
var ErrNotFound = errors.New("executable not found")

// LaunchError reports an executable that could not be resolved or a process
// the OS refused to create.
type LaunchError struct {
	Command string
	Op      string // "resolve" or "start"
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLaunchFailure) match any LaunchError.
func (e *LaunchError) Is(target error) bool {
	return target == ErrLaunchFailure
}
