package resolve

import (
	"errors"
	"fmt"
)

// State is a step of launch resolution.
type State int

const (
	Starting State = iota
	WindowsPending
	LauncherChildSearch
	Resolved
	Unresolved
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case WindowsPending:
		return "windows_pending"
	case LauncherChildSearch:
		return "launcher_child_search"
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool {
	return s == Resolved || s == Unresolved
}

var (
	// ErrResolutionTimeout means no window appeared for the tracked pid in time.
	ErrResolutionTimeout = errors.New("no window appeared before the resolution timeout")
	// ErrNoLauncherChild means the process exited cleanly without windows and
	// no matching child process started within the recency window.
	ErrNoLauncherChild = errors.New("process exited without windows and no launcher child was found")
	// ErrExitedWithoutWindow means the process failed before showing a window.
	ErrExitedWithoutWindow = errors.New("process exited with an error before showing a window")
)

// Error describes an Unresolved outcome.
type Error struct {
	PID      int
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pid %d: %v", e.PID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
