package platform

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WindowID is a platform-neutral top-level window handle.
type WindowID uint64

// String formats the handle the way the CLI accepts it back.
func (id WindowID) String() string {
	return fmt.Sprintf("0x%x", uint64(id))
}

// ParseWindowID parses a handle in hex ("0x1a2b") or decimal form.
func ParseWindowID(s string) (WindowID, error) {
	s = strings.TrimSpace(s)
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid window handle %q", s)
	}
	return WindowID(v), nil
}

// DesktopID identifies a virtual desktop. Desktops are numbered from 0.
type DesktopID int

const (
	// NoDesktop marks an absent desktop (degraded mode or unknown membership).
	NoDesktop DesktopID = -1
	// AllDesktops is reported for sticky windows shown on every desktop.
	AllDesktops DesktopID = -2
)

// Window contains metadata for a top-level window.
type Window struct {
	ID        WindowID  `json:"id"`
	PID       int       `json:"pid"`
	Class     string    `json:"class"`
	Title     string    `json:"title"`
	Desktop   DesktopID `json:"desktop"`
	Minimized bool      `json:"minimized"`
}

// Process is a row of the OS process table.
type Process struct {
	PID       int       `json:"pid"`
	PPID      int       `json:"ppid"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
}

var (
	// ErrWindowGone reports a window handle the OS no longer knows about.
	ErrWindowGone = errors.New("window no longer exists")
	// ErrProcessGone reports a process that has already exited.
	ErrProcessGone = errors.New("process no longer exists")
	// ErrDesktopsUnsupported is returned when the window manager or OS
	// cannot create or address virtual desktops.
	ErrDesktopsUnsupported = errors.New("virtual desktops are not supported")
)

// WindowSystem covers the top-level window table.
type WindowSystem interface {
	// ListWindows returns all visible top-level windows.
	ListWindows() ([]Window, error)
	// WindowInfo re-reads a single window. Returns ErrWindowGone if the
	// handle is no longer valid.
	WindowInfo(id WindowID) (Window, error)
	IsWindow(id WindowID) bool
	FocusWindow(id WindowID) error
	MinimizeWindow(id WindowID) error
	RestoreWindow(id WindowID) error
	// CloseWindow asks the window to close. It does not wait.
	CloseWindow(id WindowID) error
}

// ProcessTable covers process enumeration and termination.
type ProcessTable interface {
	ListProcesses() ([]Process, error)
	ProcessAlive(pid int) bool
	// TerminateProcess asks the process to exit, or kills it when force
	// is set. Returns ErrProcessGone when the process has already exited.
	TerminateProcess(pid int, force bool) error
}

// DesktopManager covers virtual desktop operations.
type DesktopManager interface {
	CurrentDesktop() (DesktopID, error)
	DesktopCount() (int, error)
	CreateDesktop() (DesktopID, error)
	SwitchDesktop(id DesktopID) error
	// RemoveDesktop deletes a desktop, moving any remaining windows to fallback.
	RemoveDesktop(id, fallback DesktopID) error
	MoveWindowToDesktop(win WindowID, id DesktopID) error
	WindowDesktop(win WindowID) (DesktopID, error)
}

// Backend abstracts window, process and desktop operations across platforms.
type Backend interface {
	WindowSystem
	ProcessTable
	DesktopManager
	Disconnect()
}
