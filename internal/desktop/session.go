// Package desktop owns the isolated virtual desktop a task runs on.
package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/lockin/internal/platform"
)

// ErrDesktopCreation is wrapped in Session.Reason when isolation could not
// be set up and the session runs in degraded mode.
var ErrDesktopCreation = errors.New("virtual desktop creation failed")

// Session is the isolated desktop for one task.
type Session struct {
	Desktop   platform.DesktopID `json:"desktop"`
	Previous  platform.DesktopID `json:"previous"`
	CreatedAt time.Time          `json:"created_at"`
	// Reason explains degraded mode; nil when isolation is active.
	Reason error `json:"-"`
}

// Degraded reports whether the session has no desktop of its own.
func (s *Session) Degraded() bool {
	return s == nil || s.Desktop == platform.NoDesktop
}

// Windows is the enumerator surface the controller needs.
type Windows interface {
	WindowsOnDesktop(desktop platform.DesktopID) []platform.Window
}

// Backend is the platform surface the controller drives.
type Backend interface {
	platform.DesktopManager
	IsWindow(id platform.WindowID) bool
	CloseWindow(id platform.WindowID) error
	TerminateProcess(pid int, force bool) error
}

// Options configures a Controller.
type Options struct {
	// Disabled skips desktop creation; every session is degraded.
	Disabled bool
	// SwitchOnCreate activates the new desktop right after creating it.
	SwitchOnCreate bool
	// TeardownGrace is how long teardown waits for windows to close before
	// terminating their processes, and again for the desktop to empty.
	TeardownGrace time.Duration
	// SwitchSettle is the pause after switching desktops before enumerating.
	SwitchSettle time.Duration
	Logger       *slog.Logger
}

// Controller creates, populates and tears down sessions.
type Controller struct {
	backend Backend
	windows Windows
	opts    Options
	logger  *slog.Logger
}

// NewController creates a Controller.
func NewController(backend Backend, windows Windows, opts Options) *Controller {
	if opts.TeardownGrace <= 0 {
		opts.TeardownGrace = 500 * time.Millisecond
	}
	if opts.SwitchSettle < 0 {
		opts.SwitchSettle = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{backend: backend, windows: windows, opts: opts, logger: logger}
}

// CreateSession creates the isolated desktop. It never fails: when the OS
// refuses, the returned session is degraded and Reason says why.
func (c *Controller) CreateSession() *Session {
	s := &Session{
		Desktop:   platform.NoDesktop,
		Previous:  platform.NoDesktop,
		CreatedAt: time.Now(),
	}
	if c.opts.Disabled {
		s.Reason = fmt.Errorf("%w: isolation disabled in config", ErrDesktopCreation)
		return s
	}

	if cur, err := c.backend.CurrentDesktop(); err == nil {
		s.Previous = cur
	}

	id, err := c.backend.CreateDesktop()
	if err != nil {
		s.Reason = fmt.Errorf("%w: %w", ErrDesktopCreation, err)
		c.logger.Warn("virtual desktop unavailable, continuing without isolation", "error", err)
		return s
	}
	s.Desktop = id

	if c.opts.SwitchOnCreate {
		if err := c.backend.SwitchDesktop(id); err != nil {
			c.logger.Warn("failed to switch to task desktop", "desktop", id, "error", err)
		}
	}
	c.logger.Info("task desktop created", "desktop", id, "previous", s.Previous)
	return s
}

// MoveWindow puts win on the session desktop. Moving a window that is
// already there, or any move in degraded mode, is a no-op. An invalid
// handle yields an error wrapping platform.ErrWindowGone.
func (c *Controller) MoveWindow(win platform.WindowID, s *Session) error {
	if s.Degraded() {
		return nil
	}
	current, err := c.backend.WindowDesktop(win)
	if err != nil {
		if !c.backend.IsWindow(win) {
			return fmt.Errorf("window %s: %w", win, platform.ErrWindowGone)
		}
		current = platform.NoDesktop
	}
	if current == s.Desktop {
		return nil
	}
	if err := c.backend.MoveWindowToDesktop(win, s.Desktop); err != nil {
		if !c.backend.IsWindow(win) {
			return fmt.Errorf("window %s: %w", win, platform.ErrWindowGone)
		}
		return fmt.Errorf("failed to move window %s to desktop %d: %w", win, s.Desktop, err)
	}
	return nil
}

// IsWindowOnSession reports desktop membership. Always false when degraded.
func (c *Controller) IsWindowOnSession(win platform.WindowID, s *Session) bool {
	if s.Degraded() {
		return false
	}
	d, err := c.backend.WindowDesktop(win)
	return err == nil && d == s.Desktop
}

// WindowsOnSession lists the windows currently on the session desktop.
func (c *Controller) WindowsOnSession(s *Session) []platform.Window {
	if s.Degraded() {
		return nil
	}
	return c.windows.WindowsOnDesktop(s.Desktop)
}

// TeardownReport counts what teardown did.
type TeardownReport struct {
	Closed      int  `json:"closed"`
	AlreadyGone int  `json:"already_gone"`
	Terminated  int  `json:"terminated"`
	Remaining   int  `json:"remaining"`
	Removed     bool `json:"removed"`
}

// Teardown closes every window on the session desktop, escalates to process
// termination for windows that ignore the close request, returns to the
// previous desktop and removes the session desktop. Windows that vanish on
// their own count as success.
func (c *Controller) Teardown(ctx context.Context, s *Session) (TeardownReport, error) {
	var report TeardownReport
	if s.Degraded() {
		return report, nil
	}

	if err := c.backend.SwitchDesktop(s.Desktop); err != nil {
		c.logger.Debug("failed to switch to task desktop before teardown", "desktop", s.Desktop, "error", err)
	} else if err := sleep(ctx, c.opts.SwitchSettle); err != nil {
		return report, err
	}

	windows := c.WindowsOnSession(s)
	for _, w := range windows {
		if err := c.backend.CloseWindow(w.ID); err != nil {
			if errors.Is(err, platform.ErrWindowGone) || !c.backend.IsWindow(w.ID) {
				report.AlreadyGone++
				continue
			}
			c.logger.Debug("close request failed", "window", w.ID, "error", err)
			continue
		}
		report.Closed++
	}

	if len(windows) > 0 {
		if err := sleep(ctx, c.opts.TeardownGrace); err != nil {
			return report, err
		}
	}

	terminated := make(map[int]bool)
	for _, w := range windows {
		if !c.backend.IsWindow(w.ID) || w.PID <= 0 || terminated[w.PID] {
			continue
		}
		terminated[w.PID] = true
		if err := c.backend.TerminateProcess(w.PID, true); err != nil && !errors.Is(err, platform.ErrProcessGone) {
			c.logger.Warn("failed to terminate process during teardown", "pid", w.PID, "error", err)
			continue
		}
		report.Terminated++
	}

	report.Remaining = c.waitEmpty(ctx, s)

	fallback := s.Previous
	if fallback == platform.NoDesktop || fallback == s.Desktop {
		fallback = 0
	}
	if err := c.backend.SwitchDesktop(fallback); err != nil {
		c.logger.Debug("failed to switch back after teardown", "desktop", fallback, "error", err)
	}
	if err := c.backend.RemoveDesktop(s.Desktop, fallback); err != nil {
		return report, fmt.Errorf("failed to remove desktop %d: %w", s.Desktop, err)
	}
	report.Removed = true
	c.logger.Info("task desktop removed", "desktop", s.Desktop, "closed", report.Closed, "terminated", report.Terminated)
	s.Desktop = platform.NoDesktop
	return report, nil
}

// waitEmpty polls until the desktop has no windows or the grace expires and
// returns how many remain.
func (c *Controller) waitEmpty(ctx context.Context, s *Session) int {
	deadline := time.Now().Add(c.opts.TeardownGrace)
	for {
		remaining := len(c.WindowsOnSession(s))
		if remaining == 0 || !time.Now().Before(deadline) {
			return remaining
		}
		if sleep(ctx, 50*time.Millisecond) != nil {
			return remaining
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
