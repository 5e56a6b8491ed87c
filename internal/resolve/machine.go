// Package resolve reconciles "process started" with "windows appeared".
//
// A launch moves through Starting, WindowsPending and then Resolved once a
// window owned by the process (or a descendant) is observed. A process that
// exits cleanly without any window is treated as a launcher shim: the
// machine enters LauncherChildSearch, looks for a freshly started process
// with the same executable name, re-targets to it and waits again. Every
// other outcome ends in Unresolved.
package resolve

import (
	"context"
	"sort"
	"time"

	"github.com/1broseidon/lockin/internal/enumerate"
	"github.com/1broseidon/lockin/internal/platform"
)

// clockSlack widens the recency window backwards to absorb process start
// times that are only second-accurate (/proc on Linux).
const clockSlack = time.Second

// Config holds the resolution timings.
type Config struct {
	PollInterval  time.Duration
	Timeout       time.Duration
	RecencyWindow time.Duration
	// TitleFallback resolves to any window whose title matches the program
	// name when the timeout expires.
	TitleFallback bool
}

// DefaultConfig returns the default timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		Timeout:       15 * time.Second,
		RecencyWindow: 5 * time.Second,
	}
}

// Process is the launched process as seen by the machine.
type Process interface {
	PID() int
	ExitCode() (int, bool)
}

// Windows is the window query surface the machine polls.
type Windows interface {
	WindowsOwnedByProcess(pid int, includeChildren bool) []platform.Window
	PickMain(windows []platform.Window, hint string) (platform.Window, bool)
	FindByHint(hint string) (platform.Window, bool)
}

// Processes lists candidate launcher children.
type Processes interface {
	ListProcesses() ([]platform.Process, error)
}

// Target is one launch to resolve.
type Target struct {
	Process    Process
	Command    string
	LaunchedAt time.Time
	// Exclude skips child candidates, e.g. pids already tracked elsewhere.
	Exclude func(pid int) bool
}

// Result is the outcome of Run.
type Result struct {
	State       State
	PID         int
	OriginalPID int
	Retargeted  bool
	Windows     []platform.Window
	MainWindow  platform.Window
	HasMain     bool
}

// Transition is reported to the observer on every state change.
type Transition struct {
	From State
	To   State
	PID  int
}

// Machine runs launch resolutions. It is safe for concurrent use.
type Machine struct {
	cfg      Config
	windows  Windows
	procs    Processes
	observer func(Transition)
}

// Option configures a Machine.
type Option func(*Machine)

// WithObserver registers a transition callback.
func WithObserver(fn func(Transition)) Option {
	return func(m *Machine) {
		m.observer = fn
	}
}

// New creates a Machine. Zero config fields take their defaults.
func New(cfg Config, windows Windows, procs Processes, opts ...Option) *Machine {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = def.RecencyWindow
	}
	m := &Machine{cfg: cfg, windows: windows, procs: procs}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective timings.
func (m *Machine) Config() Config {
	return m.cfg
}

// Run drives one launch to Resolved or Unresolved. An Unresolved result
// comes with a *Error. Cancelling ctx stops the loop and returns ctx.Err()
// without reaching a terminal state. The process is never killed here.
func (m *Machine) Run(ctx context.Context, t Target) (Result, error) {
	res := Result{
		State:       Starting,
		PID:         t.Process.PID(),
		OriginalPID: t.Process.PID(),
	}
	if t.LaunchedAt.IsZero() {
		t.LaunchedAt = time.Now()
	}
	m.transition(&res, WindowsPending)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(m.cfg.Timeout)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if windows := m.windows.WindowsOwnedByProcess(res.PID, true); len(windows) > 0 {
			m.resolve(&res, windows, t.Command)
			return res, nil
		}

		if !res.Retargeted {
			if code, exited := t.Process.ExitCode(); exited {
				if code != 0 {
					return m.fail(&res, code, ErrExitedWithoutWindow)
				}
				if res.State != LauncherChildSearch {
					m.transition(&res, LauncherChildSearch)
				}
				if child, ok := m.findLauncherChild(t); ok {
					res.PID = child.PID
					res.Retargeted = true
					m.transition(&res, WindowsPending)
					deadline = time.Now().Add(m.cfg.Timeout)
					continue
				}
				if time.Now().After(t.LaunchedAt.Add(m.cfg.RecencyWindow)) {
					return m.fail(&res, code, ErrNoLauncherChild)
				}
			}
		}

		if !time.Now().Before(deadline) {
			if m.cfg.TitleFallback {
				if w, ok := m.windows.FindByHint(t.Command); ok {
					if w.PID > 0 && w.PID != res.PID {
						res.PID = w.PID
						res.Retargeted = true
					}
					m.resolve(&res, []platform.Window{w}, t.Command)
					return res, nil
				}
			}
			return m.fail(&res, 0, ErrResolutionTimeout)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Machine) resolve(res *Result, windows []platform.Window, hint string) {
	res.Windows = windows
	res.MainWindow, res.HasMain = m.windows.PickMain(windows, hint)
	m.transition(res, Resolved)
}

func (m *Machine) fail(res *Result, code int, cause error) (Result, error) {
	m.transition(res, Unresolved)
	return *res, &Error{PID: res.PID, ExitCode: code, Err: cause}
}

func (m *Machine) transition(res *Result, to State) {
	from := res.State
	res.State = to
	if m.observer != nil {
		m.observer(Transition{From: from, To: to, PID: res.PID})
	}
}

// findLauncherChild returns the earliest-started process whose executable
// base name matches the requested program and whose start time falls in
// the recency window.
func (m *Machine) findLauncherChild(t Target) (platform.Process, bool) {
	want := enumerate.NormalizeHint(t.Command)
	if want == "" {
		return platform.Process{}, false
	}
	procs, err := m.procs.ListProcesses()
	if err != nil {
		return platform.Process{}, false
	}

	lo := t.LaunchedAt.Add(-clockSlack)
	hi := t.LaunchedAt.Add(m.cfg.RecencyWindow)
	original := t.Process.PID()

	var candidates []platform.Process
	for _, p := range procs {
		if p.PID == original || p.StartTime.IsZero() {
			continue
		}
		if enumerate.NormalizeHint(p.Name) != want {
			continue
		}
		if p.StartTime.Before(lo) || p.StartTime.After(hi) {
			continue
		}
		if t.Exclude != nil && t.Exclude(p.PID) {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return platform.Process{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].StartTime.Equal(candidates[j].StartTime) {
			return candidates[i].PID < candidates[j].PID
		}
		return candidates[i].StartTime.Before(candidates[j].StartTime)
	})
	return candidates[0], true
}
