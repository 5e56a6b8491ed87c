// Package enumerate answers read-only questions about the OS window table:
// which windows a process owns, which windows sit on a desktop, and which
// of a process's windows is its main window.
package enumerate

import (
	"log/slog"
	"strings"

	"github.com/1broseidon/lockin/internal/platform"
)

// Source is the slice of the platform backend the enumerator reads.
type Source interface {
	ListWindows() ([]platform.Window, error)
	ListProcesses() ([]platform.Process, error)
}

// Enumerator queries a Source. Query failures are logged and reported as
// empty results.
type Enumerator struct {
	src    Source
	rules  []Rule
	logger *slog.Logger
}

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithRules replaces the main-window heuristics.
func WithRules(rules ...Rule) Option {
	return func(e *Enumerator) {
		e.rules = rules
	}
}

// WithLogger sets the logger used for swallowed query failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enumerator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Enumerator over src.
func New(src Source, opts ...Option) *Enumerator {
	e := &Enumerator{
		src:    src,
		rules:  DefaultRules(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WindowsOwnedByProcess returns visible top-level windows owned by pid, or by
// any of its descendants when includeChildren is set. Helper windows (IME,
// tooltips) are excluded.
func (e *Enumerator) WindowsOwnedByProcess(pid int, includeChildren bool) []platform.Window {
	if pid <= 0 {
		return nil
	}
	owners := map[int]bool{pid: true}
	if includeChildren {
		owners = e.Descendants(pid)
	}

	windows, err := e.src.ListWindows()
	if err != nil {
		e.logger.Debug("window enumeration failed", "pid", pid, "error", err)
		return nil
	}

	var out []platform.Window
	for _, w := range windows {
		if !owners[w.PID] || containsFold(skipClasses, w.Class) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Descendants returns pid and every process below it in the parent tree.
// A child that started before its parent is a recycled pid and is skipped.
func (e *Enumerator) Descendants(pid int) map[int]bool {
	out := map[int]bool{pid: true}
	procs, err := e.src.ListProcesses()
	if err != nil {
		e.logger.Debug("process enumeration failed", "pid", pid, "error", err)
		return out
	}

	byPID := make(map[int]platform.Process, len(procs))
	children := make(map[int][]int)
	for _, p := range procs {
		byPID[p.PID] = p
		if p.PPID != p.PID {
			children[p.PPID] = append(children[p.PPID], p.PID)
		}
	}

	queue := []int{pid}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent] {
			if out[child] {
				continue
			}
			pp, pok := byPID[parent]
			cp := byPID[child]
			if pok && !pp.StartTime.IsZero() && !cp.StartTime.IsZero() && cp.StartTime.Before(pp.StartTime) {
				continue
			}
			out[child] = true
			queue = append(queue, child)
		}
	}
	return out
}

// WindowsOnDesktop returns every user-facing window the OS reports on
// desktop. Shell chrome, untitled windows and sticky windows are excluded.
func (e *Enumerator) WindowsOnDesktop(desktop platform.DesktopID) []platform.Window {
	if desktop < 0 {
		return nil
	}
	windows, err := e.src.ListWindows()
	if err != nil {
		e.logger.Debug("window enumeration failed", "desktop", desktop, "error", err)
		return nil
	}

	var out []platform.Window
	for _, w := range windows {
		if w.Desktop != desktop {
			continue
		}
		if containsFold(shellClasses, w.Class) || containsFold(skipClasses, w.Class) {
			continue
		}
		if strings.TrimSpace(w.Title) == "" {
			continue
		}
		out = append(out, w)
	}
	return out
}

// MainWindowCandidate picks the most likely interactive window of pid (and
// its descendants) using the configured rules.
func (e *Enumerator) MainWindowCandidate(pid int, hint string) (platform.Window, bool) {
	w, _, ok := Select(e.rules, hint, e.WindowsOwnedByProcess(pid, true))
	return w, ok
}

// PickMain applies the configured rules to an already enumerated set.
func (e *Enumerator) PickMain(windows []platform.Window, hint string) (platform.Window, bool) {
	w, _, ok := Select(e.rules, hint, windows)
	return w, ok
}

// FindByHint searches every window for one matching hint: the Notepad class
// for notepad, otherwise a title containing the hint.
func (e *Enumerator) FindByHint(hint string) (platform.Window, bool) {
	hint = NormalizeHint(hint)
	if hint == "" {
		return platform.Window{}, false
	}
	windows, err := e.src.ListWindows()
	if err != nil {
		e.logger.Debug("window enumeration failed", "hint", hint, "error", err)
		return platform.Window{}, false
	}
	for _, w := range windows {
		if containsFold(skipClasses, w.Class) {
			continue
		}
		if hint == "notepad" {
			if strings.EqualFold(w.Class, "Notepad") {
				return w, true
			}
			continue
		}
		if strings.Contains(strings.ToLower(w.Title), hint) {
			return w, true
		}
	}
	return platform.Window{}, false
}
