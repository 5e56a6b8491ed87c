// Package platformtest provides an in-memory platform.Backend for tests.
package platformtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/1broseidon/lockin/internal/platform"
)

// Backend is a scriptable window, process and desktop table.
// The zero value is not usable; call New.
type Backend struct {
	mu sync.Mutex

	windows    []*platform.Window
	procs      []*platform.Process
	alive      map[int]bool
	refuse     map[int]bool
	desktops   int
	current    platform.DesktopID
	nextWindow platform.WindowID
	focused    platform.WindowID

	// CloseHook decides whether a close request destroys the window.
	// Nil destroys every window asked to close.
	CloseHook func(w platform.Window) bool
	// ExitOnLastWindow ends a process once its final window is closed.
	ExitOnLastWindow bool
	// CreateDesktopErr makes CreateDesktop fail.
	CreateDesktopErr error
	// ListWindowsErr makes ListWindows fail.
	ListWindowsErr error

	moves      int
	terminated []int
}

var _ platform.Backend = (*Backend)(nil)

// New returns a backend with one desktop (desktop 0, current).
func New() *Backend {
	return &Backend{
		alive:      make(map[int]bool),
		refuse:     make(map[int]bool),
		desktops:   1,
		nextWindow: 0x1000,
	}
}

// AddProcess registers a live process.
func (b *Backend) AddProcess(pid, ppid int, name string, started time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.procs = append(b.procs, &platform.Process{PID: pid, PPID: ppid, Name: name, StartTime: started})
	b.alive[pid] = true
}

// ExitProcess marks pid as exited and destroys its windows.
func (b *Backend) ExitProcess(pid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exitLocked(pid)
}

// RefuseTerminate makes non-forced TerminateProcess calls for pid no-ops.
func (b *Backend) RefuseTerminate(pid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuse[pid] = true
}

// AddWindow inserts a window and returns its handle. A zero ID is assigned.
func (b *Backend) AddWindow(w platform.Window) platform.WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.ID == 0 {
		b.nextWindow++
		w.ID = b.nextWindow
	}
	cp := w
	b.windows = append(b.windows, &cp)
	return w.ID
}

// DestroyWindow removes a window as if its owner closed it.
func (b *Backend) DestroyWindow(id platform.WindowID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

// Window returns the current state of a window.
func (b *Backend) Window(id platform.WindowID) (platform.Window, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w := b.findLocked(id); w != nil {
		return *w, true
	}
	return platform.Window{}, false
}

// Focused returns the last focused window.
func (b *Backend) Focused() platform.WindowID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// Moves counts MoveWindowToDesktop calls that reached the table.
func (b *Backend) Moves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moves
}

// Terminated lists pids passed to TerminateProcess, in order.
func (b *Backend) Terminated() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.terminated...)
}

func (b *Backend) ListWindows() ([]platform.Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ListWindowsErr != nil {
		return nil, b.ListWindowsErr
	}
	out := make([]platform.Window, 0, len(b.windows))
	for _, w := range b.windows {
		out = append(out, *w)
	}
	return out, nil
}

func (b *Backend) WindowInfo(id platform.WindowID) (platform.Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(id)
	if w == nil {
		return platform.Window{}, gone(id)
	}
	return *w, nil
}

func (b *Backend) IsWindow(id platform.WindowID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findLocked(id) != nil
}

func (b *Backend) FocusWindow(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(id)
	if w == nil {
		return gone(id)
	}
	w.Minimized = false
	b.focused = id
	return nil
}

func (b *Backend) MinimizeWindow(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(id)
	if w == nil {
		return gone(id)
	}
	w.Minimized = true
	return nil
}

func (b *Backend) RestoreWindow(id platform.WindowID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(id)
	if w == nil {
		return gone(id)
	}
	w.Minimized = false
	return nil
}

func (b *Backend) CloseWindow(id platform.WindowID) error {
	b.mu.Lock()
	w := b.findLocked(id)
	if w == nil {
		b.mu.Unlock()
		return gone(id)
	}
	snapshot := *w
	hook := b.CloseHook
	b.mu.Unlock()

	if hook != nil && !hook(snapshot) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
	if b.ExitOnLastWindow && snapshot.PID != 0 && !b.hasWindowsLocked(snapshot.PID) {
		b.alive[snapshot.PID] = false
	}
	return nil
}

func (b *Backend) ListProcesses() ([]platform.Process, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []platform.Process
	for _, p := range b.procs {
		if b.alive[p.PID] {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (b *Backend) ProcessAlive(pid int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.alive[pid]
}

func (b *Backend) TerminateProcess(pid int, force bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.terminated = append(b.terminated, pid)
	if !b.alive[pid] {
		return fmt.Errorf("pid %d: %w", pid, platform.ErrProcessGone)
	}
	if !force && b.refuse[pid] {
		return nil
	}
	b.exitLocked(pid)
	return nil
}

func (b *Backend) CurrentDesktop() (platform.DesktopID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, nil
}

func (b *Backend) DesktopCount() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.desktops, nil
}

func (b *Backend) CreateDesktop() (platform.DesktopID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CreateDesktopErr != nil {
		return platform.NoDesktop, b.CreateDesktopErr
	}
	b.desktops++
	return platform.DesktopID(b.desktops - 1), nil
}

func (b *Backend) SwitchDesktop(id platform.DesktopID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validLocked(id) {
		return fmt.Errorf("invalid desktop %d", id)
	}
	b.current = id
	return nil
}

// RemoveDesktop moves the desktop's windows to fallback and renumbers the
// desktops after it, the way Windows does.
func (b *Backend) RemoveDesktop(id, fallback platform.DesktopID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.validLocked(id) || !b.validLocked(fallback) || id == fallback {
		return fmt.Errorf("invalid desktop pair %d -> %d", id, fallback)
	}
	for _, w := range b.windows {
		switch {
		case w.Desktop == id:
			w.Desktop = fallback
		case w.Desktop > id:
			w.Desktop--
		}
	}
	if fallback > id {
		fallback--
	}
	if b.current == id {
		b.current = fallback
	} else if b.current > id {
		b.current--
	}
	b.desktops--
	return nil
}

func (b *Backend) MoveWindowToDesktop(win platform.WindowID, id platform.DesktopID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(win)
	if w == nil {
		return gone(win)
	}
	if !b.validLocked(id) {
		return fmt.Errorf("invalid desktop %d", id)
	}
	b.moves++
	w.Desktop = id
	return nil
}

func (b *Backend) WindowDesktop(win platform.WindowID) (platform.DesktopID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w := b.findLocked(win)
	if w == nil {
		return platform.NoDesktop, gone(win)
	}
	return w.Desktop, nil
}

func (b *Backend) Disconnect() {}

func (b *Backend) findLocked(id platform.WindowID) *platform.Window {
	for _, w := range b.windows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func (b *Backend) removeLocked(id platform.WindowID) {
	for i, w := range b.windows {
		if w.ID == id {
			b.windows = append(b.windows[:i], b.windows[i+1:]...)
			return
		}
	}
}

func (b *Backend) hasWindowsLocked(pid int) bool {
	for _, w := range b.windows {
		if w.PID == pid {
			return true
		}
	}
	return false
}

func (b *Backend) exitLocked(pid int) {
	b.alive[pid] = false
	kept := b.windows[:0]
	for _, w := range b.windows {
		if w.PID != pid {
			kept = append(kept, w)
		}
	}
	b.windows = kept
}

func (b *Backend) validLocked(id platform.DesktopID) bool {
	return id >= 0 && int(id) < b.desktops
}

func gone(id platform.WindowID) error {
	return fmt.Errorf("window %s: %w", id, platform.ErrWindowGone)
}
