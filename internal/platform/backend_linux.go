//go:build linux

package platform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/1broseidon/lockin/internal/x11"
	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// desktopSettle bounds how long CreateDesktop waits for the window manager
// to publish the new _NET_NUMBER_OF_DESKTOPS.
const desktopSettle = 500 * time.Millisecond

// LinuxBackend wraps an X11 connection and /proc behind the platform Backend interface.
type LinuxBackend struct {
	conn *x11.Connection
	proc procfs.FS
}

var _ Backend = (*LinuxBackend)(nil)

// NewBackend opens the default display and process filesystem.
func NewBackend() (Backend, error) {
	return NewLinuxBackendFromDisplay()
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay() (*LinuxBackend, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs: %w", err)
	}
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return &LinuxBackend{conn: conn, proc: fs}, nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// ListWindows returns normal client windows in _NET_CLIENT_LIST order.
func (b *LinuxBackend) ListWindows() ([]Window, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	clients, err := conn.ClientList()
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(clients))
	for _, id := range clients {
		if !conn.IsNormalWindow(id) {
			continue
		}
		windows = append(windows, b.describe(id))
	}
	return windows, nil
}

// WindowInfo re-reads a single window.
func (b *LinuxBackend) WindowInfo(id WindowID) (Window, error) {
	conn, err := b.connection()
	if err != nil {
		return Window{}, err
	}
	if !conn.WindowExists(uint32(id)) {
		return Window{}, fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	return b.describe(uint32(id)), nil
}

// IsWindow reports whether the X server still knows the window.
func (b *LinuxBackend) IsWindow(id WindowID) bool {
	conn, err := b.connection()
	if err != nil {
		return false
	}
	return conn.WindowExists(uint32(id))
}

// FocusWindow activates a window, restoring it first when iconified.
func (b *LinuxBackend) FocusWindow(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if conn.IsHidden(uint32(id)) {
		return b.windowErr(id, conn.RestoreWindow(uint32(id)))
	}
	return b.windowErr(id, conn.FocusWindow(uint32(id)))
}

// MinimizeWindow iconifies a window via WM_CHANGE_STATE.
func (b *LinuxBackend) MinimizeWindow(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return b.windowErr(id, conn.MinimizeWindow(uint32(id)))
}

// RestoreWindow de-iconifies and activates a window.
func (b *LinuxBackend) RestoreWindow(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return b.windowErr(id, conn.RestoreWindow(uint32(id)))
}

// CloseWindow requests graceful window close via WM_DELETE_WINDOW.
func (b *LinuxBackend) CloseWindow(id WindowID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return b.windowErr(id, conn.CloseWindow(uint32(id)))
}

// ListProcesses reads every /proc/<pid>/stat.
func (b *LinuxBackend) ListProcesses() ([]Process, error) {
	procs, err := b.proc.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			// Raced with process exit.
			continue
		}
		started, err := stat.StartTime()
		if err != nil {
			continue
		}
		out = append(out, Process{
			PID:       stat.PID,
			PPID:      stat.PPID,
			Name:      processName(p, stat),
			StartTime: time.Unix(0, int64(started*float64(time.Second))),
		})
	}
	return out, nil
}

// ProcessAlive treats zombies as dead.
func (b *LinuxBackend) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := unix.Kill(pid, 0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	p, err := b.proc.Proc(pid)
	if err != nil {
		return false
	}
	stat, err := p.Stat()
	if err != nil {
		return false
	}
	return stat.State != "Z"
}

// TerminateProcess sends SIGTERM, or SIGKILL when force is set.
func (b *LinuxBackend) TerminateProcess(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	sig := unix.SIGTERM
	if force {
		sig = unix.SIGKILL
	}
	if err := unix.Kill(pid, sig); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	return nil
}

// CurrentDesktop returns _NET_CURRENT_DESKTOP.
func (b *LinuxBackend) CurrentDesktop() (DesktopID, error) {
	conn, err := b.connection()
	if err != nil {
		return NoDesktop, err
	}
	d, err := conn.GetCurrentDesktop()
	if err != nil {
		return NoDesktop, err
	}
	return DesktopID(d), nil
}

// DesktopCount returns _NET_NUMBER_OF_DESKTOPS.
func (b *LinuxBackend) DesktopCount() (int, error) {
	conn, err := b.connection()
	if err != nil {
		return 0, err
	}
	return conn.GetDesktopCount()
}

// CreateDesktop appends a desktop. EWMH has no create request, so this asks
// for one more desktop and waits for the window manager to publish it.
func (b *LinuxBackend) CreateDesktop() (DesktopID, error) {
	conn, err := b.connection()
	if err != nil {
		return NoDesktop, err
	}
	count, err := conn.GetDesktopCount()
	if err != nil {
		return NoDesktop, err
	}
	if err := conn.RequestDesktopCount(count + 1); err != nil {
		return NoDesktop, fmt.Errorf("failed to request desktop: %w", err)
	}

	deadline := time.Now().Add(desktopSettle)
	for time.Now().Before(deadline) {
		if n, err := conn.GetDesktopCount(); err == nil && n > count {
			return DesktopID(n - 1), nil
		}
		time.Sleep(25 * time.Millisecond)
	}
	return NoDesktop, fmt.Errorf("window manager kept %d desktops: %w", count, ErrDesktopsUnsupported)
}

// SwitchDesktop requests _NET_CURRENT_DESKTOP.
func (b *LinuxBackend) SwitchDesktop(id DesktopID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	if id < 0 {
		return fmt.Errorf("invalid desktop %d", id)
	}
	return conn.SwitchDesktop(int(id))
}

// RemoveDesktop shrinks the desktop count. EWMH can only drop trailing
// desktops, so a desktop that is no longer last is left in place after its
// windows move to fallback.
func (b *LinuxBackend) RemoveDesktop(id, fallback DesktopID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	windows, err := b.ListWindows()
	if err != nil {
		return err
	}
	for _, w := range windows {
		if w.Desktop == id {
			if err := conn.SetWindowDesktop(uint32(w.ID), int(fallback)); err != nil && conn.WindowExists(uint32(w.ID)) {
				return fmt.Errorf("failed to move window %s off desktop %d: %w", w.ID, id, err)
			}
		}
	}

	count, err := conn.GetDesktopCount()
	if err != nil {
		return err
	}
	if int(id) != count-1 {
		return fmt.Errorf("desktop %d is not the last of %d desktops", id, count)
	}
	return conn.RequestDesktopCount(count - 1)
}

// MoveWindowToDesktop sets _NET_WM_DESKTOP.
func (b *LinuxBackend) MoveWindowToDesktop(win WindowID, id DesktopID) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return b.windowErr(win, conn.SetWindowDesktop(uint32(win), int(id)))
}

// WindowDesktop reads _NET_WM_DESKTOP; sticky windows report AllDesktops.
func (b *LinuxBackend) WindowDesktop(win WindowID) (DesktopID, error) {
	conn, err := b.connection()
	if err != nil {
		return NoDesktop, err
	}
	d, err := conn.GetWindowDesktop(uint32(win))
	if err != nil {
		return NoDesktop, b.windowErr(win, err)
	}
	if d == x11.Sticky {
		return AllDesktops, nil
	}
	return DesktopID(d), nil
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}

func (b *LinuxBackend) describe(id uint32) Window {
	desktop := NoDesktop
	if d, err := b.conn.GetWindowDesktop(id); err == nil {
		desktop = DesktopID(d)
		if d == x11.Sticky {
			desktop = AllDesktops
		}
	}
	return Window{
		ID:        WindowID(id),
		PID:       b.conn.WindowPID(id),
		Class:     b.conn.WindowClass(id),
		Title:     b.conn.WindowTitle(id),
		Desktop:   desktop,
		Minimized: b.conn.IsHidden(id),
	}
}

// windowErr maps request failures on destroyed windows to ErrWindowGone.
func (b *LinuxBackend) windowErr(id WindowID, err error) error {
	if err == nil {
		return nil
	}
	if !b.conn.WindowExists(uint32(id)) {
		return fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	return err
}

// processName prefers the executable base name because comm is truncated
// to 15 bytes.
func processName(p procfs.Proc, stat procfs.ProcStat) string {
	if exe, err := p.Executable(); err == nil && exe != "" {
		return filepath.Base(strings.TrimSuffix(exe, " (deleted)"))
	}
	return stat.Comm
}
