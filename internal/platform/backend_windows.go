//go:build windows

package platform

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procShowWindow          = user32.NewProc("ShowWindow")
	procSetForegroundWindow = user32.NewProc("SetForegroundWindow")
	procPostMessageW        = user32.NewProc("PostMessageW")
	procIsIconic            = user32.NewProc("IsIconic")
	procGetWindowTextW      = user32.NewProc("GetWindowTextW")
	procGetWindowTextLength = user32.NewProc("GetWindowTextLengthW")

	// VirtualDesktopAccessor.dll wraps the undocumented virtual desktop COM
	// interfaces. It ships next to the executable.
	vda                           = windows.NewLazyDLL("VirtualDesktopAccessor.dll")
	procGetCurrentDesktopNumber   = vda.NewProc("GetCurrentDesktopNumber")
	procGetDesktopCount           = vda.NewProc("GetDesktopCount")
	procCreateDesktop             = vda.NewProc("CreateDesktop")
	procGoToDesktopNumber         = vda.NewProc("GoToDesktopNumber")
	procRemoveDesktop             = vda.NewProc("RemoveDesktop")
	procMoveWindowToDesktopNumber = vda.NewProc("MoveWindowToDesktopNumber")
	procGetWindowDesktopNumber    = vda.NewProc("GetWindowDesktopNumber")
	procIsPinnedWindow            = vda.NewProc("IsPinnedWindow")
	enumWindowsCallback           = windows.NewCallback(collectWindow)
)

const (
	swMinimize = 6
	swRestore  = 9
	wmClose    = 0x0010

	waitTimeout = 0x00000102
)

// WindowsBackend talks to user32, the Toolhelp snapshot API and
// VirtualDesktopAccessor.dll.
type WindowsBackend struct{}

var _ Backend = (*WindowsBackend)(nil)

// NewBackend returns the Windows backend. Virtual desktop support is probed
// lazily, so a missing accessor DLL only disables isolation.
func NewBackend() (Backend, error) {
	return &WindowsBackend{}, nil
}

// Disconnect is a no-op; user32 needs no connection.
func (b *WindowsBackend) Disconnect() {}

func collectWindow(hwnd windows.HWND, lparam uintptr) uintptr {
	list := (*[]windows.HWND)(unsafe.Pointer(lparam))
	*list = append(*list, hwnd)
	return 1
}

// ListWindows returns visible top-level windows in Z order.
func (b *WindowsBackend) ListWindows() ([]Window, error) {
	var handles []windows.HWND
	if err := windows.EnumWindows(enumWindowsCallback, unsafe.Pointer(&handles)); err != nil {
		return nil, fmt.Errorf("failed to enumerate windows: %w", err)
	}

	out := make([]Window, 0, len(handles))
	for _, hwnd := range handles {
		if !windows.IsWindowVisible(hwnd) {
			continue
		}
		out = append(out, describe(hwnd))
	}
	return out, nil
}

// WindowInfo re-reads a single window.
func (b *WindowsBackend) WindowInfo(id WindowID) (Window, error) {
	hwnd := windows.HWND(id)
	if !windows.IsWindow(hwnd) {
		return Window{}, fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	return describe(hwnd), nil
}

// IsWindow reports whether the handle still names a window.
func (b *WindowsBackend) IsWindow(id WindowID) bool {
	return windows.IsWindow(windows.HWND(id))
}

// FocusWindow restores an iconic window and brings it to the foreground.
func (b *WindowsBackend) FocusWindow(id WindowID) error {
	hwnd := windows.HWND(id)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	if isIconic(hwnd) {
		procShowWindow.Call(uintptr(hwnd), swRestore)
	}
	r, _, err := procSetForegroundWindow.Call(uintptr(hwnd))
	if r == 0 {
		return fmt.Errorf("failed to set foreground window %s: %w", id, err)
	}
	return nil
}

// MinimizeWindow shows the window minimized.
func (b *WindowsBackend) MinimizeWindow(id WindowID) error {
	hwnd := windows.HWND(id)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	// ShowWindow returns the previous visibility, not success.
	procShowWindow.Call(uintptr(hwnd), swMinimize)
	return nil
}

// RestoreWindow restores a minimized window without activating it.
func (b *WindowsBackend) RestoreWindow(id WindowID) error {
	hwnd := windows.HWND(id)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	procShowWindow.Call(uintptr(hwnd), swRestore)
	return nil
}

// CloseWindow posts WM_CLOSE.
func (b *WindowsBackend) CloseWindow(id WindowID) error {
	hwnd := windows.HWND(id)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", id, ErrWindowGone)
	}
	r, _, err := procPostMessageW.Call(uintptr(hwnd), wmClose, 0, 0)
	if r == 0 {
		if !windows.IsWindow(hwnd) {
			return fmt.Errorf("window %s: %w", id, ErrWindowGone)
		}
		return fmt.Errorf("failed to post WM_CLOSE to %s: %w", id, err)
	}
	return nil
}

// ListProcesses walks a Toolhelp32 process snapshot.
func (b *WindowsBackend) ListProcesses() ([]Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snap, &entry); err != nil {
		return nil, fmt.Errorf("failed to read process snapshot: %w", err)
	}

	var out []Process
	for {
		out = append(out, Process{
			PID:       int(entry.ProcessID),
			PPID:      int(entry.ParentProcessID),
			Name:      windows.UTF16ToString(entry.ExeFile[:]),
			StartTime: processStartTime(entry.ProcessID),
		})
		if err := windows.Process32Next(snap, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return out, fmt.Errorf("failed to read process snapshot: %w", err)
		}
	}
	return out, nil
}

// ProcessAlive waits on the process handle with a zero timeout.
func (b *WindowsBackend) ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		// Access denied still means the process exists.
		return errors.Is(err, windows.ERROR_ACCESS_DENIED)
	}
	defer windows.CloseHandle(h)
	event, err := windows.WaitForSingleObject(h, 0)
	return err == nil && event == waitTimeout
}

// TerminateProcess posts WM_CLOSE to the process's windows, or calls
// TerminateProcess when force is set or the process has no windows.
func (b *WindowsBackend) TerminateProcess(pid int, force bool) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if !force {
		windowsList, err := b.ListWindows()
		if err == nil {
			posted := 0
			for _, w := range windowsList {
				if w.PID == pid && b.CloseWindow(w.ID) == nil {
					posted++
				}
			}
			if posted > 0 {
				return nil
			}
		}
	}

	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return fmt.Errorf("pid %d: %w", pid, ErrProcessGone)
		}
		return fmt.Errorf("failed to open pid %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, 1); err != nil {
		return fmt.Errorf("failed to terminate pid %d: %w", pid, err)
	}
	return nil
}

// CurrentDesktop returns the active virtual desktop number.
func (b *WindowsBackend) CurrentDesktop() (DesktopID, error) {
	n, err := vdaCall(procGetCurrentDesktopNumber)
	if err != nil {
		return NoDesktop, err
	}
	return DesktopID(n), nil
}

// DesktopCount returns the number of virtual desktops.
func (b *WindowsBackend) DesktopCount() (int, error) {
	n, err := vdaCall(procGetDesktopCount)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CreateDesktop appends a new virtual desktop and returns its number.
func (b *WindowsBackend) CreateDesktop() (DesktopID, error) {
	before, err := vdaCall(procGetDesktopCount)
	if err != nil {
		return NoDesktop, err
	}
	n, err := vdaCall(procCreateDesktop)
	if err != nil {
		return NoDesktop, fmt.Errorf("failed to create desktop: %w", err)
	}
	// Older accessor builds return 0 instead of the new index.
	if n == 0 && before > 0 {
		n = before
	}
	return DesktopID(n), nil
}

// SwitchDesktop activates a virtual desktop.
func (b *WindowsBackend) SwitchDesktop(id DesktopID) error {
	if id < 0 {
		return fmt.Errorf("invalid desktop %d", id)
	}
	if _, err := vdaCall(procGoToDesktopNumber, uintptr(id)); err != nil {
		return fmt.Errorf("failed to switch to desktop %d: %w", id, err)
	}
	return nil
}

// RemoveDesktop removes a virtual desktop; windows left on it move to fallback.
func (b *WindowsBackend) RemoveDesktop(id, fallback DesktopID) error {
	if id < 0 || fallback < 0 {
		return fmt.Errorf("invalid desktop pair %d -> %d", id, fallback)
	}
	if _, err := vdaCall(procRemoveDesktop, uintptr(id), uintptr(fallback)); err != nil {
		return fmt.Errorf("failed to remove desktop %d: %w", id, err)
	}
	return nil
}

// MoveWindowToDesktop moves a window onto a virtual desktop.
func (b *WindowsBackend) MoveWindowToDesktop(win WindowID, id DesktopID) error {
	hwnd := windows.HWND(win)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", win, ErrWindowGone)
	}
	if _, err := vdaCall(procMoveWindowToDesktopNumber, uintptr(hwnd), uintptr(id)); err != nil {
		return fmt.Errorf("failed to move window %s to desktop %d: %w", win, id, err)
	}
	return nil
}

// WindowDesktop returns the desktop number hosting a window.
func (b *WindowsBackend) WindowDesktop(win WindowID) (DesktopID, error) {
	hwnd := windows.HWND(win)
	if !windows.IsWindow(hwnd) {
		return NoDesktop, fmt.Errorf("window %s: %w", win, ErrWindowGone)
	}
	return windowDesktop(hwnd), nil
}

func describe(hwnd windows.HWND) Window {
	var pid uint32
	windows.GetWindowThreadProcessId(hwnd, &pid)

	classBuf := make([]uint16, 256)
	n, _ := windows.GetClassName(hwnd, &classBuf[0], int32(len(classBuf)))
	class := windows.UTF16ToString(classBuf[:n])

	return Window{
		ID:        WindowID(hwnd),
		PID:       int(pid),
		Class:     class,
		Title:     windowText(hwnd),
		Desktop:   windowDesktop(hwnd),
		Minimized: isIconic(hwnd),
	}
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLength.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	copied, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), n+1)
	return windows.UTF16ToString(buf[:copied])
}

func windowDesktop(hwnd windows.HWND) DesktopID {
	if vda.Load() != nil {
		return NoDesktop
	}
	if pinned, err := vdaCall(procIsPinnedWindow, uintptr(hwnd)); err == nil && pinned == 1 {
		return AllDesktops
	}
	n, err := vdaCall(procGetWindowDesktopNumber, uintptr(hwnd))
	if err != nil {
		return NoDesktop
	}
	return DesktopID(n)
}

func isIconic(hwnd windows.HWND) bool {
	r, _, _ := procIsIconic.Call(uintptr(hwnd))
	return r != 0
}

// vdaCall invokes an accessor export. The accessor reports failure as -1.
func vdaCall(proc *windows.LazyProc, args ...uintptr) (int, error) {
	if err := vda.Load(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrDesktopsUnsupported, err)
	}
	if err := proc.Find(); err != nil {
		return -1, fmt.Errorf("%w: %v", ErrDesktopsUnsupported, err)
	}
	r, _, _ := proc.Call(args...)
	n := int(int32(r))
	if n < 0 {
		return n, fmt.Errorf("%s returned %d", proc.Name, n)
	}
	return n, nil
}

func processStartTime(pid uint32) time.Time {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return time.Time{}
	}
	defer windows.CloseHandle(h)

	var creation, exit, kernel, user windows.Filetime
	if err := windows.GetProcessTimes(h, &creation, &exit, &kernel, &user); err != nil {
		return time.Time{}
	}
	return time.Unix(0, creation.Nanoseconds())
}
