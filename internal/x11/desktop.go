package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Sticky is returned by GetWindowDesktop for windows visible on all desktops.
const Sticky = -1

// sourceIndication tells the window manager the request comes from a pager.
const sourceIndication = 2

// GetCurrentDesktop returns the 0-indexed _NET_CURRENT_DESKTOP.
func (c *Connection) GetCurrentDesktop() (int, error) {
	return desktopValue("current desktop", func() (uint, error) { return ewmh.CurrentDesktopGet(c.XUtil) })
}

// GetWindowDesktop reads _NET_WM_DESKTOP. Sticky windows report Sticky.
func (c *Connection) GetWindowDesktop(windowID uint32) (int, error) {
	return desktopValue("window desktop", func() (uint, error) { return ewmh.WmDesktopGet(c.XUtil, xproto.Window(windowID)) })
}

// GetDesktopCount reads _NET_NUMBER_OF_DESKTOPS.
func (c *Connection) GetDesktopCount() (int, error) {
	return desktopValue("desktop count", func() (uint, error) { return ewmh.NumberOfDesktopsGet(c.XUtil) })
}

func desktopValue(what string, get func() (uint, error)) (int, error) {
	v, err := get()
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", what, err)
	}
	if v == 0xFFFFFFFF {
		return Sticky, nil
	}
	return int(v), nil
}

// RequestDesktopCount asks the window manager to change _NET_NUMBER_OF_DESKTOPS.
// Window managers with a fixed desktop layout ignore the request, so callers
// re-read the count to see whether it took effect.
func (c *Connection) RequestDesktopCount(count int) error {
	if count < 1 {
		return fmt.Errorf("desktop count must be >= 1, got %d", count)
	}
	return c.sendRootMessage(c.Root, "_NET_NUMBER_OF_DESKTOPS", uint32(count))
}

// SwitchDesktop makes desktop the current one via _NET_CURRENT_DESKTOP.
func (c *Connection) SwitchDesktop(desktop int) error {
	return c.sendRootMessage(c.Root, "_NET_CURRENT_DESKTOP", uint32(desktop), uint32(xproto.TimeCurrentTime))
}

// SetWindowDesktop asks the window manager to move a window to desktop.
func (c *Connection) SetWindowDesktop(windowID uint32, desktop int) error {
	return c.sendRootMessage(xproto.Window(windowID), "_NET_WM_DESKTOP", uint32(desktop), sourceIndication)
}

// FocusWindow requests _NET_ACTIVE_WINDOW for the window.
func (c *Connection) FocusWindow(windowID uint32) error {
	return c.sendRootMessage(xproto.Window(windowID), "_NET_ACTIVE_WINDOW", sourceIndication, uint32(xproto.TimeCurrentTime))
}
