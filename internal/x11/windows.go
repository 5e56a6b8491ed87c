package x11

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// ClientList returns the managed top-level windows in mapping order.
func (c *Connection) ClientList() ([]uint32, error) {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return nil, fmt.Errorf("failed to get client list: %w", err)
	}
	out := make([]uint32, 0, len(clients))
	for _, w := range clients {
		out = append(out, uint32(w))
	}
	return out, nil
}

// WindowExists reports whether the server still knows the window.
func (c *Connection) WindowExists(windowID uint32) bool {
	_, err := xproto.GetWindowAttributes(c.XUtil.Conn(), xproto.Window(windowID)).Reply()
	return err == nil
}

// WindowPID returns _NET_WM_PID, or 0 when the client does not set it.
func (c *Connection) WindowPID(windowID uint32) int {
	pid, err := ewmh.WmPidGet(c.XUtil, xproto.Window(windowID))
	if err != nil {
		return 0
	}
	return int(pid)
}

// WindowClass returns the WM_CLASS class part.
func (c *Connection) WindowClass(windowID uint32) string {
	wmClass, err := icccm.WmClassGet(c.XUtil, xproto.Window(windowID))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wmClass.Class)
}

// WindowTitle prefers _NET_WM_NAME and falls back to WM_NAME.
func (c *Connection) WindowTitle(windowID uint32) string {
	win := xproto.Window(windowID)
	title, err := ewmh.WmNameGet(c.XUtil, win)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(c.XUtil, win)
	if err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(windowID uint32) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, xproto.Window(windowID))
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}

	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" || t == "_NET_WM_WINDOW_TYPE_DIALOG" {
			return true
		}
		// Reject desktop, dock, splash, etc.
		if t == "_NET_WM_WINDOW_TYPE_DESKTOP" ||
			t == "_NET_WM_WINDOW_TYPE_DOCK" ||
			t == "_NET_WM_WINDOW_TYPE_SPLASH" ||
			t == "_NET_WM_WINDOW_TYPE_NOTIFICATION" {
			return false
		}
	}

	// If no specific type is set, assume it's normal
	return len(types) == 0
}

// IsHidden reports _NET_WM_STATE_HIDDEN, which window managers set on
// iconified windows.
func (c *Connection) IsHidden(windowID uint32) bool {
	states, err := ewmh.WmStateGet(c.XUtil, xproto.Window(windowID))
	if err != nil {
		return false
	}
	for _, state := range states {
		if state == "_NET_WM_STATE_HIDDEN" {
			return true
		}
	}
	return false
}

// MinimizeWindow iconifies a window via WM_CHANGE_STATE.
func (c *Connection) MinimizeWindow(windowID uint32) error {
	const iconicState = 3
	return c.sendRootMessage(xproto.Window(windowID), "WM_CHANGE_STATE", iconicState)
}

// RestoreWindow maps an iconified window again. Activating it is enough for
// EWMH window managers; MapWindow covers the ones that ignore that.
func (c *Connection) RestoreWindow(windowID uint32) error {
	if err := xproto.MapWindowChecked(c.XUtil.Conn(), xproto.Window(windowID)).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	return c.FocusWindow(windowID)
}

// CloseWindow requests graceful window close via WM_DELETE_WINDOW.
func (c *Connection) CloseWindow(windowID uint32) error {
	deleteAtom, err := c.atom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	protocolsAtom, err := c.atom("WM_PROTOCOLS")
	if err != nil {
		return err
	}

	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: xproto.Window(windowID),
		Type:   protocolsAtom,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{uint32(deleteAtom), uint32(xproto.TimeCurrentTime), 0, 0, 0}),
	}

	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		xproto.Window(windowID),
		xproto.EventMaskNoEvent,
		string(ev.Bytes()),
	).Check()
}
