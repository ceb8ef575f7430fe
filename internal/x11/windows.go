package x11

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// Geometry is a window rectangle in root coordinates.
type Geometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// SizeHints are the min/max size limits advertised through WM_NORMAL_HINTS.
// Zero values mean "not set".
type SizeHints struct {
	MinWidth  int
	MinHeight int
	MaxWidth  int
	MaxHeight int
}

// Extents are per-edge frame or shadow sizes.
type Extents struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Configure is one entry of a batched ConfigureWindow transaction.
type Configure struct {
	Window   xproto.Window
	Geometry Geometry
}

// ConfigureFailure reports a batch entry the server rejected.
type ConfigureFailure struct {
	Window xproto.Window
	Err    error
}

// MoveResizeWindow moves and resizes a window to the specified geometry
func (c *Connection) MoveResizeWindow(windowID xproto.Window, x, y, width, height int) error {
	// Maximized windows ignore geometry requests on most window managers.
	_ = c.unmaximizeWindow(windowID)

	win := xwindow.New(c.XUtil, windowID)

	// Use EWMH MoveResize for better WM compatibility
	if err := ewmh.MoveresizeWindow(c.XUtil, windowID, x, y, width, height); err != nil {
		// Fallback to direct window manipulation
		win.MoveResize(x, y, width, height)
	}
	return nil
}

// ConfigureBatch applies every entry while holding a server grab, so other
// clients (including the window manager) observe the whole batch at once.
// No stack mode is sent, which leaves z-order and focus untouched.
func (c *Connection) ConfigureBatch(entries []Configure) []ConfigureFailure {
	conn := c.XUtil.Conn()

	for _, e := range entries {
		_ = c.unmaximizeWindow(e.Window)
	}

	if err := xproto.GrabServerChecked(conn).Check(); err != nil {
		// Without the grab the batch is still applied, just not atomically.
		return c.configureEach(entries)
	}
	failures := c.configureEach(entries)
	if err := xproto.UngrabServerChecked(conn).Check(); err != nil {
		failures = append(failures, ConfigureFailure{Err: fmt.Errorf("ungrab server: %w", err)})
	}
	return failures
}

func (c *Connection) configureEach(entries []Configure) []ConfigureFailure {
	conn := c.XUtil.Conn()
	mask := uint16(xproto.ConfigWindowX | xproto.ConfigWindowY | xproto.ConfigWindowWidth | xproto.ConfigWindowHeight)

	cookies := make([]xproto.ConfigureWindowCookie, len(entries))
	for i, e := range entries {
		g := e.Geometry
		cookies[i] = xproto.ConfigureWindowChecked(conn, e.Window, mask, []uint32{
			uint32(g.X), uint32(g.Y), uint32(g.Width), uint32(g.Height),
		})
	}

	var failures []ConfigureFailure
	for i, cookie := range cookies {
		if err := cookie.Check(); err != nil {
			failures = append(failures, ConfigureFailure{Window: entries[i].Window, Err: err})
		}
	}
	return failures
}

// unmaximizeWindow removes maximized state from a window
func (c *Connection) unmaximizeWindow(windowID xproto.Window) error {
	states, err := ewmh.WmStateGet(c.XUtil, windowID)
	if err != nil {
		return err
	}

	for _, state := range states {
		switch state {
		case "_NET_WM_STATE_MAXIMIZED_HORZ", "_NET_WM_STATE_MAXIMIZED_VERT":
			if err := ewmh.WmStateReq(c.XUtil, windowID, ewmh.StateRemove, state); err != nil {
				return err
			}
		}
	}
	return nil
}

// WindowGeometry returns the client window rectangle in root coordinates.
func (c *Connection) WindowGeometry(windowID xproto.Window) (Geometry, error) {
	conn := c.XUtil.Conn()
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(windowID)).Reply()
	if err != nil {
		return Geometry{}, err
	}

	translate, err := xproto.TranslateCoordinates(conn, windowID, c.Root, 0, 0).Reply()
	if err != nil {
		return Geometry{}, err
	}

	return Geometry{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, nil
}

// GetSizeHints reads the min/max size from WM_NORMAL_HINTS.
func (c *Connection) GetSizeHints(windowID xproto.Window) SizeHints {
	hints, err := icccm.WmNormalHintsGet(c.XUtil, windowID)
	if err != nil || hints == nil {
		return SizeHints{}
	}

	var out SizeHints
	if hints.Flags&icccm.SizeHintPMinSize > 0 {
		out.MinWidth = int(hints.MinWidth)
		out.MinHeight = int(hints.MinHeight)
	}
	if hints.Flags&icccm.SizeHintPMaxSize > 0 {
		out.MaxWidth = int(hints.MaxWidth)
		out.MaxHeight = int(hints.MaxHeight)
	}
	return out
}

// GetShadowExtents returns the client-side shadow sizes that GTK and other
// toolkits drawing their own decorations publish in _GTK_FRAME_EXTENTS.
func (c *Connection) GetShadowExtents(windowID xproto.Window) Extents {
	nums, err := xprop.PropValNums(xprop.GetProperty(c.XUtil, windowID, "_GTK_FRAME_EXTENTS"))
	if err != nil || len(nums) != 4 {
		return Extents{}
	}
	return Extents{Left: int(nums[0]), Right: int(nums[1]), Top: int(nums[2]), Bottom: int(nums[3])}
}

// GetWindowTitle returns the EWMH title, falling back to WM_NAME.
func (c *Connection) GetWindowTitle(windowID xproto.Window) string {
	if title, err := ewmh.WmNameGet(c.XUtil, windowID); err == nil && title != "" {
		return title
	}
	if title, err := icccm.WmNameGet(c.XUtil, windowID); err == nil {
		return title
	}
	return ""
}

// GetActiveWindow returns the focused window according to _NET_ACTIVE_WINDOW.
func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}

// FindWindowByTitle searches the EWMH client list for a window whose
// _NET_WM_NAME contains the given substring. Returns the first match.
func (c *Connection) FindWindowByTitle(substring string) (xproto.Window, error) {
	if substring == "" {
		return 0, fmt.Errorf("empty title")
	}
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get client list: %w", err)
	}
	for _, win := range clients {
		name, err := ewmh.WmNameGet(c.XUtil, win)
		if err != nil {
			continue
		}
		if strings.Contains(name, substring) {
			return win, nil
		}
	}
	return 0, fmt.Errorf("no window found with title containing %q", substring)
}
