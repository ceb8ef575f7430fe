package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xwindow"
)

// GeometryHandler receives the new client geometry of a watched window.
type GeometryHandler func(windowID xproto.Window, g Geometry)

// DestroyHandler is called once when a watched window is destroyed.
type DestroyHandler func(windowID xproto.Window)

// WatchWindow subscribes to structure notifications for a window. Handlers run
// on the X event loop goroutine.
func (c *Connection) WatchWindow(windowID xproto.Window, onGeometry GeometryHandler, onDestroy DestroyHandler) error {
	win := xwindow.New(c.XUtil, windowID)
	if err := win.Listen(xproto.EventMaskStructureNotify); err != nil {
		return err
	}

	xevent.ConfigureNotifyFun(func(xu *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
		if onGeometry == nil {
			return
		}
		// ConfigureNotify coordinates are parent-relative under reparenting
		// window managers, so re-query in root coordinates.
		g, err := c.WindowGeometry(windowID)
		if err != nil {
			return
		}
		onGeometry(windowID, g)
	}).Connect(c.XUtil, windowID)

	xevent.DestroyNotifyFun(func(xu *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
		xevent.Detach(xu, windowID)
		if onDestroy != nil {
			onDestroy(windowID)
		}
	}).Connect(c.XUtil, windowID)

	return nil
}

// UnwatchWindow removes every handler attached by WatchWindow.
func (c *Connection) UnwatchWindow(windowID xproto.Window) {
	xevent.Detach(c.XUtil, windowID)
}
