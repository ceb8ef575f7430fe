//go:build linux

package platform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/1broseidon/wingroup/internal/x11"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
)

// ShadowMode selects when placements compensate for client-side shadows.
type ShadowMode int

const (
	ShadowAuto ShadowMode = iota
	ShadowOn
	ShadowOff
)

// LinuxOptions tunes the capabilities reported by the X11 backend.
type LinuxOptions struct {
	// Atomic enables server-grabbed batch placement.
	Atomic bool
	Shadow ShadowMode
}

// LinuxBackend wraps an existing X11 connection behind the platform Backend interface.
type LinuxBackend struct {
	conn       *x11.Connection
	opts       LinuxOptions
	compositor bool
}

var (
	_ Backend         = (*LinuxBackend)(nil)
	_ GeometryWatcher = (*LinuxBackend)(nil)
)

// NewLinuxBackend creates a Linux platform backend from an existing X11 connection.
func NewLinuxBackend(conn *x11.Connection, opts LinuxOptions) *LinuxBackend {
	b := &LinuxBackend{conn: conn, opts: opts}
	if conn != nil && opts.Shadow == ShadowAuto {
		b.compositor = conn.CompositorRunning()
	}
	return b
}

// NewLinuxBackendFromDisplay creates a new Linux backend by opening a fresh X11 connection.
func NewLinuxBackendFromDisplay(opts LinuxOptions) (*LinuxBackend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return NewLinuxBackend(conn, opts), nil
}

// Disconnect closes the underlying X11 connection.
func (b *LinuxBackend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

// EventLoop starts the X11 event loop (blocking).
func (b *LinuxBackend) EventLoop() {
	if b != nil && b.conn != nil {
		b.conn.EventLoop()
	}
}

// StopEventLoop makes a running EventLoop return.
func (b *LinuxBackend) StopEventLoop() {
	if b != nil && b.conn != nil {
		b.conn.Quit()
	}
}

// XUtil returns the underlying xgbutil connection for X11-specific operations.
func (b *LinuxBackend) XUtil() *xgbutil.XUtil {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.XUtil
}

// RootWindow returns the X11 root window ID.
func (b *LinuxBackend) RootWindow() xproto.Window {
	if b == nil || b.conn == nil {
		return 0
	}
	return b.conn.Root
}

// WindowName formats an X11 window id the way Lookup accepts it.
func WindowName(id WindowID) string {
	return fmt.Sprintf("0x%x", uint32(id))
}

func (b *LinuxBackend) SupportsAtomicPlacement(kind Kind) bool {
	return b.opts.Atomic && kind != KindRemoteProxy
}

// X11 has no per-window switch for window-manager driven move/resize.
func (b *LinuxBackend) SupportsSelectiveInteractiveDisable(Kind) bool {
	return false
}

func (b *LinuxBackend) NeedsShadowCorrection(kind Kind) bool {
	if kind == KindRemoteProxy {
		return false
	}
	switch b.opts.Shadow {
	case ShadowOn:
		return true
	case ShadowOff:
		return false
	default:
		return b.compositor
	}
}

// Lookup accepts a window id ("0x3a00007" or decimal) or a title substring.
func (b *LinuxBackend) Lookup(name string) (Window, error) {
	conn, err := b.connection()
	if err != nil {
		return Window{}, err
	}

	var windowID xproto.Window
	if id, perr := strconv.ParseUint(strings.TrimSpace(name), 0, 32); perr == nil {
		windowID = xproto.Window(id)
	} else {
		windowID, err = conn.FindWindowByTitle(name)
		if err != nil {
			return Window{}, fmt.Errorf("%q: %w", name, ErrWindowNotFound)
		}
	}

	bounds, err := b.Geometry(WindowID(windowID))
	if err != nil {
		return Window{}, fmt.Errorf("%q: %w", name, ErrWindowNotFound)
	}

	hints := conn.GetSizeHints(windowID)
	return Window{
		ID:     WindowID(windowID),
		Name:   WindowName(WindowID(windowID)),
		Title:  conn.GetWindowTitle(windowID),
		Kind:   KindNativeForeign,
		Bounds: bounds,
		Constraints: Constraints{
			MinWidth:  hints.MinWidth,
			MinHeight: hints.MinHeight,
			MaxWidth:  hints.MaxWidth,
			MaxHeight: hints.MaxHeight,
		},
	}, nil
}

// Geometry returns the visible bounds of a window, excluding client-side
// shadows when shadow correction is active.
func (b *LinuxBackend) Geometry(windowID WindowID) (Rect, error) {
	conn, err := b.connection()
	if err != nil {
		return Rect{}, err
	}
	g, err := conn.WindowGeometry(xproto.Window(windowID))
	if err != nil {
		return Rect{}, err
	}
	return b.visible(windowID, rectFromGeometry(g)), nil
}

// ActiveWindow returns the currently active/focused window ID.
func (b *LinuxBackend) ActiveWindow() (WindowID, error) {
	conn, err := b.connection()
	if err != nil {
		return 0, err
	}

	wid, err := conn.GetActiveWindow()
	if err != nil {
		return 0, err
	}
	return WindowID(wid), nil
}

// MoveResize moves and resizes a window to the specified bounds.
func (b *LinuxBackend) MoveResize(windowID WindowID, bounds Rect) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}

	return conn.MoveResizeWindow(
		xproto.Window(windowID),
		bounds.X,
		bounds.Y,
		bounds.Width,
		bounds.Height,
	)
}

// PlaceBatch configures all windows inside one server grab.
func (b *LinuxBackend) PlaceBatch(placements []Placement) []PlacementError {
	conn, err := b.connection()
	if err != nil {
		failures := make([]PlacementError, 0, len(placements))
		for _, p := range placements {
			failures = append(failures, PlacementError{ID: p.ID, Err: err})
		}
		return failures
	}

	entries := make([]x11.Configure, 0, len(placements))
	for _, p := range placements {
		entries = append(entries, x11.Configure{
			Window: xproto.Window(p.ID),
			Geometry: x11.Geometry{
				X:      p.Bounds.X,
				Y:      p.Bounds.Y,
				Width:  p.Bounds.Width,
				Height: p.Bounds.Height,
			},
		})
	}

	var failures []PlacementError
	for _, f := range conn.ConfigureBatch(entries) {
		failures = append(failures, PlacementError{ID: WindowID(f.Window), Err: f.Err})
	}
	return failures
}

// FrameInsets returns the client-side shadow extents of a window.
func (b *LinuxBackend) FrameInsets(windowID WindowID) (Insets, error) {
	conn, err := b.connection()
	if err != nil {
		return Insets{}, err
	}
	e := conn.GetShadowExtents(xproto.Window(windowID))
	return Insets{Left: e.Left, Right: e.Right, Top: e.Top, Bottom: e.Bottom}, nil
}

func (b *LinuxBackend) SetInteractive(WindowID, bool) error {
	return fmt.Errorf("selective interactive disable is not supported on X11")
}

// Watch reports visible geometry changes of a window until Unwatch or
// destruction. Callbacks run on the X event loop goroutine.
func (b *LinuxBackend) Watch(windowID WindowID, onGeometry func(Rect), onDestroy func()) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	return conn.WatchWindow(
		xproto.Window(windowID),
		func(_ xproto.Window, g x11.Geometry) {
			if onGeometry != nil {
				onGeometry(b.visible(windowID, rectFromGeometry(g)))
			}
		},
		func(xproto.Window) {
			if onDestroy != nil {
				onDestroy()
			}
		},
	)
}

func (b *LinuxBackend) Unwatch(windowID WindowID) {
	if conn, err := b.connection(); err == nil {
		conn.UnwatchWindow(xproto.Window(windowID))
	}
}

func (b *LinuxBackend) visible(windowID WindowID, r Rect) Rect {
	if !b.NeedsShadowCorrection(KindNativeForeign) {
		return r
	}
	insets, err := b.FrameInsets(windowID)
	if err != nil || insets.Zero() {
		return r
	}
	return insets.Shrink(r)
}

func (b *LinuxBackend) connection() (*x11.Connection, error) {
	if b == nil || b.conn == nil {
		return nil, fmt.Errorf("x11 backend connection is nil")
	}
	return b.conn, nil
}

func rectFromGeometry(g x11.Geometry) Rect {
	return Rect{X: g.X, Y: g.Y, Width: g.Width, Height: g.Height}
}
