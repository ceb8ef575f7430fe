package platform

import "fmt"

// WindowID is a platform-neutral native window identifier.
type WindowID uint32

// Kind classifies how a window is owned and placed.
type Kind int

const (
	// KindLocal is a window created and owned by this runtime.
	KindLocal Kind = iota
	// KindNativeForeign is a native window owned by another application.
	KindNativeForeign
	// KindRemoteProxy is a local stand-in for a window owned by a peer runtime.
	KindRemoteProxy
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindNativeForeign:
		return "native-foreign"
	case KindRemoteProxy:
		return "remote-proxy"
	default:
		return "unknown"
	}
}

// Window contains metadata, geometry and size constraints for a top-level window.
type Window struct {
	ID          WindowID
	Name        string
	Title       string
	Kind        Kind
	Bounds      Rect
	Constraints Constraints
}

// Placement is a single entry of a placement transaction.
type Placement struct {
	ID     WindowID
	Bounds Rect
}

// PlacementError reports a placement that failed for one window, typically
// because the window was destroyed.
type PlacementError struct {
	ID  WindowID
	Err error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place window %d: %v", e.ID, e.Err)
}

func (e *PlacementError) Unwrap() error {
	return e.Err
}

// Capabilities describes what the native window system can do for a given
// window kind. The propagation algorithm never branches on the platform
// itself, only on these answers.
type Capabilities interface {
	SupportsAtomicPlacement(kind Kind) bool
	SupportsSelectiveInteractiveDisable(kind Kind) bool
	NeedsShadowCorrection(kind Kind) bool
}

// Backend abstracts window-system operations across platforms.
type Backend interface {
	Capabilities

	// Lookup resolves a window name to its current metadata.
	Lookup(name string) (Window, error)
	// Geometry returns the current outer bounds of a window.
	Geometry(id WindowID) (Rect, error)
	// ActiveWindow returns the currently focused window.
	ActiveWindow() (WindowID, error)
	// MoveResize places a single window.
	MoveResize(id WindowID, bounds Rect) error
	// PlaceBatch places every entry in one transaction without changing
	// stacking order or focus. Failures are reported per window and do not
	// abort the remaining entries.
	PlaceBatch(placements []Placement) []PlacementError
	// FrameInsets returns the invisible frame/shadow extents of a window.
	FrameInsets(id WindowID) (Insets, error)
	// SetInteractive enables or disables user-driven move/resize handling
	// for a window. Only called when SupportsSelectiveInteractiveDisable
	// reports true.
	SetInteractive(id WindowID, enabled bool) error
}

// GeometryWatcher reports geometry changes of individual windows, whether
// caused by the user or by this process.
type GeometryWatcher interface {
	Watch(id WindowID, onGeometry func(Rect), onDestroy func()) error
	Unwatch(id WindowID)
}
