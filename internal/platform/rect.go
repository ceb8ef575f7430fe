package platform

import "fmt"

// Rect describes a rectangular region in screen coordinates.
// Rects are values; every helper returns a new Rect.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Delta is the component-wise difference between two rects.
type Delta struct {
	X      int `json:"dx"`
	Y      int `json:"dy"`
	Width  int `json:"dw"`
	Height int `json:"dh"`
}

// Zero reports whether the delta changes nothing.
func (d Delta) Zero() bool {
	return d == Delta{}
}

// Right returns the x coordinate just past the right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the y coordinate just past the bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Shift applies d to every component of r.
func (r Rect) Shift(d Delta) Rect {
	return Rect{
		X:      r.X + d.X,
		Y:      r.Y + d.Y,
		Width:  r.Width + d.Width,
		Height: r.Height + d.Height,
	}
}

// Translate moves r by (dx, dy) keeping its size.
func (r Rect) Translate(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Delta returns the difference other - r, so that r.Shift(r.Delta(other)) == other.
func (r Rect) Delta(other Rect) Delta {
	return Delta{
		X:      other.X - r.X,
		Y:      other.Y - r.Y,
		Width:  other.Width - r.Width,
		Height: other.Height - r.Height,
	}
}

// Moved reports whether other differs from r in any component.
func (r Rect) Moved(other Rect) bool {
	return r != other
}

// SameSize reports whether r and other have identical dimensions.
func (r Rect) SameSize(other Rect) bool {
	return r.Width == other.Width && r.Height == other.Height
}

// SameOrigin reports whether r and other share their top-left corner.
func (r Rect) SameOrigin(other Rect) bool {
	return r.X == other.X && r.Y == other.Y
}

// Contains reports whether the point lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

func (r Rect) String() string {
	return fmt.Sprintf("%dx%d at %d,%d", r.Width, r.Height, r.X, r.Y)
}

// Insets are per-edge extents, used for invisible frames and shadows.
type Insets struct {
	Left   int
	Right  int
	Top    int
	Bottom int
}

// Zero reports whether all extents are zero.
func (i Insets) Zero() bool {
	return i == Insets{}
}

// Expand grows r outward by the insets.
func (i Insets) Expand(r Rect) Rect {
	return Rect{
		X:      r.X - i.Left,
		Y:      r.Y - i.Top,
		Width:  r.Width + i.Left + i.Right,
		Height: r.Height + i.Top + i.Bottom,
	}
}

// Constraints are a window's size limits. A zero max means unlimited.
type Constraints struct {
	MinWidth  int `json:"min_width,omitempty"`
	MinHeight int `json:"min_height,omitempty"`
	MaxWidth  int `json:"max_width,omitempty"`
	MaxHeight int `json:"max_height,omitempty"`
}

// ClampWidth returns w limited to the width constraints.
func (c Constraints) ClampWidth(w int) int {
	return clamp(w, c.MinWidth, c.MaxWidth)
}

// ClampHeight returns h limited to the height constraints.
func (c Constraints) ClampHeight(h int) int {
	return clamp(h, c.MinHeight, c.MaxHeight)
}

// Allows reports whether r satisfies the constraints.
func (c Constraints) Allows(r Rect) bool {
	return c.ClampWidth(r.Width) == r.Width && c.ClampHeight(r.Height) == r.Height
}

func clamp(v, lo, hi int) int {
	if lo < 1 {
		lo = 1
	}
	if v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}

// Shrink removes the insets from r, the inverse of Expand.
func (i Insets) Shrink(r Rect) Rect {
	return Rect{
		X:      r.X + i.Left,
		Y:      r.Y + i.Top,
		Width:  r.Width - i.Left - i.Right,
		Height: r.Height - i.Top - i.Bottom,
	}
}

// ChangeType classifies a bounds change.
type ChangeType int

const (
	ChangeNone ChangeType = iota
	ChangePosition
	ChangeSize
	ChangePositionAndSize
)

func (c ChangeType) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangePosition:
		return "position"
	case ChangeSize:
		return "size"
	case ChangePositionAndSize:
		return "position-and-size"
	default:
		return "unknown"
	}
}

// MarshalText encodes the change type by name.
func (c ChangeType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a change type name.
func (c *ChangeType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*c = ChangeNone
	case "position":
		*c = ChangePosition
	case "size":
		*c = ChangeSize
	case "position-and-size":
		*c = ChangePositionAndSize
	default:
		return fmt.Errorf("unknown change type %q", text)
	}
	return nil
}

// Classify reports what differs between from and to.
func Classify(from, to Rect) ChangeType {
	origin := !from.SameOrigin(to)
	size := !from.SameSize(to)
	switch {
	case origin && size:
		return ChangePositionAndSize
	case size:
		return ChangeSize
	case origin:
		return ChangePosition
	default:
		return ChangeNone
	}
}
