package overlay

import (
	"errors"
	"fmt"
)

// Corner selects which bottom corner of the screen carries the bracket.
type Corner int

const (
	// BottomLeft is used by the Caps-Lock overlay.
	BottomLeft Corner = iota
	// BottomRight is used by the input-method overlay.
	BottomRight
)

// String returns the corner name used in logs and config.
func (c Corner) String() string {
	switch c {
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	default:
		return "unknown"
	}
}

// Mask selects how much of the window survives the bounding shape.
type Mask int

const (
	// MaskFrame keeps a complete border-thick frame around the screen.
	MaskFrame Mask = iota
	// MaskCorner keeps only the two edges that meet at the corner.
	MaskCorner
)

func (m Mask) String() string {
	switch m {
	case MaskFrame:
		return "frame"
	case MaskCorner:
		return "corner"
	default:
		return "unknown"
	}
}

// Screen is the size of the primary screen in pixels.
type Screen struct {
	Width  uint16
	Height uint16
}

// Rect is a window-relative or root-relative rectangle.
type Rect struct {
	X      int16
	Y      int16
	Width  uint16
	Height uint16
}

// Contains reports whether the pixel at (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= int(r.X) && x < int(r.X)+int(r.Width) &&
		y >= int(r.Y) && y < int(r.Y)+int(r.Height)
}

// Segment is a line from (X1, Y1) to (X2, Y2) in window coordinates.
type Segment struct {
	X1, Y1, X2, Y2 int16
}

// Style is the graphics context used to draw the bracket.
type Style struct {
	Foreground uint32
	Background uint32
	LineWidth  int
}

// ErrNoScreen is returned when the display reports no usable screen.
var ErrNoScreen = errors.New("screen does not exist")

// Geometry is the layout of one overlay window for one screen.
// It is computed on every show and never reused across shows.
type Geometry struct {
	Screen Screen
	Border int
}

// NewGeometry validates the border against the screen size.
func NewGeometry(screen Screen, border int) (Geometry, error) {
	if screen.Width == 0 || screen.Height == 0 {
		return Geometry{}, ErrNoScreen
	}
	if border <= 0 {
		return Geometry{}, fmt.Errorf("border must be positive, got %d", border)
	}
	if 2*border >= int(screen.Width) || 2*border >= int(screen.Height) {
		return Geometry{}, fmt.Errorf("border %d too large for %dx%d screen", border, screen.Width, screen.Height)
	}
	return Geometry{Screen: screen, Border: border}, nil
}

// ContentWidth is the screen width minus the border on both sides.
func (g Geometry) ContentWidth() int {
	return int(g.Screen.Width) - 2*g.Border
}

// ContentHeight is the screen height minus the border on both sides.
func (g Geometry) ContentHeight() int {
	return int(g.Screen.Height) - 2*g.Border
}

// Window is the outer window rectangle: the content inset by the border,
// grown by the border again on every side.
func (g Geometry) Window() Rect {
	x, y := g.Origin(g.Border, g.Border)
	return Rect{
		X:      x,
		Y:      y,
		Width:  uint16(g.ContentWidth() + 2*g.Border),
		Height: uint16(g.ContentHeight() + 2*g.Border),
	}
}

// Origin converts a content position into the window position, which sits
// one border further up and left.
func (g Geometry) Origin(x, y int) (int16, int16) {
	return int16(x - g.Border), int16(y - g.Border)
}

// Cutout returns the rectangles subtracted from the bounding shape and the
// offset they are applied at.
func (g Geometry) Cutout(mask Mask, corner Corner) (dx, dy int16, rects []Rect) {
	b := int16(g.Border)
	cw, ch := g.ContentWidth(), g.ContentHeight()

	if mask == MaskFrame {
		return b, b, []Rect{{X: 0, Y: 0, Width: uint16(cw), Height: uint16(ch)}}
	}

	switch corner {
	case BottomRight:
		return b, b, []Rect{{X: -b, Y: -b, Width: uint16(cw + g.Border), Height: uint16(ch + g.Border)}}
	default:
		return b, b, []Rect{{X: 0, Y: -b, Width: uint16(cw + 2*g.Border), Height: uint16(ch + g.Border)}}
	}
}

// Bracket returns the two segments of the "L" drawn in the corner.
func (g Geometry) Bracket(corner Corner) []Segment {
	w := int16(g.ContentWidth() + 2*g.Border)
	h := int16(g.ContentHeight() + 2*g.Border)
	mid := int16(g.ContentWidth() / 2)

	if corner == BottomRight {
		return []Segment{
			{X1: w - 3, Y1: 1, X2: w - 3, Y2: h - 3},
			{X1: mid, Y1: h - 3, X2: w - 3, Y2: h - 3},
		}
	}
	return []Segment{
		{X1: 1, Y1: 1, X2: 1, Y2: h - 3},
		{X1: 1, Y1: h - 3, X2: mid, Y2: h - 3},
	}
}

// Shaped reports whether the window-relative pixel (x, y) survives the mask.
func (g Geometry) Shaped(mask Mask, corner Corner, x, y int) bool {
	win := g.Window()
	if !(Rect{Width: win.Width, Height: win.Height}).Contains(x, y) {
		return false
	}
	dx, dy, rects := g.Cutout(mask, corner)
	for _, r := range rects {
		r.X += dx
		r.Y += dy
		if r.Contains(x, y) {
			return false
		}
	}
	return true
}
