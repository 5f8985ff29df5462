package overlay

import "errors"

// Window is a server-side window id.
type Window uint32

// EventKind classifies the events the renderer cares about.
type EventKind int

const (
	// EventOther is anything that is not an Expose.
	EventOther EventKind = iota
	// EventExpose means part of a window needs drawing.
	EventExpose
)

// Event is the reduced form of a protocol event.
type Event struct {
	Kind   EventKind
	Window Window
}

// ErrConnectionClosed is returned by Conn.NextEvent once the connection is gone.
var ErrConnectionClosed = errors.New("display connection closed")

// Display opens fresh connections to the windowing system.
type Display interface {
	Connect() (Conn, error)
}

// Conn is the slice of the windowing protocol an overlay needs. Each Conn
// is owned by exactly one overlay Context.
type Conn interface {
	// Screen returns the size of the connection's default screen.
	Screen() (Screen, error)
	// CreateWindow creates an unmapped override-redirect window that selects
	// Exposure and StructureNotify.
	CreateWindow(r Rect) (Window, error)
	// SubtractShape removes rects, offset by (dx, dy), from the bounding shape.
	SubtractShape(w Window, dx, dy int16, rects []Rect) error
	// ClearInputShape makes the window transparent to pointer input.
	ClearInputShape(w Window) error
	MoveWindow(w Window, x, y int16) error
	MapWindow(w Window) error
	// NextEvent blocks for the next event on the connection.
	NextEvent() (Event, error)
	DrawSegments(w Window, style Style, segs []Segment) error
	// Flush blocks until the server has processed every request sent so far.
	Flush() error
	// DestroyWindow is checked: a returned error means the connection is unusable.
	DestroyWindow(w Window) error
	Close() error
}
