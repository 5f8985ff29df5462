// Package overlaytest provides an in-memory overlay.Display that records
// every request, for tests of code that shows and hides overlays.
package overlaytest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Dicklesworthstone/caps-indicator/internal/overlay"
)

// ErrInjected is a ready-made error for FailOn.
var ErrInjected = errors.New("injected failure")

// Display is a fake display server. The zero value is not usable; use New.
type Display struct {
	mu sync.Mutex

	screen overlay.Screen
	// noise is the number of non-Expose events queued ahead of each Expose.
	noise int
	fail  map[string]error

	nextID  uint32
	conns   []*Conn
	calls   []string
	windows map[overlay.Window]*WindowState
}

// WindowState is what the fake server knows about one window.
type WindowState struct {
	Rect     overlay.Rect
	Mapped   bool
	Cutouts  []overlay.Rect
	CutoutDX int16
	CutoutDY int16
	NoInput  bool
	Segments []overlay.Segment
	Style    overlay.Style
}

// Option configures a fake Display.
type Option func(*Display)

// WithScreen sets the screen size reported to new connections.
func WithScreen(width, height uint16) Option {
	return func(d *Display) {
		d.screen = overlay.Screen{Width: width, Height: height}
	}
}

// WithNoise delivers n unrelated events ahead of every Expose.
func WithNoise(n int) Option {
	return func(d *Display) {
		d.noise = n
	}
}

// New creates a fake display with a 1920x1080 screen.
func New(opts ...Option) *Display {
	d := &Display{
		screen:  overlay.Screen{Width: 1920, Height: 1080},
		fail:    make(map[string]error),
		nextID:  0x200000,
		windows: make(map[overlay.Window]*WindowState),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailOn makes every future call to op return err. Ops are the Conn method
// names plus "Connect".
func (d *Display) FailOn(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

// SetScreen changes the size reported to later connections.
func (d *Display) SetScreen(width, height uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = overlay.Screen{Width: width, Height: height}
}

func (d *Display) record(op string) error {
	d.calls = append(d.calls, op)
	return d.fail[op]
}

// Connect implements overlay.Display.
func (d *Display) Connect() (overlay.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record("Connect"); err != nil {
		return nil, err
	}
	c := &Conn{display: d, screen: d.screen}
	d.conns = append(d.conns, c)
	return c, nil
}

// Calls returns every operation recorded so far, in order.
func (d *Display) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Count returns how many times op was called.
func (d *Display) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls but keeps connections and windows.
func (d *Display) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// OpenConns returns the number of connections not yet closed.
func (d *Display) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.conns {
		if !c.closed {
			n++
		}
	}
	return n
}

// Windows returns a copy of every live window.
func (d *Display) Windows() map[overlay.Window]WindowState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[overlay.Window]WindowState, len(d.windows))
	for id, w := range d.windows {
		out[id] = *w
	}
	return out
}

// Conn is a fake connection handed out by Display.
type Conn struct {
	display *Display
	screen  overlay.Screen
	closed  bool
	owned   []overlay.Window
	pending []overlay.Event
}

func (c *Conn) op(name string) error {
	if c.closed {
		c.display.calls = append(c.display.calls, name)
		return fmt.Errorf("%s on closed connection", name)
	}
	return c.display.record(name)
}

func (c *Conn) window(w overlay.Window) (*WindowState, error) {
	st, ok := c.display.windows[w]
	if !ok {
		return nil, fmt.Errorf("bad window 0x%x", uint32(w))
	}
	return st, nil
}

// Screen implements overlay.Conn.
func (c *Conn) Screen() (overlay.Screen, error) {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("Screen"); err != nil {
		return overlay.Screen{}, err
	}
	return c.screen, nil
}

// CreateWindow implements overlay.Conn.
func (c *Conn) CreateWindow(r overlay.Rect) (overlay.Window, error) {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("CreateWindow"); err != nil {
		return 0, err
	}
	c.display.nextID++
	id := overlay.Window(c.display.nextID)
	c.display.windows[id] = &WindowState{Rect: r}
	c.owned = append(c.owned, id)
	return id, nil
}

// SubtractShape implements overlay.Conn.
func (c *Conn) SubtractShape(w overlay.Window, dx, dy int16, rects []overlay.Rect) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("SubtractShape"); err != nil {
		return err
	}
	st, err := c.window(w)
	if err != nil {
		return err
	}
	st.Cutouts = append([]overlay.Rect(nil), rects...)
	st.CutoutDX, st.CutoutDY = dx, dy
	return nil
}

// ClearInputShape implements overlay.Conn.
func (c *Conn) ClearInputShape(w overlay.Window) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("ClearInputShape"); err != nil {
		return err
	}
	st, err := c.window(w)
	if err != nil {
		return err
	}
	st.NoInput = true
	return nil
}

// MoveWindow implements overlay.Conn.
func (c *Conn) MoveWindow(w overlay.Window, x, y int16) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("MoveWindow"); err != nil {
		return err
	}
	st, err := c.window(w)
	if err != nil {
		return err
	}
	st.Rect.X, st.Rect.Y = x, y
	return nil
}

// MapWindow implements overlay.Conn. Mapping queues the noise events and
// the Expose the renderer waits for.
func (c *Conn) MapWindow(w overlay.Window) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("MapWindow"); err != nil {
		return err
	}
	st, err := c.window(w)
	if err != nil {
		return err
	}
	st.Mapped = true
	for i := 0; i < c.display.noise; i++ {
		c.pending = append(c.pending, overlay.Event{Kind: overlay.EventOther, Window: w})
	}
	c.pending = append(c.pending, overlay.Event{Kind: overlay.EventExpose, Window: w})
	return nil
}

// NextEvent implements overlay.Conn. With nothing queued it reports the
// connection as closed instead of blocking forever.
func (c *Conn) NextEvent() (overlay.Event, error) {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("NextEvent"); err != nil {
		return overlay.Event{}, err
	}
	if len(c.pending) == 0 {
		return overlay.Event{}, overlay.ErrConnectionClosed
	}
	ev := c.pending[0]
	c.pending = c.pending[1:]
	return ev, nil
}

// DrawSegments implements overlay.Conn.
func (c *Conn) DrawSegments(w overlay.Window, style overlay.Style, segs []overlay.Segment) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("DrawSegments"); err != nil {
		return err
	}
	st, err := c.window(w)
	if err != nil {
		return err
	}
	st.Style = style
	st.Segments = append(st.Segments, segs...)
	return nil
}

// Flush implements overlay.Conn.
func (c *Conn) Flush() error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	return c.op("Flush")
}

// DestroyWindow implements overlay.Conn.
func (c *Conn) DestroyWindow(w overlay.Window) error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if err := c.op("DestroyWindow"); err != nil {
		return err
	}
	if _, err := c.window(w); err != nil {
		return err
	}
	delete(c.display.windows, w)
	return nil
}

// Close implements overlay.Conn. Windows still owned by the connection are
// destroyed by the server, as X does on disconnect.
func (c *Conn) Close() error {
	c.display.mu.Lock()
	defer c.display.mu.Unlock()
	if c.closed {
		return nil
	}
	c.display.calls = append(c.display.calls, "Close")
	c.closed = true
	for _, w := range c.owned {
		delete(c.display.windows, w)
	}
	c.pending = nil
	return c.display.fail["Close"]
}
