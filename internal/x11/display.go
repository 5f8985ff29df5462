// Package x11 connects the overlay and keyboard monitor to an X server
// through github.com/jezek/xgb.
package x11

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/shape"
	"github.com/jezek/xgb/xproto"

	"github.com/Dicklesworthstone/caps-indicator/internal/overlay"
)

const shapeExtension = "SHAPE"

// RouteLogs sends xgb's internal diagnostics through logger at debug level.
func RouteLogs(logger *log.Logger) {
	if logger == nil {
		xgb.Logger.SetOutput(io.Discard)
		return
	}
	xgb.Logger = logger.WithPrefix("xgb").StandardLog(log.StandardLogOptions{
		ForceLevel: log.DebugLevel,
	})
}

// Display implements overlay.Display by opening a new X connection per call.
type Display struct {
	name string
}

// NewDisplay returns a Display for the given DISPLAY string; empty means $DISPLAY.
func NewDisplay(name string) *Display {
	return &Display{name: name}
}

// Connect opens a connection and resolves its default screen.
func (d *Display) Connect() (overlay.Conn, error) {
	c, err := xgb.NewConnDisplay(d.name)
	if err != nil {
		return nil, fmt.Errorf("cannot open display %q: %w", d.name, err)
	}

	setup := xproto.Setup(c)
	if c.DefaultScreen < 0 || c.DefaultScreen >= len(setup.Roots) {
		c.Close()
		return nil, fmt.Errorf("screen %d: %w", c.DefaultScreen, overlay.ErrNoScreen)
	}

	if err := useShape(c); err != nil {
		c.Close()
		return nil, err
	}

	return &conn{X: c, screen: setup.DefaultScreen(c)}, nil
}

// useShape registers SHAPE on c. shape.Init would also write ShapeNotify
// into xgb's process-wide event table while the monitor's reader goroutine
// may be reading it; ShapeNotify is never selected, so the opcode suffices.
func useShape(c *xgb.Conn) error {
	reply, err := xproto.QueryExtension(c, uint16(len(shapeExtension)), shapeExtension).Reply()
	switch {
	case err != nil:
		return fmt.Errorf("querying %s: %w", shapeExtension, err)
	case !reply.Present:
		return fmt.Errorf("no extension named %s on the server", shapeExtension)
	}
	c.ExtLock.Lock()
	c.Extensions[shapeExtension] = reply.MajorOpcode
	c.ExtLock.Unlock()
	return nil
}

type conn struct {
	X      *xgb.Conn
	screen *xproto.ScreenInfo
}

func (c *conn) Screen() (overlay.Screen, error) {
	if c.screen == nil {
		return overlay.Screen{}, overlay.ErrNoScreen
	}
	return overlay.Screen{
		Width:  c.screen.WidthInPixels,
		Height: c.screen.HeightInPixels,
	}, nil
}

func (c *conn) CreateWindow(r overlay.Rect) (overlay.Window, error) {
	wid, err := xproto.NewWindowId(c.X)
	if err != nil {
		return 0, fmt.Errorf("allocating window id: %w", err)
	}

	mask := uint32(xproto.CwOverrideRedirect | xproto.CwEventMask)
	values := []uint32{
		1,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(c.X, c.screen.RootDepth, wid, c.screen.Root,
		r.X, r.Y, r.Width, r.Height, 0,
		xproto.WindowClassInputOutput, c.screen.RootVisual,
		mask, values).Check()
	if err != nil {
		return 0, err
	}
	return overlay.Window(wid), nil
}

func (c *conn) SubtractShape(w overlay.Window, dx, dy int16, rects []overlay.Rect) error {
	xr := make([]xproto.Rectangle, len(rects))
	for i, r := range rects {
		xr[i] = xproto.Rectangle{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
	}
	return shape.RectanglesChecked(c.X, shape.SoSubtract, shape.SkBounding,
		xproto.ClipOrderingUnsorted, xproto.Window(w), dx, dy, xr).Check()
}

// ClearInputShape sets an empty input region so pointer events fall through.
func (c *conn) ClearInputShape(w overlay.Window) error {
	return shape.RectanglesChecked(c.X, shape.SoSet, shape.SkInput,
		xproto.ClipOrderingUnsorted, xproto.Window(w), 0, 0, nil).Check()
}

func (c *conn) MoveWindow(w overlay.Window, x, y int16) error {
	return xproto.ConfigureWindowChecked(c.X, xproto.Window(w),
		xproto.ConfigWindowX|xproto.ConfigWindowY,
		[]uint32{uint32(int32(x)), uint32(int32(y))}).Check()
}

func (c *conn) MapWindow(w overlay.Window) error {
	return xproto.MapWindowChecked(c.X, xproto.Window(w)).Check()
}

func (c *conn) NextEvent() (overlay.Event, error) {
	ev, xerr := c.X.WaitForEvent()
	switch {
	case ev == nil && xerr == nil:
		return overlay.Event{}, overlay.ErrConnectionClosed
	case xerr != nil:
		return overlay.Event{}, fmt.Errorf("x error: %w", xerr)
	}
	if e, ok := ev.(xproto.ExposeEvent); ok {
		return overlay.Event{Kind: overlay.EventExpose, Window: overlay.Window(e.Window)}, nil
	}
	return overlay.Event{Kind: overlay.EventOther}, nil
}

func (c *conn) DrawSegments(w overlay.Window, style overlay.Style, segs []overlay.Segment) error {
	gc, err := xproto.NewGcontextId(c.X)
	if err != nil {
		return fmt.Errorf("allocating gc id: %w", err)
	}

	mask := uint32(xproto.GcForeground | xproto.GcBackground | xproto.GcLineWidth |
		xproto.GcLineStyle | xproto.GcFillStyle)
	values := []uint32{
		style.Foreground,
		style.Background,
		uint32(style.LineWidth),
		xproto.LineStyleSolid,
		xproto.FillStyleOpaqueStippled,
	}
	if err := xproto.CreateGCChecked(c.X, gc, xproto.Drawable(w), mask, values).Check(); err != nil {
		return fmt.Errorf("creating gc: %w", err)
	}
	defer xproto.FreeGC(c.X, gc)

	xs := make([]xproto.Segment, len(segs))
	for i, s := range segs {
		xs[i] = xproto.Segment{X1: s.X1, Y1: s.Y1, X2: s.X2, Y2: s.Y2}
	}
	return xproto.PolySegmentChecked(c.X, xproto.Drawable(w), gc, xs).Check()
}

// Flush makes a round trip so every earlier request has reached the server.
func (c *conn) Flush() error {
	if _, err := xproto.GetInputFocus(c.X).Reply(); err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	return nil
}

func (c *conn) DestroyWindow(w overlay.Window) error {
	return xproto.DestroyWindowChecked(c.X, xproto.Window(w)).Check()
}

func (c *conn) Close() error {
	c.X.Close()
	return nil
}
