// Package overlay draws and tracks the click-through border windows that
// signal Caps-Lock and input-method state.
//
// A window is shape-masked instead of drawn with a transparent interior:
// without a compositor there is no alpha, and a subtracted shape is the only
// way to keep the interior both invisible and click-through.
package overlay

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// DefaultColor is the crimson used for the bracket.
const DefaultColor = 0xDC143C

// DefaultBorder is the frame thickness in pixels.
const DefaultBorder = 24

const whitePixel = 0xFFFFFF

// Options describe one overlay.
type Options struct {
	Corner Corner
	Mask   Mask
	Border int
	Color  uint32
}

// Renderer creates overlay windows on fresh display connections.
type Renderer struct {
	display Display
	opts    Options
	logger  *log.Logger
}

// NewRenderer creates a renderer. Zero Border and Color fall back to the defaults.
func NewRenderer(display Display, opts Options, logger *log.Logger) *Renderer {
	if opts.Border == 0 {
		opts.Border = DefaultBorder
	}
	if opts.Color == 0 {
		opts.Color = DefaultColor
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Renderer{
		display: display,
		opts:    opts,
		logger:  logger,
	}
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// Context is one live overlay window and the connection that owns it.
// Destroy releases both and is safe to call on every exit path.
type Context struct {
	conn     Conn
	geometry Geometry
	window   *Window
	corner   Corner
	style    Style
	closed   bool
}

// Create opens a connection, reads the current screen size and creates the
// shaped, unmapped window.
func (r *Renderer) Create() (*Context, error) {
	conn, err := r.display.Connect()
	if err != nil {
		return nil, fmt.Errorf("connecting to display: %w", err)
	}

	ctx := &Context{
		conn:   conn,
		corner: r.opts.Corner,
		style: Style{
			Foreground: r.opts.Color,
			Background: whitePixel,
			LineWidth:  r.opts.Border,
		},
	}

	screen, err := conn.Screen()
	if err != nil {
		return nil, ctx.abort(fmt.Errorf("querying screen: %w", err))
	}
	geom, err := NewGeometry(screen, r.opts.Border)
	if err != nil {
		return nil, ctx.abort(err)
	}
	ctx.geometry = geom

	win, err := conn.CreateWindow(geom.Window())
	if err != nil {
		return nil, ctx.abort(fmt.Errorf("creating window: %w", err))
	}
	ctx.window = &win

	dx, dy, cut := geom.Cutout(r.opts.Mask, r.opts.Corner)
	if err := conn.SubtractShape(win, dx, dy, cut); err != nil {
		return nil, ctx.abort(fmt.Errorf("shaping window: %w", err))
	}
	if err := conn.ClearInputShape(win); err != nil {
		return nil, ctx.abort(fmt.Errorf("clearing input shape: %w", err))
	}

	r.logger.Debug("window created",
		"corner", r.opts.Corner,
		"mask", r.opts.Mask,
		"width", screen.Width,
		"height", screen.Height,
		"border", r.opts.Border,
	)
	return ctx, nil
}

func (c *Context) abort(err error) error {
	if derr := c.Destroy(); derr != nil {
		return errors.Join(err, derr)
	}
	return err
}

// Geometry returns the layout computed at creation.
func (c *Context) Geometry() Geometry {
	return c.geometry
}

// Window returns the window id, or false once destroyed.
func (c *Context) Window() (Window, bool) {
	if c.window == nil {
		return 0, false
	}
	return *c.window, true
}

// Position moves the window so that content position (x, y) lands one
// border inside the window's origin.
func (c *Context) Position(x, y int) error {
	if c.window == nil {
		return fmt.Errorf("position: no window")
	}
	wx, wy := c.geometry.Origin(x, y)
	if err := c.conn.MoveWindow(*c.window, wx, wy); err != nil {
		return fmt.Errorf("moving window: %w", err)
	}
	return nil
}

// Map shows the window and waits for the server to take the request.
func (c *Context) Map() error {
	if c.window == nil {
		return fmt.Errorf("map: no window")
	}
	if err := c.conn.MapWindow(*c.window); err != nil {
		return fmt.Errorf("mapping window: %w", err)
	}
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flushing map: %w", err)
	}
	return nil
}

// WaitForExposeThenDraw blocks until the window is exposed, then draws the
// corner bracket. Every other event is discarded.
func (c *Context) WaitForExposeThenDraw() error {
	if c.window == nil {
		return fmt.Errorf("draw: no window")
	}
	for {
		ev, err := c.conn.NextEvent()
		if err != nil {
			return fmt.Errorf("waiting for expose: %w", err)
		}
		if ev.Kind == EventExpose && ev.Window == *c.window {
			break
		}
	}

	if err := c.conn.DrawSegments(*c.window, c.style, c.geometry.Bracket(c.corner)); err != nil {
		return fmt.Errorf("drawing bracket: %w", err)
	}
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("flushing draw: %w", err)
	}
	return nil
}

// Destroy issues a checked destroy for the window, flushes and disconnects.
// Any error means the connection was corrupt. Calling it again is a no-op.
func (c *Context) Destroy() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.window != nil {
		if err := c.conn.DestroyWindow(*c.window); err != nil {
			errs = append(errs, fmt.Errorf("destroying window: %w", err))
		} else if err := c.conn.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flushing destroy: %w", err))
		}
		c.window = nil
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing connection: %w", err))
	}
	return errors.Join(errs...)
}

// Release is Destroy for deferred cleanup where the error has nowhere to go.
func (c *Context) Release() {
	_ = c.Destroy()
}
