package overlay

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Controller owns the lifecycle of one overlay. It is either Hidden (no
// context) or Visible (a drawn window); there is no state in between.
//
// Controller is not safe for concurrent use; the daemon loop is its only caller.
type Controller struct {
	name     string
	renderer *Renderer
	ctx      *Context
	logger   *log.Logger
}

// NewController creates a hidden controller.
func NewController(name string, renderer *Renderer, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		name:     name,
		renderer: renderer,
		logger:   logger.With("overlay", name),
	}
}

// Name identifies the overlay in logs.
func (c *Controller) Name() string {
	return c.name
}

// Visible reports whether a window is currently shown.
func (c *Controller) Visible() bool {
	return c.ctx != nil
}

// Show creates, places, maps and draws the window, returning only after
// the bracket is on screen. It is a no-op when already visible. On failure
// the partial window is torn down and the controller stays hidden.
func (c *Controller) Show() error {
	if c.ctx != nil {
		return nil
	}

	ctx, err := c.renderer.Create()
	if err != nil {
		return fmt.Errorf("%s overlay: %w", c.name, err)
	}

	border := c.renderer.Options().Border
	if err := c.present(ctx, border); err != nil {
		if derr := ctx.Destroy(); derr != nil {
			c.logger.Error("releasing half-built overlay", "err", derr)
		}
		return fmt.Errorf("%s overlay: %w", c.name, err)
	}

	c.ctx = ctx
	c.logger.Debug("overlay shown")
	return nil
}

func (c *Controller) present(ctx *Context, border int) error {
	if err := ctx.Position(border, border); err != nil {
		return err
	}
	if err := ctx.Map(); err != nil {
		return err
	}
	return ctx.WaitForExposeThenDraw()
}

// Hide destroys the window. It is a no-op when already hidden. The
// controller is hidden afterwards even if the destroy fails.
func (c *Controller) Hide() error {
	if c.ctx == nil {
		return nil
	}
	ctx := c.ctx
	c.ctx = nil
	if err := ctx.Destroy(); err != nil {
		return fmt.Errorf("%s overlay: %w", c.name, err)
	}
	c.logger.Debug("overlay hidden")
	return nil
}

// Set shows the overlay when on is true and hides it otherwise.
func (c *Controller) Set(on bool) error {
	if on {
		return c.Show()
	}
	return c.Hide()
}
