// Package daemon keeps a single detached instance alive and runs the loop
// that drives both overlays.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
	"github.com/Dicklesworthstone/caps-indicator/internal/overlay"
)

// ErrMonitorClosed means the keyboard monitor lost its display connection.
var ErrMonitorClosed = errors.New("keyboard monitor connection closed")

var errControlClosed = errors.New("control socket closed")

// IndicatorSource reports Caps-Lock changes.
type IndicatorSource interface {
	// Changes fires when the indicator state may have changed and is
	// closed when the source ends.
	Changes() <-chan struct{}
	// CapsLock returns the live state.
	CapsLock() (bool, error)
	Close() error
}

// ServerOptions wires the supervisor to its collaborators. The supervisor
// owns all of them once Run starts.
type ServerOptions struct {
	Keyboard IndicatorSource
	Control  *control.Server
	// Caps follows the Caps-Lock indicator.
	Caps *overlay.Controller
	// InputMethod follows control socket commands.
	InputMethod *overlay.Controller
	Logger      *log.Logger
}

// Supervisor multiplexes the keyboard and the control socket onto the two
// overlay controllers. Only the Run goroutine touches the controllers.
type Supervisor struct {
	keyboard IndicatorSource
	server   *control.Server
	caps     *overlay.Controller
	ime      *overlay.Controller
	logger   *log.Logger
}

// NewSupervisor validates opts and returns a supervisor ready to Run.
func NewSupervisor(opts ServerOptions) (*Supervisor, error) {
	switch {
	case opts.Keyboard == nil:
		return nil, fmt.Errorf("keyboard source is required")
	case opts.Control == nil:
		return nil, fmt.Errorf("control server is required")
	case opts.Caps == nil || opts.InputMethod == nil:
		return nil, fmt.Errorf("both overlay controllers are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{
		keyboard: opts.Keyboard,
		server:   opts.Control,
		caps:     opts.Caps,
		ime:      opts.InputMethod,
		logger:   logger,
	}, nil
}

// Run applies the current Caps-Lock state and then services both sources
// until ctx is cancelled or one of them fails. Cancellation is a clean
// shutdown and returns nil. On return both overlays are hidden, the socket
// is removed and the keyboard source is closed.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancel(ctx)

	commands := make(chan control.Command)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(ctx, commands)
	}()

	serving := true
	defer func() {
		cancel()
		if serving {
			if serr := <-serveErr; serr != nil && err == nil {
				err = serr
			}
		}
		err = errors.Join(err, s.shutdown())
	}()

	if err := s.syncCaps(); err != nil {
		return err
	}
	s.logger.Info("running", "socket", s.server.Path(), "caps", s.caps.Visible())

	changes := s.keyboard.Changes()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			return nil

		case _, ok := <-changes:
			if !ok {
				return ErrMonitorClosed
			}
			if err := s.syncCaps(); err != nil {
				return err
			}

		case serr := <-serveErr:
			serving = false
			if ctx.Err() != nil {
				return nil
			}
			if serr == nil {
				serr = errControlClosed
			}
			return serr

		case cmd := <-commands:
			s.logger.Debug("command", "cmd", cmd)
			if err := s.ime.Set(cmd == control.Activate); err != nil {
				return err
			}
		}
	}
}

// syncCaps re-reads the indicator instead of trusting the notification.
func (s *Supervisor) syncCaps() error {
	on, err := s.keyboard.CapsLock()
	if err != nil {
		return err
	}
	s.logger.Debug("caps lock", "on", on)
	return s.caps.Set(on)
}

func (s *Supervisor) shutdown() error {
	var errs []error
	for _, c := range []*overlay.Controller{s.caps, s.ime} {
		if err := c.Hide(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.server.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.keyboard.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
