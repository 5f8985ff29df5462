package x11

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jezek/xgb"
)

// Monitor watches the keyboard indicators on one long-lived connection.
type Monitor struct {
	conn    *xgb.Conn
	changes chan struct{}
	done    chan struct{}
	logger  *log.Logger

	closeOnce sync.Once
}

// OpenMonitor connects to display, enables XKEYBOARD and subscribes to
// indicator changes on the core keyboard.
func OpenMonitor(display string, logger *log.Logger) (*Monitor, error) {
	if logger == nil {
		logger = log.Default()
	}
	c, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("cannot open display %q: %w", display, err)
	}
	if err := initXkb(c); err != nil {
		c.Close()
		return nil, err
	}
	if err := xkbSelectIndicatorEvents(c); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribing to indicator events: %w", err)
	}

	m := &Monitor{
		conn:    c,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go m.pump()
	return m, nil
}

// Changes fires after one or more indicator notifications. Notifications
// that arrive before the last one was received collapse into one. The
// channel is closed when the connection ends.
func (m *Monitor) Changes() <-chan struct{} {
	return m.changes
}

// CapsLock queries the live indicator state.
func (m *Monitor) CapsLock() (bool, error) {
	state, err := xkbGetIndicatorState(m.conn)
	if err != nil {
		return false, fmt.Errorf("querying indicator state: %w", err)
	}
	return state&capsLockIndicator != 0, nil
}

// Close disconnects and waits for the event pump to stop.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.conn.Close()
	})
	<-m.done
	return nil
}

func (m *Monitor) pump() {
	defer close(m.done)
	defer close(m.changes)

	for {
		ev, xerr := m.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			m.logger.Debug("monitor connection closed")
			return
		}
		if xerr != nil {
			m.logger.Debug("x error on monitor connection", "err", xerr)
			continue
		}
		e, ok := ev.(IndicatorStateNotifyEvent)
		if !ok || e.XkbType != xkbIndicatorStateNotify {
			continue
		}
		m.logger.Debug("indicator changed", "state", e.State, "changed", e.StateChanged)
		select {
		case m.changes <- struct{}{}:
		default:
		}
	}
}
