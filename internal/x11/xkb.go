package x11

// xgb ships no XKEYBOARD bindings, so the three requests the monitor needs
// are encoded here the same way xgb's generated extension code does it.

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

const xkbExtension = "XKEYBOARD"

// Minor opcodes.
const (
	xkbUseExtensionOp      = 0
	xkbSelectEventsOp      = 1
	xkbGetIndicatorStateOp = 12
)

// xkbUseCoreKbd selects the core keyboard device.
const xkbUseCoreKbd = 0x0100

const (
	xkbIndicatorStateNotify     = 4
	xkbIndicatorStateNotifyMask = 1 << xkbIndicatorStateNotify
)

// capsLockIndicator is bit 0 of the indicator state.
const capsLockIndicator = 0x01

var errNoReply = errors.New("no reply from server")

// xgb's event constructor table is a process-wide map read by every
// connection's reader goroutine, so it is written once, before any overlay
// connection exists.
var registerXkbEvent sync.Once

// IndicatorStateNotifyEvent is sent when any keyboard indicator changes.
type IndicatorStateNotifyEvent struct {
	XkbType      byte
	Sequence     uint16
	Time         xproto.Timestamp
	DeviceID     byte
	State        uint32
	StateChanged uint32
}

// xkbEventNew decodes the common XKB event header. Only IndicatorStateNotify
// carries fields the monitor reads; other XKB events keep their type.
func xkbEventNew(buf []byte) xgb.Event {
	v := IndicatorStateNotifyEvent{}
	v.XkbType = buf[1]
	v.Sequence = xgb.Get16(buf[2:])
	v.Time = xproto.Timestamp(xgb.Get32(buf[4:]))
	v.DeviceID = buf[8]
	if v.XkbType == xkbIndicatorStateNotify {
		v.State = xgb.Get32(buf[12:])
		v.StateChanged = xgb.Get32(buf[16:])
	}
	return v
}

// Bytes re-encodes the event. The event code is not known here and is left zero.
func (v IndicatorStateNotifyEvent) Bytes() []byte {
	buf := make([]byte, 32)
	buf[1] = v.XkbType
	xgb.Put16(buf[2:], v.Sequence)
	xgb.Put32(buf[4:], uint32(v.Time))
	buf[8] = v.DeviceID
	xgb.Put32(buf[12:], v.State)
	xgb.Put32(buf[16:], v.StateChanged)
	return buf
}

func (v IndicatorStateNotifyEvent) String() string {
	return fmt.Sprintf("XkbIndicatorStateNotify {XkbType: %d, Sequence: %d, State: %#x, StateChanged: %#x}",
		v.XkbType, v.Sequence, v.State, v.StateChanged)
}

// initXkb registers the extension on c and negotiates protocol 1.0.
func initXkb(c *xgb.Conn) error {
	reply, err := xproto.QueryExtension(c, uint16(len(xkbExtension)), xkbExtension).Reply()
	switch {
	case err != nil:
		return fmt.Errorf("querying %s: %w", xkbExtension, err)
	case !reply.Present:
		return fmt.Errorf("no extension named %s on the server", xkbExtension)
	}

	c.ExtLock.Lock()
	c.Extensions[xkbExtension] = reply.MajorOpcode
	c.ExtLock.Unlock()

	first := int(reply.FirstEvent)
	registerXkbEvent.Do(func() {
		xgb.NewEventFuncs[first] = xkbEventNew
	})

	supported, err := xkbUseExtension(c, 1, 0)
	if err != nil {
		return fmt.Errorf("enabling %s: %w", xkbExtension, err)
	}
	if !supported {
		return fmt.Errorf("server does not support %s 1.0", xkbExtension)
	}
	return nil
}

func xkbOpcode(c *xgb.Conn) byte {
	c.ExtLock.RLock()
	defer c.ExtLock.RUnlock()
	return c.Extensions[xkbExtension]
}

func xkbUseExtension(c *xgb.Conn, major, minor uint16) (bool, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(useExtensionRequest(xkbOpcode(c), major, minor), cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return false, err
	}
	if len(reply) < 2 {
		return false, errNoReply
	}
	return reply[1] != 0, nil
}

// xkbSelectIndicatorEvents asks for IndicatorStateNotify on the core keyboard.
func xkbSelectIndicatorEvents(c *xgb.Conn) error {
	cookie := c.NewCookie(true, false)
	c.NewRequest(selectIndicatorEventsRequest(xkbOpcode(c)), cookie)
	return cookie.Check()
}

func xkbGetIndicatorState(c *xgb.Conn) (uint32, error) {
	cookie := c.NewCookie(true, true)
	c.NewRequest(getIndicatorStateRequest(xkbOpcode(c)), cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return 0, err
	}
	if len(reply) < 12 {
		return 0, errNoReply
	}
	return xgb.Get32(reply[8:]), nil
}

func useExtensionRequest(opcode byte, major, minor uint16) []byte {
	buf := make([]byte, 8)
	buf[0] = opcode
	buf[1] = xkbUseExtensionOp
	xgb.Put16(buf[2:], uint16(len(buf)/4))
	xgb.Put16(buf[4:], major)
	xgb.Put16(buf[6:], minor)
	return buf
}

// selectIndicatorEventsRequest puts every affected bit in selectAll, so no
// per-event details follow the fixed part.
func selectIndicatorEventsRequest(opcode byte) []byte {
	buf := make([]byte, 16)
	buf[0] = opcode
	buf[1] = xkbSelectEventsOp
	xgb.Put16(buf[2:], uint16(len(buf)/4))
	// deviceSpec, affectWhich, clear, selectAll, affectMap, map
	xgb.Put16(buf[4:], xkbUseCoreKbd)
	xgb.Put16(buf[6:], xkbIndicatorStateNotifyMask)
	xgb.Put16(buf[8:], 0)
	xgb.Put16(buf[10:], xkbIndicatorStateNotifyMask)
	xgb.Put16(buf[12:], 0)
	xgb.Put16(buf[14:], 0)
	return buf
}

func getIndicatorStateRequest(opcode byte) []byte {
	buf := make([]byte, 8)
	buf[0] = opcode
	buf[1] = xkbGetIndicatorStateOp
	xgb.Put16(buf[2:], uint16(len(buf)/4))
	xgb.Put16(buf[4:], xkbUseCoreKbd)
	return buf
}
