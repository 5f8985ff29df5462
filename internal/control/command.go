// Package control implements the one-byte command socket that toggles the
// input-method overlay.
package control

// Command is a control-socket command.
type Command byte

const (
	// Activate shows the input-method overlay.
	Activate Command = 'a'
	// Deactivate hides it.
	Deactivate Command = 'd'
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	default:
		return "unknown"
	}
}

// Decode reads the command from the first byte of a payload. ok is false
// for an empty payload or an unrecognised byte.
func Decode(payload []byte) (Command, bool) {
	if len(payload) == 0 {
		return 0, false
	}
	switch c := Command(payload[0]); c {
	case Activate, Deactivate:
		return c, true
	default:
		return 0, false
	}
}

// ParseCommand maps a command name to a Command.
func ParseCommand(name string) (Command, bool) {
	switch name {
	case "activate", "a":
		return Activate, true
	case "deactivate", "d":
		return Deactivate, true
	default:
		return 0, false
	}
}
