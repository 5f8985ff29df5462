package control

import (
	"context"
	"fmt"
	"net"
	"time"
)

const dialTimeout = 500 * time.Millisecond

// Send delivers one command to the daemon listening at path.
func Send(ctx context.Context, path string, cmd Command) error {
	if _, ok := Decode([]byte{byte(cmd)}); !ok {
		return fmt.Errorf("unknown command %q", byte(cmd))
	}
	conn, err := dial(ctx, path)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte{byte(cmd)}); err != nil {
		return fmt.Errorf("write %s: %w", cmd, err)
	}
	return nil
}

// Ping reports whether something accepts connections at path. The daemon
// sees an empty payload and ignores it.
func Ping(ctx context.Context, path string) error {
	conn, err := dial(ctx, path)
	if err != nil {
		return err
	}
	return conn.Close()
}

func dial(ctx context.Context, path string) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}
