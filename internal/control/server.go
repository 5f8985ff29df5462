package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

const (
	// DefaultSocketPath is where the daemon listens.
	DefaultSocketPath = "/tmp/caps-indicator.socket"
	// DefaultReadTimeout bounds how long a client may hold the accept loop.
	DefaultReadTimeout = 500 * time.Millisecond

	backlog    = 5
	maxPayload = 100
)

// Server accepts one command per connection.
type Server struct {
	path        string
	ln          net.Listener
	readTimeout time.Duration
	logger      *log.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithReadTimeout sets the per-connection read deadline. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// Listen removes any stale socket at path and starts listening.
func Listen(path string, logger *log.Logger, opts ...Option) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("socket path is empty")
	}
	if logger == nil {
		logger = log.Default()
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := listenUnix(path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		path:        path,
		ln:          ln,
		readTimeout: DefaultReadTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	logger.Debug("control socket listening", "path", path)
	return s, nil
}

// listenUnix binds with an explicit backlog, which net.Listen does not expose.
func listenUnix(path string) (net.Listener, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(path)
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}

	f := os.NewFile(uintptr(fd), path)
	defer f.Close()
	ln, err := net.FileListener(f)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("wrapping listener: %w", err)
	}
	return ln, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Accept waits for one connection, reads its payload and closes it. ok is
// false when the payload carried no recognised command.
func (s *Server) Accept() (cmd Command, ok bool, err error) {
	conn, err := s.ln.Accept()
	if err != nil {
		return 0, false, err
	}
	defer conn.Close()

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	buf := make([]byte, maxPayload)
	n, rerr := conn.Read(buf)
	if rerr != nil && !errors.Is(rerr, io.EOF) {
		s.logger.Debug("control read failed", "err", rerr)
		return 0, false, nil
	}

	cmd, ok = Decode(buf[:n])
	if !ok {
		s.logger.Debug("ignoring control payload", "bytes", n)
		return 0, false, nil
	}
	return cmd, true, nil
}

// Serve accepts connections and forwards decoded commands to out until ctx
// is cancelled or the server is closed, in which case it returns nil.
func (s *Server) Serve(ctx context.Context, out chan<- Command) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.closeListener()
	})
	defer stop()

	for {
		cmd, ok, err := s.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accepting control connection: %w", err)
		}
		if !ok {
			continue
		}
		s.logger.Debug("control command", "cmd", cmd)
		select {
		case out <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Server) closeListener() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
	})
	return s.closeErr
}

// Close stops listening and removes the socket file.
func (s *Server) Close() error {
	err := s.closeListener()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if rerr := os.Remove(s.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
		return errors.Join(err, fmt.Errorf("removing socket: %w", rerr))
	}
	return err
}
