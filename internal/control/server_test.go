package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dicklesworthstone/caps-indicator/internal/testutil"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	path := testutil.SocketPath(t)
	srv, err := Listen(path, testutil.TestLogger(t), opts...)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func rawSend(path string, payload []byte) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()
	if len(payload) > 0 {
		_, err = conn.Write(payload)
	}
	return err
}

func TestListen(t *testing.T) {
	t.Run("socket is private", func(t *testing.T) {
		srv := newTestServer(t)
		info, err := os.Stat(srv.Path())
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("socket permissions = %o, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails with empty path", func(t *testing.T) {
		if _, err := Listen("", testutil.TestLogger(t)); err == nil {
			t.Fatalf("expected error for empty socket path")
		}
	})

	t.Run("removes stale socket", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stale.sock")
		if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
			t.Fatalf("creating stale file: %v", err)
		}
		srv, err := Listen(path, testutil.TestLogger(t))
		if err != nil {
			t.Fatalf("Listen over stale file: %v", err)
		}
		defer srv.Close()
	})
}

func TestServer_Accept(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name    string
		payload []byte
		want    Command
		ok      bool
	}{
		{"activate", []byte{'a'}, Activate, true},
		{"deactivate", []byte{'d'}, Deactivate, true},
		{"unknown", []byte{'x'}, 0, false},
		{"empty", nil, 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			errc := make(chan error, 1)
			go func() { errc <- rawSend(srv.Path(), tc.payload) }()
			cmd, ok, err := srv.Accept()
			if err != nil {
				t.Fatalf("Accept: %v", err)
			}
			if ok != tc.ok || cmd != tc.want {
				t.Fatalf("Accept=(%v,%v) want (%v,%v)", cmd, ok, tc.want, tc.ok)
			}
			if err := <-errc; err != nil {
				t.Fatalf("send: %v", err)
			}
		})
	}
}

func TestServer_SilentClientTimesOut(t *testing.T) {
	srv := newTestServer(t, WithReadTimeout(50*time.Millisecond))

	conn, err := net.Dial("unix", srv.Path())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok, err := srv.Accept(); ok || err != nil {
			t.Errorf("Accept on silent client: ok=%v err=%v", ok, err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Accept blocked past the read deadline")
	}
}

func TestServe_ForwardsCommandsAndStops(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan Command)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, out) }()

	sendCtx, sendCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sendCancel()

	if err := rawSend(srv.Path(), []byte{'x'}); err != nil {
		t.Fatalf("send x: %v", err)
	}
	if err := Send(sendCtx, srv.Path(), Activate); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case cmd := <-out:
		if cmd != Activate {
			t.Fatalf("got %v want activate", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no command forwarded")
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not stop after cancel")
	}
}

func TestClose_RemovesSocket(t *testing.T) {
	path := testutil.SocketPath(t)
	srv, err := Listen(path, testutil.TestLogger(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("socket still present: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	if err := Send(ctx, filepath.Join(t.TempDir(), "missing.sock"), Activate); err == nil {
		t.Fatalf("expected error with nobody listening")
	}
	if err := Send(ctx, "/nonexistent", Command('x')); err == nil {
		t.Fatalf("expected error for unknown command")
	}
	if err := Ping(ctx, filepath.Join(t.TempDir(), "missing.sock")); err == nil {
		t.Fatalf("expected ping error with nobody listening")
	}
}
