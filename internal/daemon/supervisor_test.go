package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
	"github.com/Dicklesworthstone/caps-indicator/internal/overlay"
	"github.com/Dicklesworthstone/caps-indicator/internal/overlay/overlaytest"
	"github.com/Dicklesworthstone/caps-indicator/internal/testutil"
)

type fakeKeyboard struct {
	mu      sync.Mutex
	on      bool
	queries int
	closed  bool
	changes chan struct{}
}

func newFakeKeyboard(on bool) *fakeKeyboard {
	return &fakeKeyboard{on: on, changes: make(chan struct{}, 1)}
}

func (k *fakeKeyboard) Set(on bool) {
	k.mu.Lock()
	k.on = on
	k.mu.Unlock()
	select {
	case k.changes <- struct{}{}:
	default:
	}
}

func (k *fakeKeyboard) Changes() <-chan struct{} { return k.changes }

func (k *fakeKeyboard) CapsLock() (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.queries++
	return k.on, nil
}

func (k *fakeKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

func (k *fakeKeyboard) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

type harness struct {
	keyboard  *fakeKeyboard
	caps      *overlaytest.Display
	ime       *overlaytest.Display
	socket    string
	cancel    context.CancelFunc
	errCh     chan error
	capsCtrl  *overlay.Controller
	imeCtrl   *overlay.Controller
	supervise *Supervisor
}

func newHarness(t *testing.T, capsOn bool) *harness {
	t.Helper()
	logger := testutil.TestLogger(t)

	h := &harness{
		keyboard: newFakeKeyboard(capsOn),
		caps:     overlaytest.New(),
		ime:      overlaytest.New(),
		socket:   filepath.Join(t.TempDir(), "caps-indicator.socket"),
		errCh:    make(chan error, 1),
	}
	h.capsCtrl = overlay.NewController("caps",
		overlay.NewRenderer(h.caps, overlay.Options{Corner: overlay.BottomLeft, Mask: overlay.MaskFrame}, logger), logger)
	h.imeCtrl = overlay.NewController("input-method",
		overlay.NewRenderer(h.ime, overlay.Options{Corner: overlay.BottomRight, Mask: overlay.MaskCorner}, logger), logger)

	srv, err := control.Listen(h.socket, logger)
	if err != nil {
		t.Fatalf("control.Listen: %v", err)
	}
	h.supervise, err = NewSupervisor(ServerOptions{
		Keyboard:    h.keyboard,
		Control:     srv,
		Caps:        h.capsCtrl,
		InputMethod: h.imeCtrl,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.errCh <- h.supervise.Run(ctx) }()
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("supervisor did not stop")
		return nil
	}
}

func (h *harness) send(t *testing.T, cmd control.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := control.Send(ctx, h.socket, cmd); err != nil {
		t.Fatalf("Send(%v): %v", cmd, err)
	}
}

// rawWrite bypasses control.Send, which refuses unknown commands.
func rawWrite(path string, payload []byte) error {
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

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func windows(d *overlaytest.Display) func() int {
	return func() int { return len(d.Windows()) }
}

func TestSupervisor_CapsLockOnOff(t *testing.T) {
	h := newHarness(t, false)
	h.start()

	waitFor(t, "socket", func() bool {
		_, err := os.Stat(h.socket)
		return err == nil
	})
	if n := h.caps.Count("Connect"); n != 0 {
		t.Fatalf("caps off at startup but %d connections opened", n)
	}

	h.keyboard.Set(true)
	waitFor(t, "caps overlay shown", func() bool { return windows(h.caps)() == 1 && h.caps.Count("Flush") == 2 })

	h.keyboard.Set(false)
	waitFor(t, "caps overlay hidden", func() bool { return windows(h.caps)() == 0 })

	if err := h.stop(t); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for op, want := range map[string]int{
		"Connect": 1, "CreateWindow": 1, "MapWindow": 1, "DrawSegments": 1, "DestroyWindow": 1, "Close": 1,
	} {
		if n := h.caps.Count(op); n != want {
			t.Errorf("%s called %d times, want %d", op, n, want)
		}
	}
	if n := h.caps.OpenConns(); n != 0 {
		t.Errorf("open connections=%d want 0", n)
	}
	if n := h.ime.Count("Connect"); n != 0 {
		t.Errorf("input-method overlay touched %d times", n)
	}
	if _, err := os.Stat(h.socket); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
	if !h.keyboard.isClosed() {
		t.Errorf("keyboard source not closed")
	}
}

func TestSupervisor_InitialStateApplied(t *testing.T) {
	h := newHarness(t, true)
	h.start()

	waitFor(t, "caps overlay shown", func() bool { return windows(h.caps)() == 1 })

	if err := h.stop(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := h.caps.OpenConns(); n != 0 {
		t.Fatalf("shutdown left %d connections open", n)
	}
	if n := windows(h.caps)(); n != 0 {
		t.Fatalf("shutdown left %d windows", n)
	}
}

func TestSupervisor_ControlProtocol(t *testing.T) {
	h := newHarness(t, false)
	h.start()
	waitFor(t, "socket", func() bool {
		_, err := os.Stat(h.socket)
		return err == nil
	})

	h.send(t, control.Activate)
	waitFor(t, "input-method overlay shown", func() bool { return windows(h.ime)() == 1 })

	// Neither an unknown byte nor an empty payload may hide it; a later
	// activate must then be a no-op.
	if err := rawWrite(h.socket, []byte{'x'}); err != nil {
		t.Fatalf("write x: %v", err)
	}
	if err := rawWrite(h.socket, nil); err != nil {
		t.Fatalf("empty connection: %v", err)
	}
	h.send(t, control.Activate)
	// The server handles one connection at a time, so once this connection
	// is accepted the three before it have been read.
	if err := control.Ping(context.Background(), h.socket); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := windows(h.ime)(); n != 1 {
		t.Fatalf("input-method windows=%d after x, empty and activate, want 1", n)
	}
	if n := h.ime.Count("DestroyWindow"); n != 0 {
		t.Fatalf("input-method overlay destroyed %d times by ignored payloads", n)
	}
	h.send(t, control.Deactivate)
	waitFor(t, "input-method overlay hidden", func() bool { return windows(h.ime)() == 0 })

	if err := h.stop(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := h.ime.Count("Connect"); n != 1 {
		t.Errorf("input-method overlay connected %d times, want 1", n)
	}
	if n := h.ime.Count("DestroyWindow"); n != 1 {
		t.Errorf("input-method overlay destroyed %d times, want 1", n)
	}
	if n := h.caps.Count("Connect"); n != 0 {
		t.Errorf("caps overlay touched by control commands")
	}
}

func TestSupervisor_MonitorClosedIsFatal(t *testing.T) {
	h := newHarness(t, true)
	h.start()
	waitFor(t, "caps overlay shown", func() bool { return windows(h.caps)() == 1 })

	close(h.keyboard.changes)

	select {
	case err := <-h.errCh:
		if !errors.Is(err, ErrMonitorClosed) {
			t.Fatalf("Run err=%v, want ErrMonitorClosed", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("supervisor kept running without a keyboard source")
	}
	h.cancel()
	if n := h.caps.OpenConns(); n != 0 {
		t.Fatalf("open connections=%d want 0", n)
	}
}

func TestSupervisor_ShowFailureIsFatal(t *testing.T) {
	h := newHarness(t, false)
	h.caps.FailOn("CreateWindow", overlaytest.ErrInjected)
	h.start()

	h.keyboard.Set(true)
	select {
	case err := <-h.errCh:
		if !errors.Is(err, overlaytest.ErrInjected) {
			t.Fatalf("Run err=%v, want injected failure", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("supervisor survived a failed show")
	}
	h.cancel()
	if n := h.caps.OpenConns(); n != 0 {
		t.Fatalf("open connections=%d want 0", n)
	}
	if _, err := os.Stat(h.socket); !os.IsNotExist(err) {
		t.Fatalf("socket not removed after failure: %v", err)
	}
}

func TestNewSupervisor_Validation(t *testing.T) {
	if _, err := NewSupervisor(ServerOptions{}); err == nil {
		t.Fatalf("expected error without collaborators")
	}
}
