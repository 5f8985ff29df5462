package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const lockHelperEnv = "CAPS_INDICATOR_LOCK_HELPER"

// TestPIDLockHelperProcess is not a real test. It runs in a child process
// and tries to take the lock named by lockHelperEnv. On success it prints
// "acquired" and holds the lock until stdin is closed; otherwise it prints
// the holder pid and exits 1.
func TestPIDLockHelperProcess(t *testing.T) {
	path := os.Getenv(lockHelperEnv)
	if path == "" {
		t.Skip("helper process only")
	}
	lock, err := OpenPIDLock(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	err = lock.TryLock()
	var running *AlreadyRunningError
	if errors.As(err, &running) {
		fmt.Println(running.PID)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println("acquired")
	_, _ = io.Copy(io.Discard, os.Stdin)
	os.Exit(0)
}

type lockHelper struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Reader
}

func startLockHelper(t *testing.T, path string) *lockHelper {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^TestPIDLockHelperProcess$")
	cmd.Env = append(os.Environ(), lockHelperEnv+"="+path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatalf("stdout pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("starting helper: %v", err)
	}
	return &lockHelper{cmd: cmd, stdin: stdin, out: bufio.NewReader(stdout)}
}

func (h *lockHelper) firstLine(t *testing.T) string {
	t.Helper()
	line, err := h.out.ReadString('\n')
	if err != nil {
		t.Fatalf("reading helper output: %v", err)
	}
	return strings.TrimSpace(line)
}

// finish releases the helper and returns its exit code.
func (h *lockHelper) finish(t *testing.T) int {
	t.Helper()
	_ = h.stdin.Close()
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("waiting for helper: %v", err)
	}
	return 0
}

func TestPIDLock_SecondProcessSeesHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capslock.pid")

	lock, err := OpenPIDLock(path)
	if err != nil {
		t.Fatalf("OpenPIDLock: %v", err)
	}
	defer lock.Close()
	if err := lock.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	h := startLockHelper(t, path)
	got := h.firstLine(t)
	if code := h.finish(t); code != 1 {
		t.Fatalf("helper exit code=%d want 1", code)
	}
	if want := strconv.Itoa(os.Getpid()); got != want {
		t.Fatalf("helper reported holder %q, want %s", got, want)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h = startLockHelper(t, path)
	if got := h.firstLine(t); got != "acquired" {
		t.Fatalf("after release helper said %q, want acquired", got)
	}
	if code := h.finish(t); code != 0 {
		t.Fatalf("helper exit code=%d want 0", code)
	}
}

func TestPIDLock_TwoProcessesRace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capslock.pid")

	a := startLockHelper(t, path)
	b := startLockHelper(t, path)
	lineA, lineB := a.firstLine(t), b.firstLine(t)

	var winner, loser *lockHelper
	var loserLine string
	switch {
	case lineA == "acquired" && lineB != "acquired":
		winner, loser, loserLine = a, b, lineB
	case lineB == "acquired" && lineA != "acquired":
		winner, loser, loserLine = b, a, lineA
	default:
		a.finish(t)
		b.finish(t)
		t.Fatalf("want exactly one winner, got %q and %q", lineA, lineB)
	}

	if want := strconv.Itoa(winner.cmd.Process.Pid); loserLine != want {
		t.Errorf("loser reported holder %q, want winner pid %s", loserLine, want)
	}
	if code := loser.finish(t); code != 1 {
		t.Errorf("loser exit code=%d want 1", code)
	}
	if code := winner.finish(t); code != 0 {
		t.Errorf("winner exit code=%d want 0", code)
	}
}

func TestPIDLock_HolderIgnoresOwnLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capslock.pid")
	lock, err := OpenPIDLock(path)
	if err != nil {
		t.Fatalf("OpenPIDLock: %v", err)
	}
	defer lock.Close()

	if err := lock.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if err := lock.TryLock(); err != nil {
		t.Fatalf("re-locking own lock: %v", err)
	}
	pid, err := lock.Holder()
	if err != nil {
		t.Fatalf("Holder: %v", err)
	}
	if pid != 0 {
		t.Fatalf("Holder=%d, want 0 for a lock held by this process", pid)
	}
}

func TestPIDLock_WritePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capslock.pid")
	if err := os.WriteFile(path, []byte("999999999 stale contents\n"), 0644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}
	lock, err := OpenPIDLock(path)
	if err != nil {
		t.Fatalf("OpenPIDLock: %v", err)
	}
	defer lock.Close()

	if err := lock.WritePID(4242); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "4242\n" {
		t.Fatalf("pid file=%q want %q", data, "4242\n")
	}
}

func TestOpenPIDLock_Errors(t *testing.T) {
	if _, err := OpenPIDLock(filepath.Join(t.TempDir(), "missing", "capslock.pid")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestAlreadyRunningError(t *testing.T) {
	err := error(&AlreadyRunningError{PID: 77})
	if !strings.Contains(err.Error(), "pid = 77") {
		t.Fatalf("message %q does not name the pid", err)
	}
	var running *AlreadyRunningError
	if !errors.As(fmt.Errorf("startup: %w", err), &running) || running.PID != 77 {
		t.Fatalf("errors.As failed on wrapped error")
	}
	if (&AlreadyRunningError{}).Error() != "another instance is running" {
		t.Fatalf("unexpected message without pid")
	}
}

func TestLockHolder_MissingFile(t *testing.T) {
	pid, err := LockHolder(filepath.Join(t.TempDir(), "none.pid"))
	if err != nil || pid != 0 {
		t.Fatalf("LockHolder on missing file=(%d,%v) want (0,nil)", pid, err)
	}
}
