package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketPath returns a unix socket path that fits the sun_path limit.
// t.TempDir nests the test name, which overflows it for long names.
func SocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ci")
	if err != nil {
		t.Fatalf("creating socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "ctl.sock")
}

// PIDFile returns a path for a lock file that does not exist yet.
func PIDFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "caps.pid")
}
