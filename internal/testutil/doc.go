// Package testutil provides shared test helpers for caps-indicator.
//
// Philosophy:
// - Prefer real sockets and lock files over mocks.
// - Keep helpers small and deterministic.
// - Register cleanup via t.Cleanup so tests stay leak-free.
//
// Most packages should start with:
//
//	logger := testutil.TestLogger(t)
//	sock := testutil.SocketPath(t)
package testutil
