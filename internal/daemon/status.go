package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/Dicklesworthstone/caps-indicator/internal/control"
)

// DaemonStatus represents the current state of the daemon.
type DaemonStatus int

const (
	// DaemonRunning indicates the lock is held and the socket answers.
	DaemonRunning DaemonStatus = iota
	// DaemonNotRunning indicates nobody holds the lock.
	DaemonNotRunning
	// DaemonUnresponsive indicates the lock is held but the socket does not answer.
	DaemonUnresponsive
)

// String returns a human-readable status description.
func (s DaemonStatus) String() string {
	switch s {
	case DaemonRunning:
		return "running"
	case DaemonNotRunning:
		return "not running"
	case DaemonUnresponsive:
		return "unresponsive"
	default:
		return "unknown"
	}
}

// StatusInfo is the diagnostic view behind `caps-indicator status`.
type StatusInfo struct {
	Status      DaemonStatus `json:"-" yaml:"-"`
	State       string       `json:"status" yaml:"status"`
	PID         int          `json:"pid,omitempty" yaml:"pid,omitempty"`
	PIDFile     string       `json:"pid_file" yaml:"pid_file"`
	SocketPath  string       `json:"socket_path" yaml:"socket_path"`
	SocketAlive bool         `json:"socket_alive" yaml:"socket_alive"`
	Message     string       `json:"message" yaml:"message"`
}

// Probe inspects the pid lock and the control socket. It never creates
// either file.
func Probe(ctx context.Context, pidFile, socketPath string) StatusInfo {
	info := StatusInfo{
		PIDFile:    pidFile,
		SocketPath: socketPath,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	info.SocketAlive = control.Ping(pingCtx, socketPath) == nil

	pid, err := LockHolder(pidFile)
	switch {
	case err != nil:
		info.Status = DaemonNotRunning
		info.Message = fmt.Sprintf("cannot inspect %s: %v", pidFile, err)
	case pid == 0 && info.SocketAlive:
		info.Status = DaemonRunning
		info.Message = "socket answers but no process holds the lock"
	case pid == 0:
		info.Status = DaemonNotRunning
		info.Message = "no instance holds the lock"
	case !info.SocketAlive:
		info.PID = pid
		info.Status = DaemonUnresponsive
		info.Message = fmt.Sprintf("process %d holds the lock but the socket does not answer", pid)
	default:
		info.PID = pid
		info.Status = DaemonRunning
		info.Message = fmt.Sprintf("daemon running with pid %d", pid)
	}
	info.State = info.Status.String()
	return info
}
