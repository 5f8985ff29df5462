package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
)

// StageEnv carries the detach stage into re-executed copies of the binary.
const StageEnv = "CAPS_INDICATOR_DAEMON_STAGE"

// inheritedLockFD is where ExtraFiles puts the pid file in the child.
const inheritedLockFD = 3

// Stage is a step of the detach sequence. A running Go program cannot
// fork, so each step re-executes the binary with the next stage set.
type Stage int

const (
	// StageLaunch is the process the user started. It holds the lock while
	// the daemon is being detached and exits 0 afterwards.
	StageLaunch Stage = iota
	// StageSession runs in a new session, starts the daemon and exits 0.
	StageSession
	// StageDaemon is the final, detached process.
	StageDaemon
)

func (s Stage) String() string {
	switch s {
	case StageLaunch:
		return "launch"
	case StageSession:
		return "session"
	case StageDaemon:
		return "daemon"
	default:
		return "unknown"
	}
}

// CurrentStage reads the stage from the environment.
func CurrentStage() Stage {
	n, err := strconv.Atoi(os.Getenv(StageEnv))
	if err != nil || n < int(StageLaunch) || n > int(StageDaemon) {
		return StageLaunch
	}
	return Stage(n)
}

// Detach starts the session stage and waits for it, so that the daemon is
// running and queued on the lock by the time the caller releases it. The
// caller must hold lock and exit 0 after closing it.
func Detach(lock *PIDLock, logger *log.Logger) error {
	cmd, err := nextStage(StageSession, lock)
	if err != nil {
		return err
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("detaching: %w", err)
	}
	logger.Debug("session stage finished")
	return nil
}

// ContinueDetach runs in the session stage: it starts the daemon stage with
// the inherited lock descriptor and returns without waiting.
func ContinueDetach(pidPath string, logger *log.Logger) error {
	lock := InheritedLock(pidPath)
	defer lock.file.Close()

	cmd, err := nextStage(StageDaemon, lock)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	logger.Debug("daemon started", "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// InheritedLock wraps the pid file descriptor passed down by an earlier
// stage. It is not locked; the daemon must call Lock.
func InheritedLock(path string) *PIDLock {
	return &PIDLock{
		path: path,
		file: os.NewFile(inheritedLockFD, path),
	}
}

func nextStage(stage Stage, lock *PIDLock) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", StageEnv, stage))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{lock.File()}
	return cmd, nil
}
