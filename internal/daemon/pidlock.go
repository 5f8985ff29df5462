package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// DefaultPIDFile is the lock file shared by every instance.
const DefaultPIDFile = "/tmp/capslock.pid"

// AlreadyRunningError reports that another process holds the pid lock.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	if e.PID <= 0 {
		return "another instance is running"
	}
	return fmt.Sprintf("another instance is running, pid = %d", e.PID)
}

// PIDLock is an exclusive POSIX record lock over a whole pid file. The lock
// belongs to the process, so it is released when the process exits or
// closes any descriptor for the file.
type PIDLock struct {
	path string
	file *os.File
}

// OpenPIDLock opens path, creating it if needed. It does not lock.
func OpenPIDLock(path string) (*PIDLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s for read/write: %w", path, err)
	}
	return &PIDLock{path: path, file: f}, nil
}

// Path returns the lock file path.
func (l *PIDLock) Path() string {
	return l.path
}

// File returns the descriptor the lock is taken on.
func (l *PIDLock) File() *os.File {
	return l.file
}

func wholeFile(typ int16) unix.Flock_t {
	return unix.Flock_t{Type: typ, Whence: 0, Start: 0, Len: 0}
}

// TryLock claims the lock without waiting. When another process holds it
// the error is an *AlreadyRunningError naming that process.
func (l *PIDLock) TryLock() error {
	lk := wholeFile(unix.F_WRLCK)
	err := unix.FcntlFlock(l.file.Fd(), unix.F_SETLK, &lk)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EACCES) {
		return fmt.Errorf("locking %s: %w", l.path, err)
	}
	pid, herr := l.Holder()
	if herr != nil {
		return &AlreadyRunningError{}
	}
	return &AlreadyRunningError{PID: pid}
}

// Lock claims the lock, waiting for any other holder to let go.
func (l *PIDLock) Lock() error {
	lk := wholeFile(unix.F_WRLCK)
	for {
		err := unix.FcntlFlock(l.file.Fd(), unix.F_SETLKW, &lk)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("locking %s: %w", l.path, err)
		}
		return nil
	}
}

// Holder returns the pid of another process holding the lock, or 0 when it
// is free. A lock held by the calling process does not count.
func (l *PIDLock) Holder() (int, error) {
	lk := wholeFile(unix.F_WRLCK)
	if err := unix.FcntlFlock(l.file.Fd(), unix.F_GETLK, &lk); err != nil {
		return 0, fmt.Errorf("querying lock on %s: %w", l.path, err)
	}
	if lk.Type == unix.F_UNLCK {
		return 0, nil
	}
	return int(lk.Pid), nil
}

// WritePID replaces the file contents with pid. The contents are
// informational; only the lock is authoritative.
func (l *PIDLock) WritePID(pid int) error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating %s: %w", l.path, err)
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("writing %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock but keeps the file open.
func (l *PIDLock) Unlock() error {
	lk := wholeFile(unix.F_UNLCK)
	if err := unix.FcntlFlock(l.file.Fd(), unix.F_SETLK, &lk); err != nil {
		return fmt.Errorf("unlocking %s: %w", l.path, err)
	}
	return nil
}

// Close releases the lock and the descriptor.
func (l *PIDLock) Close() error {
	return l.file.Close()
}

// LockHolder reports which process holds the lock at path without creating
// the file. It returns 0 when the file is missing or unlocked. The lock
// holder itself must not call it: closing the probe descriptor would drop
// the holder's lock.
func LockHolder(path string) (int, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	l := &PIDLock{path: path, file: f}
	return l.Holder()
}
