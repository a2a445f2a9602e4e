// Package lockfile keeps two intake servers from sharing one SQLite database.
//
// SQLite allows a single writer. The lock is a flock on "<database>.lock" next to the
// database file; the kernel drops it when the process exits, however it exits.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// LockSuffix is appended to the database path to name the lock file.
const LockSuffix = ".lock"

// Lock is a held database lock.
type Lock struct {
	file *os.File
	path string
}

// PathFor returns the lock file path guarding dbPath.
func PathFor(dbPath string) string {
	return dbPath + LockSuffix
}

// Acquire takes the exclusive lock for the SQLite database at dbPath.
// owner is recorded in the lock file (e.g. the listen address) to help whoever hits the conflict.
func Acquire(dbPath, owner string) (*Lock, error) {
	lockPath := PathFor(dbPath)
	slog.Debug("lockfile.Acquire: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory for %s: %w", lockPath, err)
	}

	// No O_TRUNC: a conflicting holder's pid must survive until we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.Acquire: database already in use", "lock_path", lockPath, "holder", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	info := fmt.Sprintf("pid=%d\nowner=%s\n", os.Getpid(), owner)
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(info), 0)
		if err != nil {
			slog.Warn("lockfile.Acquire: failed to record holder", "lock_path", lockPath, "error", err)
		}
	}

	slog.Info("lockfile.Acquire: database lock held", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("lockfile.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	closeErr := l.file.Close()
	l.file = nil
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: remove failed", "lock_path", l.path, "error", err)
	}
	slog.Debug("lockfile.Release: released", "lock_path", l.path)
	return closeErr
}

// LockError reports a database already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("another msia server is using this SQLite database (lock file %s)", e.LockPath)
	if e.Holder != "" {
		msg += "; holder: " + e.Holder
	}
	return msg + ". Point this instance at a different --db-dsn, or remove the lock file only if that process is gone"
}

func (e *LockError) Unwrap() error { return e.Cause }

// describeHolder summarizes the pid and owner recorded in the lock file.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	fields := parseLockInfo(string(data))
	var parts []string
	if pid, err := strconv.Atoi(fields["pid"]); err == nil && pid > 0 {
		state := "not running"
		if isProcessRunning(pid) {
			state = "running"
		}
		parts = append(parts, fmt.Sprintf("pid %d (%s)", pid, state))
	}
	if owner := fields["owner"]; owner != "" {
		parts = append(parts, "owner "+owner)
	}
	return strings.Join(parts, ", ")
}

// parseLockInfo reads "key=value" lines.
func parseLockInfo(content string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok {
			out[k] = v
		}
	}
	return out
}

// isProcessRunning sends signal 0 to pid.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
