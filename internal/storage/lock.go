package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the name of the scheduler lock inside .devpulse/.
const LockFileName = ".serve-lock"

// ErrLocked is returned when another live process holds the scheduler lock.
var ErrLocked = errors.New("another devpulse scheduler is already running")

// ExclusiveLock is the on-disk format of the scheduler lock. Only one
// `devpulse serve` process may run scheduled jobs against a database.
type ExclusiveLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireExclusiveLock writes the scheduler lock next to the database.
// A lock left behind by a dead local process is treated as stale and
// replaced. Returns the lock path for ReleaseExclusiveLock.
func AcquireExclusiveLock(dbPath, version string) (lockPath string, err error) {
	projectRoot, err := GetProjectRoot(dbPath)
	if err != nil {
		return "", fmt.Errorf("invalid database path: %w", err)
	}

	lockPath = filepath.Join(projectRoot, DirName, LockFileName)

	if existing, err := ReadExclusiveLock(lockPath); err == nil && existing != nil {
		if isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w (PID %d on %s, started %s)", ErrLocked,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Holder:    "devpulse-serve",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReadExclusiveLock returns the lock at lockPath, or nil if none exists.
func ReadExclusiveLock(lockPath string) (*ExclusiveLock, error) {
	data, err := os.ReadFile(lockPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock: %w", err)
	}
	var lock ExclusiveLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("malformed lock file %s: %w", lockPath, err)
	}
	return &lock, nil
}

// ReleaseExclusiveLock removes the lock file. Safe to call with "".
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove exclusive lock: %w", err)
	}

	return nil
}

// isProcessAlive reports whether pid exists on hostname. Remote hosts
// cannot be checked and are assumed alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 probes for existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
