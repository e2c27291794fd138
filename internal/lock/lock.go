// Package lock guarantees a single running daemon per database.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("lock held by another process")

// Lock is an exclusive lock on a file next to the database.
type Lock struct {
	path string
	file *os.File
}

// PathFor returns the lock file used for the database at dbPath.
func PathFor(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "daemon.lock")
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Holder returns the pid recorded in the lock file at path, or 0.
func Holder(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}
