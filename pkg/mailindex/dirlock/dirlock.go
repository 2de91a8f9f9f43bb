// Package dirlock provides whole-directory advisory locking used by the
// mail index's create/open_or_create pipeline to close the race between
// two processes simultaneously discovering a missing index file and both
// deciding to create one.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// ErrWouldBlock is returned by TryLock when another process holds the
// directory lock.
var ErrWouldBlock = errors.New("dirlock: lock would block")

// Lock is a held advisory lock on a directory's lock file
// (<dir>/.mailindex.lock). It must be released with Unlock.
type Lock struct {
	file *os.File
}

// path returns the lock file path for dir, creating dir if necessary.
func path(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("dirlock: create directory %s: %w", dir, err)
	}
	return filepath.Join(dir, ".mailindex.lock"), nil
}

// AcquireExclusive blocks until the directory's lock file can be taken
// exclusively.
func AcquireExclusive(dir string) (*Lock, error) {
	return acquire(dir, syscall.F_WRLCK, true)
}

// TryExclusive attempts a non-blocking exclusive acquire, returning
// ErrWouldBlock if another process holds it.
func TryExclusive(dir string) (*Lock, error) {
	return acquire(dir, syscall.F_WRLCK, false)
}

func acquire(dir string, lockType int16, block bool) (*Lock, error) {
	p, err := path(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("dirlock: open %s: %w", p, err)
	}

	flock := &syscall.Flock_t{
		Type:   lockType,
		Whence: int16(os.SEEK_SET),
		Start:  0,
		Len:    0,
	}

	cmd := syscall.F_SETLK
	if block {
		cmd = syscall.F_SETLKW
	}

	for {
		err := syscall.FcntlFlock(f.Fd(), cmd, flock)
		if err == nil {
			break
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		_ = f.Close()
		if !block && (errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EACCES)) {
			return nil, ErrWouldBlock
		}
		return nil, fmt.Errorf("dirlock: fcntl lock %s: %w", p, err)
	}

	return &Lock{file: f}, nil
}

// Unlock releases the directory lock and closes its file handle.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}

	flock := &syscall.Flock_t{
		Type:   syscall.F_UNLCK,
		Whence: int16(os.SEEK_SET),
	}
	_ = syscall.FcntlFlock(l.file.Fd(), syscall.F_SETLK, flock)

	err := l.file.Close()
	l.file = nil
	return err
}
