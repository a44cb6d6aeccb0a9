//go:build !windows

// Package singleinstance keeps one process per records directory.
package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/graaaaa/raidlog-companion/internal/appinfo"
)

// AcquireLock takes an exclusive advisory lock on the lock file inside
// dir. ok is false when another process holds it. The lock dies with the
// process, so a crash never leaves it stale.
func AcquireLock(dir string) (release func(), ok bool, err error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, appinfo.LockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, false, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock %s: %w", path, err)
	}

	f.Truncate(0)
	fmt.Fprintf(f, "%d\n", os.Getpid())

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, true, nil
}
