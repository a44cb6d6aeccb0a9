//go:build windows

// Package singleinstance keeps one process per records directory.
package singleinstance

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/graaaaa/raidlog-companion/internal/appinfo"
)

// AcquireLock creates a session-scoped named mutex derived from dir. ok is
// false when another process already owns it.
func AcquireLock(dir string) (release func(), ok bool, err error) {
	name, err := windows.UTF16PtrFromString(mutexName(dir))
	if err != nil {
		return nil, false, err
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil {
		if err == windows.ERROR_ALREADY_EXISTS {
			if h != 0 {
				windows.CloseHandle(h)
			}
			return nil, false, nil
		}
		return nil, false, err
	}

	return func() {
		windows.CloseHandle(h)
	}, true, nil
}

// mutexName folds case and separators so one directory maps to one name.
func mutexName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	sum := sha256.Sum256([]byte(strings.ToLower(filepath.Clean(abs))))
	return appinfo.MutexName + "-" + hex.EncodeToString(sum[:8])
}
