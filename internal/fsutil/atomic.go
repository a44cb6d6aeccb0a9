// Package fsutil provides whole-file atomic writes and backup naming for
// files that must never be observed half-written.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	json "github.com/goccy/go-json"
)

// WriteJSONAtomic encodes v as indented JSON and writes it to path atomically.
func WriteJSONAtomic(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// WriteFileAtomic writes data to path using the tmp->rename pattern.
// The destination is either the old content or the new content, never partial.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	// Temp file must live in the same directory for the rename to be atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := replaceFile(tmpName, path); err != nil {
		return err
	}

	success = true
	return nil
}

// FreeBackupPath returns the first unused name among path+suffix,
// path+suffix+".1", path+suffix+".2", ...
func FreeBackupPath(path, suffix string) (string, error) {
	candidate := path + suffix
	for i := 1; ; i++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		if i > 10000 {
			return "", fmt.Errorf("no free backup name for %s", path)
		}
		candidate = path + suffix + "." + strconv.Itoa(i)
	}
}

// MoveAside renames path to the first free backup name with the given suffix
// and returns the new name.
func MoveAside(path, suffix string) (string, error) {
	dst, err := FreeBackupPath(path, suffix)
	if err != nil {
		return "", err
	}
	if err := os.Rename(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}
