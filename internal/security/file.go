// Package security keeps smartclip's on-disk state private to its owner.
//
// Clipboard history routinely holds passwords and one-time codes, so the
// history database, configuration and pid file live in owner-only
// directories and are replaced atomically.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// File permission constants
const (
	// PermPrivateFile is the permission for files only the owner may read.
	PermPrivateFile os.FileMode = 0600

	// PermPrivateDir is the permission for directories holding private files.
	PermPrivateDir os.FileMode = 0700
)

var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrNotDirectory        = errors.New("security: not a directory")
)

// AtomicWriter writes to a temporary file next to the target and renames it
// into place on Commit.
type AtomicWriter struct {
	path     string
	tempFile *os.File
	tempPath string
}

// NewAtomicWriter creates the temporary file with mode perm. The parent
// directory is created owner-only when missing.
func NewAtomicWriter(path string, perm os.FileMode) (*AtomicWriter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), PermPrivateDir); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tempPath := path + ".tmp." + randomSuffix()
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicWriter{path: path, tempFile: f, tempPath: tempPath}, nil
}

// Write writes data to the temporary file.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	return w.tempFile.Write(p)
}

// Commit syncs the temporary file and renames it over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.tempFile.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.tempFile.Close(); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tempPath, w.path); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}
	return nil
}

// Abort discards the temporary file.
func (w *AtomicWriter) Abort() {
	w.tempFile.Close()
	os.Remove(w.tempPath)
}

func randomSuffix() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WriteFileAtomic replaces path with data in one step.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}

// WritePrivateFile writes data atomically with mode 0600.
func WritePrivateFile(path string, data []byte) error {
	return WriteFileAtomic(path, data, PermPrivateFile)
}

// EnsurePrivateDir creates path with mode 0700, or tightens an existing
// directory that is readable by group or others.
func EnsurePrivateDir(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(path, PermPrivateDir)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		if err := os.Chmod(path, PermPrivateDir); err != nil {
			return fmt.Errorf("fix directory permissions: %w", err)
		}
	}
	return nil
}

// CheckPrivate reports ErrInsecurePermissions when group or others can
// access path. Windows ACLs are not inspected.
func CheckPrivate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		return nil
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrInsecurePermissions, path, mode)
	}
	return nil
}

// CreatePrivate creates an empty file with mode 0600 unless path exists.
// SQLite gives its journal files the mode of the main database file, so
// creating the database this way keeps all of them private.
func CreatePrivate(path string) error {
	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, PermPrivateFile)
	if err != nil {
		return err
	}
	return f.Close()
}
