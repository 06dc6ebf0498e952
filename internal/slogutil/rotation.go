package slogutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// RotatingFile is an append-only log file that is shifted to path.1 once a
// write would take it past maxSize. Backups beyond maxBackups are deleted;
// with maxBackups 0 the full file is simply discarded.
type RotatingFile struct {
	path       string
	maxSize    int64
	maxBackups int

	mu      sync.Mutex
	f       *os.File
	written int64
}

// OpenRotatingFile opens path for appending, creating its directory. A
// maxSize of 0 never rotates.
func OpenRotatingFile(path string, maxSize int64, maxBackups int) (*RotatingFile, error) {
	rf := &RotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := rf.reopen(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (rf *RotatingFile) reopen() error {
	if err := os.MkdirAll(filepath.Dir(rf.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	rf.f, rf.written = f, fi.Size()
	return nil
}

// Write appends p, rotating first when p would not fit. An empty file is
// never rotated, so a single oversized record still lands somewhere.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.maxSize > 0 && rf.written > 0 && rf.written+int64(len(p)) > rf.maxSize {
		if err := rf.shift(); err != nil && rf.f == nil {
			return 0, err
		}
	}
	n, err := rf.f.Write(p)
	rf.written += int64(n)
	return n, err
}

// Close closes the current file.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}

// shift moves path.N to path.N+1 for every kept backup, path to path.1, and
// opens a fresh path. When the close fails the current file stays in use.
func (rf *RotatingFile) shift() error {
	if err := rf.f.Close(); err != nil {
		return err
	}
	rf.f = nil

	if rf.maxBackups == 0 {
		os.Remove(rf.path)
		return rf.reopen()
	}
	os.Remove(rf.backup(rf.maxBackups))
	for n := rf.maxBackups - 1; n >= 1; n-- {
		os.Rename(rf.backup(n), rf.backup(n+1))
	}
	os.Rename(rf.path, rf.backup(1))
	return rf.reopen()
}

func (rf *RotatingFile) backup(n int) string {
	return fmt.Sprintf("%s.%d", rf.path, n)
}

// ParseSize parses sizes such as "10MB", "512 KiB" or "1.5GB". Empty or
// invalid input yields 0, which disables rotation.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n > math.MaxInt64 {
		return 0
	}
	return int64(n)
}
