//go:build linux
// +build linux

package settings

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// Commit serializes the namespace to s.path using the atomic
// write-temp-then-rename pattern, adapted from
// u-bmc-u-bmc/pkg/file.AtomicUpdateFile, and clears the dirty flag. Commit
// is explicit and caller-initiated rather than automatic per-Set, per
// spec.md §6 ("due to flash endurance").
func (s *Store) Commit() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	data := s.serializeLocked()
	s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmpfile, err := os.CreateTemp(dir, fmt.Sprintf(".%s.tmp.*", filepath.Base(s.path)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTemporaryFileCreation, err)
	}
	tmpname := tmpfile.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpname)
		}
	}()

	if _, err = tmpfile.Write(data); err != nil {
		_ = tmpfile.Close()
		return fmt.Errorf("%w: %w", ErrTemporaryFileWrite, err)
	}
	if err = tmpfile.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrTemporaryFileClose, err)
	}
	if err = os.Chmod(tmpname, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrTemporaryFileClose, err)
	}
	if err = unix.Renameat2(unix.AT_FDCWD, tmpname, unix.AT_FDCWD, s.path, 0); err != nil {
		if errors.Is(err, syscall.ENOSYS) {
			// Renameat2 isn't available on every kernel/filesystem
			// combination; fall back to plain rename, still atomic on a
			// single filesystem.
			if err = os.Rename(tmpname, s.path); err != nil {
				return fmt.Errorf("%w: %w", ErrAtomicRename, err)
			}
		} else {
			return fmt.Errorf("%w: %w", ErrAtomicRename, err)
		}
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

// Dirty reports whether any Set has happened since the last Commit/Load.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Load replaces the namespace with the contents of s.path, leaving any key
// absent from the file at its schema default. A missing file is not an
// error — a fresh boot simply keeps the seeded defaults.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrOriginalFileOpen, err)
	}
	defer f.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := Key(parts[0])
		if _, ok := schema[key]; !ok {
			continue
		}
		n, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			continue
		}
		s.values.Set(string(key), uint32(n))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOriginalFileCopy, err)
	}
	s.dirty = false
	return nil
}

// serializeLocked renders the namespace as "key=value\n" lines in the
// OrderedMap's insertion order. Caller must hold s.mu.
func (s *Store) serializeLocked() []byte {
	var buf bytes.Buffer
	for pair := s.values.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(&buf, "%s=%d\n", pair.Key, pair.Value.(uint32))
	}
	return buf.Bytes()
}
