package registry

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bfix/gospel/logger"
	"golang.org/x/sys/unix"

	"github.com/liiesl/neverliie/util"
)

const (
	maxWriteRetries = 5
	retryBackoff    = 50 * time.Millisecond
)

// Store is the registry file at a fixed, host-user-scoped path: a JSON
// object mapping peer name to Descriptor.
type Store struct {
	path string
}

// DefaultPath returns the fixed registry location:
// <user-home>/.neverliie/registry.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".neverliie", "registry.json"), nil
}

// New wraps the registry file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the descriptor for name, tolerating a missing or malformed
// registry file by treating either as empty.
func (s *Store) Get(name string) (Descriptor, bool) {
	m := s.readTolerant()
	d, ok := m[name]
	return d, ok
}

// List returns a snapshot of all registry entries. Read-only introspection
// (exposed through peer.Peer.List); it opens no new wire surface and reads
// the same file Get and Put already use.
func (s *Store) List() map[string]Descriptor {
	return s.readTolerant()
}

// Put atomically upserts name -> d, retrying on writer collision.
// On exhausted retries it fails silently: each peer re-asserts its own
// entry on every boot, so last-writer-wins is acceptable.
func (s *Store) Put(name string, d Descriptor) {
	s.mutate(func(m map[string]Descriptor) {
		m[name] = d
	})
}

// Prune removes name from the registry, under the same retry discipline.
func (s *Store) Prune(name string) {
	s.mutate(func(m map[string]Descriptor) {
		delete(m, name)
	})
}

// readTolerant reads and decodes the registry file without taking any
// lock: readers never block writers, and may observe any legal historical
// state of a non-atomic writer.
func (s *Store) readTolerant() map[string]Descriptor {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return map[string]Descriptor{}
	}
	var m map[string]Descriptor
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]Descriptor{}
	}
	return m
}

// mutate performs the read-modify-write cycle under a non-blocking
// advisory file lock, retrying on collision. This narrows (but does not
// replace) the tolerant-of-partial-state discipline readers rely on.
func (s *Store) mutate(apply func(map[string]Descriptor)) {
	if err := util.EnforceDirExists(filepath.Dir(s.path)); err != nil {
		ioErr := &LocalIOError{Path: s.path, Err: err}
		logger.Printf(logger.ERROR, "[registry] %s\n", ioErr.Error())
		return
	}
	var lastErr error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}
		ok, err := s.tryMutate(apply)
		if ok {
			return
		}
		lastErr = err
	}
	ioErr := &LocalIOError{Path: s.path, Err: lastErr}
	logger.Printf(logger.WARN, "[registry] write denied after %d attempts: %s\n", maxWriteRetries, ioErr.Error())
}

// tryMutate attempts a single locked read-modify-write cycle. It returns
// (false, err) on lock contention or I/O failure so the caller can retry.
func (s *Store) tryMutate(apply func(map[string]Descriptor)) (bool, error) {
	fh, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return false, err
	}
	defer fh.Close()

	if err := unix.Flock(int(fh.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false, err
	}
	defer unix.Flock(int(fh.Fd()), unix.LOCK_UN)

	raw, err := io.ReadAll(fh)
	if err != nil {
		return false, err
	}
	var m map[string]Descriptor
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			m = nil // malformed content: treat as empty
		}
	}
	if m == nil {
		m = map[string]Descriptor{}
	}

	apply(m)

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return false, err
	}
	if err := fh.Truncate(0); err != nil {
		return false, err
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	if _, err := fh.Write(out); err != nil {
		return false, err
	}
	return true, nil
}
