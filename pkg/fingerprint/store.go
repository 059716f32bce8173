// Package fingerprint records the input digest of every successful build step
// so that later invocations can skip steps whose inputs did not change.
//
// State lives in a single YAML document under <outputDir>/.buildstate/. A
// missing or unreadable document is treated as an empty store: the worst case
// is a full rebuild. Every commit rewrites the document through a temporary
// file and a rename, so a crash leaves either the old or the new state.
package fingerprint

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StateDirName  = ".buildstate"
	StateFileName = "fingerprints.yaml"

	stateVersion = 1
)

var (
	ErrStoreCorrupted   = errors.New("fingerprint store corrupted")
	ErrStoreWriteFailed = errors.New("fingerprint store write failed")
)

// Record is the last known fingerprint of a step.
type Record struct {
	Digest      string    `yaml:"digest"`
	SucceededAt time.Time `yaml:"succeededAt"`
}

type document struct {
	Version int               `yaml:"version"`
	Steps   map[string]Record `yaml:"steps"`
}

// Store holds fingerprint records for one output directory. It is safe for
// concurrent use; commits are serialized.
type Store struct {
	dir string
	now func() time.Time

	mu      sync.RWMutex
	records map[string]Record
	loadErr error
}

// NewStore returns an empty store rooted at outputDir. Call Load to read
// previously persisted records.
func NewStore(outputDir string) *Store {
	return &Store{
		dir:     filepath.Join(outputDir, StateDirName),
		now:     time.Now,
		records: make(map[string]Record),
	}
}

// Path returns the location of the state document.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// Load replaces the in-memory records with the persisted ones. Missing state
// yields an empty store. Corrupt state also yields an empty store; the cause
// is kept and available from LoadError. Load never fails.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Record)
	s.loadErr = nil

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			s.loadErr = fmt.Errorf("%w: reading %s: %v", ErrStoreCorrupted, s.Path(), err)
			slog.Warn("ignoring unreadable fingerprint state", "path", s.Path(), "error", err)
		}
		return
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		s.loadErr = fmt.Errorf("%w: parsing %s: %v", ErrStoreCorrupted, s.Path(), err)
		slog.Warn("ignoring corrupt fingerprint state", "path", s.Path(), "error", err)
		return
	}
	if doc.Version > stateVersion {
		slog.Warn("fingerprint state written by a newer version", "path", s.Path(), "version", doc.Version)
	}

	for id, rec := range doc.Steps {
		if id == "" || rec.Digest == "" {
			continue
		}
		s.records[id] = rec
	}
	slog.Debug("fingerprint state loaded", "path", s.Path(), "steps", len(s.records))
}

// LoadError returns why the last Load fell back to an empty store, if it did.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// Record returns the stored record for id.
func (s *Store) Record(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// IsStale reports whether digest differs from the stored fingerprint of id.
// A step without a record is always stale.
func (s *Store) IsStale(id, digest string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return !ok || rec.Digest != digest
}

// Commit records digest for id and persists the store. It must only be called
// after the step's action succeeded. On a write failure the in-memory record
// is rolled back so the store matches what is on disk.
func (s *Store) Commit(id, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[id]
	s.records[id] = Record{Digest: digest, SucceededAt: s.now().UTC()}

	if err := s.persistLocked(); err != nil {
		if had {
			s.records[id] = prev
		} else {
			delete(s.records, id)
		}
		return fmt.Errorf("committing %q: %w", id, err)
	}
	return nil
}

// Clear removes the records of ids, or every record when ids is empty, and
// persists the result.
func (s *Store) Clear(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := maps.Clone(s.records)
	if len(ids) == 0 {
		clear(s.records)
	}
	for _, id := range ids {
		delete(s.records, id)
	}

	if err := s.persistLocked(); err != nil {
		s.records = prev
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}

func (s *Store) persistLocked() error {
	doc := document{Version: stateVersion, Steps: s.records}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("%w: encoding state: %v", ErrStoreWriteFailed, err)
	}
	if err := writeFileAtomic(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temporary file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	committed = true

	// Directory fsync is best effort; some filesystems reject it.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
