// Package schedule provides a per-user schedule store backed by a
// single JSON file. Every mutation reloads the file, applies the
// change, and writes the file back under one lock, so external edits
// to the file between calls are picked up rather than clobbered.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrOutOfRange means a removal position does not name an existing
// entry. Callers test with errors.Is to report it to the user.
var ErrOutOfRange = errors.New("position out of range")

// TimeLayout is the wall-clock format entries are stored and displayed
// in. Minute precision, no timezone.
const TimeLayout = "2006-01-02 15:04"

// Entry is one scheduled item belonging to a user.
type Entry struct {
	Time  string `json:"time"`
	Title string `json:"title"`
}

// Store reads and writes the schedule file. All public methods are
// safe for concurrent use; the mutex serializes the full
// load-mutate-save cycle of each mutation.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store over the given JSON file. The file does not
// need to exist yet; it is created on the first mutation.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// ParseTime validates a user-supplied wall-clock string against
// TimeLayout.
func ParseTime(value string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q does not match %s", value, TimeLayout)
	}
	return t, nil
}

// Add validates and appends an entry to the user's schedule.
func (s *Store) Add(userID, timeValue, title string) error {
	if _, err := ParseTime(timeValue); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[userID] = append(data[userID], Entry{Time: timeValue, Title: title})
	return s.save(data)
}

// List returns the user's entries in stored order. A user with no
// schedule gets an empty slice, not an error.
func (s *Store) List(userID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	// Copy so callers cannot alias the decoded map.
	entries := make([]Entry, len(data[userID]))
	copy(entries, data[userID])
	return entries, nil
}

// Remove deletes the user's entry at the given 1-based position and
// returns it. An out-of-range position leaves the file untouched.
func (s *Store) Remove(userID string, position int) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return Entry{}, err
	}

	entries := data[userID]
	if position < 1 || position > len(entries) {
		return Entry{}, fmt.Errorf("no entry at position %d (have %d): %w", position, len(entries), ErrOutOfRange)
	}

	removed := entries[position-1]
	entries = append(entries[:position-1], entries[position:]...)
	if len(entries) == 0 {
		delete(data, userID)
	} else {
		data[userID] = entries
	}

	if err := s.save(data); err != nil {
		return Entry{}, err
	}
	return removed, nil
}

// load reads and decodes the schedule file. A missing file decodes to
// an empty map. Callers must hold s.mu.
func (s *Store) load() (map[string][]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string][]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}

	data := make(map[string][]Entry)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode schedule file: %w", err)
	}
	return data, nil
}

// save encodes and writes the schedule file via a temp file rename so
// a crash mid-write cannot truncate the data. Callers must hold s.mu.
func (s *Store) save(data map[string][]Entry) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schedule file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schedule dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".schedules-*.json")
	if err != nil {
		return fmt.Errorf("create temp schedule file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write schedule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close schedule file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace schedule file: %w", err)
	}
	return nil
}
