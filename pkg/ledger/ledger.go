// Package ledger implements the durable progress ledger that makes
// description runs resumable.
//
// The ledger is a line-delimited JSON file with one entry per completed
// work item. Entries are appended and flushed immediately, never buffered
// across items, so a crash loses at most the single in-flight item.
// Appends are idempotent: duplicate identities collapse in the skip-set.
//
// Concurrency contract: a single foreground writer appends; any number of
// readers (status reporter, resumed runs) may read concurrently.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is proof that one work item's description completed.
type Entry struct {
	// Identity is the stable work-item identity.
	Identity string `json:"identity"`

	// CompletedAt is when the description finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Writer appends completion entries to a ledger file.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// OpenWriter opens (creating if needed) the ledger at path for appending.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Record appends one completion entry and flushes it to disk before
// returning. Safe to call with an identity already in the ledger.
func (w *Writer) Record(identity string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("ledger writer is closed")
	}

	entry := Entry{Identity: identity, CompletedAt: time.Now().UTC()}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := w.f.Write(line); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	// Per-item durability is the whole point of the ledger.
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}

// LoadSkipSet reads the full ledger once and returns the set of completed
// identities. A missing ledger yields an empty set. Lines that fail to
// parse (a torn write from a crash) are skipped rather than failing the
// resume.
func LoadSkipSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	set := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if entry.Identity != "" {
			set[entry.Identity] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return set, nil
}

// Entries reads all well-formed entries in file order. Used by tests and
// diagnostics; resume logic only needs LoadSkipSet.
func Entries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return entries, nil
}
