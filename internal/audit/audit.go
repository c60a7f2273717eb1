// Package audit implements a tamper-evident append-only audit log.
// Entries are stored one JSON object per line and linked into a SHA-256
// hash chain: each entry's hash covers a canonical serialization of its
// fields including the previous entry's hash, so any retroactive edit
// invalidates every subsequent entry.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// GenesisHash is the prev_sha256 value of the first entry in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrCorruptLog indicates the log file could not be parsed on open.
// A non-empty log with an unreadable final entry is never silently reset.
var ErrCorruptLog = errors.New("audit log corrupt")

// Entry is one append-only audit record.
type Entry struct {
	Timestamp string         `json:"ts"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload"`
	PrevHash  string         `json:"prev_sha256"`
	Hash      string         `json:"sha256"`
}

// Filter selects entries returned by Log.Entries. Zero values match everything.
type Filter struct {
	Action string
	Actor  string
	Limit  int // most recent N entries after filtering; 0 = no limit
}

// Log is a hash-chained JSONL audit log. All appends are serialized through
// a single mutex so concurrent writers cannot fork the chain.
type Log struct {
	path string

	mu       sync.Mutex
	f        *os.File
	lastHash string

	// now is replaceable for tests.
	now func() time.Time
}

// Open creates or opens the audit log at path. The chain head is recovered
// from the last line of an existing file; a fully empty file starts at the
// genesis hash, while a non-empty file whose last line cannot be parsed
// surfaces ErrCorruptLog.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	last, err := readLastHash(path)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return &Log{path: path, f: f, lastHash: last, now: time.Now}, nil
}

// readLastHash returns the sha256 of the final entry, or the genesis hash
// for a fully empty file.
func readLastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading audit log: %w", err)
	}
	trimmed := strings.TrimRight(string(data), "\n")
	if trimmed == "" {
		return GenesisHash, nil
	}
	lines := strings.Split(trimmed, "\n")
	lastLine := lines[len(lines)-1]

	var entry Entry
	if err := json.Unmarshal([]byte(lastLine), &entry); err != nil {
		return "", fmt.Errorf("%w: unparsable final entry at line %d: %v", ErrCorruptLog, len(lines), err)
	}
	if entry.Hash == "" {
		return "", fmt.Errorf("%w: final entry at line %d has no sha256", ErrCorruptLog, len(lines))
	}
	return entry.Hash, nil
}

// computeHash returns the SHA-256 hex digest over the canonical serialization
// of the entry's chained fields. The sha256 field itself is excluded.
func computeHash(e *Entry) (string, error) {
	canonical, err := canonicalJSON(map[string]any{
		"ts":          e.Timestamp,
		"actor":       e.Actor,
		"action":      e.Action,
		"payload":     e.Payload,
		"prev_sha256": e.PrevHash,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum), nil
}

// Append writes one entry to the log and returns its hash. The read of the
// chain head, the durable write, and the head update form one critical
// section; a failed write leaves the chain head unchanged and must fail the
// caller's operation — audit appends are never best-effort.
func (l *Log) Append(actor, action string, payload map[string]any) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Actor:     actor,
		Action:    action,
		Payload:   payload,
		PrevHash:  l.lastHash,
	}
	hash, err := computeHash(&entry)
	if err != nil {
		return "", err
	}
	entry.Hash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encoding audit entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := l.f.Write(line); err != nil {
		return "", fmt.Errorf("writing audit entry: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return "", fmt.Errorf("flushing audit entry: %w", err)
	}

	l.lastHash = hash
	return hash, nil
}

// LastHash returns the current chain head.
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Verify replays the chain from genesis. It returns (true, 0) if every entry
// links to its predecessor and matches its recomputed hash, or (false, n)
// where n is the 1-based line number of the first invalid or unparsable
// entry. The returned error reports I/O failure only, not chain state.
func (l *Log) Verify() (bool, int, error) {
	l.mu.Lock()
	l.f.Sync() //nolint:errcheck
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return false, 0, fmt.Errorf("opening audit log for verification: %w", err)
	}
	defer f.Close() //nolint:errcheck

	prev := GenesisHash
	lineNum := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return false, lineNum, nil
		}
		if entry.PrevHash != prev {
			return false, lineNum, nil
		}
		expected, err := computeHash(&entry)
		if err != nil {
			return false, lineNum, nil
		}
		if entry.Hash != expected {
			return false, lineNum, nil
		}
		prev = entry.Hash
	}
	if err := scanner.Err(); err != nil {
		return false, 0, fmt.Errorf("reading audit log: %w", err)
	}
	return true, 0, nil
}

// Entries returns entries matching the filter, oldest first. Malformed lines
// are skipped; use Verify to detect them. When Limit is set, only the most
// recent matching entries are returned.
func (l *Log) Entries(filter Filter) ([]Entry, error) {
	l.mu.Lock()
	l.f.Sync() //nolint:errcheck
	l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[len(entries)-filter.Limit:]
	}
	return entries, nil
}

// Export copies the full audit trail to dst.
func (l *Log) Export(dst string) error {
	l.mu.Lock()
	l.f.Sync() //nolint:errcheck
	l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	src, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer src.Close() //nolint:errcheck
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close() //nolint:errcheck
		return fmt.Errorf("exporting audit trail: %w", err)
	}
	return out.Close()
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
