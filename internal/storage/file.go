package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrCorrupt means the ledger file exists but cannot be parsed. Every call
// fails until the file is fixed or moved aside with Repair.
var ErrCorrupt = errors.New("corrupt delivery ledger")

// FileLedger stores delivered ids as a JSON object {"<id>": true}. The file is
// read as a whole on every check and rewritten as a whole on every change.
type FileLedger struct {
	path string
}

// NewFileLedger returns a ledger backed by the JSON file at path. The file is
// created on the first MarkDelivered.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the backing file location.
func (l *FileLedger) Path() string {
	return l.path
}

// load reads the ledger file. A missing or empty file is an empty ledger; a
// corrupt file is left in place and reported.
func (l *FileLedger) load() (map[string]bool, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage error reading %s: %w", l.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]bool{}, nil
	}

	ids := map[string]bool{}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: %s: %v (run \"tjs ledger repair\" to move it aside)", ErrCorrupt, l.path, err)
	}
	return ids, nil
}

// save atomically writes the ledger file.
func (l *FileLedger) save(ids map[string]bool) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// Check reports whether the ledger file can be read.
func (l *FileLedger) Check(_ context.Context) error {
	_, err := l.load()
	return err
}

// Repair moves a corrupt ledger file to <path>.corrupt and returns the backup
// location. All deliveries recorded in it are forgotten. A readable ledger is
// left untouched and "" is returned.
func (l *FileLedger) Repair() (string, error) {
	_, err := l.load()
	if err == nil {
		return "", nil
	}
	if !errors.Is(err, ErrCorrupt) {
		return "", err
	}
	backupPath := l.path + ".corrupt"
	if err := os.Rename(l.path, backupPath); err != nil {
		return "", fmt.Errorf("storage error backing up %s: %w", l.path, err)
	}
	return backupPath, nil
}

func (l *FileLedger) IsDelivered(_ context.Context, id string) (bool, error) {
	ids, err := l.load()
	if err != nil {
		return false, err
	}
	return ids[id], nil
}

func (l *FileLedger) MarkDelivered(_ context.Context, id string) error {
	ids, err := l.load()
	if err != nil {
		return err
	}
	if ids[id] {
		return nil
	}
	ids[id] = true
	return l.save(ids)
}

func (l *FileLedger) Delivered(_ context.Context) ([]string, error) {
	ids, err := l.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for id, ok := range ids {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *FileLedger) Forget(_ context.Context, id string) error {
	ids, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := ids[id]; !ok {
		return nil
	}
	delete(ids, id)
	return l.save(ids)
}

func (l *FileLedger) Close() error { return nil }
