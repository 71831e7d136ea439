// Package storage persists the delivery ledger: the set of delivery ids that
// have already been written to Jira. It is what makes repeated runs idempotent.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Supported ledger backends.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Ledger records which work logs were delivered. Implementations are not
// safe for concurrent runs against the same backing store.
type Ledger interface {
	// Check reports whether the backing store is readable.
	Check(ctx context.Context) error
	// IsDelivered reports whether id was marked delivered.
	IsDelivered(ctx context.Context, id string) (bool, error)
	// MarkDelivered records id as delivered. Marking twice is a no-op.
	MarkDelivered(ctx context.Context, id string) error
	// Delivered lists all delivered ids in ascending order.
	Delivered(ctx context.Context) ([]string, error)
	// Forget removes id so the next run delivers it again.
	Forget(ctx context.Context, id string) error
	Close() error
}

// BaseDir returns the root data directory (~/.tjs).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".tjs"), nil
}

// DefaultPath returns the ledger location for a driver below base.
func DefaultPath(base, driver string) string {
	if driver == DriverSQLite {
		return filepath.Join(base, "ledger.db")
	}
	return filepath.Join(base, "ledger.json")
}

// Open returns the ledger backend selected by driver.
func Open(driver, path string, logger zerolog.Logger) (Ledger, error) {
	switch driver {
	case "", DriverFile:
		return NewFileLedger(path), nil
	case DriverSQLite:
		return NewSQLiteLedger(path, logger)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q (want %q or %q)", driver, DriverFile, DriverSQLite)
	}
}
