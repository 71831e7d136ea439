package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteLedger stores delivered ids in an embedded SQLite database.
type SQLiteLedger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteLedger opens (or creates) the database at path and runs migrations.
func NewSQLiteLedger(path string, logger zerolog.Logger) (*SQLiteLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage error creating directories: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	l := &SQLiteLedger{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	l.logger.Debug().Str("path", path).Msg("sqlite ledger initialized")
	return l, nil
}

func (l *SQLiteLedger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS delivered (
		id TEXT PRIMARY KEY,
		delivered_at INTEGER NOT NULL
	);`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("creating delivered table: %w", err)
	}
	return nil
}

// Check reports whether the delivered table can be read.
func (l *SQLiteLedger) Check(ctx context.Context) error {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivered`).Scan(&n); err != nil {
		return fmt.Errorf("checking ledger: %w", err)
	}
	return nil
}

func (l *SQLiteLedger) IsDelivered(ctx context.Context, id string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, `SELECT 1 FROM delivered WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking delivery %s: %w", id, err)
	}
	return true, nil
}

func (l *SQLiteLedger) MarkDelivered(ctx context.Context, id string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivered (id, delivered_at) VALUES (?, ?)`,
		id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("marking delivery %s: %w", id, err)
	}
	return nil
}

func (l *SQLiteLedger) Delivered(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id FROM delivered ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (l *SQLiteLedger) Forget(ctx context.Context, id string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM delivered WHERE id = ?`, id); err != nil {
		return fmt.Errorf("forgetting delivery %s: %w", id, err)
	}
	return nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
