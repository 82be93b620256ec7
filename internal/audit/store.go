// Package audit records tool dispatches in a local SQLite database.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"formbridge/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a domain.AuditRecorder backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LogCall inserts e. Missing ID and CreatedAt are filled in.
func (s *Store) LogCall(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, tool_name, outcome, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ToolName, e.Outcome, e.Error, e.DurationMS, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tool_name, outcome, error, duration_ms, created_at
		 FROM tool_calls ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			created int64
		)
		if err := rows.Scan(&e.ID, &e.ToolName, &e.Outcome, &e.Error, &e.DurationMS, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than olderThan and returns how many went.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune tool calls: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned audit entries", "count", n, "olderThan", olderThan)
	}
	return n, nil
}

var _ domain.AuditRecorder = (*Store)(nil)
