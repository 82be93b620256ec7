package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"formbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDirectoryAndSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.db")
	s, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	v, err := SchemaVersion(ctx, s.db)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), v)
	}
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	s, err := Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.LogCall(ctx, domain.AuditEntry{ToolName: "a", Outcome: domain.OutcomeOK}); err != nil {
		t.Fatalf("log: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	entries, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected entry to survive reopen, got %d", len(entries))
	}
}

func TestLogCall_AndRecent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	calls := []domain.AuditEntry{
		{ID: "1", ToolName: "gravityforms_list_forms", Outcome: domain.OutcomeOK, DurationMS: 12, CreatedAt: base},
		{ID: "2", ToolName: "gravityforms_get_form", Outcome: domain.OutcomeError, Error: "form_id is required", CreatedAt: base.Add(time.Second)},
		{ID: "3", ToolName: "gravityforms_create_entry", Outcome: domain.OutcomeOK, DurationMS: 40, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, c := range calls {
		if err := s.LogCall(ctx, c); err != nil {
			t.Fatalf("log %s: %v", c.ID, err)
		}
	}

	entries, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "3" || entries[1].ID != "2" {
		t.Fatalf("expected newest first, got %s, %s", entries[0].ID, entries[1].ID)
	}
	if entries[1].Error != "form_id is required" || entries[1].Outcome != domain.OutcomeError {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
	if !entries[0].CreatedAt.Equal(base.Add(2*time.Second)) || entries[0].DurationMS != 40 {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
}

func TestLogCall_FillsIDAndTime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.LogCall(ctx, domain.AuditEntry{ToolName: "t", Outcome: domain.OutcomeOK}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries, _ := s.Recent(ctx, 1)
	if len(entries) != 1 || entries[0].ID == "" || entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamp, got %+v", entries)
	}
}

func TestLogCall_DuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := domain.AuditEntry{ID: "same", ToolName: "t", Outcome: domain.OutcomeOK}
	if err := s.LogCall(ctx, e); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := s.LogCall(ctx, e); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestRecent_Empty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	s.LogCall(ctx, domain.AuditEntry{ID: "old", ToolName: "t", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-48 * time.Hour)})
	s.LogCall(ctx, domain.AuditEntry{ID: "new", ToolName: "t", Outcome: domain.OutcomeOK, CreatedAt: now})

	n, err := s.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	entries, _ := s.Recent(ctx, 10)
	if len(entries) != 1 || entries[0].ID != "new" {
		t.Fatalf("expected only the new entry, got %+v", entries)
	}
}
