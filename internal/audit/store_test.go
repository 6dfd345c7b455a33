package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordCompletionAndTotal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordCompletion(ctx, "roll", "u1", "g1", "c1"); err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}
	if err := store.RecordCompletion(ctx, "ping", "u2", "g1", "c1"); err != nil {
		t.Fatalf("RecordCompletion() error = %v", err)
	}

	total, err := store.Total()
	if err != nil {
		t.Fatalf("Total() error = %v", err)
	}
	if total != 2 {
		t.Errorf("Total() = %d, want 2", total)
	}
}

func TestCountByCommand(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for range 3 {
		if err := store.RecordCompletion(ctx, "roll", "u1", "g1", "c1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordCompletion(ctx, "ping", "u1", "g1", "c1"); err != nil {
		t.Fatal(err)
	}

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	counts, err := store.CountByCommand(start, end)
	if err != nil {
		t.Fatalf("CountByCommand() error = %v", err)
	}
	if counts["roll"] != 3 {
		t.Errorf("counts[roll] = %d, want 3", counts["roll"])
	}
	if counts["ping"] != 1 {
		t.Errorf("counts[ping] = %d, want 1", counts["ping"])
	}
}

func TestCountByCommandWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordCompletion(ctx, "roll", "u1", "g1", "c1"); err != nil {
		t.Fatal(err)
	}

	// A window entirely in the past must exclude the fresh record.
	counts, err := store.CountByCommand(
		time.Now().Add(-2*time.Hour),
		time.Now().Add(-time.Hour),
	)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 0 {
		t.Errorf("counts = %v, want empty for a past window", counts)
	}
}

func TestRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commands := []string{"roll", "ping", "timer"}
	for _, name := range commands {
		if err := store.RecordCompletion(ctx, name, "u1", "g1", "c1"); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent(2) returned %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ID == "" {
			t.Error("record has empty ID")
		}
		if rec.Timestamp.IsZero() {
			t.Error("record has zero timestamp")
		}
		if rec.UserID != "u1" {
			t.Errorf("UserID = %q, want u1", rec.UserID)
		}
	}
}
