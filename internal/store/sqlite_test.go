package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"inferd/internal/jobs"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snap(id string, chat int64, status jobs.Status, created time.Time) jobs.Snapshot {
	return jobs.Snapshot{
		ID:         id,
		ChatID:     chat,
		Kind:       jobs.KindGeneral,
		Status:     status,
		Model:      "qwen2.5-coder:7b",
		CreatedAt:  created,
		StartedAt:  created.Add(time.Second),
		FinishedAt: created.Add(2 * time.Second),
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, snap(id, 7, jobs.StatusSucceeded, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	queued := snap("d", 8, jobs.StatusFailed, base)
	queued.StartedAt = time.Time{}
	queued.Error = "scheduler closed"
	if err := s.Record(ctx, queued); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := s.Recent(ctx, 7, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("recent=%+v", got)
	}
	if !got[0].CreatedAt.Equal(base.Add(2*time.Minute)) || got[0].Model != "qwen2.5-coder:7b" {
		t.Fatalf("round trip lost data: %+v", got[0])
	}

	other, err := s.Recent(ctx, 8, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(other) != 1 || !other[0].StartedAt.IsZero() || other[0].Error != "scheduler closed" {
		t.Fatalf("never-started job=%+v", other)
	}
}

func TestCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()
	s.Record(ctx, snap("1", 1, jobs.StatusSucceeded, now))
	s.Record(ctx, snap("2", 1, jobs.StatusSucceeded, now))
	s.Record(ctx, snap("3", 2, jobs.StatusTimedOut, now))
	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts["succeeded"] != 2 || counts["timed_out"] != 1 || counts["failed"] != 0 {
		t.Fatalf("counts=%v", counts)
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	s.Record(ctx, snap("old", 1, jobs.StatusSucceeded, old))
	s.Record(ctx, snap("new", 1, jobs.StatusSucceeded, time.Now()))
	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned=%d", n)
	}
}

func TestReopenKeepsData(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "jobs.db")
	s1, err := Open(p)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.Record(context.Background(), snap("x", 3, jobs.StatusSucceeded, time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s1.Close()

	s2, err := Open(p)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()
	got, err := s2.Recent(context.Background(), 3, 5)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent=%v err=%v", got, err)
	}
}
