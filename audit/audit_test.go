package audit

import (
	"testing"
	"time"

	"filedepot/store"

	"github.com/google/go-cmp/cmp"
)

func TestLog(t *testing.T) {
	s, closer, err := store.New(t.Context(), "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer closer()

	auditLog := New(s)
	day1 := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	auditLog.now = func() time.Time { return day1 }
	day1Date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("stats are not returned for files with no records", func(t *testing.T) {
		_, ok, err := auditLog.Get(t.Context(), 1, "no-records")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected ok=false, got true")
		}
	})
	t.Run("the first write is recorded", func(t *testing.T) {
		if err := auditLog.Write(t.Context(), 1, "file-a"); err != nil {
			t.Fatalf("failed to record write: %v", err)
		}
		stats, ok, err := auditLog.Get(t.Context(), 1, "file-a")
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if !ok {
			t.Fatal("expected stats for a file with records")
		}
		expected := Stats{
			FileID: "file-a",
			Writes: []Count{
				{Date: day1Date, Count: 1},
			},
		}
		if diff := cmp.Diff(expected, stats); diff != "" {
			t.Error(diff)
		}
	})
	t.Run("reads accumulate per day", func(t *testing.T) {
		for range 5 {
			if err := auditLog.Read(t.Context(), 1, "file-a"); err != nil {
				t.Fatalf("failed to record read: %v", err)
			}
		}
		auditLog.now = func() time.Time { return day1.Add(24 * time.Hour) }
		for range 7 {
			if err := auditLog.Read(t.Context(), 1, "file-a"); err != nil {
				t.Fatalf("failed to record read: %v", err)
			}
		}
		stats, ok, err := auditLog.Get(t.Context(), 1, "file-a")
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if !ok {
			t.Fatal("expected stats for a file with records")
		}
		expected := Stats{
			FileID: "file-a",
			Reads: []Count{
				{Date: day1Date, Count: 5},
				{Date: day1Date.Add(24 * time.Hour), Count: 7},
			},
			Writes: []Count{
				{Date: day1Date, Count: 1},
			},
		}
		if diff := cmp.Diff(expected, stats); diff != "" {
			t.Error(diff)
		}
		if stats.TotalReads() != 12 {
			t.Errorf("expected 12 total reads, got %d", stats.TotalReads())
		}
		if stats.TotalWrites() != 1 {
			t.Errorf("expected 1 total write, got %d", stats.TotalWrites())
		}
		if !stats.LastRead().Equal(day1Date.Add(24 * time.Hour)) {
			t.Errorf("unexpected last read %v", stats.LastRead())
		}
	})
	t.Run("deletes are recorded separately", func(t *testing.T) {
		if err := auditLog.Delete(t.Context(), 1, "file-a"); err != nil {
			t.Fatalf("failed to record delete: %v", err)
		}
		stats, _, err := auditLog.Get(t.Context(), 1, "file-a")
		if err != nil {
			t.Fatalf("failed to get stats: %v", err)
		}
		if len(stats.Deletes) != 1 || stats.Deletes[0].Count != 1 {
			t.Errorf("expected one delete record, got %+v", stats.Deletes)
		}
	})
	t.Run("records are scoped to their tenant", func(t *testing.T) {
		_, ok, err := auditLog.Get(t.Context(), 2, "file-a")
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected tenant 2 not to see tenant 1's records")
		}
	})
}
