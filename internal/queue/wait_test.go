package queue

import (
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
)

func TestWaitSeconds(t *testing.T) {
	since := epoch
	p := &domain.Player{ID: "a", WaitingSince: &since, AccumulatedWaitingSeconds: 45}

	got, waiting := WaitSeconds(p, since.Add(10*time.Second+900*time.Millisecond))
	if !waiting || got != 55 {
		t.Fatalf("WaitSeconds = %d,%v; want 55,true", got, waiting)
	}

	// clock skew never subtracts from the carried-over seconds
	got, _ = WaitSeconds(p, since.Add(-time.Minute))
	if got != 45 {
		t.Fatalf("skewed WaitSeconds = %d; want 45", got)
	}

	idle := &domain.Player{ID: "b", AccumulatedWaitingSeconds: 99}
	if got, waiting := WaitSeconds(idle, since); waiting || got != 0 {
		t.Fatalf("idle WaitSeconds = %d,%v; want 0,false", got, waiting)
	}
	if _, waiting := WaitSeconds(nil, since); waiting {
		t.Fatalf("nil player reported waiting")
	}
}

func TestSortIdlePool(t *testing.T) {
	entry := func(id string, done bool, wait int64) PoolEntry {
		return PoolEntry{Player: &domain.Player{ID: id, DonePlaying: done}, WaitSeconds: wait}
	}
	entries := []PoolEntry{
		entry("C", true, 500),
		entry("A", false, 30),
		entry("D", false, 30),
		entry("B", false, 60),
	}
	SortIdlePool(entries)

	want := []string{"B", "A", "D", "C"}
	for i, e := range entries {
		if e.Player.ID != want[i] {
			t.Fatalf("position %d = %s; want %s (order %v)", i, e.Player.ID, want[i], ids(entries))
		}
	}
}

func ids(entries []PoolEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Player.ID
	}
	return out
}
