package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
)

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@cache.local:6380/3")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "cache.local:6380" || opts.Password != "secret" || opts.DB != 3 {
		t.Fatalf("unexpected options: addr=%q pass=%q db=%d", opts.Addr, opts.Password, opts.DB)
	}
	if opts.TLSConfig != nil {
		t.Fatalf("plain redis scheme must not enable TLS")
	}

	tlsOpts, err := parseRedisURL("rediss://cache.local:6380")
	if err != nil {
		t.Fatalf("parseRedisURL rediss: %v", err)
	}
	if tlsOpts.TLSConfig == nil || tlsOpts.DB != 0 {
		t.Fatalf("rediss should enable TLS on db 0")
	}

	if _, err := parseRedisURL("http://cache.local"); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := parseRedisURL("redis://cache.local/x"); err == nil {
		t.Fatalf("expected bad db error")
	}
}

func TestRedisStorePlayerRoundTrip(t *testing.T) {
	s, _ := newMiniredisStore(t)
	ctx := context.Background()

	since := epoch.Add(1500 * time.Millisecond)
	b := NewBatch()
	b.AddPlayer(domain.Player{ID: "p1", Name: "Ana", Level: domain.LevelA, WaitingSince: &since, AccumulatedWaitingSeconds: 12, CreatedAt: epoch})
	b.AddPlayer(domain.Player{ID: "p2", Name: "Ben", Level: domain.LevelD, CreatedAt: epoch})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	p, err := s.GetPlayer(ctx, "p1")
	if err != nil || p == nil {
		t.Fatalf("GetPlayer: %v %v", p, err)
	}
	if p.Name != "Ana" || p.Level != domain.LevelA || p.AccumulatedWaitingSeconds != 12 {
		t.Fatalf("unexpected player: %+v", p)
	}
	if p.WaitingSince == nil || !p.WaitingSince.Equal(since) {
		t.Fatalf("waiting since = %v; want %v", p.WaitingSince, since)
	}

	p2, _ := s.GetPlayer(ctx, "p2")
	if p2 == nil || p2.WaitingSince != nil {
		t.Fatalf("p2 should have no waiting clock: %+v", p2)
	}

	missing, err := s.GetPlayer(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("missing player = %v, %v; want nil, nil", missing, err)
	}

	all, err := s.ListPlayers(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("ListPlayers = %d, %v", len(all), err)
	}
}

func TestRedisStoreBatchIsAllOrNothing(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()
	clock := newFakeClock()
	seedPlayers(t, s, clock, 1)

	b := NewBatch()
	b.SetWaitingState("p1", nil, 0)
	b.InsertSlot(domain.Slot{MatchID: "nope", PlayerID: "p1", Team: 1, JoinedAt: epoch})
	err := s.Commit(ctx, b)
	if !errors.Is(err, errBatchConflict) {
		t.Fatalf("Commit error = %v; want batch conflict", err)
	}
	if p := mustPlayer(t, s, "p1"); p.WaitingSince == nil {
		t.Fatalf("waiting state changed despite failed batch")
	}
	if mr.Exists(keyActive("p1")) {
		t.Fatalf("active index written despite failed batch")
	}
}

func TestRedisStoreRejectsFifthSlot(t *testing.T) {
	s, _ := newMiniredisStore(t)
	ctx := context.Background()
	clock := newFakeClock()
	seedPlayers(t, s, clock, 5)

	b := NewBatch()
	b.CreateMatch(domain.Match{ID: "m1", Status: domain.MatchQueued, CreatedAt: epoch})
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		b.InsertSlot(domain.Slot{MatchID: "m1", PlayerID: id, Team: teamFor(i), Seq: i, JoinedAt: epoch})
	}
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	extra := NewBatch()
	extra.InsertSlot(domain.Slot{MatchID: "m1", PlayerID: "p5", Team: 2, Seq: 4, JoinedAt: epoch})
	if err := s.Commit(ctx, extra); !errors.Is(err, errBatchConflict) {
		t.Fatalf("fifth slot error = %v; want batch conflict", err)
	}

	m, err := s.GetMatch(ctx, "m1")
	if err != nil || m == nil {
		t.Fatalf("GetMatch: %v %v", m, err)
	}
	if len(m.Slots) != 4 {
		t.Fatalf("slots = %d; want 4", len(m.Slots))
	}
	open, err := s.OpenMatchesWithSlotCount(ctx)
	if err != nil || len(open) != 1 || open[0].Count != 4 {
		t.Fatalf("OpenMatchesWithSlotCount = %+v, %v", open, err)
	}
}

func TestRedisStoreFinishAndDeleteMaintainIndexes(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()
	clock := newFakeClock()
	seedPlayers(t, s, clock, 2)

	b := NewBatch()
	b.CreateMatch(domain.Match{ID: "m1", Status: domain.MatchQueued, CreatedAt: epoch})
	b.InsertSlot(domain.Slot{MatchID: "m1", PlayerID: "p1", Team: 1, Seq: 0, JoinedAt: epoch})
	b.CreateMatch(domain.Match{ID: "m2", Status: domain.MatchQueued, CreatedAt: epoch.Add(time.Second)})
	b.InsertSlot(domain.Slot{MatchID: "m2", PlayerID: "p2", Team: 1, Seq: 0, JoinedAt: epoch})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fin := NewBatch()
	fin.SetStatus("m1", domain.MatchFinished, epoch.Add(time.Minute))
	if err := s.Commit(ctx, fin); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if mr.Exists(keyActive("p1")) {
		t.Fatalf("finished match still indexes p1 as active")
	}
	active, _ := s.ActiveMatches(ctx)
	if len(active) != 1 || active[0].ID != "m2" {
		t.Fatalf("active matches = %+v", active)
	}
	hist, _ := s.MatchesOf(ctx, "p1")
	if len(hist) != 1 || hist[0].EndedAt == nil {
		t.Fatalf("p1 history = %+v", hist)
	}

	del := NewBatch()
	del.DeleteMatchAndSlots("m2")
	if err := s.Commit(ctx, del); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(keyMatch("m2")) || mr.Exists(keySlots("m2")) || mr.Exists(keyActive("p2")) {
		t.Fatalf("delete left keys behind")
	}
	if hist, _ := s.MatchesOf(ctx, "p2"); len(hist) != 0 {
		t.Fatalf("p2 history after delete = %+v", hist)
	}
	all, _ := s.ListMatches(ctx)
	if len(all) != 1 || all[0].ID != "m1" {
		t.Fatalf("ListMatches = %+v", all)
	}
}

func TestRedisStoreFinishedEmptyMatchLeavesActiveSet(t *testing.T) {
	s, mr := newMiniredisStore(t)
	ctx := context.Background()

	b := NewBatch()
	b.CreateMatch(domain.Match{ID: "empty", Status: domain.MatchQueued, CreatedAt: epoch})
	if err := s.Commit(ctx, b); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	fin := NewBatch()
	fin.SetStatus("empty", domain.MatchFinished, epoch.Add(time.Minute))
	if err := s.Commit(ctx, fin); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if ok, _ := mr.SIsMember(keyActiveMatches(), "empty"); ok {
		t.Fatalf("finished match still in the active set")
	}
	if open, err := s.OpenMatchesWithSlotCount(ctx); err != nil || len(open) != 0 {
		t.Fatalf("OpenMatchesWithSlotCount = %+v, %v", open, err)
	}
	if active, err := s.ActiveMatches(ctx); err != nil || len(active) != 0 {
		t.Fatalf("ActiveMatches = %+v, %v", active, err)
	}
}
