package queuepresenter

import (
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/ledger"
)

func TestToDTOMatchFillsNames(t *testing.T) {
	m := &domain.Match{
		ID:     "m1",
		Status: domain.MatchOngoing,
		Slots: []domain.Slot{
			{MatchID: "m1", PlayerID: "p1", Team: 1, Seq: 0},
			{MatchID: "m1", PlayerID: "gone", Team: 1, Seq: 1},
		},
	}
	players := map[string]*domain.Player{"p1": {ID: "p1", Name: "Ana", Level: domain.LevelA, GamesPlayed: 3}}

	got := ToDTOMatch(m, players)
	if got.Status != "ongoing" || len(got.Slots) != 2 {
		t.Fatalf("match = %+v", got)
	}
	if got.Slots[0].Name != "Ana" || got.Slots[0].Level != "A" || got.Slots[0].GamesPlayed != 3 {
		t.Fatalf("slot 0 = %+v", got.Slots[0])
	}
	if got.Slots[1].Name != "" || got.Slots[1].PlayerID != "gone" {
		t.Fatalf("slot 1 = %+v", got.Slots[1])
	}
	if ToDTOMatch(nil, nil) != nil {
		t.Fatalf("nil match should stay nil")
	}
}

func TestToDTOPlayerCarriesParticipation(t *testing.T) {
	since := time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)
	p := &domain.Player{ID: "p1", Name: "Ana", Level: domain.LevelB, WaitingSince: &since}

	got := ToDTOPlayer(p, domain.InMatchParticipation("m9", 2), 42)
	if got.Status != "in_match" || got.MatchID != "m9" || got.Team != 2 || got.WaitSeconds != 42 {
		t.Fatalf("player = %+v", got)
	}
}

func TestToDTOPaymentsTotals(t *testing.T) {
	list := []domain.Payment{{ID: "x", Method: domain.PaymentCash, AmountCents: 500}}
	totals := &ledger.Totals{ByMethod: map[domain.PaymentMethod]int64{domain.PaymentCash: 500, domain.PaymentGCash: 0}, Total: 500, Count: 1}

	got := ToDTOPayments(list, totals)
	if len(got.Payments) != 1 || got.Payments[0].Method != "cash" {
		t.Fatalf("payments = %+v", got.Payments)
	}
	if got.Totals["cash"] != 500 || got.Totals["gcash"] != 0 || got.Total != 500 {
		t.Fatalf("totals = %+v", got)
	}
}
