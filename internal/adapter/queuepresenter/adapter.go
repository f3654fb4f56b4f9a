// Package queuepresenter converts queue and ledger results into wire DTOs.
package queuepresenter

import (
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/ledger"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/pkg/queuedto"
)

func ToDTOSlots(views []queue.SlotView) []queuedto.Slot {
	out := make([]queuedto.Slot, 0, len(views))
	for _, v := range views {
		out = append(out, queuedto.Slot{
			PlayerID:    v.PlayerID,
			Name:        v.Name,
			Level:       string(v.Level),
			Team:        v.Team,
			GamesPlayed: v.GamesPlayed,
			DonePlaying: v.DonePlaying,
		})
	}
	return out
}

func ToDTOMatchView(v queue.MatchView) queuedto.Match {
	return queuedto.Match{
		ID:        v.ID,
		Status:    string(v.Status),
		CreatedAt: v.CreatedAt,
		StartedAt: v.StartedAt,
		Slots:     ToDTOSlots(v.Slots),
	}
}

// ToDTOMatch fills slot names from players; unknown ids keep an empty name.
func ToDTOMatch(m *domain.Match, players map[string]*domain.Player) *queuedto.Match {
	if m == nil {
		return nil
	}
	out := &queuedto.Match{
		ID:        m.ID,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
		Slots:     make([]queuedto.Slot, 0, len(m.Slots)),
	}
	for _, s := range m.Slots {
		ds := queuedto.Slot{PlayerID: s.PlayerID, Team: s.Team}
		if p := players[s.PlayerID]; p != nil {
			ds.Name = p.Name
			ds.Level = string(p.Level)
			ds.GamesPlayed = p.GamesPlayed
			ds.DonePlaying = p.DonePlaying
		}
		out.Slots = append(out.Slots, ds)
	}
	return out
}

func ToDTOPlacement(p *queue.Placement) *queuedto.Placement {
	if p == nil {
		return nil
	}
	return &queuedto.Placement{MatchID: p.MatchID, Team: p.Team, Created: p.Created, Slots: ToDTOSlots(p.Slots)}
}

func ToDTOFinish(r *queue.FinishResult, players map[string]*domain.Player) *queuedto.FinishResponse {
	if r == nil {
		return nil
	}
	out := &queuedto.FinishResponse{Players: make([]queuedto.PlayerSnapshot, 0, len(r.Players))}
	if m := ToDTOMatch(r.Match, players); m != nil {
		out.Match = *m
	}
	for _, s := range r.Players {
		out.Players = append(out.Players, queuedto.PlayerSnapshot{
			ID:                        s.ID,
			GamesPlayed:               s.GamesPlayed,
			WaitingSince:              s.WaitingSince,
			AccumulatedWaitingSeconds: s.AccumulatedWaitingSeconds,
		})
	}
	return out
}

func ToDTOPlayer(p *domain.Player, part domain.Participation, waitSeconds int64) queuedto.Player {
	return queuedto.Player{
		ID:                        p.ID,
		Name:                      p.Name,
		Level:                     string(p.Level),
		GamesPlayed:               p.GamesPlayed,
		DonePlaying:               p.DonePlaying,
		WaitingSince:              p.WaitingSince,
		AccumulatedWaitingSeconds: p.AccumulatedWaitingSeconds,
		WaitSeconds:               waitSeconds,
		Status:                    string(part.Kind),
		MatchID:                   part.MatchID,
		Team:                      part.Team,
	}
}

func ToDTOPool(entries []queue.PoolEntry) []queuedto.Player {
	out := make([]queuedto.Player, 0, len(entries))
	for _, e := range entries {
		out = append(out, ToDTOPlayer(e.Player, e.Participation, e.WaitSeconds))
	}
	return out
}

func ToDTOHistory(entries []queue.HistoryEntry) []queuedto.HistoryEntry {
	out := make([]queuedto.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, queuedto.HistoryEntry{
			MatchID:   e.MatchID,
			Status:    string(e.Status),
			CreatedAt: e.CreatedAt,
			EndedAt:   e.EndedAt,
			Team:      e.Team,
			Teammates: e.Teammates,
			Opponents: e.Opponents,
		})
	}
	return out
}

func ToDTOSummaries(sums []queue.MatchSummary) []queuedto.MatchSummary {
	out := make([]queuedto.MatchSummary, 0, len(sums))
	for _, s := range sums {
		out = append(out, queuedto.MatchSummary{
			ID:        s.ID,
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt,
			StartedAt: s.StartedAt,
			EndedAt:   s.EndedAt,
			TeamOne:   s.TeamOne,
			TeamTwo:   s.TeamTwo,
		})
	}
	return out
}

func ToDTOPayment(p domain.Payment) queuedto.Payment {
	return queuedto.Payment{
		ID:          p.ID,
		PlayerID:    p.PlayerID,
		PlayerName:  p.PlayerName,
		Method:      string(p.Method),
		AmountCents: p.AmountCents,
		Timestamp:   p.Timestamp,
	}
}

func ToDTOPayments(list []domain.Payment, totals *ledger.Totals) queuedto.PaymentList {
	out := queuedto.PaymentList{Payments: make([]queuedto.Payment, 0, len(list)), Totals: map[string]int64{}}
	for _, p := range list {
		out.Payments = append(out.Payments, ToDTOPayment(p))
	}
	if totals != nil {
		for m, v := range totals.ByMethod {
			out.Totals[string(m)] = v
		}
		out.Total = totals.Total
	}
	return out
}
