package queue

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/park285/court-queue/internal/domain"
)

// MatchView is an active match with denormalised slot holders.
type MatchView struct {
	ID        string
	Status    domain.MatchStatus
	CreatedAt time.Time
	StartedAt *time.Time
	Slots     []SlotView
}

// HistoryEntry is one match seen from a single player's side.
type HistoryEntry struct {
	MatchID   string
	Status    domain.MatchStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Team      int
	Teammates []string
	Opponents []string
}

// MatchSummary lists both teams of a match by name.
type MatchSummary struct {
	ID        string
	Status    domain.MatchStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	TeamOne   []string
	TeamTwo   []string
}

// ListOpenMatches returns queued and ongoing matches, oldest first.
func (s *Scheduler) ListOpenMatches(ctx context.Context) ([]MatchView, error) {
	matches, err := s.store.ActiveMatches(ctx)
	if err != nil {
		return nil, unavailable("active matches", err)
	}
	players, err := s.playerIndex(ctx)
	if err != nil {
		return nil, err
	}
	sortOldestFirst(matches)
	out := make([]MatchView, 0, len(matches))
	for _, m := range matches {
		out = append(out, MatchView{
			ID:        m.ID,
			Status:    m.Status,
			CreatedAt: m.CreatedAt,
			StartedAt: m.StartedAt,
			Slots:     slotViews(m.Slots, players),
		})
	}
	return out, nil
}

// PlayerHistory lists every match the player held a slot in, newest first.
func (s *Scheduler) PlayerHistory(ctx context.Context, playerID string) ([]HistoryEntry, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidArgs
	}
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, unavailable("get player", err)
	}
	if p == nil {
		return nil, notFound("player", playerID)
	}
	matches, err := s.store.MatchesOf(ctx, playerID)
	if err != nil {
		return nil, unavailable("player matches", err)
	}
	players, err := s.playerIndex(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(matches)

	out := make([]HistoryEntry, 0, len(matches))
	for _, m := range matches {
		own, ok := m.SlotOf(playerID)
		if !ok {
			continue
		}
		e := HistoryEntry{
			MatchID:   m.ID,
			Status:    m.Status,
			CreatedAt: m.CreatedAt,
			StartedAt: m.StartedAt,
			EndedAt:   m.EndedAt,
			Team:      own.Team,
			Teammates: []string{},
			Opponents: []string{},
		}
		for _, v := range slotViews(m.Slots, players) {
			switch {
			case v.PlayerID == playerID:
			case v.Team == own.Team:
				e.Teammates = append(e.Teammates, v.Name)
			default:
				e.Opponents = append(e.Opponents, v.Name)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// MatchHistory lists every stored match, newest first.
func (s *Scheduler) MatchHistory(ctx context.Context) ([]MatchSummary, error) {
	matches, err := s.store.ListMatches(ctx)
	if err != nil {
		return nil, unavailable("list matches", err)
	}
	players, err := s.playerIndex(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(matches)
	out := make([]MatchSummary, 0, len(matches))
	for _, m := range matches {
		sum := MatchSummary{
			ID:        m.ID,
			Status:    m.Status,
			CreatedAt: m.CreatedAt,
			StartedAt: m.StartedAt,
			EndedAt:   m.EndedAt,
			TeamOne:   []string{},
			TeamTwo:   []string{},
		}
		for _, v := range slotViews(m.Slots, players) {
			if v.Team == domain.TeamOne {
				sum.TeamOne = append(sum.TeamOne, v.Name)
			} else {
				sum.TeamTwo = append(sum.TeamTwo, v.Name)
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

// Players returns every registered player in idle-pool order.
func (s *Scheduler) Players(ctx context.Context) ([]PoolEntry, error) {
	list, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, unavailable("list players", err)
	}
	active, err := s.store.ActiveMatches(ctx)
	if err != nil {
		return nil, unavailable("active matches", err)
	}
	slots := map[string]*domain.Slot{}
	for _, m := range active {
		for i := range m.Slots {
			sl := m.Slots[i]
			slots[sl.PlayerID] = &sl
		}
	}
	now := s.now()
	out := make([]PoolEntry, 0, len(list))
	for _, p := range list {
		secs, waiting := WaitSeconds(p, now)
		out = append(out, PoolEntry{
			Player:        p,
			WaitSeconds:   secs,
			Waiting:       waiting,
			Participation: domain.ParticipationOf(p, slots[p.ID]),
		})
	}
	SortIdlePool(out)
	return out, nil
}

// Participation reports where the player stands right now.
func (s *Scheduler) Participation(ctx context.Context, playerID string) (domain.Participation, error) {
	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return domain.Participation{}, unavailable("get player", err)
	}
	if p == nil {
		return domain.Participation{}, notFound("player", playerID)
	}
	sl, err := s.store.ActiveSlotOf(ctx, playerID)
	if err != nil {
		return domain.Participation{}, unavailable("active slot", err)
	}
	return domain.ParticipationOf(p, sl), nil
}

func (s *Scheduler) playerIndex(ctx context.Context) (map[string]*domain.Player, error) {
	list, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, unavailable("list players", err)
	}
	idx := make(map[string]*domain.Player, len(list))
	for _, p := range list {
		idx[p.ID] = p
	}
	return idx, nil
}

func sortOldestFirst(ms []*domain.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

func sortNewestFirst(ms []*domain.Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.After(ms[j].CreatedAt)
		}
		return ms[i].ID > ms[j].ID
	})
}
