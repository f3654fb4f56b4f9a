package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/park285/court-queue/internal/domain"
)

// errBatchConflict reports a batch that would break store integrity (unknown
// record, full match, second active slot). The scheduler never builds one
// while it holds the lock.
var errBatchConflict = errors.New("batch conflict")

// slotFits rejects a slot whose seq and team were planned against a match
// that has since gained or lost slots.
func slotFits(sl domain.Slot, count int) error {
	if sl.Seq != count || sl.Team != teamFor(count) {
		return fmt.Errorf("slot %d/team %d for %q planned against stale match %q (%d slots): %w",
			sl.Seq, sl.Team, sl.PlayerID, sl.MatchID, count, errBatchConflict)
	}
	return nil
}

// MemoryStore keeps everything in process memory. It backs tests and
// single-instance development runs.
type MemoryStore struct {
	mu sync.RWMutex

	players map[string]*domain.Player
	matches map[string]*domain.Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*domain.Player),
		matches: make(map[string]*domain.Match),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[id].Clone(), nil
}

func (m *MemoryStore) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (m *MemoryStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matches[id].Clone(), nil
}

func (m *MemoryStore) OpenMatchesWithSlotCount(ctx context.Context) ([]OpenMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []OpenMatch
	for _, mt := range m.matches {
		if mt.Status != domain.MatchQueued {
			continue
		}
		out = append(out, OpenMatch{ID: mt.ID, CreatedAt: mt.CreatedAt, Count: len(mt.Slots)})
	}
	return out, nil
}

func (m *MemoryStore) ActiveMatches(ctx context.Context) ([]*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Match
	for _, mt := range m.matches {
		if mt.Status.Active() {
			out = append(out, mt.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) ActiveSlotOf(ctx context.Context, playerID string) (*domain.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sl, ok := activeSlot(m.matches, playerID); ok {
		return &sl, nil
	}
	return nil, nil
}

func (m *MemoryStore) MatchesOf(ctx context.Context, playerID string) ([]*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Match
	for _, mt := range m.matches {
		if _, ok := mt.SlotOf(playerID); ok {
			out = append(out, mt.Clone())
		}
	}
	return out, nil
}

func (m *MemoryStore) ListMatches(ctx context.Context) ([]*domain.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Match, 0, len(m.matches))
	for _, mt := range m.matches {
		out = append(out, mt.Clone())
	}
	return out, nil
}

// Commit stages the batch against copies of the maps and swaps them in only
// when every op applied cleanly.
func (m *MemoryStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	players := make(map[string]*domain.Player, len(m.players))
	for k, v := range m.players {
		players[k] = v
	}
	matches := make(map[string]*domain.Match, len(m.matches))
	for k, v := range m.matches {
		matches[k] = v
	}
	// Records are cloned on first write so the live maps stay untouched.
	touchedP := map[string]bool{}
	touchedM := map[string]bool{}
	player := func(id string) (*domain.Player, error) {
		p, ok := players[id]
		if !ok {
			return nil, fmt.Errorf("player %q: %w", id, errBatchConflict)
		}
		if !touchedP[id] {
			p = p.Clone()
			players[id] = p
			touchedP[id] = true
		}
		return p, nil
	}
	match := func(id string) (*domain.Match, error) {
		mt, ok := matches[id]
		if !ok {
			return nil, fmt.Errorf("match %q: %w", id, errBatchConflict)
		}
		if !touchedM[id] {
			mt = mt.Clone()
			matches[id] = mt
			touchedM[id] = true
		}
		return mt, nil
	}

	for _, o := range b.ops {
		switch o.kind {
		case opAddPlayer:
			if _, exists := players[o.player.ID]; exists {
				return fmt.Errorf("player %q exists: %w", o.player.ID, errBatchConflict)
			}
			players[o.player.ID] = o.player.Clone()
			touchedP[o.player.ID] = true
		case opSetWaitingState:
			p, err := player(o.id)
			if err != nil {
				return err
			}
			p.WaitingSince = o.since
			p.AccumulatedWaitingSeconds = o.accumulated
		case opIncrementGamesPlayed:
			p, err := player(o.id)
			if err != nil {
				return err
			}
			p.GamesPlayed++
		case opMarkDone:
			p, err := player(o.id)
			if err != nil {
				return err
			}
			p.DonePlaying = true
		case opCreateMatch:
			if _, exists := matches[o.match.ID]; exists {
				return fmt.Errorf("match %q exists: %w", o.match.ID, errBatchConflict)
			}
			matches[o.match.ID] = o.match.Clone()
			touchedM[o.match.ID] = true
		case opInsertSlot:
			mt, err := match(o.slot.MatchID)
			if err != nil {
				return err
			}
			if mt.Status != domain.MatchQueued || len(mt.Slots) >= domain.MatchCapacity {
				return fmt.Errorf("match %q not open: %w", mt.ID, errBatchConflict)
			}
			if err := slotFits(o.slot, len(mt.Slots)); err != nil {
				return err
			}
			if _, busy := activeSlot(matches, o.slot.PlayerID); busy {
				return fmt.Errorf("player %q already seated: %w", o.slot.PlayerID, errBatchConflict)
			}
			mt.Slots = append(mt.Slots, o.slot)
		case opSetStatus:
			mt, err := match(o.id)
			if err != nil {
				return err
			}
			mt.Status = o.status
			at := o.at
			switch o.status {
			case domain.MatchOngoing:
				mt.StartedAt = &at
			case domain.MatchFinished:
				mt.EndedAt = &at
			}
		case opDeleteMatchAndSlots:
			if _, ok := matches[o.id]; !ok {
				return fmt.Errorf("match %q: %w", o.id, errBatchConflict)
			}
			delete(matches, o.id)
		default:
			return fmt.Errorf("unknown op %d: %w", o.kind, errBatchConflict)
		}
	}

	m.players = players
	m.matches = matches
	return nil
}

func activeSlot(matches map[string]*domain.Match, playerID string) (domain.Slot, bool) {
	for _, mt := range matches {
		if !mt.Status.Active() {
			continue
		}
		if sl, ok := mt.SlotOf(playerID); ok {
			return sl, true
		}
	}
	return domain.Slot{}, false
}
