package queue

import (
	"context"
	"time"

	"github.com/park285/court-queue/internal/domain"
)

// Registry is the read side of the player roster.
// Lookups of unknown ids return (nil, nil).
type Registry interface {
	GetPlayer(ctx context.Context, id string) (*domain.Player, error)
	ListPlayers(ctx context.Context) ([]*domain.Player, error)
}

// OpenMatch is a queued match with its current slot count.
type OpenMatch struct {
	ID        string
	CreatedAt time.Time
	Count     int
}

// MatchStore is the read side of matches and slots. Returned matches carry
// their slots ordered by join sequence. Unknown ids return (nil, nil).
type MatchStore interface {
	GetMatch(ctx context.Context, id string) (*domain.Match, error)
	// OpenMatchesWithSlotCount lists every queued match; callers filter on Count.
	OpenMatchesWithSlotCount(ctx context.Context) ([]OpenMatch, error)
	ActiveMatches(ctx context.Context) ([]*domain.Match, error)
	ActiveSlotOf(ctx context.Context, playerID string) (*domain.Slot, error)
	MatchesOf(ctx context.Context, playerID string) ([]*domain.Match, error)
	ListMatches(ctx context.Context) ([]*domain.Match, error)
}

// Store is a complete backend. Commit applies every mutation of a batch or
// none of them.
type Store interface {
	Registry
	MatchStore
	Commit(ctx context.Context, b *Batch) error
	Close() error
}

type opKind int

const (
	opAddPlayer opKind = iota + 1
	opSetWaitingState
	opIncrementGamesPlayed
	opMarkDone
	opCreateMatch
	opInsertSlot
	opSetStatus
	opDeleteMatchAndSlots
)

type op struct {
	kind        opKind
	player      domain.Player
	match       domain.Match
	slot        domain.Slot
	id          string
	since       *time.Time
	accumulated int64
	status      domain.MatchStatus
	at          time.Time
}

// Batch collects writes that must land together.
type Batch struct {
	ops []op
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) Len() int { return len(b.ops) }

// AddPlayer registers a new player record.
func (b *Batch) AddPlayer(p domain.Player) {
	b.ops = append(b.ops, op{kind: opAddPlayer, player: *p.Clone()})
}

// SetWaitingState overwrites the waiting clock; a nil since clears it.
func (b *Batch) SetWaitingState(playerID string, since *time.Time, accumulated int64) {
	var s *time.Time
	if since != nil {
		t := *since
		s = &t
	}
	b.ops = append(b.ops, op{kind: opSetWaitingState, id: playerID, since: s, accumulated: accumulated})
}

func (b *Batch) IncrementGamesPlayed(playerID string) {
	b.ops = append(b.ops, op{kind: opIncrementGamesPlayed, id: playerID})
}

func (b *Batch) MarkDone(playerID string) {
	b.ops = append(b.ops, op{kind: opMarkDone, id: playerID})
}

// CreateMatch records a new match; slots are added separately.
func (b *Batch) CreateMatch(m domain.Match) {
	c := m.Clone()
	c.Slots = nil
	b.ops = append(b.ops, op{kind: opCreateMatch, match: *c})
}

func (b *Batch) InsertSlot(s domain.Slot) {
	b.ops = append(b.ops, op{kind: opInsertSlot, slot: s})
}

// SetStatus moves a match to status and stamps StartedAt/EndedAt with at
// for ongoing/finished respectively.
func (b *Batch) SetStatus(matchID string, status domain.MatchStatus, at time.Time) {
	b.ops = append(b.ops, op{kind: opSetStatus, id: matchID, status: status, at: at})
}

func (b *Batch) DeleteMatchAndSlots(matchID string) {
	b.ops = append(b.ops, op{kind: opDeleteMatchAndSlots, id: matchID})
}
