package queue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/obslog"
	"go.uber.org/zap"
)

// Scheduler assigns waiting players to matches and drives the match
// lifecycle. Every mutation holds the Locker and lands as a single Batch.
type Scheduler struct {
	store  Store
	locker Locker
	now    func() time.Time
	newID  func() string
}

type Option func(*Scheduler)

// WithClock overrides time.Now; tests use it to pin waiting-time math.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

func NewScheduler(store Store, opts ...Option) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is required")
	}
	s := &Scheduler{
		store:  store,
		locker: NewMutexLocker(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Now exposes the scheduler clock so collaborators stamp times consistently.
func (s *Scheduler) Now() time.Time { return s.now() }

// SlotView is a slot with a snapshot of its player.
type SlotView struct {
	PlayerID    string
	Team        int
	Seq         int
	Name        string
	Level       domain.Level
	GamesPlayed int
	DonePlaying bool
}

type Placement struct {
	MatchID string
	Team    int
	Created bool
	Slots   []SlotView
}

// PlayerSnapshot is the post-finish state of one participant.
type PlayerSnapshot struct {
	ID                        string
	GamesPlayed               int
	WaitingSince              *time.Time
	AccumulatedWaitingSeconds int64
}

type FinishResult struct {
	Match   *domain.Match
	Players []PlayerSnapshot
}

// Enqueue places the player into the oldest open match, creating one when
// none has room.
func (s *Scheduler) Enqueue(ctx context.Context, playerID string) (*Placement, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrInvalidArgs
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, unavailable("get player", err)
	}
	if p == nil {
		return nil, notFound("player", playerID)
	}
	active, err := s.store.ActiveSlotOf(ctx, playerID)
	if err != nil {
		return nil, unavailable("active slot", err)
	}
	if active != nil {
		return nil, fmt.Errorf("player %q holds a slot in match %q: %w", playerID, active.MatchID, ErrAlreadyQueuedOrPlaying)
	}

	open, err := s.store.OpenMatchesWithSlotCount(ctx)
	if err != nil {
		return nil, unavailable("open matches", err)
	}
	now := s.now()
	b := NewBatch()

	var match *domain.Match
	if target, ok := pickOpenMatch(open); ok {
		match, err = s.store.GetMatch(ctx, target.ID)
		if err != nil {
			return nil, unavailable("get match", err)
		}
		if match != nil && (match.Status != domain.MatchQueued || len(match.Slots) >= domain.MatchCapacity) {
			match = nil
		}
	}
	created := false
	if match == nil {
		match = &domain.Match{ID: s.newID(), Status: domain.MatchQueued, CreatedAt: now}
		b.CreateMatch(*match)
		created = true
	}

	count := len(match.Slots)
	slot := domain.Slot{
		MatchID:  match.ID,
		PlayerID: playerID,
		Team:     teamFor(count),
		Seq:      count,
		JoinedAt: now,
	}
	b.InsertSlot(slot)
	b.SetWaitingState(playerID, nil, 0)

	// Snapshot the other slot holders before committing so a read failure
	// cannot follow a successful write.
	players := map[string]*domain.Player{}
	for _, sl := range match.Slots {
		other, err := s.store.GetPlayer(ctx, sl.PlayerID)
		if err != nil {
			return nil, unavailable("get player", err)
		}
		if other != nil {
			players[other.ID] = other
		}
	}
	self := p.Clone()
	self.WaitingSince = nil
	self.AccumulatedWaitingSeconds = 0
	players[self.ID] = self

	if err := s.store.Commit(ctx, b); err != nil {
		obslog.L().Error("queue_enqueue_error", zap.String("player_id", playerID), zap.String("match_id", match.ID), zap.Error(err))
		return nil, unavailable("commit enqueue", err)
	}
	match.Slots = append(match.Slots, slot)

	obslog.L().Info("queue_enqueue",
		zap.String("player_id", playerID),
		zap.String("match_id", match.ID),
		zap.Int("team", slot.Team),
		zap.Int("slot_count", len(match.Slots)),
		zap.Bool("created", created),
	)
	return &Placement{
		MatchID: match.ID,
		Team:    slot.Team,
		Created: created,
		Slots:   slotViews(match.Slots, players),
	}, nil
}

// Start moves a queued match to ongoing. Under-filled matches may start.
func (s *Scheduler) Start(ctx context.Context, matchID string) (*domain.Match, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, ErrInvalidArgs
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.MatchQueued {
		return nil, invalidState(m.ID, string(m.Status), "start")
	}
	now := s.now()
	b := NewBatch()
	b.SetStatus(m.ID, domain.MatchOngoing, now)
	if err := s.store.Commit(ctx, b); err != nil {
		return nil, unavailable("commit start", err)
	}
	m.Status = domain.MatchOngoing
	m.StartedAt = &now
	obslog.L().Info("match_start", zap.String("match_id", m.ID), zap.Int("slot_count", len(m.Slots)))
	return m, nil
}

// Finish closes a match, credits a game to every participant and restarts
// their waiting clocks from zero.
func (s *Scheduler) Finish(ctx context.Context, matchID string) (*FinishResult, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, ErrInvalidArgs
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status == domain.MatchFinished {
		return nil, invalidState(m.ID, string(m.Status), "finish")
	}
	if m.Status == domain.MatchQueued {
		obslog.L().Warn("match_finish_from_queued", zap.String("match_id", m.ID))
	}

	now := s.now()
	b := NewBatch()
	snapshots := make([]PlayerSnapshot, 0, len(m.Slots))
	for _, sl := range m.Slots {
		p, err := s.store.GetPlayer(ctx, sl.PlayerID)
		if err != nil {
			return nil, unavailable("get player", err)
		}
		if p == nil {
			obslog.L().Warn("match_finish_missing_player", zap.String("match_id", m.ID), zap.String("player_id", sl.PlayerID))
			continue
		}
		b.IncrementGamesPlayed(p.ID)
		b.SetWaitingState(p.ID, &now, 0)
		since := now
		snapshots = append(snapshots, PlayerSnapshot{
			ID:                        p.ID,
			GamesPlayed:               p.GamesPlayed + 1,
			WaitingSince:              &since,
			AccumulatedWaitingSeconds: 0,
		})
	}
	b.SetStatus(m.ID, domain.MatchFinished, now)
	if err := s.store.Commit(ctx, b); err != nil {
		obslog.L().Error("match_finish_error", zap.String("match_id", m.ID), zap.Error(err))
		return nil, unavailable("commit finish", err)
	}
	m.Status = domain.MatchFinished
	m.EndedAt = &now
	obslog.L().Info("match_finish", zap.String("match_id", m.ID), zap.Int("players", len(snapshots)))
	return &FinishResult{Match: m, Players: snapshots}, nil
}

// Cancel deletes a queued or ongoing match and its slots. Players keep their
// counters and waiting state untouched.
func (s *Scheduler) Cancel(ctx context.Context, matchID string) (*domain.Match, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, ErrInvalidArgs
	}
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.Status.Active() {
		return nil, invalidState(m.ID, string(m.Status), "cancel")
	}
	b := NewBatch()
	b.DeleteMatchAndSlots(m.ID)
	if err := s.store.Commit(ctx, b); err != nil {
		return nil, unavailable("commit cancel", err)
	}
	obslog.L().Info("match_cancel", zap.String("match_id", m.ID), zap.String("from", string(m.Status)), zap.Int("slot_count", len(m.Slots)))
	return m, nil
}

func (s *Scheduler) lock(ctx context.Context) (func(), error) {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, unavailable("scheduler lock", err)
	}
	return unlock, nil
}

func (s *Scheduler) loadMatch(ctx context.Context, id string) (*domain.Match, error) {
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return nil, unavailable("get match", err)
	}
	if m == nil {
		return nil, notFound("match", id)
	}
	return m, nil
}

// pickOpenMatch returns the oldest queued match with a free slot.
func pickOpenMatch(open []OpenMatch) (OpenMatch, bool) {
	var best OpenMatch
	found := false
	for _, om := range open {
		if om.Count >= domain.MatchCapacity {
			continue
		}
		if !found || om.CreatedAt.Before(best.CreatedAt) || (om.CreatedAt.Equal(best.CreatedAt) && om.ID < best.ID) {
			best = om
			found = true
		}
	}
	return best, found
}

// teamFor maps the slot count before insertion to a team: 0,1 → 1; 2,3 → 2.
func teamFor(count int) int {
	if count < 2 {
		return domain.TeamOne
	}
	return domain.TeamTwo
}

func slotViews(slots []domain.Slot, players map[string]*domain.Player) []SlotView {
	out := make([]SlotView, 0, len(slots))
	for _, sl := range slots {
		v := SlotView{PlayerID: sl.PlayerID, Team: sl.Team, Seq: sl.Seq, Name: sl.PlayerID}
		if p := players[sl.PlayerID]; p != nil {
			v.Name = p.Name
			v.Level = p.Level
			v.GamesPlayed = p.GamesPlayed
			v.DonePlaying = p.DonePlaying
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Team != out[j].Team {
			return out[i].Team < out[j].Team
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}
