// Package roster registers players and resolves them by id or name.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"go.uber.org/zap"
)

const maxNameRunes = 64

var ErrAmbiguousName = errors.New("ambiguous player name")

// Store is the slice of queue.Store the roster writes through.
type Store interface {
	queue.Registry
	Commit(ctx context.Context, b *queue.Batch) error
}

type Service struct {
	store Store
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(gen func() string) Option { return func(s *Service) { s.newID = gen } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a player. New players start waiting immediately.
func (s *Service) Add(ctx context.Context, name, level string) (*domain.Player, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameRunes {
		return nil, fmt.Errorf("name must be 1-%d characters: %w", maxNameRunes, queue.ErrInvalidArgs)
	}
	lv, ok := domain.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("level %q: %w", level, queue.ErrInvalidArgs)
	}
	now := s.now()
	p := domain.Player{
		ID:           s.newID(),
		Name:         name,
		Level:        lv,
		WaitingSince: &now,
		CreatedAt:    now,
	}
	b := queue.NewBatch()
	b.AddPlayer(p)
	if err := s.store.Commit(ctx, b); err != nil {
		return nil, fmt.Errorf("add player: %w: %w", queue.ErrStoreUnavailable, err)
	}
	obslog.L().Info("roster_add", zap.String("player_id", p.ID), zap.String("name", p.Name), zap.String("level", string(p.Level)))
	return p.Clone(), nil
}

// MarkDone flags the player as finished for the session. Queue state and
// counters are left alone.
func (s *Service) MarkDone(ctx context.Context, id string) (*domain.Player, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.DonePlaying {
		return p, nil
	}
	b := queue.NewBatch()
	b.MarkDone(p.ID)
	if err := s.store.Commit(ctx, b); err != nil {
		return nil, fmt.Errorf("mark done: %w: %w", queue.ErrStoreUnavailable, err)
	}
	p.DonePlaying = true
	obslog.L().Info("roster_done", zap.String("player_id", p.ID))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Player, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, queue.ErrInvalidArgs
	}
	p, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get player: %w: %w", queue.ErrStoreUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("player %q: %w", id, queue.ErrNotFound)
	}
	return p, nil
}

// Resolve finds a player from free text: exact id, then case-insensitive
// name, then a single best fuzzy match.
func (s *Service) Resolve(ctx context.Context, query string) (*domain.Player, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, queue.ErrInvalidArgs
	}
	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list players: %w: %w", queue.ErrStoreUnavailable, err)
	}

	var exact []*domain.Player
	names := make([]string, len(players))
	for i, p := range players {
		if p.ID == query {
			return p, nil
		}
		if strings.EqualFold(p.Name, query) {
			exact = append(exact, p)
		}
		names[i] = p.Name
	}
	switch len(exact) {
	case 1:
		return exact[0], nil
	case 0:
	default:
		return nil, fmt.Errorf("%d players named %q: %w", len(exact), query, ErrAmbiguousName)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, names)
	if len(ranks) == 0 {
		return nil, fmt.Errorf("player %q: %w", query, queue.ErrNotFound)
	}
	sort.Sort(ranks)
	if len(ranks) > 1 && ranks[0].Distance == ranks[1].Distance {
		return nil, fmt.Errorf("%q matches %s and %s: %w", query, ranks[0].Target, ranks[1].Target, ErrAmbiguousName)
	}
	return players[ranks[0].OriginalIndex], nil
}
