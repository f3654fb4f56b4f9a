// Package ledger records court-fee payments.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"go.uber.org/zap"
)

type Service struct {
	repo    Repository
	players queue.Registry
	now     func() time.Time
}

func NewService(repo Repository, players queue.Registry, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, players: players, now: now}
}

// Totals sums payments per method. Amounts are in cents.
type Totals struct {
	ByMethod map[domain.PaymentMethod]int64
	Total    int64
	Count    int
}

// Record stores a payment for an existing player. Zero amounts are accepted.
func (s *Service) Record(ctx context.Context, playerID, method string, amountCents int64) (*domain.Payment, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, fmt.Errorf("player id required: %w", queue.ErrInvalidArgs)
	}
	m, ok := domain.ParsePaymentMethod(method)
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", method, queue.ErrInvalidArgs)
	}
	if amountCents < 0 {
		return nil, fmt.Errorf("negative amount: %w", queue.ErrInvalidArgs)
	}
	p, err := s.players.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("get player: %w: %w", queue.ErrStoreUnavailable, err)
	}
	if p == nil {
		return nil, fmt.Errorf("player %q: %w", playerID, queue.ErrNotFound)
	}
	pay := domain.Payment{
		ID:          uuid.NewString(),
		PlayerID:    p.ID,
		PlayerName:  p.Name,
		Method:      m,
		AmountCents: amountCents,
		Timestamp:   s.now(),
	}
	if err := s.repo.Insert(ctx, pay); err != nil {
		return nil, fmt.Errorf("record payment: %w: %w", queue.ErrStoreUnavailable, err)
	}
	obslog.L().Info("payment_record",
		zap.String("payment_id", pay.ID),
		zap.String("player_id", pay.PlayerID),
		zap.String("method", string(pay.Method)),
		zap.Int64("amount_cents", pay.AmountCents),
	)
	return &pay, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Payment, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w: %w", queue.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *Service) Totals(ctx context.Context) (*Totals, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Summarize(list), nil
}

// Summarize totals an already fetched list, so callers showing both see
// figures that agree.
func Summarize(list []domain.Payment) *Totals {
	t := &Totals{ByMethod: map[domain.PaymentMethod]int64{domain.PaymentCash: 0, domain.PaymentGCash: 0}}
	for _, p := range list {
		t.ByMethod[p.Method] += p.AmountCents
		t.Total += p.AmountCents
		t.Count++
	}
	return t
}
