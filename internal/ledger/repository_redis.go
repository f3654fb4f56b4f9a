package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPayments = "cq:payments"

type redisPayment struct {
	ID          string `json:"id"`
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	PaidAt      string `json:"paid_at"`
}

type redisRepository struct {
	rdb *redis.Client
}

// NewRedisRepository keeps payments in one list, newest at the head.
func NewRedisRepository(rdb *redis.Client) Repository { return &redisRepository{rdb: rdb} }

func (r *redisRepository) Insert(ctx context.Context, p domain.Payment) error {
	b, err := json.Marshal(redisPayment{
		ID:          p.ID,
		PlayerID:    p.PlayerID,
		PlayerName:  p.PlayerName,
		Method:      string(p.Method),
		AmountCents: p.AmountCents,
		PaidAt:      p.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if err := r.rdb.LPush(ctx, keyPayments, b).Err(); err != nil {
		return fmt.Errorf("lpush payment: %w", err)
	}
	return nil
}

func (r *redisRepository) List(ctx context.Context) ([]domain.Payment, error) {
	raw, err := r.rdb.LRange(ctx, keyPayments, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange payments: %w", err)
	}
	out := make([]domain.Payment, 0, len(raw))
	for _, s := range raw {
		var rp redisPayment
		if err := json.Unmarshal([]byte(s), &rp); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, rp.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("decode payment %s time: %w", rp.ID, err)
		}
		out = append(out, domain.Payment{
			ID:          rp.ID,
			PlayerID:    rp.PlayerID,
			PlayerName:  rp.PlayerName,
			Method:      domain.PaymentMethod(rp.Method),
			AmountCents: rp.AmountCents,
			Timestamp:   ts,
		})
	}
	return out, nil
}
