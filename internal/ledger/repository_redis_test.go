package ledger

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/court-queue/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRepositoryNewestFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	repo := NewRedisRepository(rdb)
	ctx := context.Background()

	at := time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, domain.Payment{ID: "a", PlayerID: "p1", PlayerName: "Ana", Method: domain.PaymentCash, AmountCents: 100, Timestamp: at}))
	require.NoError(t, repo.Insert(ctx, domain.Payment{ID: "b", PlayerID: "p2", PlayerName: "Ben", Method: domain.PaymentGCash, AmountCents: 0, Timestamp: at.Add(time.Minute)}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, domain.PaymentGCash, list[0].Method)
	assert.True(t, list[1].Timestamp.Equal(at))
	assert.Equal(t, int64(100), list[1].AmountCents)
}

func TestRedisRepositoryBadPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	_, _ = mr.Lpush(keyPayments, "{not json")

	_, err := NewRedisRepository(rdb).List(context.Background())
	assert.Error(t, err)
}
