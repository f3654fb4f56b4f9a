package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Service {
	t.Helper()
	store := queue.NewMemoryStore()
	b := queue.NewBatch()
	b.AddPlayer(domain.Player{ID: "p1", Name: "Ana", Level: domain.LevelA})
	b.AddPlayer(domain.Player{ID: "p2", Name: "Ben", Level: domain.LevelC})
	require.NoError(t, store.Commit(context.Background(), b))

	clock := time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)
	svc := NewService(NewMemoryRepository(), store, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	return svc
}

func TestRecordAndList(t *testing.T) {
	svc := newTestLedger(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, "p1", "Cash", 15000)
	require.NoError(t, err)
	assert.Equal(t, "Ana", first.PlayerName)
	assert.Equal(t, domain.PaymentCash, first.Method)

	_, err = svc.Record(ctx, "p2", "gcash", 0)
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p2", list[0].PlayerID)
	assert.Equal(t, "p1", list[1].PlayerID)
}

func TestRecordValidation(t *testing.T) {
	svc := newTestLedger(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "p1", "card", 100)
	assert.ErrorIs(t, err, queue.ErrInvalidArgs)
	_, err = svc.Record(ctx, "p1", "cash", -1)
	assert.ErrorIs(t, err, queue.ErrInvalidArgs)
	_, err = svc.Record(ctx, "ghost", "cash", 100)
	assert.ErrorIs(t, err, queue.ErrNotFound)
	_, err = svc.Record(ctx, "", "cash", 100)
	assert.ErrorIs(t, err, queue.ErrInvalidArgs)
}

func TestTotals(t *testing.T) {
	svc := newTestLedger(t)
	ctx := context.Background()
	for _, r := range []struct {
		id     string
		method string
		amount int64
	}{{"p1", "cash", 10000}, {"p2", "cash", 5000}, {"p2", "gcash", 7500}} {
		_, err := svc.Record(ctx, r.id, r.method, r.amount)
		require.NoError(t, err)
	}

	tot, err := svc.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), tot.ByMethod[domain.PaymentCash])
	assert.Equal(t, int64(7500), tot.ByMethod[domain.PaymentGCash])
	assert.Equal(t, int64(22500), tot.Total)
	assert.Equal(t, 3, tot.Count)
}
