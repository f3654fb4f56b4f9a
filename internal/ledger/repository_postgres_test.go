package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a throwaway database; every table in it is truncated.
func TestPostgresRepositoryNewestFirst(t *testing.T) {
	url := os.Getenv("COURT_QUEUE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COURT_QUEUE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := queue.OpenPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := queue.NewPostgresStore(db)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, EnsureSchema(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE payments, match_players, matches, players CASCADE`)
	require.NoError(t, err)

	b := queue.NewBatch()
	b.AddPlayer(domain.Player{ID: "p1", Name: "Ana", Level: domain.LevelA, CreatedAt: time.Now()})
	require.NoError(t, store.Commit(ctx, b))

	repo := NewPostgresRepository(db)
	at := time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Insert(ctx, domain.Payment{ID: "a", PlayerID: "p1", PlayerName: "Ana", Method: domain.PaymentCash, AmountCents: 100, Timestamp: at}))
	require.NoError(t, repo.Insert(ctx, domain.Payment{ID: "b", PlayerID: "p1", PlayerName: "Ana", Method: domain.PaymentGCash, Timestamp: at.Add(time.Minute)}))
	assert.Error(t, repo.Insert(ctx, domain.Payment{ID: "c", PlayerID: "ghost", PlayerName: "?", Method: domain.PaymentCash, Timestamp: at}))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, domain.PaymentGCash, list[0].Method)
	assert.True(t, list[1].Timestamp.Equal(at))
	assert.Equal(t, int64(100), list[1].AmountCents)
}
