package queue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/court-queue/internal/domain"
	"github.com/redis/go-redis/v9"
)

var epoch = time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func seqIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s%d", prefix, n.Add(1)) }
}

func newMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStoreFromClient(rdb), mr
}

// backends lists the stores every scheduler test runs against.
func backends() map[string]func(t *testing.T) Store {
	m := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store {
			s, _ := newMiniredisStore(t)
			return s
		},
	}
	if os.Getenv(testDatabaseEnv) != "" {
		m["postgres"] = func(t *testing.T) Store { return newTestPostgresStore(t) }
	}
	return m
}

// testDatabaseEnv names a throwaway Postgres database; its tables are
// truncated before every test that uses it.
const testDatabaseEnv = "COURT_QUEUE_TEST_DATABASE_URL"

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	ctx := context.Background()
	db, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE match_players, matches, players CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func newTestScheduler(t *testing.T, store Store, clock *fakeClock) *Scheduler {
	t.Helper()
	s, err := NewScheduler(store, WithClock(clock.Now), WithIDGenerator(seqIDs("m")))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s
}

// seedPlayers registers waiting players p1..pN, all starting their wait at the
// current clock time.
func seedPlayers(t *testing.T, store Store, clock *fakeClock, n int) []string {
	t.Helper()
	b := NewBatch()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		now := clock.Now()
		p := domain.Player{
			ID:           fmt.Sprintf("p%d", i),
			Name:         fmt.Sprintf("Player %d", i),
			Level:        domain.LevelB,
			WaitingSince: &now,
			CreatedAt:    now,
		}
		b.AddPlayer(p)
		ids = append(ids, p.ID)
	}
	if err := store.Commit(context.Background(), b); err != nil {
		t.Fatalf("seed players: %v", err)
	}
	return ids
}

func mustPlayer(t *testing.T, store Store, id string) *domain.Player {
	t.Helper()
	p, err := store.GetPlayer(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("GetPlayer(%s): %v %v", id, p, err)
	}
	return p
}
