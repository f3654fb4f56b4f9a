package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker serialises scheduler mutations. The returned unlock must be called
// exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

var ErrLockNotAcquired = errors.New("scheduler lock not acquired")

// MutexLocker is a process-local Locker that honours context cancellation.
type MutexLocker struct {
	sem chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const defaultLockKey = "cq:lock:scheduler"

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker is a SET NX lock shared by every scheduler instance pointing at
// the same Redis.
type RedisLocker struct {
	rdb           *redis.Client
	key           string
	ttl           time.Duration
	retries       int
	retryInterval time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, retries int, retryInterval time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if retries <= 0 {
		retries = 50
	}
	if retryInterval <= 0 {
		retryInterval = 20 * time.Millisecond
	}
	return &RedisLocker{rdb: rdb, key: defaultLockKey, ttl: ttl, retries: retries, retryInterval: retryInterval}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	for i := 0; i < l.retries; i++ {
		ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(token) }, nil
		}
		if i < l.retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(l.retryInterval):
			}
		}
	}
	return nil, ErrLockNotAcquired
}

func (l *RedisLocker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Int()
	if err != nil {
		obslog.L().Error("scheduler_lock_release_error", zap.String("key", l.key), zap.Error(err))
		return
	}
	if n == 0 {
		// TTL elapsed mid critical section; another holder may have run concurrently.
		obslog.L().Warn("scheduler_lock_expired", zap.String("key", l.key), zap.Duration("ttl", l.ttl))
	}
}

// advisoryLockKey is an arbitrary constant shared by every instance.
const advisoryLockKey int64 = 0x636f757274

// AdvisoryLocker holds a Postgres session-level advisory lock on a dedicated
// connection for the duration of the critical section. A process-local gate
// sits in front so each process pins at most one pool connection while
// waiting; the rest of the pool stays free for the holder and for readers.
type AdvisoryLocker struct {
	db    *sql.DB
	local *MutexLocker
}

func NewAdvisoryLocker(db *sql.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, local: NewMutexLocker()}
}

func (l *AdvisoryLocker) Lock(ctx context.Context) (func(), error) {
	release, err := l.local.Lock(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("advisory lock conn: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		_ = conn.Close()
		release()
		return nil, fmt.Errorf("pg_advisory_lock: %w", err)
	}
	return func() {
		defer release()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			obslog.L().Error("scheduler_lock_release_error", zap.Int64("key", advisoryLockKey), zap.Error(err))
		}
		_ = conn.Close()
	}, nil
}
