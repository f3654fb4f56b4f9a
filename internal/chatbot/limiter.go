package chatbot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type senderBucket struct {
	lim  *rate.Limiter
	last time.Time
}

// senderLimits keeps one token bucket per sender. A bucket left alone for
// idle has refilled completely, so dropping it loses nothing.
type senderLimits struct {
	mu        sync.Mutex
	buckets   map[string]*senderBucket
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

// newSenderLimits allows perMinute commands per sender; nil means unlimited.
func newSenderLimits(perMinute int) *senderLimits {
	if perMinute <= 0 {
		return nil
	}
	burst := perMinute / 4
	if burst < 1 {
		burst = 1
	}
	interval := time.Minute / time.Duration(perMinute)
	return &senderLimits{
		buckets: make(map[string]*senderBucket),
		every:   rate.Every(interval),
		burst:   burst,
		idle:    time.Duration(burst) * interval,
	}
}

func (l *senderLimits) allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &senderBucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.last = now
	return b.lim.AllowN(now, 1)
}

// sweep drops idle buckets, at most once per idle window.
func (l *senderLimits) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.last) >= l.idle {
			delete(l.buckets, k)
		}
	}
}
