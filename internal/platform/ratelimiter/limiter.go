package ratelimiter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var ErrReservationRefused = errors.New("rate limiter refused reservation")

// TopicLimiter keeps one token bucket per content topic so a burst on one
// conversation does not starve the others. Idle buckets are evicted.
type TopicLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	byTopic map[string]*bucket
	hits    uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns nil when rps or burst is not positive; a nil limiter allows
// everything.
func New(rps float64, burst int, idleTTL time.Duration) *TopicLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &TopicLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byTopic: make(map[string]*bucket),
	}
}

func (l *TopicLimiter) Allow(topic string, now time.Time) bool {
	lim := l.limiterFor(topic, now)
	if lim == nil {
		return true
	}
	return lim.AllowN(now, 1)
}

// Wait reserves a token for topic as of now and sleeps out the reservation
// delay, which it returns. When ctx ends first the token is given back.
func (l *TopicLimiter) Wait(ctx context.Context, topic string, now time.Time) (time.Duration, error) {
	lim := l.limiterFor(topic, now)
	if lim == nil {
		return 0, ctx.Err()
	}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 0, ErrReservationRefused
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return 0, nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return delay, nil
	case <-ctx.Done():
		r.CancelAt(now)
		return delay, ctx.Err()
	}
}

func (l *TopicLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTopic)
}

func (l *TopicLimiter) limiterFor(topic string, now time.Time) *rate.Limiter {
	if l == nil {
		return nil
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byTopic[topic]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byTopic[topic] = b
	}
	b.lastSeen = now

	l.hits++
	if l.hits%512 == 0 {
		l.evictLocked(now)
	}
	return b.limiter
}

func (l *TopicLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, v := range l.byTopic {
		if v.lastSeen.Before(cutoff) {
			delete(l.byTopic, k)
		}
	}
}
