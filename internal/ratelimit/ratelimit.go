package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter - token bucket на пользователя. Защищает бота от флуда,
// к лимитам апстрима отношения не имеет.
type Limiter struct {
	mu      sync.Mutex
	entries map[int64]*entry
	limit   rate.Limit
	burst   int

	entryTTL        time.Duration
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Config struct {
	RequestsPerMinute int
	// Burst по умолчанию равен RequestsPerMinute
	Burst int
}

func New(cfg Config) *Limiter {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}

	return &Limiter{
		entries:         make(map[int64]*entry),
		limit:           rate.Every(time.Minute / time.Duration(perMinute)),
		burst:           burst,
		entryTTL:        15 * time.Minute,
		cleanupInterval: 5 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(userID).Allow()
}

func (l *Limiter) RemainingRequests(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rem := int(l.get(userID).Tokens()); rem > 0 {
		return rem
	}
	return 0
}

// RetryAfter - через сколько появится следующий токен
func (l *Limiter) RetryAfter(userID int64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim := l.get(userID)
	tokens := lim.Tokens()
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / float64(lim.Limit()) * float64(time.Second))
}

// get вызывается под мьютексом. Заодно раз в cleanupInterval
// выкидывает давно неактивных пользователей.
func (l *Limiter) get(userID int64) *rate.Limiter {
	now := time.Now()
	if now.Sub(l.lastCleanup) >= l.cleanupInterval {
		for uid, e := range l.entries {
			if now.Sub(e.lastSeen) > l.entryTTL {
				delete(l.entries, uid)
			}
		}
		l.lastCleanup = now
	}

	e, ok := l.entries[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
