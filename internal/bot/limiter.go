package bot

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// floodGuard keeps one token bucket per chat user.
type floodGuard struct {
	mu        sync.Mutex
	limiters  map[int64]*userLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newFloodGuard(perSecond float64, burst int) *floodGuard {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &floodGuard{
		limiters: make(map[int64]*userLimiter),
		rate:     limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether userID may send another event now.
func (g *floodGuard) Allow(userID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) > limiterIdleTTL {
		g.sweep(now)
	}

	ul, ok := g.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(g.rate, g.burst)}
		g.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// sweep drops buckets of users idle for longer than limiterIdleTTL.
func (g *floodGuard) sweep(now time.Time) {
	for id, ul := range g.limiters {
		if now.Sub(ul.lastSeen) > limiterIdleTTL {
			delete(g.limiters, id)
		}
	}
	g.lastSweep = now
}

func (g *floodGuard) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.limiters)
}
