package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// limiterPool keeps one rate limiter per cache key so a fast scroller in
// one channel cannot starve fetches for another.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// Wait blocks until the key's limiter grants a token or ctx is done.
func (p *limiterPool) Wait(ctx context.Context, key string) error {
	return p.get(key).Wait(ctx)
}
