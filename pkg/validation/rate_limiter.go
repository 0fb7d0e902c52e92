package validation

import (
	"sync"
	"time"
)

// RateLimiter admits at most maxRequests per client within any sliding
// window of the configured length.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time

	cleanupTick *time.Ticker
	done        chan struct{}
	closeOnce   sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine. Call
// Close to stop it.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		clients:     make(map[string][]time.Time),
		done:        make(chan struct{}),
	}

	rl.cleanupTick = time.NewTicker(window)
	go rl.cleanup()

	return rl
}

// Allow records a request for clientID and reports whether it is within
// the limit. Rejected requests are not recorded.
func (rl *RateLimiter) Allow(clientID string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := prune(rl.clients[clientID], now.Add(-rl.window))
	if len(hits) >= rl.maxRequests {
		rl.clients[clientID] = hits
		return false
	}
	rl.clients[clientID] = append(hits, now)
	return true
}

// Remaining returns how many more requests clientID may make right now.
func (rl *RateLimiter) Remaining(clientID string) int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	hits := prune(rl.clients[clientID], now.Add(-rl.window))
	rl.clients[clientID] = hits
	return max(rl.maxRequests-len(hits), 0)
}

// prune drops timestamps at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.removeInactiveClients()
		case <-rl.done:
			return
		}
	}
}

// removeInactiveClients forgets clients with no request inside the window.
func (rl *RateLimiter) removeInactiveClients() {
	cutoff := rl.now().Add(-rl.window)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for clientID, hits := range rl.clients {
		if len(prune(hits, cutoff)) == 0 {
			delete(rl.clients, clientID)
		}
	}
}

// clientCount returns the number of tracked clients.
func (rl *RateLimiter) clientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.cleanupTick.Stop()
	})
}
