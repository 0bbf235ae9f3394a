package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

// InMemoryGuard tracks consumed nonces in memory for tests and
// single-instance deployments.
type InMemoryGuard struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	sweep int
}

// NewInMemory constructs an empty in-memory replay guard.
func NewInMemory() *InMemoryGuard {
	return &InMemoryGuard{seen: make(map[string]time.Time)}
}

func (g *InMemoryGuard) Consume(ctx context.Context, nonce string, ttl time.Duration) error {
	if nonce == "" {
		return fmt.Errorf("nonce is required: %w", sentinel.ErrInvalidState)
	}
	now := requestcontext.Now(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.seen[nonce]; ok && now.Before(expiry) {
		return fmt.Errorf("nonce %s: %w", nonce, sentinel.ErrAlreadyUsed)
	}
	g.seen[nonce] = now.Add(ttl)

	// Amortized cleanup keeps the map bounded without a background timer.
	g.sweep++
	if g.sweep >= 1000 {
		g.sweep = 0
		for key, expiry := range g.seen {
			if !now.Before(expiry) {
				delete(g.seen, key)
			}
		}
	}
	return nil
}
