package market

import (
	"sync"

	"github.com/collect9/c9market/internal/domain"
)

// guard is the single mutual-exclusion domain for every mutating market
// operation. It is deliberately fail-fast rather than blocking: a second
// mutating call that arrives while one is in flight gets ErrReentrantCall,
// whether it is a genuinely nested call triggered by a collaborator callback
// or an overlapping request from the host. The host retries; the market
// never runs two mutations at once and never deadlocks on itself.
type guard struct {
	mu      sync.Mutex
	entered bool
}

// enter claims the guard or fails with ErrReentrantCall.
func (g *guard) enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entered {
		return domain.ErrReentrantCall
	}
	g.entered = true
	return nil
}

// exit releases the guard. Always deferred right after a successful enter so
// error paths release it too.
func (g *guard) exit() {
	g.mu.Lock()
	g.entered = false
	g.mu.Unlock()
}
