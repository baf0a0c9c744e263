package persist

import (
	"context"
	"sync"
)

// Guard serialises work per key. A second Acquire for a held key blocks
// until the holder releases it or ctx is done.
type Guard struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewGuard() *Guard {
	return &Guard{held: make(map[string]chan struct{})}
}

// Key builds the guard key of one design view.
func Key(designID, viewID string) string {
	return designID + "/" + viewID
}

// Acquire returns a release func that is safe to call more than once.
func (g *Guard) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		g.mu.Lock()
		busy, ok := g.held[key]
		if !ok {
			done := make(chan struct{})
			g.held[key] = done
			g.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					g.mu.Lock()
					delete(g.held, key)
					g.mu.Unlock()
					close(done)
				})
			}, nil
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-busy:
		}
	}
}

// Busy reports whether key is currently held.
func (g *Guard) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[key]
	return ok
}
