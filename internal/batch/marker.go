package batch

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryMarker keeps markers in process. Expiry follows the injected clock.
type MemoryMarker struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	expires map[string]time.Time
}

var _ Marker = (*MemoryMarker)(nil)

func NewMemoryMarker(clk clockwork.Clock) *MemoryMarker {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &MemoryMarker{clock: clk, expires: make(map[string]time.Time)}
}

func (m *MemoryMarker) Mark(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.clock.Now().Add(ttl)
	return nil
}

func (m *MemoryMarker) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[key]
	if !ok {
		return false, nil
	}
	if !m.clock.Now().Before(exp) {
		delete(m.expires, key)
		return false, nil
	}
	return true, nil
}
