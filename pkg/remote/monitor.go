package remote

import (
	"log/slog"
	"sync"
)

// Monitor tracks connectivity to the remote store and notifies when it
// comes back. Restore callbacks run on the goroutine that observed the
// transition and must be quick or dispatch their own work.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	onRestore []func()
}

// NewMonitor starts in the given state. Starting offline is the safe
// default when nothing has probed yet.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// Online reports the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnRestore registers a callback for offline-to-online transitions.
func (m *Monitor) OnRestore(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = append(m.onRestore, fn)
}

// SetOnline updates the state; the offline-to-online edge fires the
// restore callbacks exactly once per transition.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	restored := online && !m.online
	m.online = online
	callbacks := append(([]func())(nil), m.onRestore...)
	m.mu.Unlock()

	if !restored {
		return
	}
	slog.Info("Remote: connectivity restored")
	for _, fn := range callbacks {
		fn()
	}
}
