// Package connectivity provides the network reachability collaborator the
// cache layer observes. The library never probes the network itself; the
// host platform feeds reachability changes into a Monitor and the caches
// fold the current state into their offline reconciliation.
package connectivity

import "sync"

// CancelFunc detaches an observer. Safe to call more than once.
type CancelFunc func()

// Monitor reports network reachability and notifies observers on change.
type Monitor interface {
	// Connected reports the most recently known reachability state.
	Connected() bool

	// Subscribe registers fn to be called on every state change. fn may be
	// invoked from arbitrary goroutines.
	Subscribe(fn func(connected bool)) CancelFunc
}

// ManualMonitor is a Monitor whose state is driven by the host (or a
// test) through SetConnected. Observers are only notified on actual
// transitions; setting the current state again is a no-op.
type ManualMonitor struct {
	mu        sync.Mutex
	connected bool
	nextID    uint64
	observers map[uint64]func(bool)
}

var _ Monitor = (*ManualMonitor)(nil)

// NewManualMonitor returns a ManualMonitor with the given initial state.
func NewManualMonitor(connected bool) *ManualMonitor {
	return &ManualMonitor{
		connected: connected,
		observers: make(map[uint64]func(bool)),
	}
}

// Connected implements Monitor.
func (m *ManualMonitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe implements Monitor.
func (m *ManualMonitor) Subscribe(fn func(bool)) CancelFunc {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// SetConnected records a new reachability state and notifies observers if
// it changed.
func (m *ManualMonitor) SetConnected(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	observers := make([]func(bool), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	// Notify outside the lock so observers can call back into the monitor.
	for _, fn := range observers {
		fn(connected)
	}
}
