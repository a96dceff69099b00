// Package connectivity tracks online/offline status and raises edge-triggered
// events when it changes.
package connectivity

import "sync"

// Monitor holds the current reachability flag. The platform reports
// transitions through Set; handlers run only when the flag actually flips.
type Monitor struct {
	mu     sync.Mutex
	online bool
	nextID int
	up     map[int]func()
	down   map[int]func()
}

// New creates a Monitor seeded with the platform's current reachability.
func New(initialOnline bool) *Monitor {
	return &Monitor{
		online: initialOnline,
		up:     make(map[int]func()),
		down:   make(map[int]func()),
	}
}

// Online reports the last known status.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a platform transition. Repeating the current value is a no-op.
// Handlers run synchronously on the caller's goroutine after the monitor lock
// is released.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	handlers := m.down
	if online {
		handlers = m.up
	}
	fns := ordered(handlers, m.nextID)
	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnBecameOnline registers fn for offline→online transitions.
func (m *Monitor) OnBecameOnline(fn func()) (unsubscribe func()) {
	return m.register(m.up, fn)
}

// OnBecameOffline registers fn for online→offline transitions.
func (m *Monitor) OnBecameOffline(fn func()) (unsubscribe func()) {
	return m.register(m.down, fn)
}

func (m *Monitor) register(set map[int]func(), fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	set[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(set, id)
	}
}

// ordered returns handlers in registration order.
func ordered(set map[int]func(), next int) []func() {
	fns := make([]func(), 0, len(set))
	for i := 0; i < next; i++ {
		if fn, ok := set[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
