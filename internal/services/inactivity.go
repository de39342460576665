package services

import (
	"sync"
	"time"
)

// InactivityState is the monitor's per-connection state
type InactivityState string

const (
	InactivityActive   InactivityState = "active"
	InactivityAwaiting InactivityState = "awaiting_follow_up"
)

// InactivityMonitor owns one timer per WebSocket connection. Every inbound
// message resets it to the base delay; on expiry it invokes onIdle and re-arms
// with the next rung of a doubling delay ladder, until the follow-up cap is
// reached or the connection goes away.
//
// onIdle receives the attempt number (1-based) and returns whether the
// follow-up was actually sent; a false return stops the ladder until the next
// Reset (e.g. the session hit its follow-up cap).
type InactivityMonitor struct {
	base   time.Duration
	max    int
	onIdle func(attempt int) bool

	mu      sync.Mutex
	timer   *time.Timer
	attempt int
	stopped bool
}

// NewInactivityMonitor creates a monitor. It stays disarmed until Reset.
func NewInactivityMonitor(base time.Duration, max int, onIdle func(attempt int) bool) *InactivityMonitor {
	return &InactivityMonitor{
		base:   base,
		max:    max,
		onIdle: onIdle,
	}
}

// Reset returns the monitor to the active state and re-arms the base delay.
// Call on every inbound client message.
func (m *InactivityMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.attempt = 0
	m.arm(m.base)
}

// Stop cancels the timer permanently. Call on disconnect so no follow-up fires
// against a closed channel.
func (m *InactivityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// State reports whether the connection is active or awaiting a follow-up
func (m *InactivityMonitor) State() InactivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt > 0 {
		return InactivityAwaiting
	}
	return InactivityActive
}

// Attempts returns how many follow-ups have fired since the last Reset
func (m *InactivityMonitor) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// arm replaces the timer. Caller holds m.mu.
func (m *InactivityMonitor) arm(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(d, m.expire)
}

func (m *InactivityMonitor) expire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	sent := m.onIdle(attempt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || !sent || attempt >= m.max {
		// No further timer until the next inbound message
		return
	}
	if m.attempt != attempt {
		// A Reset raced with onIdle and already re-armed the base delay;
		// arming the stale ladder rung here would clobber it
		return
	}
	// Escalating ladder: base, 2x, 4x, ...
	m.arm(m.base << uint(attempt))
}
