package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Stopper cancels a pending timer.
type Stopper interface {
	Stop() bool
}

// Timers creates one-shot timers.
type Timers interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// RealTimers uses the time package.
type RealTimers struct{}

func (RealTimers) Now() time.Time { return time.Now() }

func (RealTimers) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// ManualTimers fires timers only when Advance moves its clock past them.
type ManualTimers struct {
	mu      sync.Mutex
	now     time.Time
	pending []*manualTimer
}

type manualTimer struct {
	owner   *ManualTimers
	at      time.Time
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// NewManualTimers starts a manual clock at now.
func NewManualTimers(now time.Time) *ManualTimers {
	return &ManualTimers{now: now}
}

func (m *ManualTimers) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualTimers) AfterFunc(d time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m, at: m.now.Add(d), f: f}
	m.pending = append(m.pending, t)
	return t
}

// Pending returns the number of timers not yet fired or stopped.
func (m *ManualTimers) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves the clock by d and runs due timers in order. Callbacks run
// synchronously on the calling goroutine.
func (m *ManualTimers) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		sort.SliceStable(m.pending, func(i, j int) bool { return m.pending[i].at.Before(m.pending[j].at) })
		var due *manualTimer
		for i, t := range m.pending {
			if t.stopped {
				continue
			}
			if !t.at.After(target) {
				due = t
				t.stopped = true
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
			}
			break
		}
		if due == nil {
			m.now = target
			m.pending = compact(m.pending)
			m.mu.Unlock()
			return
		}
		if due.at.After(m.now) {
			m.now = due.at
		}
		m.mu.Unlock()
		due.f()
	}
}

func compact(ts []*manualTimer) []*manualTimer {
	out := ts[:0]
	for _, t := range ts {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}
