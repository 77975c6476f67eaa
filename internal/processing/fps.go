package processing

import (
	"sync"
	"time"
)

// FPSMeter counts frames and recomputes the rate once per second.
type FPSMeter struct {
	mu      sync.Mutex
	now     func() time.Time
	last    time.Time
	count   int
	current float64
}

func NewFPSMeter(now func() time.Time) *FPSMeter {
	if now == nil {
		now = time.Now
	}
	return &FPSMeter{now: now}
}

// Tick records one frame and returns the current rate.
func (m *FPSMeter) Tick() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now()
	m.count++
	if m.last.IsZero() {
		m.last = t
	}
	elapsed := t.Sub(m.last).Milliseconds()
	if elapsed >= 1000 {
		m.current = float64(m.count) * 1000 / float64(elapsed)
		m.count = 0
		m.last = t
	}
	return m.current
}

func (m *FPSMeter) Current() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
