package guard

import (
	"sync"
	"time"
)

// DefaultSweepInterval bounds how often in-memory state is pruned.
const DefaultSweepInterval = 5 * time.Minute

// FixedWindow counts requests per key in fixed windows. When a call arrives
// at or after windowStart+window the window restarts at that call; otherwise
// the count grows and the call is allowed while it stays within max.
// Bursts of up to 2*max straddling a window boundary are allowed.
type FixedWindow struct {
	entries sync.Map // map[string]*slot
	now     func() time.Time
	sweep   throttle
}

// FixedWindowOption configures a FixedWindow.
type FixedWindowOption func(*FixedWindow)

// WithFixedWindowClock replaces time.Now.
func WithFixedWindowClock(now func() time.Time) FixedWindowOption {
	return func(f *FixedWindow) { f.now = now }
}

// WithFixedWindowSweep sets the minimum spacing between opportunistic sweeps.
func WithFixedWindowSweep(interval time.Duration) FixedWindowOption {
	return func(f *FixedWindow) { f.sweep.interval = interval }
}

func NewFixedWindow(opts ...FixedWindowOption) *FixedWindow {
	f := &FixedWindow{now: time.Now, sweep: throttle{interval: DefaultSweepInterval}}
	for _, opt := range opts {
		opt(f)
	}
	f.sweep.last.Store(f.now().UnixNano())
	return f
}

// Allow records a request for key and reports whether it is within max
// requests for the current window.
func (f *FixedWindow) Allow(key string, max int, window time.Duration) bool {
	now := f.now()
	w := bump(slotFor(&f.entries, key), now, window)
	f.maybeSweep(now)
	return w.count <= int64(max)
}

// ResetIn returns how long until key's current window ends, or zero when
// there is no live window.
func (f *FixedWindow) ResetIn(key string) time.Duration {
	v, ok := f.entries.Load(key)
	if !ok {
		return 0
	}
	now := f.now()
	w := v.(*slot).Load()
	if !w.live(now) {
		return 0
	}
	return w.start.Add(w.length).Sub(now)
}

// Sweep drops keys whose window has elapsed. Returns the number removed.
func (f *FixedWindow) Sweep(now time.Time) int {
	return prune(&f.entries, now)
}

func (f *FixedWindow) maybeSweep(now time.Time) {
	if f.sweep.due(now) {
		f.Sweep(now)
	}
}

// Len is the number of tracked keys, live or not yet swept.
func (f *FixedWindow) Len() int {
	n := 0
	f.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
