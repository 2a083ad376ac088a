package guard

import (
	"sync"
	"sync/atomic"
	"time"
)

// window is an immutable snapshot of one key's counter. Updates swap in a
// new snapshot with compare-and-swap, so a key never needs a lock.
type window struct {
	start  time.Time
	length time.Duration
	count  int64
}

func (w *window) live(now time.Time) bool {
	return w != nil && now.Sub(w.start) < w.length
}

type slot = atomic.Pointer[window]

// slotFor returns the slot for key, creating it on first use.
func slotFor(m *sync.Map, key string) *slot {
	if v, ok := m.Load(key); ok {
		return v.(*slot)
	}
	v, _ := m.LoadOrStore(key, new(slot))
	return v.(*slot)
}

// bump increments the counter in s, restarting the window when the current
// one has elapsed. It returns the snapshot it installed.
func bump(s *slot, now time.Time, length time.Duration) *window {
	for {
		cur := s.Load()
		next := &window{start: now, length: length, count: 1}
		if cur.live(now) {
			next = &window{start: cur.start, length: cur.length, count: cur.count + 1}
		}
		if s.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// current returns the live count in m for key without creating it.
func current(m *sync.Map, key string, now time.Time) int64 {
	v, ok := m.Load(key)
	if !ok {
		return 0
	}
	w := v.(*slot).Load()
	if !w.live(now) {
		return 0
	}
	return w.count
}

// prune deletes expired slots from m and returns how many went.
//
// A bump can land on a slot between the liveness check and the delete.
// Such a slot is put back. If another caller already installed a fresh slot
// for the key, the revived count is dropped; that costs at most one count
// per key per sweep.
func prune(m *sync.Map, now time.Time) int {
	removed := 0
	m.Range(func(key, value any) bool {
		s := value.(*slot)
		if w := s.Load(); !w.live(now) && m.CompareAndDelete(key, s) {
			if !reinstate(m, key, s, now) {
				removed++
			}
		}
		return true
	})
	return removed
}

// reinstate puts a deleted slot back when a concurrent bump revived it.
func reinstate(m *sync.Map, key any, s *slot, now time.Time) bool {
	if !s.Load().live(now) {
		return false
	}
	m.LoadOrStore(key, s)
	return true
}

// throttle lets one caller through per interval.
type throttle struct {
	interval time.Duration
	last     atomic.Int64 // unix nanos
}

func (t *throttle) due(now time.Time) bool {
	last := t.last.Load()
	if now.UnixNano()-last < int64(t.interval) {
		return false
	}
	return t.last.CompareAndSwap(last, now.UnixNano())
}
