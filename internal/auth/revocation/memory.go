package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is the in-process registry. Revocations do not survive a restart
// and are not shared between replicas; use Redis for that.
type Memory struct {
	entries sync.Map // map[string]time.Time
	now     func() time.Time
}

func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now}
}

func (m *Memory) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	if !m.now().Before(expiresAt) {
		return nil
	}
	m.entries.Store(jti, expiresAt)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	v, ok := m.entries.Load(jti)
	if !ok {
		return false, nil
	}
	if m.now().Before(v.(time.Time)) {
		return true, nil
	}
	m.entries.CompareAndDelete(jti, v)
	return false, nil
}

func (m *Memory) Sweep(now time.Time) int {
	removed := 0
	m.entries.Range(func(key, value any) bool {
		if !now.Before(value.(time.Time)) && m.entries.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed
}

func (m *Memory) Ping(context.Context) error { return nil }
