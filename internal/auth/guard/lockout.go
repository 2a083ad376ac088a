package guard

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAccountLocked matches any *AccountLockedError.
	ErrAccountLocked = errors.New("account temporarily locked")

	// ErrTooManyAttemptsFromIP rejects an address without locking any account.
	ErrTooManyAttemptsFromIP = errors.New("too many failed attempts from this address")
)

// AccountLockedError is returned while an email is locked out.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *AccountLockedError) Is(target error) bool { return target == ErrAccountLocked }

// LockoutConfig holds the thresholds. Zero values take the defaults.
type LockoutConfig struct {
	MaxAttempts   int           // failures per email before lockout, default 5
	Window        time.Duration // failure counting window, default 15m
	Duration      time.Duration // lockout length, default 30m
	SweepInterval time.Duration // default 5m
}

func (c LockoutConfig) withDefaults() LockoutConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.Duration <= 0 {
		c.Duration = 30 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Lockout tracks failed verifications per email and per IP. An email that
// reaches MaxAttempts inside Window is locked for Duration. An IP that
// reaches 2*MaxAttempts is refused without locking the emails it targeted.
type Lockout struct {
	cfg LockoutConfig
	now func() time.Time

	emails sync.Map // map[string]*slot
	ips    sync.Map // map[string]*slot
	locks  sync.Map // map[string]time.Time

	sweep throttle
}

func NewLockout(cfg LockoutConfig, now func() time.Time) *Lockout {
	if now == nil {
		now = time.Now
	}
	cfg = cfg.withDefaults()
	l := &Lockout{cfg: cfg, now: now, sweep: throttle{interval: cfg.SweepInterval}}
	l.sweep.last.Store(now().UnixNano())
	return l
}

// CanAttempt returns nil, *AccountLockedError or ErrTooManyAttemptsFromIP.
func (l *Lockout) CanAttempt(email, ip string) error {
	now := l.now()
	l.maybeSweep(now)

	if v, ok := l.locks.Load(email); ok {
		until := v.(time.Time)
		if now.Before(until) {
			return &AccountLockedError{Until: until}
		}
		l.locks.CompareAndDelete(email, v)
	}

	if current(&l.emails, email, now) >= int64(l.cfg.MaxAttempts) {
		until := now.Add(l.cfg.Duration)
		actual, loaded := l.locks.LoadOrStore(email, until)
		if loaded {
			until = actual.(time.Time)
		}
		return &AccountLockedError{Until: until}
	}

	if ip != "" && current(&l.ips, ip, now) >= int64(2*l.cfg.MaxAttempts) {
		return ErrTooManyAttemptsFromIP
	}
	return nil
}

// RecordFailure counts one failed attempt against both keys.
func (l *Lockout) RecordFailure(email, ip string) {
	now := l.now()
	bump(slotFor(&l.emails, email), now, l.cfg.Window)
	if ip != "" {
		bump(slotFor(&l.ips, ip), now, l.cfg.Window)
	}
}

// RecordSuccess clears both counters and any lockout for the pair.
func (l *Lockout) RecordSuccess(email, ip string) {
	l.emails.Delete(email)
	l.locks.Delete(email)
	if ip != "" {
		l.ips.Delete(ip)
	}
}

// Sweep drops elapsed counters and lockouts. Returns the number removed.
func (l *Lockout) Sweep(now time.Time) int {
	removed := prune(&l.emails, now) + prune(&l.ips, now)
	l.locks.Range(func(key, value any) bool {
		if !now.Before(value.(time.Time)) && l.locks.CompareAndDelete(key, value) {
			removed++
		}
		return true
	})
	return removed
}

func (l *Lockout) maybeSweep(now time.Time) {
	if l.sweep.due(now) {
		l.Sweep(now)
	}
}
