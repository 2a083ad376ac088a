package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/guard"
)

var (
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidCode       = errors.New("invalid verification code")
	ErrCodeExpired       = errors.New("verification code expired")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotAnAdmin        = errors.New("administrator role required")
	ErrIdentityNotFound  = errors.New("identity not found")
	ErrCooldownActive    = errors.New("verification code cooldown active")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// Lockout outcomes come straight from the guard.
	ErrAccountLocked         = guard.ErrAccountLocked
	ErrTooManyAttemptsFromIP = guard.ErrTooManyAttemptsFromIP
)

// AccountLockedError carries the instant the lockout ends.
type AccountLockedError = guard.AccountLockedError

// CooldownError is returned when a code was sent to the identity too recently.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("verification code cooldown active, retry in %ds", e.SecondsRemaining())
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldownActive }

// SecondsRemaining rounds up so a caller never retries early.
func (e *CooldownError) SecondsRemaining() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// RateLimitError is returned when a fixed-window quota is spent.
type RateLimitError struct {
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for a %d minute window", e.WindowMinutes())
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimitExceeded }

func (e *RateLimitError) WindowMinutes() int {
	return int(math.Ceil(e.Window.Minutes()))
}

// RetryAfterSeconds falls back to the whole window when the exact reset is unknown.
func (e *RateLimitError) RetryAfterSeconds() int {
	d := e.RetryAfter
	if d <= 0 {
		d = e.Window
	}
	return max(int(math.Ceil(d.Seconds())), 1)
}
