package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/passwordless/internal/auth/store"
)

const (
	DefaultHousekeepingInterval = 5 * time.Minute
	DefaultRevocationSweep      = time.Hour
	DefaultCodeRetention        = 30 * 24 * time.Hour
)

// Sweeper drops expired in-memory state and reports how many entries went.
type Sweeper interface {
	Sweep(now time.Time) int
}

// HousekeepingService periodically clears expired limiter windows, lockouts,
// revocation entries and old verification codes.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Guards are swept on every tick.
	Guards map[string]Sweeper

	// Revocations and code pruning run on the slower RevocationSweep cadence.
	Revocations     Sweeper
	RevocationSweep time.Duration
	CodeRetention   time.Duration

	Now func() time.Time

	lastSlow time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewHousekeepingService creates the worker. A non-positive interval falls
// back to DefaultHousekeepingInterval.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	return &HousekeepingService{
		Store:           store,
		Logger:          logger,
		Interval:        interval,
		Guards:          map[string]Sweeper{},
		RevocationSweep: DefaultRevocationSweep,
		CodeRetention:   DefaultCodeRetention,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start runs the worker in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress pass has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs a single pass. Each step is independent; one failing
// does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	now := s.now()

	swept := 0
	for name, g := range s.Guards {
		n := g.Sweep(now)
		swept += n
		if n > 0 {
			s.Logger.Debug("swept guard entries", "guard", name, "count", n)
		}
	}

	if !s.lastSlow.IsZero() && now.Sub(s.lastSlow) < s.RevocationSweep {
		s.Logger.Debug("housekeeping pass completed", "guard_entries", swept)
		return
	}
	s.lastSlow = now

	revoked := 0
	if s.Revocations != nil {
		revoked = s.Revocations.Sweep(now)
	}

	var pruned int64
	if s.CodeRetention > 0 {
		n, err := s.Store.VerificationCodes().DeleteVerificationCodesBefore(ctx, now.Add(-s.CodeRetention))
		if err != nil {
			s.Logger.Error("failed to delete old verification codes", "error", err)
		}
		pruned = n
	}

	s.Logger.Info("housekeeping pass completed",
		"guard_entries", swept,
		"revocations", revoked,
		"codes_deleted", pruned,
	)
}

func (s *HousekeepingService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
