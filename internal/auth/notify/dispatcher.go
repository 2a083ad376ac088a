package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/passwordless/pkg/slogx"
)

// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
var ErrQueueFull = errors.New("notify: queue full")

// ErrStopped is returned by Enqueue after Stop.
var ErrStopped = errors.New("notify: dispatcher stopped")

type DispatcherConfig struct {
	QueueSize   int           // default 256
	MaxAttempts int           // default 3
	Backoff     time.Duration // first retry delay, doubled each time; default 500ms
	SendTimeout time.Duration // per attempt; default 10s
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Dispatcher decouples delivery from the request that issued the code.
// Enqueue never blocks; a single worker drains the queue and retries
// failed sends with exponential backoff.
type Dispatcher struct {
	notifier Notifier
	logger   *slog.Logger
	cfg      DispatcherConfig

	queue  chan Message
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(n Notifier, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		notifier: n,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker.
func (d *Dispatcher) Start() {
	go d.run()
	d.logger.Info("notification dispatcher started", "queue_size", d.cfg.QueueSize)
}

// Stop refuses new messages, delivers what is already queued and waits for
// the worker, or gives up on the backlog when ctx ends first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.doneCh:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		close(d.stopCh)
		<-d.doneCh
		return ctx.Err()
	}
}

// Enqueue schedules msg for delivery without waiting.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		slogx.FromContext(ctx).Error("notification dropped, queue full", "to", slogx.MaskEmail(msg.To))
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	to := slogx.MaskEmail(msg.To)
	delay := d.cfg.Backoff

	select {
	case <-d.stopCh:
		d.logger.Error("notification abandoned on shutdown", "to", to)
		return
	default:
	}

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		err := d.notifier.Send(ctx, msg)
		cancel()
		if err == nil {
			return
		}

		d.logger.Warn("notification send failed", "to", to, "attempt", attempt, "error", err)
		if attempt == d.cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-d.stopCh:
			d.logger.Error("notification abandoned on shutdown", "to", to)
			return
		}
	}
	d.logger.Error("notification undeliverable", "to", to, "attempts", d.cfg.MaxAttempts)
}
