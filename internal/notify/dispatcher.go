// Package notify delivers notifications through a durable outbox. Producers
// enqueue; the dispatcher writes the feed record and publishes the event,
// retrying with exponential backoff.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatlink-service/internal/logger"
	"chatlink-service/internal/models"
	"chatlink-service/internal/observability"
	"chatlink-service/internal/repositories"
)

// Publisher is satisfied by rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type Options struct {
	MaxAttempts  int
	PollInterval time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	BatchSize    int
	// DeliveryTimeout bounds the feed write and publish of one entry.
	DeliveryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 8
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 5 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 10 * time.Second
	}
	return o
}

type Dispatcher struct {
	outbox        repositories.OutboxRepository
	notifications repositories.NotificationRepository
	publisher     Publisher
	opts          Options

	// mu serializes ProcessDue; clockMu only guards now, so Enqueue never
	// waits on a delivery in flight.
	mu      sync.Mutex
	clockMu sync.RWMutex
	now     func() time.Time
}

func NewDispatcher(outbox repositories.OutboxRepository, notifications repositories.NotificationRepository, publisher Publisher, opts Options) *Dispatcher {
	return &Dispatcher{
		outbox:        outbox,
		notifications: notifications,
		publisher:     publisher,
		opts:          opts.withDefaults(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) SetClock(now func() time.Time) {
	d.clockMu.Lock()
	defer d.clockMu.Unlock()
	d.now = now
}

func (d *Dispatcher) clock() time.Time {
	d.clockMu.RLock()
	defer d.clockMu.RUnlock()
	return d.now()
}

// Enqueue stores n in the outbox. The outbox entry id becomes the
// notification id, so redelivery never duplicates the feed record.
func (d *Dispatcher) Enqueue(ctx context.Context, n models.Notification) error {
	now := d.clock()

	id := uuid.NewString()
	n.ID = id
	n.Read = false
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	return d.outbox.Create(ctx, models.OutboxEntry{
		ID:            id,
		Notification:  n,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
}

// Run processes the outbox whenever it changes and on every poll tick, until
// ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	sub, err := d.outbox.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch outbox: %w", err)
	}
	defer sub.Close()

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	logger.Infof("notification dispatcher started max_attempts=%d", d.opts.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			if snap.Err != nil {
				logger.Errorf("outbox watch: %v", snap.Err)
				continue
			}
			if len(snap.Records) == 0 {
				continue
			}
		case <-ticker.C:
		}
		if _, err := d.ProcessDue(ctx); err != nil {
			logger.Errorf("process outbox: %v", err)
		}
	}
}

// ProcessDue delivers every entry whose next attempt is due and returns how
// many were delivered.
func (d *Dispatcher) ProcessDue(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries, err := d.outbox.ListDue(ctx, d.clock(), d.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	var delivered int
	for _, e := range entries {
		if d.deliver(ctx, e) {
			delivered++
		}
	}
	return delivered, nil
}

func (d *Dispatcher) deliver(ctx context.Context, e models.OutboxEntry) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.opts.DeliveryTimeout)
	err := d.notifications.Create(sendCtx, e.Notification)
	if err == nil {
		err = d.publish(sendCtx, e.Notification)
	}
	cancel()
	if err == nil {
		if derr := d.outbox.Delete(ctx, e.ID); derr != nil {
			logger.Errorf("outbox delete %s: %v", e.ID, derr)
		}
		observability.IncNotification("delivered")
		return true
	}

	attempts := e.Attempts + 1
	if attempts >= d.opts.MaxAttempts {
		logger.Errorf("notification %s dropped after %d attempts: %v", e.ID, attempts, err)
		if derr := d.outbox.Delete(ctx, e.ID); derr != nil {
			logger.Errorf("outbox delete %s: %v", e.ID, derr)
		}
		observability.IncNotification("dropped")
		return false
	}

	next := d.clock().Add(d.backoff(attempts))
	if rerr := d.outbox.Reschedule(ctx, e.ID, attempts, next, err.Error()); rerr != nil {
		logger.Errorf("outbox reschedule %s: %v", e.ID, rerr)
	}
	logger.Debugf("notification %s retry %d at %s: %v", e.ID, attempts, next.Format(time.RFC3339), err)
	observability.IncNotification("retried")
	return false
}

func (d *Dispatcher) publish(ctx context.Context, n models.Notification) error {
	if d.publisher == nil {
		return nil
	}
	return d.publisher.Publish(ctx, "notification."+string(n.Type), observability.EventEnvelope{
		EventType:  "notification",
		EventName:  string(n.Type),
		OccurredAt: n.CreatedAt.Format(time.RFC3339Nano),
		Payload:    n,
	})
}

// backoff doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.opts.MaxBackoff {
			return d.opts.MaxBackoff
		}
	}
	return delay
}
