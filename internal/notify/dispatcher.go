package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Dispatcher delivers messages in the background. Dispatch never blocks and
// never reports delivery errors to the caller; failures are logged and dropped.
type Dispatcher struct {
	senders map[Channel]Sender
	queue   chan Message
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(senders map[Channel]Sender, queueSize int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		senders: senders,
		queue:   make(chan Message, queueSize),
		timeout: timeout,
		logger:  logger.With("component", "notify"),
	}
	d.wg.Add(1)
	go d.worker()
	return d
}

// Dispatch queues msg for detached delivery.
func (d *Dispatcher) Dispatch(msg Message) {
	if _, ok := d.senders[msg.Channel]; !ok {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Dropping notification after shutdown", "title", msg.Title)
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.logger.Error("Failed to queue notification: queue is full", "title", msg.Title)
	}
}

// Deliver sends msg synchronously and reports the outcome.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	sender, ok := d.senders[msg.Channel]
	if !ok {
		return ErrNotConfigured
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return sender.Send(ctx, msg)
}

// Configured reports whether channel has at least one destination.
func (d *Dispatcher) Configured(channel Channel) bool {
	_, ok := d.senders[channel]
	return ok
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	d.logger.Info("Starting notification worker.")

	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.senders[msg.Channel].Send(ctx, msg); err != nil {
			d.logger.Warn("Notification delivery failed", "title", msg.Title, "channel", msg.Channel, "error", err)
		}
		cancel()
	}
	d.logger.Info("Notification worker stopped.")
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}
