// Package collector buffers computation events and ships them to Kafka in
// batches.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docstats/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/kafka"
)

// Publisher is the subset of *kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type Options struct {
	// BatchSize events trigger an early flush. Default 100.
	BatchSize int
	// FlushInterval bounds how long an event waits. Default 5s.
	FlushInterval time.Duration
	// MaxBuffered caps events held across failed flushes; the oldest are
	// dropped first. Default 3 * BatchSize.
	MaxBuffered int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	if o.MaxBuffered < o.BatchSize {
		o.MaxBuffered = 3 * o.BatchSize
	}
	return o
}

// BatchCollector implements analytics.Tracker. Track never blocks on Kafka.
type BatchCollector struct {
	pub    Publisher
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event
	dropped int64

	full chan struct{}
	done chan struct{}
}

func NewBatchCollector(pub Publisher, opts Options) *BatchCollector {
	opts = opts.withDefaults()
	return &BatchCollector{
		pub:     pub,
		opts:    opts,
		logger:  slog.Default().With("component", "batch-collector"),
		pending: make([]kafka.Event, 0, opts.BatchSize),
		full:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the flush loop until ctx ends, then drains what is left.
func (c *BatchCollector) Start(ctx context.Context) {
	go c.loop(ctx)
	c.logger.Info("batch collector started",
		"batch_size", c.opts.BatchSize,
		"flush_interval", c.opts.FlushInterval,
		"max_buffered", c.opts.MaxBuffered,
	)
}

func (c *BatchCollector) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.flush(ctx)
		case <-c.full:
			c.flush(ctx)
		case <-ctx.Done():
			drain, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			c.flush(drain)
			cancel()
			return
		}
	}
}

func (c *BatchCollector) Track(ev analytics.ComputationEvent) {
	c.mu.Lock()
	c.pending = append(c.pending, kafka.Event{Key: ev.Key(), Type: string(ev.Type), Value: ev})
	ready := len(c.pending) >= c.opts.BatchSize
	c.mu.Unlock()

	if ready {
		select {
		case c.full <- struct{}{}:
		default:
		}
	}
}

// Close blocks until the loop has made its final flush.
func (c *BatchCollector) Close() {
	<-c.done
}

func (c *BatchCollector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dropped counts events discarded because Kafka stayed unreachable.
func (c *BatchCollector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// flush is only called from the loop goroutine (and tests), so batches go
// out in order.
func (c *BatchCollector) flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = make([]kafka.Event, 0, c.opts.BatchSize)
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	err := c.pub.PublishBatch(ctx, batch)
	if err == nil {
		c.logger.Debug("batch flushed", "events", len(batch))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(batch, c.pending...)
	over := len(c.pending) - c.opts.MaxBuffered
	if over > 0 {
		c.pending = append(c.pending[:0:0], c.pending[over:]...)
		c.dropped += int64(over)
	}
	c.logger.Error("batch flush failed",
		"events", len(batch),
		"requeued", len(c.pending),
		"dropped", max(over, 0),
		"error", err,
	)
}
