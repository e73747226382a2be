package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/smarthome_router/internal/model/messages"
	"github.com/LeonardoBeccarini/smarthome_router/pkg/mqttbus"
)

const (
	DefaultMaxBatch      = 50
	DefaultBatchInterval = 2 * time.Second
	pollInterval         = 200 * time.Millisecond
)

// Batcher groups items into one envelope per flush. It flushes when
// maxBatch items are pending or interval has passed since the last flush.
// A batch that fails to publish is dropped, like the nodes do.
type Batcher struct {
	pub      mqttbus.IPublisher
	device   string
	maxBatch int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	pending   []map[string]interface{}
	lastFlush time.Time
	sent      int
}

func NewBatcher(pub mqttbus.IPublisher, device string, maxBatch int, interval time.Duration, logger *slog.Logger) *Batcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if interval <= 0 {
		interval = DefaultBatchInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		pub:       pub,
		device:    device,
		maxBatch:  maxBatch,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		lastFlush: time.Now(),
	}
}

// Add queues an item and flushes if the batch is full or overdue.
func (b *Batcher) Add(item map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, item)
	if len(b.pending) >= b.maxBatch || b.now().Sub(b.lastFlush) >= b.interval {
		return b.flushLocked()
	}
	return nil
}

// FlushIfDue flushes pending items once the interval has elapsed.
func (b *Batcher) FlushIfDue() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.now().Sub(b.lastFlush) < b.interval {
		return nil
	}
	return b.flushLocked()
}

func (b *Batcher) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *Batcher) flushLocked() error {
	if len(b.pending) == 0 {
		return nil
	}
	items := b.pending
	b.pending = nil
	b.lastFlush = b.now()

	body, err := json.Marshal(messages.Envelope{Device: b.device, Batch: true, Items: items})
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	if err := b.pub.PublishMessage(body); err != nil {
		b.logger.Warn("batch dropped", "device", b.device, "items", len(items), "err", err)
		return err
	}
	b.sent++
	b.logger.Debug("batch published", "device", b.device, "items", len(items))
	return nil
}

// Sent is the number of envelopes published.
func (b *Batcher) Sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent
}

// Run flushes on the interval until ctx is done, then flushes what is left.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = b.Flush()
			return
		case <-ticker.C:
			_ = b.FlushIfDue()
		}
	}
}
