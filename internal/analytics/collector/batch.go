// Package collector buffers high-volume events in memory and flushes them
// to Kafka in bulk. The searcher queues shopper history updates through it.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
)

// maxBatches bounds the buffer, in batches, while Kafka is unreachable.
const maxBatches = 3

// BatchCollector accumulates events and publishes them from a single
// background loop, either when a batch fills up or when the flush interval
// elapses. Track never talks to Kafka, so request goroutines are not held
// up by a slow broker.
type BatchCollector struct {
	producer      kafka.Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	full    chan struct{}
	done    chan struct{}
	dropped atomic.Int64
}

func NewBatchCollector(producer kafka.Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		buffer:        make([]kafka.Event, 0, batchSize),
		full:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop. It runs until ctx is cancelled and then
// flushes what is left with a short deadline.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-bc.full:
				bc.flush(ctx)
				ticker.Reset(bc.flushInterval)
			case <-ticker.C:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Track queues an event. A full batch wakes the flush loop. When the buffer
// already holds maxBatches batches the event is dropped and counted.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	if len(bc.buffer) >= bc.batchSize*maxBatches {
		bc.mu.Unlock()
		bc.dropped.Add(1)
		return
	}
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.full <- struct{}{}:
		default:
		}
	}
}

// Close waits for the flush loop to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen returns the current number of buffered events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// flush publishes the buffer one batch at a time. Only the flush loop calls
// it, so batches leave in the order they were tracked.
func (bc *BatchCollector) flush(ctx context.Context) {
	for {
		bc.mu.Lock()
		n := min(len(bc.buffer), bc.batchSize)
		if n == 0 {
			bc.mu.Unlock()
			return
		}
		batch := make([]kafka.Event, n)
		copy(batch, bc.buffer)
		bc.buffer = append(bc.buffer[:0], bc.buffer[n:]...)
		bc.mu.Unlock()

		if err := bc.producer.PublishBatch(ctx, batch); err != nil {
			bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
			bc.requeue(batch)
			return
		}
		bc.logger.Debug("batch flushed", "events", len(batch))
	}
}

// requeue puts a failed batch back at the front, trimming the newest events
// beyond the buffer bound.
func (bc *BatchCollector) requeue(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.buffer = append(batch, bc.buffer...)
	if limit := bc.batchSize * maxBatches; len(bc.buffer) > limit {
		dropped := len(bc.buffer) - limit
		bc.buffer = bc.buffer[:limit]
		bc.dropped.Add(int64(dropped))
		bc.logger.Warn("buffer overflow, events dropped", "dropped", dropped)
	}
}
