package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	fail    bool
}

func (f *fakePublisher) Publish(ctx context.Context, ev kafka.Event) error {
	return f.PublishBatch(ctx, []kafka.Event{ev})
}

func (f *fakePublisher) PublishBatch(_ context.Context, evs []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.batches = append(f.batches, evs)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestFlushOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.Track("u1", "shoe")
	bc.Track("u2", "lamp")
	cancel()
	bc.Close()

	if n := pub.count(); n != 2 {
		t.Errorf("flushed %d events, want 2", n)
	}
	if bc.BufferLen() != 0 {
		t.Errorf("BufferLen = %d after shutdown", bc.BufferLen())
	}
}

func TestFlushWhenBatchFull(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); bc.Close() }()
	bc.Start(ctx)
	bc.Track("u1", 1)
	bc.Track("u1", 2)

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := pub.count(); n != 2 {
		t.Errorf("flushed %d events, want 2", n)
	}
}

func TestFailedFlushRequeuesBounded(t *testing.T) {
	pub := &fakePublisher{fail: true}
	bc := NewBatchCollector(pub, 2, time.Hour)
	for i := range 10 {
		bc.mu.Lock()
		bc.buffer = append(bc.buffer, kafka.Event{Key: "u", Value: i})
		bc.mu.Unlock()
	}
	bc.flush(context.Background())
	if n := bc.BufferLen(); n != 6 {
		t.Errorf("BufferLen = %d, want 6 (three batches)", n)
	}
	if d := bc.Dropped(); d != 4 {
		t.Errorf("Dropped = %d, want 4", d)
	}
}

// stallingPublisher blocks every publish until release is closed.
type stallingPublisher struct {
	fakePublisher
	release chan struct{}
}

func (s *stallingPublisher) PublishBatch(ctx context.Context, evs []kafka.Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.fakePublisher.PublishBatch(ctx, evs)
}

func TestTrackDoesNotWaitForBroker(t *testing.T) {
	pub := &stallingPublisher{release: make(chan struct{})}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	tracked := make(chan struct{})
	go func() {
		for i := range 5 {
			bc.Track("u1", i)
		}
		close(tracked)
	}()
	select {
	case <-tracked:
	case <-time.After(2 * time.Second):
		t.Fatal("Track blocked on a stalled publisher")
	}

	close(pub.release)
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 5 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	bc.Close()
	if n := pub.count(); n != 5 {
		t.Errorf("published %d events, want 5", n)
	}
}

func TestTrackDropsWhenBufferFull(t *testing.T) {
	bc := NewBatchCollector(&fakePublisher{}, 2, time.Hour)
	for i := range 10 {
		bc.Track("u1", i)
	}
	if n := bc.BufferLen(); n != 6 {
		t.Errorf("BufferLen = %d, want 6", n)
	}
	if d := bc.Dropped(); d != 4 {
		t.Errorf("Dropped = %d, want 4", d)
	}
}
