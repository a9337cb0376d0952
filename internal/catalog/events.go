package catalog

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
)

// Change reasons carried on ChangeEvent.
const (
	ChangeCreated = "created"
	ChangeRated   = "rated"
	ChangeSeeded  = "seeded"
)

// ChangeEvent announces that catalog listings may have changed. Searchers
// drop their cached pages when they see one.
type ChangeEvent struct {
	ProductID ProductID `json:"productId,omitempty"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// ChangeNotifier announces catalog changes.
type ChangeNotifier interface {
	ProductChanged(ctx context.Context, ev ChangeEvent) error
}

// KafkaNotifier publishes change events to the cache-invalidate topic.
type KafkaNotifier struct {
	pub kafka.Publisher
}

// NewKafkaNotifier wraps a publisher bound to the invalidation topic.
func NewKafkaNotifier(pub kafka.Publisher) *KafkaNotifier {
	return &KafkaNotifier{pub: pub}
}

// ProductChanged publishes ev keyed by product id.
func (n *KafkaNotifier) ProductChanged(ctx context.Context, ev ChangeEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return n.pub.Publish(ctx, kafka.Event{Key: string(ev.ProductID), Value: ev})
}

// NopNotifier discards change events.
type NopNotifier struct{}

func (NopNotifier) ProductChanged(context.Context, ChangeEvent) error { return nil }
