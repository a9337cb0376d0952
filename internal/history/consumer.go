package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/buyit/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
)

// Consumer applies history events read from Kafka.
type Consumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewConsumer wraps a Kafka consumer built with HandleMessage.
func NewConsumer(kafkaConsumer *kafka.Consumer) *Consumer {
	return &Consumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "history-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("history consumer starting")
	return c.consumer.Start(ctx)
}

// HandleMessage returns a MessageHandler that applies each event to svc.
// Malformed events are skipped; storage failures are left for redelivery.
func HandleMessage(svc *Service) kafka.MessageHandler {
	logger := slog.Default().With("component", "history-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			return err
		}
		if !ev.Kind.Valid() || ev.UserID == "" {
			return fmt.Errorf("%w: history event kind=%q user=%q", kafka.ErrSkip, ev.Kind, ev.UserID)
		}
		if err := svc.Apply(ctx, ev); err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
			}
			return fmt.Errorf("applying %s event for %s: %w", ev.Kind, ev.UserID, err)
		}
		logger.Debug("history event applied",
			"kind", ev.Kind,
			"user_id", ev.UserID,
			"key", string(key),
		)
		return nil
	}
}

// Tracker buffers keyed values for asynchronous publishing. The batch
// collector implements it.
type Tracker interface {
	Track(key string, value any)
}

// Emitter queues history events keyed by user id, so one user's updates
// stay ordered on a partition.
type Emitter struct {
	tracker Tracker
	now     func() time.Time
}

func NewEmitter(t Tracker) *Emitter {
	return &Emitter{tracker: t, now: time.Now}
}

// Emit queues a search or browse event. Blank users and values are
// dropped, since the consumer would skip them anyway.
func (e *Emitter) Emit(kind Kind, userID, value string) {
	value = strings.TrimSpace(value)
	if userID == "" || value == "" || !kind.Valid() {
		return
	}
	e.tracker.Track(userID, Event{Kind: kind, UserID: userID, Value: value, At: e.now().UTC()})
}
