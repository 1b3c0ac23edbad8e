package messaging

import (
	"context"
	"log/slog"
	"sync"

	"tokendao/internal/shared/events"
)

const subscriberBuffer = 128

// Kafka is the event bus adapter used by the governance outbox relay. It
// delivers in process; brokers are recorded for the external client.
type Kafka struct {
	mu          sync.RWMutex
	brokers     []string
	subscribers map[string][]subscriber
	logger      *slog.Logger
}

type subscriber struct {
	ch   chan events.Envelope
	done <-chan struct{}
}

func NewKafka(brokers []string, logger *slog.Logger) (*Kafka, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		brokers:     append([]string(nil), brokers...),
		subscribers: make(map[string][]subscriber),
		logger:      logger,
	}, nil
}

func (k *Kafka) Brokers() []string {
	return append([]string(nil), k.brokers...)
}

// Publish hands event to every subscriber of topic. A subscriber with a full
// buffer blocks the call until it catches up or ctx is done; the outbox relay
// then leaves the row pending and retries it.
func (k *Kafka) Publish(ctx context.Context, topic string, event events.Envelope) error {
	k.mu.RLock()
	subs := append([]subscriber(nil), k.subscribers[topic]...)
	k.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- event:
		case <-sub.done:
		case <-ctx.Done():
			k.logger.Warn("publish abandoned on slow subscriber",
				"event", "kafka_publish_backpressure",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"event_id", event.EventID,
				"error", ctx.Err().Error(),
			)
			return ctx.Err()
		}
	}

	k.logger.Debug("event published",
		"event", "kafka_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
	)
	return nil
}

// Subscribe delivers events on topic to handler until ctx is done. Handler
// errors are logged; the event is not redelivered.
func (k *Kafka) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, events.Envelope) error,
) error {
	ch := make(chan events.Envelope, subscriberBuffer)

	k.mu.Lock()
	k.subscribers[topic] = append(k.subscribers[topic], subscriber{ch: ch, done: ctx.Done()})
	k.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				k.removeSubscriber(topic, ch)
				return
			case event := <-ch:
				if err := handler(ctx, event); err != nil {
					k.logger.Error("consumer handler failed",
						"event", "kafka_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

func (k *Kafka) removeSubscriber(topic string, target chan events.Envelope) {
	k.mu.Lock()
	defer k.mu.Unlock()

	items := k.subscribers[topic]
	if len(items) == 0 {
		return
	}
	filtered := make([]subscriber, 0, len(items))
	for _, item := range items {
		if item.ch != target {
			filtered = append(filtered, item)
		}
	}
	k.subscribers[topic] = filtered
}
