// Package kafka publishes change events to a Kafka topic, keyed by
// conversation_id so every event for a conversation lands on the same
// partition and consumers see them in write order.
package kafka

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/branchweave/branchweave/pkg/events"
)

// Publisher is a kafka-go backed events.Publisher.
type Publisher struct {
	writer *kafkago.Writer
}

// New builds a Publisher writing to topic across brokers. Delivery is
// fire-and-forget from the caller's perspective: RequiredAcks is set to
// one broker rather than the full ISR, trading durability for the
// latency the append/fork/branch-advance paths can't block on.
func New(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			Async:        true,
		},
	}
}

// Publish marshals event and writes it keyed by conversation_id.
func (p *Publisher) Publish(ctx context.Context, event *events.MessageEvent) error {
	if event == nil {
		return events.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.ConversationID.String()),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
