package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes terminal payment outcomes for downstream consumers
// (analytics, reconciliation). Payloads are outcome metadata only: card
// numbers and session-data strings never reach the topic.
type Producer struct{ w *kafka.Writer }

// NewProducer builds a producer for the given brokers. Returns nil when no
// brokers are configured; a nil producer drops every publish.
func NewProducer(brokers []string) *Producer {
	if len(brokers) == 0 {
		return nil
	}
	return &Producer{
		w: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{}, // partition by Kafka message key
		}),
	}
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.w.Close()
}

// Envelope is the stable outcome-event schema. Keep it small.
type Envelope struct {
	EventType    string    `json:"eventType"`
	EventVersion string    `json:"eventVersion"`
	OccurredAt   time.Time `json:"occurredAt"`
	SessionID    string    `json:"sessionId"`
	Data         any       `json:"data"`
}

// Publish writes a single outcome event. The session id is the partition
// key, keeping per-session ordering.
func (p *Producer) Publish(ctx context.Context, topic string, evt Envelope) error {
	if p == nil {
		return nil
	}
	evt.OccurredAt = time.Now().UTC()
	if evt.EventVersion == "" {
		evt.EventVersion = "1"
	}
	val, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(evt.SessionID),
		Value: val,
	})
}
