// Package kafka publishes ledger audit entries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/fee-ledger/ledger"
)

// DefaultTopic receives audit entries when no topic is configured.
const DefaultTopic = "ledger.audit"

// batchTimeout caps how long a single audit entry waits for batch-mates.
// kafka-go's one second default would hold every synchronous write.
const batchTimeout = 10 * time.Millisecond

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ledger.AuditSink over a kafka.Writer. Messages are
// keyed by entity ID so entries for one student stay ordered in a partition.
type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: batchTimeout,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// auditMessage is the JSON shape on the topic.
type auditMessage struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
}

// LogAudit writes one entry and waits for the broker ack or ctx. The engine
// calls it off the request path for ledger generation.
func (p *Publisher) LogAudit(ctx context.Context, entry ledger.AuditEntry) error {
	data, err := json.Marshal(auditMessage{
		ID:         entry.ID,
		Timestamp:  entry.Timestamp.UTC(),
		ActorID:    entry.ActorID,
		Action:     string(entry.Action),
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Before:     entry.Before,
		After:      entry.After,
	})
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.EntityID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ ledger.AuditSink = (*Publisher)(nil)
