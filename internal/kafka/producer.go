package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TicketValidatedEvent is published on each first validation so downstream
// consumers (dashboards, attendance feeds) see door activity live.
type TicketValidatedEvent struct {
	Payload          string    `json:"payload"`
	Reference        string    `json:"reference"`
	EventName        string    `json:"event_name"`
	EventDate        string    `json:"event_date"`
	ControlCount     int       `json:"control_count"`
	FirstValidatedAt time.Time `json:"first_validated_at"`
}

// BatchCompletedEvent is published when a generation or import run finishes.
type BatchCompletedEvent struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	EventName  string    `json:"event_name"`
	Count      int       `json:"count"`
	FinishedAt time.Time `json:"finished_at"`
}

type Producer struct {
	Validated *kafka.Writer
	Batches   *kafka.Writer
}

func NewProducer(brokers []string, validatedTopic, batchTopic string) *Producer {
	return &Producer{
		Validated: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   validatedTopic,
		}),
		Batches: kafka.NewWriter(kafka.WriterConfig{
			Brokers: brokers,
			Topic:   batchTopic,
		}),
	}
}

// PublishTicketValidated streams a first validation to Kafka.
func (p *Producer) PublishTicketValidated(ctx context.Context, event TicketValidatedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Validated.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Payload),
		Value: msgBytes,
	})
}

// PublishBatchCompleted streams a finished batch run to Kafka.
func (p *Producer) PublishBatchCompleted(ctx context.Context, event BatchCompletedEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.Batches.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RunID),
		Value: msgBytes,
	})
}

func (p *Producer) Close() error {
	if err := p.Validated.Close(); err != nil {
		return err
	}
	return p.Batches.Close()
}
