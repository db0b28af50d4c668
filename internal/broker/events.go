package appkafka

import (
	"context"
	"encoding/json"
	"fmt"

	"example.com/socialfeed/internal/models"
	"github.com/segmentio/kafka-go"
)

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// EventPublisher writes events as JSON messages keyed by event type.
type EventPublisher struct {
	writer KafkaWriter
}

var _ Publisher = (*EventPublisher)(nil)

func NewEventPublisher(writer KafkaWriter) *EventPublisher {
	return &EventPublisher{writer: writer}
}

func (p *EventPublisher) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// NopPublisher drops every event; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Event) error { return nil }

// DecodeEvent parses a message value produced by EventPublisher.
func DecodeEvent(data []byte) (models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return models.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if event.Type == "" || event.Actor == "" {
		return models.Event{}, fmt.Errorf("decode event: missing type or actor")
	}
	return event, nil
}
