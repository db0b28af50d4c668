package appkafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaWriter is the producer side used by EventPublisher.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// KafkaReader is the consumer side used by the activity worker.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds the broker settings shared by server and worker.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string        // consumer group of the worker
	WriteTimeout time.Duration // per write, server side
	ReadTimeout  time.Duration // max wait for a fetch, worker side
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	return c
}

// EventWriter produces to the events topic. Messages with the same key land
// on the same partition, so events of one type keep their order.
type EventWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates the events producer. The topic is created on first
// write when the broker allows it.
func NewKafkaWriter(cfg KafkaConfig) (*EventWriter, error) {
	cfg = cfg.withDefaults()
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is empty")
	}

	return &EventWriter{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			WriteTimeout:           cfg.WriteTimeout,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (w *EventWriter) WriteMessages(ctx context.Context, messages ...kafka.Message) error {
	if w.writer == nil {
		return errors.New("kafka writer is closed")
	}
	return w.writer.WriteMessages(ctx, messages...)
}

func (w *EventWriter) Close() error {
	if w.writer == nil {
		return nil
	}
	err := w.writer.Close()
	w.writer = nil
	return err
}

// GroupReader consumes the events topic as a member of the worker group.
type GroupReader struct {
	reader *kafka.Reader
}

// NewKafkaReader joins the consumer group. Offsets are committed once per
// second, so a restarted worker may see a few events twice.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	cfg = cfg.withDefaults()

	return &GroupReader{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Brokers,
			GroupID:        cfg.GroupID,
			Topic:          cfg.Topic,
			MinBytes:       1,
			MaxBytes:       1 << 20,
			MaxWait:        cfg.ReadTimeout,
			CommitInterval: time.Second,
			StartOffset:    kafka.FirstOffset,
		}),
	}
}

func (r *GroupReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *GroupReader) Close() error {
	return r.reader.Close()
}
