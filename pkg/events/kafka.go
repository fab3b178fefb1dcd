package events

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	jww "github.com/spf13/jwalterweatherman"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:  kafka.TCP(brokers...),
		Topic: topic,
		// Hashing the key keeps each room on one partition.
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := Encode(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s for room %s", e.Type, e.Room)
	}
	jww.DEBUG.Printf("Event published to Kafka: %s %s", e.Type, e.Room)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Handler processes one event. A returned error is logged; the event is
// still committed so a poison message cannot stall the partition.
type Handler func(ctx context.Context, e Event) error

type KafkaConsumer struct {
	reader *kafka.Reader
	retry  time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,
	})
	return &KafkaConsumer{reader: r, retry: time.Second}
}

// Consume feeds events to h until ctx is cancelled. Read errors are
// retried after a pause.
func (c *KafkaConsumer) Consume(ctx context.Context, h Handler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			jww.WARN.Printf("Error reading message: %v. Retrying in %s...", err, c.retry)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retry):
			}
			continue
		}

		e, err := Decode(m)
		if err != nil {
			jww.WARN.Printf("Skipping message at offset %d: %v", m.Offset, err)
		} else if err := h(ctx, e); err != nil {
			jww.ERROR.Printf("Failed to apply %s for room %s: %v", e.Type, e.Room, err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			jww.WARN.Printf("Failed to commit offset %d: %v", m.Offset, err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
