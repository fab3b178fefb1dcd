// Package events carries chat state changes from the gateway and the API
// to background consumers over Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	MessageCreated Type = "message.created"
	MessageRead    Type = "message.read"
	MessageDeleted Type = "message.deleted"
	RoomCleared    Type = "room.cleared"
)

func (t Type) Valid() bool {
	switch t {
	case MessageCreated, MessageRead, MessageDeleted, RoomCleared:
		return true
	}
	return false
}

// Event is one entry of the feed. Room is always set and is the partition
// key, so events of one room are consumed in publish order.
type Event struct {
	Type      Type      `json:"type"`
	MessageID int64     `json:"messageId,string,omitempty"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender,omitempty"`
	Receiver  string    `json:"receiver,omitempty"`
	Reader    string    `json:"reader,omitempty"`
	// Unread is set on message.deleted when the message was never read.
	Unread    bool      `json:"unread,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher appends events to the feed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Encode turns e into a Kafka message keyed by room.
func Encode(e Event) (kafka.Message, error) {
	if !e.Type.Valid() {
		return kafka.Message{}, errors.Errorf("unknown event type %q", e.Type)
	}
	if e.Room == "" {
		return kafka.Message{}, errors.Errorf("%s event without room", e.Type)
	}
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "marshal event")
	}
	return kafka.Message{Key: []byte(e.Room), Value: value, Time: e.At}, nil
}

// Decode parses a Kafka message produced by Encode.
func Decode(m kafka.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return Event{}, errors.Wrap(err, "unmarshal event")
	}
	if !e.Type.Valid() {
		return Event{}, errors.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}

// Nop discards every event. Used when the feed is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
