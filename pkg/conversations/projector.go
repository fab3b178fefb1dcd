// Package conversations keeps the per-user conversation index in step
// with the chat event feed.
package conversations

import (
	"context"

	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/room"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Projector applies feed events to a ConversationIndex. Only two-party
// rooms are indexed.
type Projector struct {
	index store.ConversationIndex
}

func NewProjector(index store.ConversationIndex) *Projector {
	return &Projector{index: index}
}

// Apply is an events.Handler.
func (p *Projector) Apply(ctx context.Context, e events.Event) error {
	if room.IsGlobal(e.Room) {
		return nil
	}
	a, b, ok := room.Participants(e.Room)
	if !ok {
		return errors.Errorf("%s event for malformed room %q", e.Type, e.Room)
	}

	switch e.Type {
	case events.MessageCreated:
		if err := p.index.Touch(ctx, e.Sender, e.Receiver, e.At); err != nil {
			return err
		}
		jww.DEBUG.Printf("Conversation %s touched by message %d", e.Room, e.MessageID)
	case events.MessageRead:
		return p.index.MarkRead(ctx, e.Reader, e.Sender)
	case events.MessageDeleted:
		if e.Unread {
			return p.index.MarkRead(ctx, e.Receiver, e.Sender)
		}
	case events.RoomCleared:
		return p.index.Reset(ctx, a, b)
	}
	return nil
}
