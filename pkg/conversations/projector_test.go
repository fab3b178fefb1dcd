package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *store.Memory {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return store.NewMemory(node)
}

func unread(t *testing.T, idx store.ConversationIndex, user, other string) int64 {
	t.Helper()
	convs, err := idx.List(context.Background(), user)
	require.NoError(t, err)
	for _, c := range convs {
		if c.OtherUser == other {
			return c.UnreadCount
		}
	}
	t.Fatalf("%s has no conversation with %s", user, other)
	return 0
}

func TestProjector(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := NewProjector(idx)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	created := func(id int64, sender, receiver string) events.Event {
		return events.Event{Type: events.MessageCreated, MessageID: id, Room: "alice#bob", Sender: sender, Receiver: receiver, At: at}
	}
	require.NoError(t, p.Apply(ctx, created(1, "alice", "bob")))
	require.NoError(t, p.Apply(ctx, created(2, "alice", "bob")))
	require.NoError(t, p.Apply(ctx, created(3, "alice", "bob")))
	assert.Equal(t, int64(3), unread(t, idx, "bob", "alice"))
	assert.Equal(t, int64(0), unread(t, idx, "alice", "bob"))

	require.NoError(t, p.Apply(ctx, events.Event{Type: events.MessageRead, MessageID: 1, Room: "alice#bob", Sender: "alice", Receiver: "bob", Reader: "bob", At: at}))
	assert.Equal(t, int64(2), unread(t, idx, "bob", "alice"))

	require.NoError(t, p.Apply(ctx, events.Event{Type: events.MessageDeleted, MessageID: 2, Room: "alice#bob", Sender: "alice", Receiver: "bob", Unread: true, At: at}))
	assert.Equal(t, int64(1), unread(t, idx, "bob", "alice"))

	require.NoError(t, p.Apply(ctx, events.Event{Type: events.RoomCleared, Room: "alice#bob", At: at}))
	assert.Equal(t, int64(0), unread(t, idx, "bob", "alice"))
}

func TestProjectorSkipsGlobal(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := NewProjector(idx)

	require.NoError(t, p.Apply(ctx, events.Event{Type: events.MessageCreated, Room: model.Global, Sender: "alice", Receiver: model.Global}))
	convs, err := idx.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestProjectorRejectsMalformedRoom(t *testing.T) {
	p := NewProjector(newIndex(t))
	err := p.Apply(context.Background(), events.Event{Type: events.RoomCleared, Room: "alice"})
	assert.Error(t, err)
}

func TestProjectorReceiptsAfterClearDoNotHideNewMessages(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	p := NewProjector(idx)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	msg := func(id int64) events.Event {
		return events.Event{Type: events.MessageCreated, MessageID: id, Room: "alice#bob", Sender: "alice", Receiver: "bob", At: at}
	}

	require.NoError(t, p.Apply(ctx, msg(1)))
	require.NoError(t, p.Apply(ctx, msg(2)))
	require.NoError(t, idx.ClearUnread(ctx, "bob", "alice"))

	require.NoError(t, p.Apply(ctx, events.Event{Type: events.MessageRead, MessageID: 1, Room: "alice#bob", Sender: "alice", Receiver: "bob", Reader: "bob", At: at}))
	require.NoError(t, p.Apply(ctx, events.Event{Type: events.MessageDeleted, MessageID: 2, Room: "alice#bob", Sender: "alice", Receiver: "bob", Unread: true, At: at}))
	assert.Equal(t, int64(0), unread(t, idx, "bob", "alice"))

	require.NoError(t, p.Apply(ctx, msg(3)))
	assert.Equal(t, int64(1), unread(t, idx, "bob", "alice"))
}
