package store

import (
	"context"
	"testing"

	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMemory(t *testing.T) {
	b, err := Open(config.Storage{Driver: config.DriverMemory, NodeID: 3})
	require.NoError(t, err)
	defer b.Close()

	msg, err := b.Messages.Create(context.Background(), "alice", "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, "alice#bob", msg.Room)
	assert.Equal(t, int64(3), snowflake.NodeOf(msg.ID))

	_, err = b.Users.CreateUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	require.NoError(t, b.Conversations.Touch(context.Background(), "alice", "bob", msg.CreatedAt))
	convs, err := b.Conversations.List(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, int64(1), convs[0].UnreadCount)
}

func TestOpenRejects(t *testing.T) {
	_, err := Open(config.Storage{Driver: "sqlite", NodeID: 1})
	assert.Error(t, err)

	_, err = Open(config.Storage{Driver: config.DriverMemory, NodeID: -1})
	assert.Error(t, err)
}
