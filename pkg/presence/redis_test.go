package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T) *RedisMirror {
	t.Helper()
	srv := miniredis.RunT(t)
	m := NewRedisMirrorFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMirrorTransitions(t *testing.T) {
	ctx := context.Background()
	m := newMirror(t)
	require.NoError(t, m.Ping(ctx))

	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.Online(ctx, "bob"))
	require.NoError(t, m.Online(ctx, "alice"))
	require.NoError(t, m.Offline(ctx, "alice", at))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, "alice", snap[0].Username)
	assert.False(t, snap[0].Online)
	require.NotNil(t, snap[0].LastSeenAt)
	assert.True(t, at.Equal(*snap[0].LastSeenAt))
	assert.Equal(t, "bob", snap[1].Username)
	assert.True(t, snap[1].Online)
	assert.Nil(t, snap[1].LastSeenAt)

	require.NoError(t, m.Online(ctx, "alice"))
	snap, err = m.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap[0].Online)
	assert.Nil(t, snap[0].LastSeenAt)
}

func TestMirrorReset(t *testing.T) {
	ctx := context.Background()
	m := newMirror(t)

	require.NoError(t, m.Online(ctx, "alice"))
	require.NoError(t, m.Offline(ctx, "bob", time.Now()))
	require.NoError(t, m.Reset(ctx))

	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}
