// Package presence mirrors the gateway's presence view into Redis so the
// API can serve it without talking to the gateway.
package presence

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	onlineKey   = "presence:online"
	lastSeenKey = "presence:last_seen"
)

type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(addr string) *RedisMirror {
	return &RedisMirror{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisMirrorFromClient wraps an existing client.
func NewRedisMirrorFromClient(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}

func (m *RedisMirror) Online(ctx context.Context, username string) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, onlineKey, username)
		pipe.HDel(ctx, lastSeenKey, username)
		return nil
	})
	return errors.Wrapf(err, "mirror %s online", username)
}

func (m *RedisMirror) Offline(ctx context.Context, username string, at time.Time) error {
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, onlineKey, username)
		pipe.HSet(ctx, lastSeenKey, username, at.UnixMilli())
		return nil
	})
	return errors.Wrapf(err, "mirror %s offline", username)
}

// Reset drops the mirrored view. The gateway calls it on start because
// presence does not survive a restart.
func (m *RedisMirror) Reset(ctx context.Context) error {
	return errors.Wrap(m.rdb.Del(ctx, onlineKey, lastSeenKey).Err(), "reset presence mirror")
}

// Snapshot reads the mirrored view sorted by username.
func (m *RedisMirror) Snapshot(ctx context.Context) ([]model.Presence, error) {
	var online *redis.StringSliceCmd
	var seen *redis.MapStringStringCmd
	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		online = pipe.SMembers(ctx, onlineKey)
		seen = pipe.HGetAll(ctx, lastSeenKey)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "read presence mirror")
	}

	byUser := make(map[string]model.Presence)
	for _, name := range online.Val() {
		byUser[name] = model.Presence{Username: name, Online: true}
	}
	for name, raw := range seen.Val() {
		if _, ok := byUser[name]; ok {
			continue
		}
		p := model.Presence{Username: name}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			at := time.UnixMilli(ms).UTC()
			p.LastSeenAt = &at
		}
		byUser[name] = p
	}

	out := make([]model.Presence, 0, len(byUser))
	for _, p := range byUser {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *RedisMirror) Close() error {
	return m.rdb.Close()
}
