package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/room"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/pkg/errors"
)

// Memory implements MessageStore, UserStore and ConversationIndex in
// process memory. Nothing survives a restart.
type Memory struct {
	ids *snowflake.Node

	mu       sync.RWMutex
	messages map[int64]model.Message
	rooms    map[string][]int64
	users    map[string]model.User
	convs    map[string]map[string]*model.Conversation
}

func NewMemory(ids *snowflake.Node) *Memory {
	return &Memory{
		ids:      ids,
		messages: make(map[int64]model.Message),
		rooms:    make(map[string][]int64),
		users:    make(map[string]model.User),
		convs:    make(map[string]map[string]*model.Conversation),
	}
}

func (m *Memory) Create(ctx context.Context, sender, receiver, content string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	id := m.ids.Generate()
	msg := model.Message{
		ID:        id,
		Room:      room.Resolve(sender, receiver),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		CreatedAt: snowflake.Time(id),
		Status:    model.StatusSent,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[id] = msg
	ids := append(m.rooms[msg.Room], id)
	// Ids are generated outside the lock, so concurrent creates may land
	// out of order.
	if n := len(ids); n > 1 && ids[n-2] > id {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	m.rooms[msg.Room] = ids
	return msg, nil
}

func (m *Memory) Get(ctx context.Context, id int64) (model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, errors.Wrapf(ErrNotFound, "message %d", id)
	}
	return msg, nil
}

func (m *Memory) Find(ctx context.Context, key string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.rooms[key]
	out := make([]model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.messages[id])
	}
	return out, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id int64, status model.MessageStatus) (model.Message, bool, error) {
	if !status.Valid() {
		return model.Message{}, false, errors.Errorf("invalid status %q", status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return model.Message{}, false, errors.Wrapf(ErrNotFound, "message %d", id)
	}
	if statusRank(status) <= statusRank(msg.Status) {
		return msg, false, nil
	}
	msg.Status = status
	m.messages[id] = msg
	return msg, true, nil
}

func (m *Memory) DeleteByID(ctx context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return 0, nil
	}
	delete(m.messages, id)
	ids := m.rooms[msg.Room]
	for i, v := range ids {
		if v == id {
			m.rooms[msg.Room] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(m.rooms[msg.Room]) == 0 {
		delete(m.rooms, msg.Room)
	}
	return 1, nil
}

func (m *Memory) DeleteByRoom(ctx context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.rooms[key]
	for _, id := range ids {
		delete(m.messages, id)
	}
	delete(m.rooms, key)
	return len(ids), nil
}

func (m *Memory) CreateUser(ctx context.Context, username, passwordHash string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[username]; ok {
		return model.User{}, errors.Wrapf(ErrUserExists, "user %s", username)
	}
	u := model.User{Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	m.users[username] = u
	return u, nil
}

func (m *Memory) GetUser(ctx context.Context, username string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return model.User{}, errors.Wrapf(ErrNotFound, "user %s", username)
	}
	return u, nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.users))
	for name := range m.users {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) conversation(user, other string) *model.Conversation {
	byOther, ok := m.convs[user]
	if !ok {
		byOther = make(map[string]*model.Conversation)
		m.convs[user] = byOther
	}
	c, ok := byOther[other]
	if !ok {
		c = &model.Conversation{Username: user, OtherUser: other}
		byOther[other] = c
	}
	return c
}

func (m *Memory) Touch(ctx context.Context, sender, receiver string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversation(sender, receiver).LastUpdated = at
	c := m.conversation(receiver, sender)
	c.LastUpdated = at
	c.UnreadCount++
	return nil
}

func (m *Memory) MarkRead(ctx context.Context, reader, other string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.convs[reader][other]; ok && c.UnreadCount > 0 {
		c.UnreadCount--
	}
	return nil
}

func (m *Memory) ClearUnread(ctx context.Context, user, other string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.convs[user][other]; ok {
		c.UnreadCount = 0
	}
	return nil
}

func (m *Memory) Reset(ctx context.Context, a, b string) error {
	if err := m.ClearUnread(ctx, a, b); err != nil {
		return err
	}
	return m.ClearUnread(ctx, b, a)
}

func (m *Memory) List(ctx context.Context, username string) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Conversation, 0, len(m.convs[username]))
	for _, c := range m.convs[username] {
		out = append(out, *c)
	}
	sortConversations(out)
	return out, nil
}

// sortConversations orders most recently updated first.
func sortConversations(convs []model.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		if !convs[i].LastUpdated.Equal(convs[j].LastUpdated) {
			return convs[i].LastUpdated.After(convs[j].LastUpdated)
		}
		return convs[i].OtherUser < convs[j].OtherUser
	})
}
