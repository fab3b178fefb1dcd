package store

import (
	"context"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/dupahar-chat/pkg/db"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/room"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Scylla implements MessageStore, UserStore and ConversationIndex on the
// tables created by db.Migrate.
type Scylla struct {
	db  *db.Session
	ids *snowflake.Node
}

func NewScylla(session *db.Session, ids *snowflake.Node) *Scylla {
	return &Scylla{db: session, ids: ids}
}

const messageColumns = `room, id, sender, receiver, content, created_at, status`

func scanMessage(scan func(dest ...interface{}) bool) (model.Message, bool) {
	var m model.Message
	var status string
	ok := scan(&m.Room, &m.ID, &m.Sender, &m.Receiver, &m.Content, &m.CreatedAt, &status)
	m.Status = model.MessageStatus(status)
	m.CreatedAt = m.CreatedAt.UTC()
	return m, ok
}

func (s *Scylla) Create(ctx context.Context, sender, receiver, content string) (model.Message, error) {
	id := s.ids.Generate()
	msg := model.Message{
		ID:        id,
		Room:      room.Resolve(sender, receiver),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		CreatedAt: snowflake.Time(id),
		Status:    model.StatusSent,
	}

	batch := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Room, msg.ID, msg.Sender, msg.Receiver, msg.Content, msg.CreatedAt, string(msg.Status))
	batch.Query(`INSERT INTO messages_by_id (id, room) VALUES (?, ?)`, msg.ID, msg.Room)
	if err := s.db.ExecuteBatch(batch); err != nil {
		return model.Message{}, errors.Wrapf(err, "insert message %d", msg.ID)
	}

	jww.DEBUG.Printf("Message saved to ScyllaDB: %d", msg.ID)
	return msg, nil
}

func (s *Scylla) roomOf(ctx context.Context, id int64) (string, error) {
	var key string
	err := s.db.Query(`SELECT room FROM messages_by_id WHERE id = ?`, id).WithContext(ctx).Scan(&key)
	if errors.Is(err, gocql.ErrNotFound) {
		return "", errors.Wrapf(ErrNotFound, "message %d", id)
	}
	if err != nil {
		return "", errors.Wrapf(err, "lookup message %d", id)
	}
	return key, nil
}

func (s *Scylla) Get(ctx context.Context, id int64) (model.Message, error) {
	key, err := s.roomOf(ctx, id)
	if err != nil {
		return model.Message{}, err
	}

	q := s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE room = ? AND id = ?`, key, id).WithContext(ctx)
	msg, _ := scanMessage(func(dest ...interface{}) bool {
		err = q.Scan(dest...)
		return err == nil
	})
	if errors.Is(err, gocql.ErrNotFound) {
		return model.Message{}, errors.Wrapf(ErrNotFound, "message %d", id)
	}
	if err != nil {
		return model.Message{}, errors.Wrapf(err, "get message %d", id)
	}
	return msg, nil
}

func (s *Scylla) Find(ctx context.Context, key string) ([]model.Message, error) {
	iter := s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE room = ?`, key).WithContext(ctx).Iter()

	var out []model.Message
	for {
		msg, ok := scanMessage(iter.Scan)
		if !ok {
			break
		}
		out = append(out, msg)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(err, "list room %s", key)
	}
	return out, nil
}

// UpdateStatus is a lightweight transaction conditioned on the current
// status, so concurrent readers cannot both win the sent -> read step.
func (s *Scylla) UpdateStatus(ctx context.Context, id int64, status model.MessageStatus) (model.Message, bool, error) {
	if !status.Valid() {
		return model.Message{}, false, errors.Errorf("invalid status %q", status)
	}
	msg, err := s.Get(ctx, id)
	if err != nil {
		return model.Message{}, false, err
	}
	if statusRank(status) <= statusRank(msg.Status) {
		return msg, false, nil
	}

	applied, err := s.db.Query(`UPDATE messages SET status = ? WHERE room = ? AND id = ? IF status = ?`,
		string(status), msg.Room, id, string(msg.Status)).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return model.Message{}, false, errors.Wrapf(err, "update status of message %d", id)
	}
	if !applied {
		current, err := s.Get(ctx, id)
		return current, false, err
	}
	msg.Status = status
	return msg, true, nil
}

func (s *Scylla) DeleteByID(ctx context.Context, id int64) (int, error) {
	key, err := s.roomOf(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	batch := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM messages WHERE room = ? AND id = ?`, key, id)
	batch.Query(`DELETE FROM messages_by_id WHERE id = ?`, id)
	if err := s.db.ExecuteBatch(batch); err != nil {
		return 0, errors.Wrapf(err, "delete message %d", id)
	}
	return 1, nil
}

func (s *Scylla) DeleteByRoom(ctx context.Context, key string) (int, error) {
	iter := s.db.Query(`SELECT id FROM messages WHERE room = ?`, key).WithContext(ctx).Iter()
	var ids []int64
	var id int64
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return 0, errors.Wrapf(err, "list room %s", key)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, id := range ids {
		if err := s.db.Query(`DELETE FROM messages_by_id WHERE id = ?`, id).WithContext(ctx).Exec(); err != nil {
			return 0, errors.Wrapf(err, "delete index of message %d", id)
		}
	}
	if err := s.db.Query(`DELETE FROM messages WHERE room = ?`, key).WithContext(ctx).Exec(); err != nil {
		return 0, errors.Wrapf(err, "delete room %s", key)
	}
	return len(ids), nil
}

func (s *Scylla) CreateUser(ctx context.Context, username, passwordHash string) (model.User, error) {
	u := model.User{Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	applied, err := s.db.Query(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		u.Username, u.PasswordHash, u.CreatedAt).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return model.User{}, errors.Wrapf(err, "create user %s", username)
	}
	if !applied {
		return model.User{}, errors.Wrapf(ErrUserExists, "user %s", username)
	}
	return u, nil
}

func (s *Scylla) GetUser(ctx context.Context, username string) (model.User, error) {
	u := model.User{Username: username}
	err := s.db.Query(`SELECT password_hash, created_at FROM users WHERE username = ?`, username).
		WithContext(ctx).Scan(&u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return model.User{}, errors.Wrapf(ErrNotFound, "user %s", username)
	}
	if err != nil {
		return model.User{}, errors.Wrapf(err, "get user %s", username)
	}
	return u, nil
}

func (s *Scylla) ListUsers(ctx context.Context) ([]string, error) {
	iter := s.db.Query(`SELECT username FROM users`).WithContext(ctx).Iter()
	var out []string
	var name string
	for iter.Scan(&name) {
		out = append(out, name)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	sort.Strings(out)
	return out, nil
}

func (s *Scylla) Touch(ctx context.Context, sender, receiver string, at time.Time) error {
	q := `INSERT INTO user_conversations (user_id, other_user_id, last_updated) VALUES (?, ?, ?)`
	if err := s.db.Query(q, sender, receiver, at).WithContext(ctx).Exec(); err != nil {
		return errors.Wrapf(err, "update conversation for %s", sender)
	}
	if err := s.db.Query(q, receiver, sender, at).WithContext(ctx).Exec(); err != nil {
		return errors.Wrapf(err, "update conversation for %s", receiver)
	}

	qCounter := `UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`
	if err := s.db.Query(qCounter, receiver, sender).WithContext(ctx).Exec(); err != nil {
		return errors.Wrapf(err, "increment unread count for %s", receiver)
	}
	return nil
}

// MarkRead decrements the reader's counter unless it is already zero. The
// check and the decrement are separate statements, so List still floors
// the rare negative left by two concurrent reads.
func (s *Scylla) MarkRead(ctx context.Context, reader, other string) error {
	count, err := s.unread(ctx, reader, other)
	if err != nil {
		return err
	}
	if count <= 0 {
		return nil
	}
	q := `UPDATE conversation_counters SET unread_count = unread_count - 1 WHERE user_id = ? AND other_user_id = ?`
	if err := s.db.Query(q, reader, other).WithContext(ctx).Exec(); err != nil {
		return errors.Wrapf(err, "decrement unread count for %s", reader)
	}
	return nil
}

func (s *Scylla) unread(ctx context.Context, user, other string) (int64, error) {
	var count int64
	err := s.db.Query(`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`,
		user, other).WithContext(ctx).Scan(&count)
	if err != nil && !errors.Is(err, gocql.ErrNotFound) {
		return 0, errors.Wrapf(err, "read unread count for %s", user)
	}
	return count, nil
}

// ClearUnread deletes the counter row; deletion is the only way to zero a
// Scylla counter.
func (s *Scylla) ClearUnread(ctx context.Context, user, other string) error {
	q := `DELETE FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`
	if err := s.db.Query(q, user, other).WithContext(ctx).Exec(); err != nil {
		return errors.Wrapf(err, "reset unread count for %s", user)
	}
	return nil
}

func (s *Scylla) Reset(ctx context.Context, a, b string) error {
	if err := s.ClearUnread(ctx, a, b); err != nil {
		return err
	}
	return s.ClearUnread(ctx, b, a)
}

func (s *Scylla) List(ctx context.Context, username string) ([]model.Conversation, error) {
	iter := s.db.Query(`SELECT other_user_id, last_updated FROM user_conversations WHERE user_id = ?`, username).
		WithContext(ctx).Iter()

	var out []model.Conversation
	c := model.Conversation{Username: username}
	for iter.Scan(&c.OtherUser, &c.LastUpdated) {
		count, err := s.unread(ctx, username, c.OtherUser)
		if err != nil {
			jww.WARN.Printf("Failed to read unread count for %s/%s: %v", username, c.OtherUser, err)
		}
		if count < 0 {
			count = 0
		}
		c.UnreadCount = count
		out = append(out, c)
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(err, "list conversations of %s", username)
	}
	sortConversations(out)
	return out, nil
}
