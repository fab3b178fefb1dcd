// Package store persists messages, user accounts and the per-user
// conversation index. Each concern has a Scylla implementation for the
// services and an in-memory one for tests and single-node development.
package store

import (
	"context"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrUserExists = errors.New("user already exists")
)

// MessageStore is the persisted message log.
type MessageStore interface {
	// Create appends a message with status sent. The store assigns the id,
	// the room key and the creation time.
	Create(ctx context.Context, sender, receiver, content string) (model.Message, error)
	Get(ctx context.Context, id int64) (model.Message, error)
	// Find lists the messages of a room ordered by creation time.
	Find(ctx context.Context, room string) ([]model.Message, error)
	// UpdateStatus moves a message to status. Statuses only move forward;
	// the bool reports whether this call performed the transition.
	UpdateStatus(ctx context.Context, id int64, status model.MessageStatus) (model.Message, bool, error)
	DeleteByID(ctx context.Context, id int64) (int, error)
	DeleteByRoom(ctx context.Context, room string) (int, error)
}

type UserStore interface {
	// CreateUser fails with ErrUserExists when the username is taken.
	CreateUser(ctx context.Context, username, passwordHash string) (model.User, error)
	GetUser(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context) ([]string, error)
}

// ConversationIndex tracks, per user, the two-party rooms they take part
// in together with an unread counter.
type ConversationIndex interface {
	// Touch records a message from sender to receiver at time at.
	Touch(ctx context.Context, sender, receiver string, at time.Time) error
	// MarkRead decrements reader's unread count for messages from other.
	MarkRead(ctx context.Context, reader, other string) error
	// ClearUnread zeroes user's unread counter for the conversation with
	// other.
	ClearUnread(ctx context.Context, user, other string) error
	// Reset clears both sides' unread counters of a two-party room.
	Reset(ctx context.Context, a, b string) error
	List(ctx context.Context, username string) ([]model.Conversation, error)
}

func statusRank(s model.MessageStatus) int {
	switch s {
	case model.StatusSent:
		return 1
	case model.StatusRead:
		return 2
	}
	return 0
}
