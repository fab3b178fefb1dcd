package model

import "time"

const (
	// Global is the reserved receiver naming the global broadcast room.
	Global = "all"
	// RoomSeparator joins the two participants of a two-party room key.
	RoomSeparator = "#"
)

type MessageStatus string

const (
	StatusSent MessageStatus = "sent"
	StatusRead MessageStatus = "read"
)

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	return s == StatusSent || s == StatusRead
}

// Message is a persisted chat message. ID is assigned by the store and
// grows with creation order; it is encoded as a string because snowflake
// ids do not fit a JavaScript number.
type Message struct {
	ID        int64         `json:"id,string"`
	Room      string        `json:"room"`
	Sender    string        `json:"sender"`
	Receiver  string        `json:"receiver"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Status    MessageStatus `json:"status"`
}

// Presence is one row of the presence snapshot.
type Presence struct {
	Username   string     `json:"username"`
	Online     bool       `json:"online"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
}

// User is an account known to the auth collaborator.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Conversation is one entry of a user's two-party conversation index.
type Conversation struct {
	Username    string    `json:"username"`
	OtherUser   string    `json:"otherUser"`
	LastUpdated time.Time `json:"lastUpdated"`
	UnreadCount int64     `json:"unreadCount"`
}
