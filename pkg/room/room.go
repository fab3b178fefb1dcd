// Package room derives the fan-out scope of a message. Both participants of
// a two-party conversation compute the same key regardless of direction.
package room

import (
	"strings"

	"github.com/mahaj/dupahar-chat/pkg/model"
)

// Global is the key of the global broadcast room.
const Global = model.Global

// Resolve returns the room key for a message from sender to receiver.
func Resolve(sender, receiver string) string {
	if receiver == model.Global {
		return Global
	}
	if sender > receiver {
		sender, receiver = receiver, sender
	}
	return sender + model.RoomSeparator + receiver
}

// IsGlobal reports whether key names the global room.
func IsGlobal(key string) bool {
	return key == Global
}

// Participants splits a two-party room key back into its sorted usernames.
func Participants(key string) (string, string, bool) {
	a, b, ok := strings.Cut(key, model.RoomSeparator)
	if !ok || a == "" || b == "" || strings.Contains(b, model.RoomSeparator) {
		return "", "", false
	}
	return a, b, true
}

// Other returns the participant of a two-party room that is not user.
func Other(key, user string) (string, bool) {
	a, b, ok := Participants(key)
	switch {
	case !ok:
		return "", false
	case a == user:
		return b, true
	case b == user:
		return a, true
	}
	return "", false
}
