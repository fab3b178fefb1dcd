package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Inbound event names.
const (
	EventRegister    = "register"
	EventLogout      = "logout"
	EventSendMessage = "sendMessage"
	EventReadMessage = "readMessage"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventJoinRoom    = "joinRoom"
)

// Outbound event names. Typing and stopTyping are re-emitted under the
// same names they arrive with.
const (
	EventRegistered      = "registered"
	EventReceiveMessage  = "receiveMessage"
	EventMessageRead     = "messageRead"
	EventPresence        = "presence"
	EventRoomJoined      = "roomJoined"
	EventSessionReplaced = "sessionReplaced"
	EventError           = "error"
)

// ErrMalformed marks a frame or payload that does not match its schema.
var ErrMalformed = errors.New("malformed payload")

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a frame named event.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "marshal %s payload", event)
	}
	return Frame{Event: event, Data: data}, nil
}

// ParseFrame decodes a raw websocket message into a frame.
func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if strings.TrimSpace(f.Event) == "" {
		return Frame{}, errors.Wrap(ErrMalformed, "event is required")
	}
	return f, nil
}

// Request is implemented by every inbound payload schema.
type Request interface {
	Validate() error
}

// Decode strictly decodes f.Data into req and validates it. Unknown fields
// and missing mandatory fields are both rejected.
func (f Frame) Decode(req Request) error {
	if len(f.Data) == 0 {
		return errors.Wrapf(ErrMalformed, "%s: data is required", f.Event)
	}
	dec := json.NewDecoder(bytes.NewReader(f.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return errors.Wrapf(ErrMalformed, "%s: %v", f.Event, err)
	}
	if err := req.Validate(); err != nil {
		return errors.Wrapf(ErrMalformed, "%s: %v", f.Event, err)
	}
	return nil
}

type RegisterRequest struct {
	Username string `json:"username"`
}

func (r RegisterRequest) Validate() error {
	return ValidateUsername(r.Username)
}

type LogoutRequest struct {
	Username string `json:"username"`
}

func (r LogoutRequest) Validate() error {
	return ValidateUsername(r.Username)
}

type SendMessageRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

func (r SendMessageRequest) Validate() error {
	if err := ValidateUsername(r.Sender); err != nil {
		return errors.Wrap(err, "sender")
	}
	if err := validateReceiver(r.Receiver); err != nil {
		return err
	}
	if strings.TrimSpace(r.Content) == "" {
		return errors.New("content is empty")
	}
	return nil
}

type ReadMessageRequest struct {
	MessageID int64  `json:"messageId,string"`
	Reader    string `json:"reader"`
}

func (r ReadMessageRequest) Validate() error {
	if r.MessageID <= 0 {
		return errors.New("messageId is required")
	}
	if err := ValidateUsername(r.Reader); err != nil {
		return errors.Wrap(err, "reader")
	}
	return nil
}

type TypingRequest struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

func (r TypingRequest) Validate() error {
	if err := ValidateUsername(r.Sender); err != nil {
		return errors.Wrap(err, "sender")
	}
	return validateReceiver(r.Receiver)
}

type JoinRoomRequest struct {
	Other string `json:"other"`
}

func (r JoinRoomRequest) Validate() error {
	return validateReceiver(r.Other)
}

// Outbound payloads.

type ReadReceipt struct {
	ID     int64  `json:"id,string"`
	Reader string `json:"reader"`
}

type TypingNotice struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

type RoomJoined struct {
	Room string `json:"room"`
}

type Registered struct {
	Username string `json:"username"`
}

type ErrorNotice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}

// ValidateUsername checks the shape of a username. The sentinel and the
// room separator are reserved.
func ValidateUsername(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("username is required")
	case name == Global:
		return errors.Errorf("username %q is reserved", Global)
	case strings.Contains(name, RoomSeparator):
		return errors.Errorf("username must not contain %q", RoomSeparator)
	}
	return nil
}

func validateReceiver(receiver string) error {
	if receiver == Global {
		return nil
	}
	if err := ValidateUsername(receiver); err != nil {
		return errors.Wrap(err, "receiver")
	}
	return nil
}
