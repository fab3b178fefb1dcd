// Package chat is the coordination core: it binds connections to
// usernames, keeps room subscriptions, relays messages, propagates read
// receipts and typing signals, and broadcasts presence.
//
// Service methods are called by the transport, one goroutine per
// connection. Errors wrap one of ErrValidation, ErrNotFound or
// ErrPersistence and are meant for the originating connection only.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/registry"
	"github.com/mahaj/dupahar-chat/pkg/room"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// PresenceMirror receives presence transitions for out-of-process readers.
type PresenceMirror interface {
	Online(ctx context.Context, username string) error
	Offline(ctx context.Context, username string, at time.Time) error
}

type Service struct {
	reg      *registry.Registry
	rooms    *subscriptions
	messages store.MessageStore
	feed     events.Publisher
	mirror   PresenceMirror

	// lifecycle serializes register, logout and disconnect so presence
	// snapshots reach subscribers in the order they were taken.
	lifecycle sync.Mutex
}

type Option func(*Service)

// WithPublisher publishes message events to the feed.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.feed = p
	}
}

func WithPresenceMirror(m PresenceMirror) Option {
	return func(s *Service) {
		s.mirror = m
	}
}

func NewService(reg *registry.Registry, messages store.MessageStore, opts ...Option) *Service {
	s := &Service{
		reg:      reg,
		rooms:    newSubscriptions(),
		messages: messages,
		feed:     events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds req.Username to conn and subscribes conn to the global
// room. A previous connection of the same user is told its session was
// replaced and closed.
func (s *Service) Register(ctx context.Context, conn registry.Conn, req model.RegisterRequest) error {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}

	s.lifecycle.Lock()
	if s.rooms.isRetired(conn.ID()) {
		s.lifecycle.Unlock()
		return invalidf("session was replaced by a newer login")
	}
	t, ok := s.reg.Register(req.Username, conn)
	if !ok {
		s.lifecycle.Unlock()
		bound, _ := s.reg.UsernameOf(conn.ID())
		return invalidf("connection is already registered as %s", bound)
	}
	if t.Displaced != nil {
		// Send and Close never block, so the old session is shut before
		// its read pump can race the new one.
		s.rooms.retire(t.Displaced.ID())
		s.send(t.Displaced, model.EventSessionReplaced, model.Registered{Username: req.Username})
		if err := t.Displaced.Close(); err != nil {
			jww.DEBUG.Printf("Closing replaced session %s: %v", t.Displaced.ID(), err)
		}
	}
	s.rooms.attach(conn)
	s.rooms.join(room.Global, conn)

	s.send(conn, model.EventRegistered, model.Registered{Username: req.Username})
	if t.Changed {
		s.broadcastPresence(t.Snapshot)
	}
	s.lifecycle.Unlock()

	if t.Displaced != nil {
		jww.INFO.Printf("Session of %s replaced: %s -> %s", req.Username, t.Displaced.ID(), conn.ID())
	}
	if t.Changed {
		jww.INFO.Printf("Client registered: %s on %s", req.Username, conn.ID())
		s.mirrorOnline(ctx, req.Username)
	}
	return nil
}

// Logout ends the session bound to conn without closing the transport.
// A connection that is not registered is left alone.
func (s *Service) Logout(ctx context.Context, conn registry.Conn, req model.LogoutRequest) error {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}
	bound, ok := s.reg.UsernameOf(conn.ID())
	if !ok {
		return nil
	}
	if bound != req.Username {
		return invalidf("cannot log out %s from a session of %s", req.Username, bound)
	}

	s.lifecycle.Lock()
	t, ok := s.reg.Unregister(conn.ID())
	s.rooms.detach(conn.ID())
	if ok {
		s.broadcastPresence(t.Snapshot)
	}
	s.lifecycle.Unlock()

	if ok {
		jww.INFO.Printf("Client logged out: %s", t.Username)
		s.mirrorOffline(ctx, t)
	}
	return nil
}

// Disconnect releases everything held for conn. It is safe to call for a
// connection that never registered or was already replaced.
func (s *Service) Disconnect(ctx context.Context, conn registry.Conn) {
	s.lifecycle.Lock()
	t, ok := s.reg.Unregister(conn.ID())
	s.rooms.forget(conn.ID())
	if ok {
		s.broadcastPresence(t.Snapshot)
	}
	s.lifecycle.Unlock()

	if ok {
		jww.INFO.Printf("Client unregistered: %s from %s", t.Username, conn.ID())
		s.mirrorOffline(ctx, t)
	}
}

// SendMessage persists a message and fans it out to its room, sender
// included. The sender and an online receiver join a two-party room the
// first time a message for it is seen.
func (s *Service) SendMessage(ctx context.Context, conn registry.Conn, req model.SendMessageRequest) (model.Message, error) {
	if err := req.Validate(); err != nil {
		return model.Message{}, invalid(err)
	}
	if err := s.authorize(conn, req.Sender); err != nil {
		return model.Message{}, err
	}

	msg, err := s.messages.Create(ctx, req.Sender, req.Receiver, req.Content)
	if err != nil {
		jww.ERROR.Printf("Failed to save message from %s: %v", req.Sender, err)
		return model.Message{}, errors.Wrap(ErrPersistence, err.Error())
	}

	if !room.IsGlobal(msg.Room) {
		// Refused when the sender disconnected meanwhile; the message still
		// reaches the remaining subscribers.
		s.rooms.join(msg.Room, conn)
		if peer, ok := s.reg.Lookup(req.Receiver); ok {
			s.rooms.join(msg.Room, peer)
		}
	}
	s.fanOut(msg.Room, model.EventReceiveMessage, msg)

	s.publish(ctx, events.Event{
		Type:      events.MessageCreated,
		MessageID: msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		At:        msg.CreatedAt,
	})
	return msg, nil
}

// MarkRead moves a message to read and tells its sender, if online. Only
// the first call for a message has any effect.
func (s *Service) MarkRead(ctx context.Context, conn registry.Conn, req model.ReadMessageRequest) error {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}
	if err := s.authorize(conn, req.Reader); err != nil {
		return err
	}

	msg, err := s.messages.Get(ctx, req.MessageID)
	if err != nil {
		return s.storeError(err, fmt.Sprintf("read message %d", req.MessageID))
	}
	if !room.IsGlobal(msg.Room) {
		if _, ok := room.Other(msg.Room, req.Reader); !ok {
			return errors.Wrapf(ErrNotFound, "message %d", req.MessageID)
		}
	}
	if msg.Status == model.StatusRead || msg.Sender == req.Reader {
		return nil
	}

	msg, changed, err := s.messages.UpdateStatus(ctx, req.MessageID, model.StatusRead)
	if err != nil {
		return s.storeError(err, fmt.Sprintf("mark message %d read", req.MessageID))
	}
	if !changed {
		return nil
	}

	if sender, ok := s.reg.Lookup(msg.Sender); ok {
		s.send(sender, model.EventMessageRead, model.ReadReceipt{ID: msg.ID, Reader: req.Reader})
	}
	s.publish(ctx, events.Event{
		Type:      events.MessageRead,
		MessageID: msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Reader:    req.Reader,
		At:        time.Now().UTC(),
	})
	return nil
}

// Typing relays a typing or stopTyping signal to the current subscribers
// of the room. Nothing is stored and nothing is retried.
func (s *Service) Typing(ctx context.Context, conn registry.Conn, req model.TypingRequest, stop bool) error {
	if err := req.Validate(); err != nil {
		return invalid(err)
	}
	if err := s.authorize(conn, req.Sender); err != nil {
		return err
	}

	event := model.EventTyping
	if stop {
		event = model.EventStopTyping
	}
	s.fanOut(room.Resolve(req.Sender, req.Receiver), event, model.TypingNotice{Sender: req.Sender, Receiver: req.Receiver})
	return nil
}

// JoinRoom subscribes conn to its two-party room with req.Other.
func (s *Service) JoinRoom(ctx context.Context, conn registry.Conn, req model.JoinRoomRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", invalid(err)
	}
	me, ok := s.reg.UsernameOf(conn.ID())
	if !ok {
		return "", invalidf("connection is not registered")
	}

	key := room.Resolve(me, req.Other)
	if !s.rooms.join(key, conn) {
		return "", invalidf("connection is not registered")
	}
	s.send(conn, model.EventRoomJoined, model.RoomJoined{Room: key})
	return key, nil
}

// Presence returns the current presence snapshot.
func (s *Service) Presence() []model.Presence {
	return s.reg.Snapshot()
}

// Rooms lists the rooms conn is subscribed to.
func (s *Service) Rooms(conn registry.Conn) []string {
	return s.rooms.roomsOf(conn.ID())
}

// authorize checks that conn is registered under claimed.
func (s *Service) authorize(conn registry.Conn, claimed string) error {
	bound, ok := s.reg.UsernameOf(conn.ID())
	if !ok {
		return invalidf("connection is not registered")
	}
	if bound != claimed {
		return invalidf("%s cannot act as %s", bound, claimed)
	}
	return nil
}

func (s *Service) storeError(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		jww.DEBUG.Printf("Dropped %s: %v", what, err)
		return errors.Wrap(ErrNotFound, what)
	}
	jww.ERROR.Printf("Failed to %s: %v", what, err)
	return errors.Wrapf(ErrPersistence, "%s: %v", what, err)
}

func (s *Service) broadcastPresence(snapshot []model.Presence) {
	s.fanOut(room.Global, model.EventPresence, snapshot)
}

func (s *Service) fanOut(key, event string, payload any) {
	f, err := model.NewFrame(event, payload)
	if err != nil {
		jww.ERROR.Printf("Failed to encode %s: %v", event, err)
		return
	}
	for _, c := range s.rooms.subscribers(key) {
		s.deliver(c, f)
	}
}

func (s *Service) send(conn registry.Conn, event string, payload any) {
	f, err := model.NewFrame(event, payload)
	if err != nil {
		jww.ERROR.Printf("Failed to encode %s: %v", event, err)
		return
	}
	s.deliver(conn, f)
}

// deliver ignores transport failures; an unreachable connection is
// equivalent to an offline recipient.
func (s *Service) deliver(conn registry.Conn, f model.Frame) {
	if err := conn.Send(f); err != nil {
		jww.DEBUG.Printf("Dropped %s for %s: %v", f.Event, conn.ID(), err)
	}
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.feed.Publish(ctx, e); err != nil {
		jww.WARN.Printf("Failed to publish %s: %v", e.Type, err)
	}
}

func (s *Service) mirrorOnline(ctx context.Context, username string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Online(ctx, username); err != nil {
		jww.WARN.Printf("Failed to set presence for %s: %v", username, err)
	}
}

func (s *Service) mirrorOffline(ctx context.Context, t registry.Transition) {
	if s.mirror == nil {
		return
	}
	at := time.Now().UTC()
	for _, p := range t.Snapshot {
		if p.Username == t.Username && p.LastSeenAt != nil {
			at = *p.LastSeenAt
		}
	}
	if err := s.mirror.Offline(ctx, t.Username, at); err != nil {
		jww.WARN.Printf("Failed to delete presence for %s: %v", t.Username, err)
	}
}
