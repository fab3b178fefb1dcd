package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/room"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

type sendRequest struct {
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

func (s *Server) listRoom(w http.ResponseWriter, r *http.Request, key string) {
	msgs, err := s.messages.Find(r.Context(), key)
	if err != nil {
		jww.ERROR.Printf("Failed to retrieve history of %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) clearRoom(w http.ResponseWriter, r *http.Request, key string) {
	n, err := s.messages.DeleteByRoom(r.Context(), key)
	if err != nil {
		jww.ERROR.Printf("Failed to delete room %s: %v", key, err)
		writeError(w, http.StatusInternalServerError, "Delete failed")
		return
	}
	jww.INFO.Printf("%d messages of %s deleted by %s", n, key, caller(r))
	s.publish(r, events.Event{Type: events.RoomCleared, Room: key, At: time.Now().UTC()})
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n})
}

// peerRoom resolves the two-party room between the caller and the
// {username} path value.
func peerRoom(w http.ResponseWriter, r *http.Request) (string, bool) {
	peer := r.PathValue("username")
	if err := model.ValidateUsername(peer); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return room.Resolve(caller(r), peer), true
}

func (s *Server) listGlobal(w http.ResponseWriter, r *http.Request) {
	s.listRoom(w, r, room.Global)
}

func (s *Server) clearGlobal(w http.ResponseWriter, r *http.Request) {
	s.clearRoom(w, r, room.Global)
}

func (s *Server) listPrivate(w http.ResponseWriter, r *http.Request) {
	if key, ok := peerRoom(w, r); ok {
		s.listRoom(w, r, key)
	}
}

func (s *Server) clearPrivate(w http.ResponseWriter, r *http.Request) {
	if key, ok := peerRoom(w, r); ok {
		s.clearRoom(w, r, key)
	}
}

// deleteMessage removes one message. Messages of a two-party room the
// caller is not part of are reported as missing.
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	msg, err := s.messages.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		jww.ERROR.Printf("Failed to get message %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Delete failed")
		return
	}
	if !room.IsGlobal(msg.Room) {
		if _, ok := room.Other(msg.Room, caller(r)); !ok {
			writeError(w, http.StatusNotFound, "Message not found")
			return
		}
	}

	n, err := s.messages.DeleteByID(r.Context(), id)
	if err != nil {
		jww.ERROR.Printf("Failed to delete message %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Delete failed")
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}

	s.publish(r, events.Event{
		Type:      events.MessageDeleted,
		MessageID: msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		Unread:    msg.Status == model.StatusSent,
		At:        time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, deleteResponse{Deleted: n})
}

// send stores a message without live delivery; connected clients see it
// on their next history fetch.
func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var body sendRequest
	if err := decode(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req := model.SendMessageRequest{Sender: caller(r), Receiver: body.Receiver, Content: body.Content}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := s.messages.Create(r.Context(), req.Sender, req.Receiver, req.Content)
	if err != nil {
		jww.ERROR.Printf("Failed to save message from %s: %v", req.Sender, err)
		writeError(w, http.StatusInternalServerError, "Message could not be sent")
		return
	}
	s.publish(r, events.Event{
		Type:      events.MessageCreated,
		MessageID: msg.ID,
		Room:      msg.Room,
		Sender:    msg.Sender,
		Receiver:  msg.Receiver,
		At:        msg.CreatedAt,
	})
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) publish(r *http.Request, e events.Event) {
	if err := s.feed.Publish(r.Context(), e); err != nil {
		jww.WARN.Printf("Failed to publish %s: %v", e.Type, err)
	}
}
