package api

import (
	"net/http"

	"github.com/mahaj/dupahar-chat/pkg/model"
	jww "github.com/spf13/jwalterweatherman"
)

type readRequest struct {
	OtherUser string `json:"otherUser"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.conversations.List(r.Context(), caller(r))
	if err != nil {
		jww.ERROR.Printf("Failed to list conversations: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	if convs == nil {
		convs = []model.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// readConversation zeroes the caller's unread counter for one partner.
func (s *Server) readConversation(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := model.ValidateUsername(req.OtherUser); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.conversations.ClearUnread(r.Context(), caller(r), req.OtherUser); err != nil {
		jww.ERROR.Printf("Failed to reset unread count: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset unread count")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) getPresence(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeError(w, http.StatusServiceUnavailable, "Presence is not available")
		return
	}
	snap, err := s.presence.Snapshot(r.Context())
	if err != nil {
		jww.ERROR.Printf("Failed to fetch presence: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch presence")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
