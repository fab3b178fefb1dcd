// Package api serves the HTTP side of the chat: accounts, history,
// deletion, the conversation index and the presence view.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mahaj/dupahar-chat/pkg/auth"
	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/store"
	jww "github.com/spf13/jwalterweatherman"
)

// PresenceReader serves GET /api/presence.
type PresenceReader interface {
	Snapshot(ctx context.Context) ([]model.Presence, error)
}

type Server struct {
	messages      store.MessageStore
	users         store.UserStore
	conversations store.ConversationIndex
	presence      PresenceReader
	tokens        *auth.Manager
	hasher        *auth.PasswordHasher
	feed          events.Publisher
}

type Option func(*Server)

func WithPresence(p PresenceReader) Option {
	return func(s *Server) {
		s.presence = p
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		s.feed = p
	}
}

func WithPasswordHasher(h *auth.PasswordHasher) Option {
	return func(s *Server) {
		s.hasher = h
	}
}

func NewServer(backend *store.Backend, tokens *auth.Manager, opts ...Option) *Server {
	s := &Server{
		messages:      backend.Messages,
		users:         backend.Users,
		conversations: backend.Conversations,
		tokens:        tokens,
		hasher:        auth.NewPasswordHasher(auth.DefaultBcryptCost),
		feed:          events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	protected := s.tokens.Middleware(writeError)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Chat server is running"))
	})
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)

	mux.Handle("GET /api/users", protected(http.HandlerFunc(s.listUsers)))

	mux.Handle("GET /api/messages", protected(http.HandlerFunc(s.listGlobal)))
	mux.Handle("DELETE /api/messages", protected(http.HandlerFunc(s.clearGlobal)))
	mux.Handle("GET /api/messages/private/{username}", protected(http.HandlerFunc(s.listPrivate)))
	mux.Handle("DELETE /api/messages/private/{username}", protected(http.HandlerFunc(s.clearPrivate)))
	mux.Handle("DELETE /api/messages/{id}", protected(http.HandlerFunc(s.deleteMessage)))

	mux.Handle("POST /api/chat/send", protected(http.HandlerFunc(s.send)))
	mux.Handle("GET /api/chat/history/{username}", protected(http.HandlerFunc(s.listPrivate)))

	mux.Handle("GET /api/conversations", protected(http.HandlerFunc(s.listConversations)))
	mux.Handle("POST /api/conversations/read", protected(http.HandlerFunc(s.readConversation)))

	mux.Handle("GET /api/presence", protected(http.HandlerFunc(s.getPresence)))

	return CORSMiddleware(mux)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		jww.WARN.Printf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// caller returns the authenticated username. Middleware guarantees it.
func caller(r *http.Request) string {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return ""
	}
	return claims.Username
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
