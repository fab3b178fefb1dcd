// Package gateway is the websocket transport in front of the chat
// service.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar-chat/pkg/auth"
	"github.com/mahaj/dupahar-chat/pkg/chat"
	"github.com/mahaj/dupahar-chat/pkg/config"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

// Handler upgrades authenticated requests and runs one Client per
// connection.
type Handler struct {
	svc      *chat.Service
	tokens   *auth.Manager
	cfg      config.Socket
	upgrader websocket.Upgrader

	// ctx outlives connections so a store write started for a connection
	// that goes away still completes and fans out.
	ctx context.Context

	mu      sync.Mutex
	clients map[string]*Client
}

func NewHandler(ctx context.Context, svc *chat.Service, tokens *auth.Manager, cfg config.Socket) *Handler {
	h := &Handler{
		svc:     svc,
		tokens:  tokens,
		cfg:     cfg,
		ctx:     ctx,
		clients: make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	jww.WARN.Printf("Rejected websocket origin %q", origin)
	return false
}

// ServeHTTP handles websocket requests from the peer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenString := auth.TokenFromRequest(r)
	if tokenString == "" {
		jww.DEBUG.Println("Unauthorized: No token provided")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	claims, err := h.tokens.ValidateToken(tokenString)
	if err != nil {
		jww.DEBUG.Printf("Unauthorized: Invalid token: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		jww.DEBUG.Printf("Upgrade failed: %v", err)
		return
	}

	limiter := ratelimit.NewUnlimited()
	if h.cfg.RateLimit > 0 {
		limiter = ratelimit.New(h.cfg.RateLimit)
	}
	buffer := h.cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	client := newClient(conn, claims.Username, buffer, limiter)
	h.track(client)
	jww.DEBUG.Printf("Connection %s opened for %s", client.id, client.username)

	go client.writePump()
	go client.readPump(h.cfg.MaxMessageSize,
		func(raw []byte) { h.dispatch(client, raw) },
		func() {
			h.svc.Disconnect(h.ctx, client)
			h.untrack(client)
		})
}

func (h *Handler) dispatch(c *Client, raw []byte) {
	f, err := model.ParseFrame(raw)
	if err != nil {
		c.sendError("", err)
		return
	}
	if err := h.handle(h.ctx, c, f); err != nil {
		jww.DEBUG.Printf("%s from %s failed: %v", f.Event, c.username, err)
		c.sendError(f.Event, err)
	}
}

func (h *Handler) track(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// CloseAll hangs up every open connection. Used on shutdown.
func (h *Handler) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	jww.INFO.Printf("Closed %d websocket connections", len(clients))
}

// handle runs one frame against the service.
func (h *Handler) handle(ctx context.Context, c *Client, f model.Frame) error {
	switch f.Event {
	case model.EventRegister:
		var req model.RegisterRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		if req.Username != c.username {
			return errors.Wrapf(chat.ErrValidation, "token was issued to %s", c.username)
		}
		return h.svc.Register(ctx, c, req)
	case model.EventLogout:
		var req model.LogoutRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		return h.svc.Logout(ctx, c, req)
	case model.EventSendMessage:
		var req model.SendMessageRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		_, err := h.svc.SendMessage(ctx, c, req)
		return err
	case model.EventReadMessage:
		var req model.ReadMessageRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		return h.svc.MarkRead(ctx, c, req)
	case model.EventTyping, model.EventStopTyping:
		var req model.TypingRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		return h.svc.Typing(ctx, c, req, f.Event == model.EventStopTyping)
	case model.EventJoinRoom:
		var req model.JoinRoomRequest
		if err := f.Decode(&req); err != nil {
			return err
		}
		_, err := h.svc.JoinRoom(ctx, c, req)
		return err
	}
	return errors.Wrapf(chat.ErrValidation, "unknown event %q", f.Event)
}
