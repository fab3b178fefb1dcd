package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar-chat/pkg/chat"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"go.uber.org/ratelimit"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a middleman between the websocket connection and the chat
// service. It implements registry.Conn.
type Client struct {
	id       string
	username string
	conn     *websocket.Conn
	limiter  ratelimit.Limiter

	// Buffered channel of outbound frames.
	send chan model.Frame

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, username string, buffer int, limiter ratelimit.Limiter) *Client {
	return &Client{
		id:       uuid.NewString(),
		username: username,
		conn:     conn,
		limiter:  limiter,
		send:     make(chan model.Frame, buffer),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues f without blocking. A client whose queue is full cannot keep
// up and is closed.
func (c *Client) Send(f model.Frame) error {
	select {
	case <-c.done:
		return errors.Wrap(chat.ErrTransport, "connection closed")
	default:
	}

	select {
	case c.send <- f:
		return nil
	default:
		c.Close()
		return errors.Wrapf(chat.ErrTransport, "send queue of %s is full", c.id)
	}
}

// Close asks the write pump to flush what is queued and hang up.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Client) sendError(event string, err error) {
	f, ferr := model.NewFrame(model.EventError, model.ErrorNotice{
		Code:    chat.Code(err),
		Message: err.Error(),
		Event:   event,
	})
	if ferr != nil {
		return
	}
	_ = c.Send(f)
}

// readPump pumps frames from the websocket connection to dispatch. Frames
// of one connection are handled in order.
func (c *Client) readPump(maxMessageSize int64, dispatch func(raw []byte), onClose func()) {
	defer func() {
		onClose()
		c.Close()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				jww.DEBUG.Printf("Read from %s failed: %v", c.id, err)
			}
			return
		}
		c.limiter.Take()
		dispatch(message)
	}
}

// writePump pumps frames from the send queue to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) write(f model.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		jww.ERROR.Printf("Failed to marshal %s frame: %v", f.Event, err)
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// flush writes whatever is still queued.
func (c *Client) flush() {
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}
