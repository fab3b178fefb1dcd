package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func authenticate(apiAddr, username, password string, register bool) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"username": username, "password": password})
	if register {
		resp, err := http.Post(apiAddr+"/api/auth/register", "application/json", bytes.NewBuffer(reqBody))
		if err != nil {
			return "", err
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return "", errors.Errorf("register failed: %s", body)
		}
	}

	resp, err := http.Post(apiAddr+"/api/auth/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", errors.Errorf("login failed: %s", body)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", err
	}
	return login.Token, nil
}

// session owns the socket. Writes come from the input loop and from the
// reader's automatic read receipts, so they are serialized.
type session struct {
	me     string
	conn   *websocket.Conn
	mu     sync.Mutex
	target string
	online []model.Presence
}

func (s *session) emit(event string, payload any) error {
	f, err := model.NewFrame(event, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(f)
}

func (s *session) currentTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *session) setTarget(target string) {
	s.mu.Lock()
	s.target = target
	s.mu.Unlock()
}

func (s *session) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			jww.INFO.Println("read:", err)
			return
		}
		f, err := model.ParseFrame(raw)
		if err != nil {
			fmt.Printf("\rReceived raw: %s\n> ", raw)
			continue
		}
		s.show(f)
	}
}

func (s *session) show(f model.Frame) {
	switch f.Event {
	case model.EventRegistered:
		fmt.Printf("\rRegistered as %s\n> ", s.me)
	case model.EventReceiveMessage:
		var msg model.Message
		if json.Unmarshal(f.Data, &msg) != nil {
			return
		}
		where := ""
		if msg.Receiver != model.Global {
			where = " (dm)"
		}
		fmt.Printf("\r[%s]%s %s: %s\n> ", msg.CreatedAt.Local().Format("15:04"), where, msg.Sender, msg.Content)
		if msg.Receiver == s.me && msg.Sender != s.me {
			if err := s.emit(model.EventReadMessage, model.ReadMessageRequest{MessageID: msg.ID, Reader: s.me}); err != nil {
				jww.WARN.Println("read receipt:", err)
			}
		}
	case model.EventMessageRead:
		var receipt model.ReadReceipt
		if json.Unmarshal(f.Data, &receipt) == nil {
			fmt.Printf("\rMessage %d read by %s\n> ", receipt.ID, receipt.Reader)
		}
	case model.EventTyping, model.EventStopTyping:
		var notice model.TypingNotice
		if json.Unmarshal(f.Data, &notice) != nil || notice.Sender == s.me {
			return
		}
		if f.Event == model.EventTyping {
			fmt.Printf("\rUser %s is typing...      \n> ", notice.Sender)
		} else {
			fmt.Printf("\rUser %s stopped typing\n> ", notice.Sender)
		}
	case model.EventPresence:
		var snapshot []model.Presence
		if json.Unmarshal(f.Data, &snapshot) != nil {
			return
		}
		s.mu.Lock()
		s.online = snapshot
		s.mu.Unlock()
		fmt.Printf("\rOnline: %s\n> ", strings.Join(onlineNames(snapshot), ", "))
	case model.EventRoomJoined:
		var joined model.RoomJoined
		if json.Unmarshal(f.Data, &joined) == nil {
			fmt.Printf("\rJoined %s\n> ", joined.Room)
		}
	case model.EventSessionReplaced:
		fmt.Printf("\rSigned in elsewhere, closing\n")
	case model.EventError:
		var notice model.ErrorNotice
		if json.Unmarshal(f.Data, &notice) == nil {
			fmt.Printf("\rError (%s): %s\n> ", notice.Code, notice.Message)
		}
	default:
		fmt.Printf("\r%s: %s\n> ", f.Event, f.Data)
	}
}

func onlineNames(snapshot []model.Presence) []string {
	var names []string
	for _, p := range snapshot {
		if p.Online {
			names = append(names, p.Username)
		}
	}
	return names
}

func (s *session) run(c command) error {
	target := s.currentTarget()
	switch c.kind {
	case cmdSay:
		return s.emit(model.EventSendMessage, model.SendMessageRequest{Sender: s.me, Receiver: target, Content: c.arg})
	case cmdTo:
		s.setTarget(c.arg)
		if c.arg == model.Global {
			fmt.Println("Talking to everyone")
			return nil
		}
		return s.emit(model.EventJoinRoom, model.JoinRoomRequest{Other: c.arg})
	case cmdTyping:
		return s.emit(model.EventTyping, model.TypingRequest{Sender: s.me, Receiver: target})
	case cmdStopTyping:
		return s.emit(model.EventStopTyping, model.TypingRequest{Sender: s.me, Receiver: target})
	case cmdWho:
		s.mu.Lock()
		names := onlineNames(s.online)
		s.mu.Unlock()
		fmt.Printf("Online: %s\n", strings.Join(names, ", "))
	case cmdLogout:
		return s.emit(model.EventLogout, model.LogoutRequest{Username: s.me})
	}
	return nil
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	username := flag.String("user", "user1", "username")
	password := flag.String("password", "password", "password")
	register := flag.Bool("register", false, "create the account before logging in")
	to := flag.String("to", model.Global, "initial receiver, all for the global room")
	flag.Parse()
	jww.SetStdoutThreshold(jww.LevelInfo)

	// 1. Login to get token
	jww.INFO.Printf("Logging in as %s...", *username)
	token, err := authenticate(*apiAddr, *username, *password, *register)
	if err != nil {
		jww.FATAL.Fatalln("Login failed:", err)
	}

	// 2. Connect to WebSocket with token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	jww.INFO.Printf("connecting to %s", u.String())
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		jww.FATAL.Fatalln("dial:", err)
	}
	defer c.Close()

	s := &session{me: *username, conn: c, target: *to}
	if err := s.emit(model.EventRegister, model.RegisterRequest{Username: s.me}); err != nil {
		jww.FATAL.Fatalln("register:", err)
	}
	if s.target != model.Global {
		if err := s.emit(model.EventJoinRoom, model.JoinRoomRequest{Other: s.target}); err != nil {
			jww.FATAL.Fatalln("join:", err)
		}
	}

	// 3. Read frames
	done := make(chan struct{})
	go s.readLoop(done)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	quit := make(chan struct{})

	// 4. Read from stdin and send frames
	go func() {
		defer close(quit)
		scanner := bufio.NewScanner(os.Stdin)
		fmt.Print("> ")
		for scanner.Scan() {
			cmd, err := parseCommand(scanner.Text())
			if err != nil {
				if strings.TrimSpace(scanner.Text()) != "" {
					fmt.Println(err)
				}
				fmt.Print("> ")
				continue
			}
			if cmd.kind == cmdQuit {
				return
			}
			if err := s.run(cmd); err != nil {
				jww.ERROR.Println("write:", err)
				return
			}
			fmt.Print("> ")
		}
	}()

	select {
	case <-done:
		return
	case <-interrupt:
		jww.INFO.Println("interrupt")
	case <-quit:
	}

	// Cleanly close the connection by sending a close message and then
	// waiting (with timeout) for the server to close the connection.
	s.mu.Lock()
	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.mu.Unlock()
	if err != nil {
		jww.ERROR.Println("write close:", err)
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
