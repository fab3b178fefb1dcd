package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/dupahar-chat/pkg/auth"
	"github.com/mahaj/dupahar-chat/pkg/events"
	"github.com/mahaj/dupahar-chat/pkg/model"
	"github.com/mahaj/dupahar-chat/pkg/snowflake"
	"github.com/mahaj/dupahar-chat/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type staticPresence []model.Presence

func (p staticPresence) Snapshot(context.Context) ([]model.Presence, error) { return p, nil }

type testServer struct {
	*httptest.Server
	mem    *store.Memory
	tokens *auth.Manager
	feed   *recorder
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	mem := store.NewMemory(node)
	tokens := auth.NewManager("test-secret", time.Hour, "dupahar-chat")
	feed := &recorder{}

	opts = append([]Option{WithPublisher(feed), WithPasswordHasher(auth.NewPasswordHasher(bcrypt.MinCost))}, opts...)
	srv := NewServer(&store.Backend{Messages: mem, Users: mem, Conversations: mem}, tokens, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, mem: mem, tokens: tokens, feed: feed}
}

func (ts *testServer) token(t *testing.T, username string) string {
	t.Helper()
	token, err := ts.tokens.GenerateToken(username)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodOptions, "/api/messages", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestRegisterAndLogin(t *testing.T) {
	ts := newTestServer(t)
	creds := map[string]string{"username": "alice", "password": "hunter2"}

	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", creds)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/register", "", creds)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "username taken")

	resp = ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "all", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "reserved name")

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[loginResponse](t, resp)
	assert.Equal(t, "alice", login.Username)
	claims, err := ts.tokens.ValidateToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "nobody", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/users", login.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"alice"}, decodeBody[[]string](t, resp))
}

func TestRequiresToken(t *testing.T) {
	ts := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodGet, "/api/messages"},
		{http.MethodDelete, "/api/messages"},
		{http.MethodGet, "/api/messages/private/bob"},
		{http.MethodDelete, "/api/messages/private/bob"},
		{http.MethodDelete, "/api/messages/1"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodGet, "/api/presence"},
	} {
		resp := ts.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)

		resp = ts.do(t, tc.method, tc.path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	alice := ts.token(t, "alice")

	first, err := ts.mem.Create(ctx, "alice", model.Global, "hello all")
	require.NoError(t, err)
	_, err = ts.mem.Create(ctx, "bob", model.Global, "hi alice")
	require.NoError(t, err)
	dm, err := ts.mem.Create(ctx, "bob", "alice", "psst")
	require.NoError(t, err)
	_, err = ts.mem.Create(ctx, "bob", "carol", "not for alice")
	require.NoError(t, err)

	resp := ts.do(t, http.MethodGet, "/api/messages", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	global := decodeBody[[]model.Message](t, resp)
	require.Len(t, global, 2)
	assert.Equal(t, first.ID, global[0].ID)
	assert.Equal(t, "hello all", global[0].Content)

	resp = ts.do(t, http.MethodGet, "/api/messages/private/bob", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	private := decodeBody[[]model.Message](t, resp)
	require.Len(t, private, 1)
	assert.Equal(t, dm.ID, private[0].ID)
	assert.Equal(t, model.StatusSent, private[0].Status)

	resp = ts.do(t, http.MethodGet, "/api/chat/history/bob", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]model.Message](t, resp), 1)

	resp = ts.do(t, http.MethodGet, "/api/messages/private/dave", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decodeBody[[]model.Message](t, resp))
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	dm, err := ts.mem.Create(ctx, "bob", "alice", "psst")
	require.NoError(t, err)
	id := strconv.FormatInt(dm.ID, 10)

	resp := ts.do(t, http.MethodDelete, "/api/messages/"+id, ts.token(t, "carol"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "outsiders cannot delete two-party messages")

	resp = ts.do(t, http.MethodDelete, "/api/messages/"+id, ts.token(t, "alice"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decodeBody[deleteResponse](t, resp).Deleted)

	e := ts.feed.last()
	assert.Equal(t, events.MessageDeleted, e.Type)
	assert.True(t, e.Unread)
	assert.Equal(t, "alice#bob", e.Room)

	resp = ts.do(t, http.MethodDelete, "/api/messages/"+id, ts.token(t, "alice"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/messages/abc", ts.token(t, "alice"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteRooms(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	alice := ts.token(t, "alice")

	for i := 0; i < 3; i++ {
		_, err := ts.mem.Create(ctx, "alice", model.Global, "spam")
		require.NoError(t, err)
	}
	_, err := ts.mem.Create(ctx, "alice", "bob", "one")
	require.NoError(t, err)
	_, err = ts.mem.Create(ctx, "bob", "alice", "two")
	require.NoError(t, err)

	resp := ts.do(t, http.MethodDelete, "/api/messages/private/bob", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decodeBody[deleteResponse](t, resp).Deleted)
	assert.Equal(t, events.Event{Type: events.RoomCleared, Room: "alice#bob"}, withoutTime(ts.feed.last()))

	resp = ts.do(t, http.MethodDelete, "/api/messages", alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, decodeBody[deleteResponse](t, resp).Deleted)
	assert.Equal(t, model.Global, ts.feed.last().Room)

	left, err := ts.mem.Find(ctx, model.Global)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func withoutTime(e events.Event) events.Event {
	e.At = time.Time{}
	return e
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	alice := ts.token(t, "alice")

	resp := ts.do(t, http.MethodPost, "/api/chat/send", alice, sendRequest{Receiver: "bob", Content: "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	msg := decodeBody[model.Message](t, resp)
	assert.Equal(t, "alice", msg.Sender)
	assert.Equal(t, events.MessageCreated, ts.feed.last().Type)

	history, err := ts.mem.Find(ctx, "alice#bob")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)

	resp = ts.do(t, http.MethodPost, "/api/chat/send", alice, sendRequest{Receiver: "bob", Content: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversations(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	bob := ts.token(t, "bob")

	require.NoError(t, ts.mem.Touch(ctx, "alice", "bob", time.Now()))
	require.NoError(t, ts.mem.Touch(ctx, "alice", "bob", time.Now()))

	resp := ts.do(t, http.MethodGet, "/api/conversations", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	convs := decodeBody[[]model.Conversation](t, resp)
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].OtherUser)
	assert.Equal(t, int64(2), convs[0].UnreadCount)

	resp = ts.do(t, http.MethodPost, "/api/conversations/read", bob, readRequest{OtherUser: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/conversations", bob, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), decodeBody[[]model.Conversation](t, resp)[0].UnreadCount)
}

func TestPresence(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/presence", ts.token(t, "alice"), nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts = newTestServer(t, WithPresence(staticPresence{{Username: "bob", Online: true}}))
	resp = ts.do(t, http.MethodGet, "/api/presence", ts.token(t, "alice"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[[]model.Presence](t, resp)
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Online)
}
