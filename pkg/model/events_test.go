package model

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"sendMessage","data":{"sender":"alice","receiver":"all","content":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventSendMessage, f.Event)

	var req SendMessageRequest
	require.NoError(t, f.Decode(&req))
	assert.Equal(t, SendMessageRequest{Sender: "alice", Receiver: Global, Content: "hi"}, req)
}

func TestParseFrameRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `{"event":"  "}`} {
		_, err := ParseFrame([]byte(raw))
		assert.True(t, errors.Is(err, ErrMalformed), raw)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		req  Request
	}{
		{"missing data", `{"event":"sendMessage"}`, &SendMessageRequest{}},
		{"empty content", `{"event":"sendMessage","data":{"sender":"a","receiver":"all","content":""}}`, &SendMessageRequest{}},
		{"blank content", `{"event":"sendMessage","data":{"sender":"a","receiver":"all","content":"   "}}`, &SendMessageRequest{}},
		{"missing receiver", `{"event":"sendMessage","data":{"sender":"a","content":"x"}}`, &SendMessageRequest{}},
		{"legacy text field", `{"event":"sendMessage","data":{"sender":"a","receiver":"all","text":"x"}}`, &SendMessageRequest{}},
		{"reserved username", `{"event":"register","data":{"username":"all"}}`, &RegisterRequest{}},
		{"separator in username", `{"event":"register","data":{"username":"a#b"}}`, &RegisterRequest{}},
		{"zero message id", `{"event":"readMessage","data":{"messageId":"0","reader":"bob"}}`, &ReadMessageRequest{}},
		{"numeric message id", `{"event":"readMessage","data":{"messageId":12,"reader":"bob"}}`, &ReadMessageRequest{}},
		{"typing without sender", `{"event":"typing","data":{"receiver":"bob"}}`, &TypingRequest{}},
		{"join without other", `{"event":"joinRoom","data":{}}`, &JoinRoomRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFrame([]byte(tt.raw))
			require.NoError(t, err)
			err = f.Decode(tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestReadMessageRequestUsesStringID(t *testing.T) {
	f, err := ParseFrame([]byte(`{"event":"readMessage","data":{"messageId":"9007199254740993","reader":"bob"}}`))
	require.NoError(t, err)

	var req ReadMessageRequest
	require.NoError(t, f.Decode(&req))
	assert.Equal(t, int64(9007199254740993), req.MessageID)
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(EventMessageRead, ReadReceipt{ID: 42, Reader: "bob"})
	require.NoError(t, err)
	assert.Equal(t, EventMessageRead, f.Event)
	assert.JSONEq(t, `{"id":"42","reader":"bob"}`, string(f.Data))
}
