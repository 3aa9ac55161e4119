package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEnvelope(t *testing.T, typ string, token *string, payload any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, token, payload)
	require.NoError(t, err)
	return env
}

// TestEncodeDecode_RoundTrip 编码后再解码得到相同信封
func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  *protocol.Envelope
	}{
		{"login", mustEnvelope(t, protocol.MsgLogin, protocol.StringPtr(protocol.LoginToken),
			protocol.CredentialsPayload{Username: "alice", Password: "x"})},
		{"nil token", mustEnvelope(t, protocol.MsgSendMessage, nil,
			protocol.SendMessagePayload{ToUser: "2", Message: "你好 <b>&</b>", Type: protocol.ContentText})},
		{"array payload", mustEnvelope(t, protocol.MsgOfflineMessages, nil,
			[]any{[]any{"a", 1, 2, 3.5}, []any{"b", 1, 2, 4}})},
		{"nested", mustEnvelope(t, "x_result", nil,
			map[string]any{"ok": true, "list": []any{1.0, "two", nil}, "obj": map[string]any{"k": "v"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.env)
			require.NoError(t, err)

			got, err := Decode(frame[HeaderSize:])
			require.NoError(t, err)
			assert.Equal(t, tt.env.Type, got.Type)
			assert.Equal(t, tt.env.Token, got.Token)
			assert.JSONEq(t, string(tt.env.Payload), string(got.Payload))
		})
	}
}

// TestEncode_LengthPrefix 帧头长度等于剩余字节数
func TestEncode_LengthPrefix(t *testing.T) {
	for _, msg := range []string{"", "a", strings.Repeat("长", 5000)} {
		env := mustEnvelope(t, protocol.MsgSendMessage, protocol.StringPtr("tok"),
			protocol.SendMessagePayload{ToUser: "1", Message: msg, Type: protocol.ContentText})
		frame, err := Encode(env)
		require.NoError(t, err)
		assert.Equal(t, len(frame)-HeaderSize, int(binary.BigEndian.Uint32(frame[:HeaderSize])))
		assert.Equal(t, len(frame)-HeaderSize, FrameLength(frame))
	}
}

func TestEncode_WireShape(t *testing.T) {
	env := mustEnvelope(t, protocol.MsgHeartbeat, nil, protocol.HeartbeatPayload{Content: protocol.HeartbeatAck})
	frame, err := Encode(env)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"heartbeat","token":null,"payload":{"content":"Health check received."}}`, string(frame[HeaderSize:]))
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrEncoding)

	bad := &protocol.Envelope{Type: protocol.MsgSendMessage, Payload: json.RawMessage(`{not json`)}
	_, err = Encode(bad)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.False(t, IsFatal(err))

	huge := &protocol.Envelope{Type: protocol.MsgSendMessage,
		Payload: json.RawMessage(`"` + strings.Repeat("a", MaxFrameSize) + `"`)}
	_, err = Encode(huge)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"invalid utf-8", []byte{'{', 0xff, 0xfe, '}'}},
		{"invalid json", []byte(`{"type":"new_message",`)},
		{"not an object", []byte(`[1,2,3]`)},
		{"missing type", []byte(`{"payload":{}}`)},
		{"empty", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.body)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode), "got %v", err)
			assert.False(t, errors.Is(err, ErrEncoding))
		})
	}
}

func TestDecode_ServerEnvelopeHasNoToken(t *testing.T) {
	env, err := Decode([]byte(`{"type":"login_result","payload":{"success":true,"uid":7,"token":"abc123"}}`))
	require.NoError(t, err)
	assert.Nil(t, env.Token)
	assert.Equal(t, protocol.KindResult, env.Kind())
}
