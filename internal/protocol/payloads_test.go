package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUID_UnmarshalNumberOrString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want UID
	}{
		{"number", `7`, 7},
		{"string", `"42"`, 42},
		{"float", `3.0`, 3},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u UID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &u))
			assert.Equal(t, tt.want, u)
		})
	}

	var u UID
	assert.Error(t, json.Unmarshal([]byte(`"bob"`), &u))
}

func TestOfflineMessage_Tuple(t *testing.T) {
	var m OfflineMessage
	require.NoError(t, json.Unmarshal([]byte(`["hi", 3, "1", 1745813243.5]`), &m))
	assert.Equal(t, "hi", m.Content)
	assert.Equal(t, UID(3), m.FromUser)
	assert.Equal(t, UID(1), m.ToUser)
	assert.Equal(t, int64(1745813243), m.SentAt().Unix())

	assert.Error(t, json.Unmarshal([]byte(`["hi", 3]`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"message":"hi"}`), &m))
}

func TestEnvelope_TokenAlwaysSerialized(t *testing.T) {
	env, err := NewEnvelope(MsgSendMessage, nil, SendMessagePayload{ToUser: "2", Message: "x", Type: ContentText})
	require.NoError(t, err)

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"send_message","token":null,"payload":{"to_user":"2","message":"x","type":"text"}}`, string(b))

	_, err = NewEnvelope(MsgSendMessage, nil, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestNewMessagePayload_ContentTypeDefault(t *testing.T) {
	var p NewMessagePayload
	require.NoError(t, json.Unmarshal([]byte(`{"from_user":1,"time":1,"message":"x"}`), &p))
	assert.Equal(t, ContentText, p.ContentType())
	assert.Nil(t, p.NeedUpdateContact)
}
