package protocol

import "encoding/json"

// MessageType 信封的类型标识
type MessageType = string

// 客户端发出的类型
const (
	MsgLogin              MessageType = "login"
	MsgRegisterAccount    MessageType = "register_account"
	MsgSendMessage        MessageType = "send_message"
	MsgGetOfflineMessages MessageType = "get_offline_messages"
	MsgAddFriend          MessageType = "add_friend"
	MsgGetFriendToken     MessageType = "get_friend_token"
	MsgChangeFriendToken  MessageType = "change_friend_token"
	MsgHeartbeat          MessageType = "heartbeat"
)

// 服务端发来的类型
const (
	MsgNewMessage      MessageType = "new_message"
	MsgOfflineMessages MessageType = "offline_messages"
	MsgWelcomeBack     MessageType = "welcome_back"
	MsgServerHello     MessageType = "server_hello"

	MsgLoginResult       MessageType = "login_result"
	MsgRegisterResult    MessageType = "register_result"
	MsgSendMessageResult MessageType = "send_message_result"
	MsgAddFriendResult   MessageType = "add_friend_result"
	MsgFriendTokenResult MessageType = "friend_token_result"
)

// LoginToken login 信封固定使用的未认证凭据
const LoginToken = "LOGIN"

// Envelope 线上交换的最小单元。
//
// 客户端发出的信封总是带 token 字段（登录前可以是 null），
// 服务端发来的信封没有 token，解码后 Token 为 nil。
// Payload 一般是 JSON 对象，offline_messages 的 payload 是数组。
type Envelope struct {
	Type    MessageType     `json:"type"`
	Token   *string         `json:"token"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope 用任意可序列化的 payload 构造信封
func NewEnvelope(t MessageType, token *string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Token: token, Payload: raw}, nil
}

// Kind 返回信封的分类
func (e *Envelope) Kind() Kind { return Classify(e.Type) }

// DecodePayload 将 payload 解到 v
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Payload, v)
}

// TokenValue 返回 token，nil 时为空串
func (e *Envelope) TokenValue() string {
	if e.Token == nil {
		return ""
	}
	return *e.Token
}

// StringPtr 小工具，方便构造 Token
func StringPtr(s string) *string { return &s }
