package protocol

import (
	"encoding/json"
	"time"
)

// MessageFactory 构造服务端方向的信封（mock server、测试用），统一消息创建逻辑
type MessageFactory struct {
	now func() time.Time
}

// NewMessageFactory 创建消息工厂
func NewMessageFactory() *MessageFactory {
	return &MessageFactory{now: time.Now}
}

func (f *MessageFactory) build(t MessageType, payload any) *Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		// payload 都是本包内的结构体，不会失败
		raw = json.RawMessage("{}")
	}
	return &Envelope{Type: t, Payload: raw}
}

// CreateServerHello 连接建立后的问候
func (f *MessageFactory) CreateServerHello() *Envelope {
	return f.build(MsgServerHello, map[string]string{"message": "hello"})
}

// CreateHeartbeat 服务端心跳探测
func (f *MessageFactory) CreateHeartbeat() *Envelope {
	return f.build(MsgHeartbeat, map[string]int64{"time": f.now().Unix()})
}

// CreateLoginResult 登录结果
func (f *MessageFactory) CreateLoginResult(success bool, uid UID, token string) *Envelope {
	return f.build(MsgLoginResult, LoginResult{Success: success, UID: uid, Token: token})
}

// CreateRegisterResult 注册结果
func (f *MessageFactory) CreateRegisterResult(r RegisterResult) *Envelope {
	return f.build(MsgRegisterResult, r)
}

// CreateSendMessageResult 发送结果
func (f *MessageFactory) CreateSendMessageResult(success bool) *Envelope {
	return f.build(MsgSendMessageResult, SendMessageResult{Success: success})
}

// CreateAddFriendResult 加好友结果
func (f *MessageFactory) CreateAddFriendResult(r AddFriendResult) *Envelope {
	return f.build(MsgAddFriendResult, r)
}

// CreateFriendTokenResult 好友口令
func (f *MessageFactory) CreateFriendTokenResult(token string) *Envelope {
	return f.build(MsgFriendTokenResult, FriendTokenResult{FriendToken: token})
}

// CreateResult 任意 *_result / *_return
func (f *MessageFactory) CreateResult(t MessageType, payload any) *Envelope {
	return f.build(t, payload)
}

// CreateNewMessage 实时消息，时间取当前时间
func (f *MessageFactory) CreateNewMessage(from UID, contentType, message string) *Envelope {
	now := f.now()
	return f.build(MsgNewMessage, NewMessagePayload{
		FromUser: from,
		Time:     float64(now.UnixNano()) / 1e9,
		Type:     contentType,
		Message:  message,
	})
}

// CreateOfflineMessages 离线消息列表，payload 为数组
func (f *MessageFactory) CreateOfflineMessages(msgs []OfflineMessage) *Envelope {
	if msgs == nil {
		msgs = []OfflineMessage{}
	}
	return f.build(MsgOfflineMessages, msgs)
}

// CreateWelcomeBack 重新登录提示
func (f *MessageFactory) CreateWelcomeBack(message string) *Envelope {
	return f.build(MsgWelcomeBack, WelcomeBackPayload{Message: message})
}
