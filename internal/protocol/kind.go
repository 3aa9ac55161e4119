package protocol

import "strings"

// Kind 服务端信封的分类，一个信封只属于一种
type Kind int

const (
	KindUnknown Kind = iota
	KindResult
	KindFriendTokenResult
	KindNewMessage
	KindOfflineMessages
	KindWelcomeBack
	KindHeartbeat
	KindServerHello
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindResult:            "result",
	KindFriendTokenResult: "friend_token",
	KindNewMessage:        "message",
	KindOfflineMessages:   "offline",
	KindWelcomeBack:       "welcome_back",
	KindHeartbeat:         "heartbeat",
	KindServerHello:       "server_hello",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Classify 按类型串分类。
// 后缀判断必须先于精确匹配：friend_token_result 也以 result 结尾。
func Classify(t MessageType) Kind {
	if strings.HasSuffix(t, "result") || strings.HasSuffix(t, "return") {
		if t == MsgFriendTokenResult {
			return KindFriendTokenResult
		}
		return KindResult
	}
	switch t {
	case MsgNewMessage:
		return KindNewMessage
	case MsgOfflineMessages:
		return KindOfflineMessages
	case MsgWelcomeBack:
		return KindWelcomeBack
	case MsgHeartbeat:
		return KindHeartbeat
	case MsgServerHello:
		return KindServerHello
	default:
		return KindUnknown
	}
}
