package dispatch

import (
	"encoding/json"

	"github.com/hongjun500/writepapers/internal/protocol"
)

// 队列名，同时用作指标标签
const (
	QueueResult      = "result"
	QueueMessage     = "message"
	QueueOffline     = "offline"
	QueueFriendToken = "friend_token"
	QueueWelcomeBack = "welcome_back"
)

// QueueSet 每个信封类别一个队列，随连接创建，进程内只有一份
type QueueSet struct {
	Result      *Queue[*protocol.Envelope]
	Message     *Queue[*protocol.Envelope]
	Offline     *Queue[json.RawMessage] // offline_messages 拆开后的单条
	FriendToken *Queue[*protocol.Envelope]
	WelcomeBack *Queue[*protocol.Envelope]
}

func NewQueueSet() *QueueSet {
	return &QueueSet{
		Result:      NewQueue[*protocol.Envelope](QueueResult),
		Message:     NewQueue[*protocol.Envelope](QueueMessage),
		Offline:     NewQueue[json.RawMessage](QueueOffline),
		FriendToken: NewQueue[*protocol.Envelope](QueueFriendToken),
		WelcomeBack: NewQueue[*protocol.Envelope](QueueWelcomeBack),
	}
}

// Lens 各队列当前长度
func (s *QueueSet) Lens() map[string]int {
	return map[string]int{
		QueueResult:      s.Result.Len(),
		QueueMessage:     s.Message.Len(),
		QueueOffline:     s.Offline.Len(),
		QueueFriendToken: s.FriendToken.Len(),
		QueueWelcomeBack: s.WelcomeBack.Len(),
	}
}
