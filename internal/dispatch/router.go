package dispatch

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/observe"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/pkg/logger"
)

// HeartbeatReplier 回复心跳，返回的错误对接收循环是致命的
type HeartbeatReplier func() error

// Router 把解码后的信封放进唯一一个队列，或立即回复心跳。不阻塞。
type Router struct {
	queues *QueueSet
	reply  HeartbeatReplier
	log    *zap.Logger
}

func NewRouter(queues *QueueSet, reply HeartbeatReplier, log *zap.Logger) *Router {
	return &Router{queues: queues, reply: reply, log: logger.Or(log)}
}

// Route 分发一个信封。只有心跳回复失败时返回错误。
func (r *Router) Route(env *protocol.Envelope) error {
	kind := env.Kind()
	switch kind {
	case protocol.KindResult:
		r.queues.Result.Push(env)
	case protocol.KindFriendTokenResult:
		r.queues.FriendToken.Push(env)
	case protocol.KindNewMessage:
		r.queues.Message.Push(env)
	case protocol.KindOfflineMessages:
		var items []json.RawMessage
		if err := env.DecodePayload(&items); err != nil {
			r.log.Warn("offline_payload_not_list", zap.Error(err), zap.ByteString("payload", env.Payload))
			observe.IncDropped("bad_offline_payload")
			return nil
		}
		for _, item := range items {
			r.queues.Offline.Push(item)
		}
	case protocol.KindWelcomeBack:
		r.queues.WelcomeBack.Push(env)
	case protocol.KindHeartbeat:
		r.log.Debug("heartbeat_received")
		observe.IncHeartbeat()
		observe.IncRouted(kind.String())
		if r.reply == nil {
			return nil
		}
		return r.reply()
	case protocol.KindServerHello:
		logger.Critical(r.log, "server_hello", zap.ByteString("payload", env.Payload))
	case protocol.KindUnknown:
		r.log.Warn("unknown_envelope_type", zap.String("type", env.Type), zap.Any("envelope", env))
		observe.IncDropped("unknown_type")
		return nil
	}
	observe.IncRouted(kind.String())
	return nil
}
