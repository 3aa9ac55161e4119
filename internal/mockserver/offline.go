package mockserver

import (
	"context"
	"sync"

	"github.com/hongjun500/writepapers/internal/protocol"
)

// OfflineStore 收件人不在线时暂存消息，redisstream.Store 也实现了它
type OfflineStore interface {
	Push(ctx context.Context, m protocol.OfflineMessage) error
	Take(ctx context.Context, uid int64) ([]protocol.OfflineMessage, error)
}

type memoryOffline struct {
	mu   sync.Mutex
	msgs map[int64][]protocol.OfflineMessage
}

func newMemoryOffline() *memoryOffline {
	return &memoryOffline{msgs: make(map[int64][]protocol.OfflineMessage)}
}

func (m *memoryOffline) Push(_ context.Context, msg protocol.OfflineMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	to := int64(msg.ToUser)
	m.msgs[to] = append(m.msgs[to], msg)
	return nil
}

func (m *memoryOffline) Take(_ context.Context, uid int64) ([]protocol.OfflineMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.msgs[uid]
	delete(m.msgs, uid)
	return out, nil
}
