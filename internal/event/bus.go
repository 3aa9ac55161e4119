package event

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/pkg/logger"
)

type Handler func(Event)

type handlerEntry struct {
	id uint64
	fn Handler
}

// Bus 按事件类型分发。Emit 在调用方 goroutine 里按注册顺序同步执行处理器，
// 所以同一类型的事件到达顺序与发出顺序一致。
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]handlerEntry
	nextID   uint64
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{handlers: make(map[Type][]handlerEntry), log: logger.Or(log)}
}

// Subscribe 注册处理器，返回的函数用于取消
func (b *Bus) Subscribe(t Type, fn Handler) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], handlerEntry{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[t]
		filtered := make([]handlerEntry, 0, len(entries))
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(b.handlers, t)
			return
		}
		b.handlers[t] = filtered
	}
}

// Emit 分发事件。单个处理器 panic 只记日志，不影响其他处理器。
func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	entries := append([]handlerEntry(nil), b.handlers[e.Type()]...)
	b.mu.RUnlock()

	for _, entry := range entries {
		b.call(entry.fn, e)
	}
}

func (b *Bus) call(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event_handler_panic", zap.String("type", string(e.Type())), zap.Any("panic", r))
		}
	}()
	fn(e)
}
