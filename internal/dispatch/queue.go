package dispatch

import (
	"context"
	"sync"

	"github.com/hongjun500/writepapers/internal/observe"
)

// Queue 无界 FIFO。一个生产者（接收循环）一个消费者，Push 从不阻塞。
// Ready 在 Push 后可读，消费者把队列取空后在其上等待，不需要轮询。
type Queue[T any] struct {
	name  string
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func NewQueue[T any](name string) *Queue[T] {
	return &Queue[T]{name: name, ready: make(chan struct{}, 1)}
}

func (q *Queue[T]) Name() string { return q.name }

// Push 入队并发出就绪信号
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	n := len(q.items)
	q.mu.Unlock()
	observe.SetQueueDepth(q.name, n)

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryPop 非阻塞出队
func (q *Queue[T]) TryPop() (T, bool) {
	var zero T
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	n := len(q.items)
	if n == 0 {
		q.items = nil
	}
	q.mu.Unlock()
	observe.SetQueueDepth(q.name, n)
	return v, true
}

// Pop 阻塞直到有元素或 ctx 结束
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Ready 就绪信号。可能有多余的唤醒，收到后以 TryPop 为准。
func (q *Queue[T]) Ready() <-chan struct{} { return q.ready }

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
