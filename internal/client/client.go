package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/dispatch"
	"github.com/hongjun500/writepapers/internal/transport"
	"github.com/hongjun500/writepapers/pkg/logger"
)

// Options 创建 Client 的可选项
type Options struct {
	Log *zap.Logger
	// Debug 为 true 时收发的 JSON 以 debug 级别输出，每次收发都会重新询问
	Debug func() bool
}

// Client 一次运行只有一个：持有连接、队列集合与会话 token。
// 发送可以在任意 goroutine 调用；Run 只能有一个。
type Client struct {
	id     string
	conn   *transport.Conn
	queues *dispatch.QueueSet
	router *dispatch.Router
	log    *zap.Logger
	debug  func() bool

	tokenMu sync.RWMutex
	token   *string

	closeOnce sync.Once
	closed    chan struct{}

	failMu  sync.Mutex
	failErr error
}

// Dial 连接服务器并创建 Client。连接被拒绝返回 ErrConnectionRefused。
func Dial(ctx context.Context, host string, port int, opts Options) (*Client, error) {
	conn, err := transport.Dial(ctx, host, port)
	if err != nil {
		return nil, err
	}
	return New(conn, opts), nil
}

// New 用已建立的连接创建 Client
func New(conn *transport.Conn, opts Options) *Client {
	c := &Client{
		id:     uuid.NewString(),
		conn:   conn,
		queues: dispatch.NewQueueSet(),
		debug:  opts.Debug,
		closed: make(chan struct{}),
	}
	c.log = logger.Or(opts.Log).With(zap.String("conn_id", c.id), zap.String("remote", conn.RemoteAddr()))
	c.router = dispatch.NewRouter(c.queues, c.replyHeartbeat, c.log)
	return c
}

// ID 本次连接的标识，只用于日志
func (c *Client) ID() string { return c.id }

// Queues 接收循环写入、消费者读取的队列集合
func (c *Client) Queues() *dispatch.QueueSet { return c.queues }

// SetToken 保存登录后拿到的会话 token
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = &token
	c.tokenMu.Unlock()
}

// Token 当前会话 token，登录前为 nil
func (c *Client) Token() *string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	if c.token == nil {
		return nil
	}
	t := *c.token
	return &t
}

// Done 连接关闭后可读
func (c *Client) Done() <-chan struct{} { return c.closed }

// Err 导致连接失效的致命错误，正常关闭时为 nil
func (c *Client) Err() error {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	return c.failErr
}

// Close 关闭连接，可重复调用
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		c.log.Info("connection_closed")
	})
	return err
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// fail 记录第一个致命错误并关闭连接
func (c *Client) fail(err error) {
	c.failMu.Lock()
	if c.failErr == nil {
		c.failErr = err
	}
	c.failMu.Unlock()
	_ = c.Close()
}

func (c *Client) debugOn() bool { return c.debug != nil && c.debug() }
