package client

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/observe"
	"github.com/hongjun500/writepapers/internal/transport"
)

// Run 接收循环：读帧、解码、交给路由，直到连接结束。
//
// ctx 取消或调用 Close 属于主动退出，返回 ErrClosed。
// 对端断开、读写出错返回对应的致命错误；残帧、解码失败和未知类型只记日志。
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	fr := transport.NewFrameReader(c.conn)
	c.log.Info("receive_loop_started")
	for {
		body, err := fr.Next()
		if err != nil {
			var te *transport.TruncatedFrameError
			switch {
			case c.isClosed() && c.Err() == nil:
				return transport.ErrClosed.With("receive loop", ctx.Err())
			case errors.As(err, &te):
				c.log.Warn("frame_length_mismatch", zap.Int("expected", te.Expected), zap.Int("actual", te.Actual))
				observe.IncDropped("truncated")
				continue
			default:
				c.log.Warn("connection_lost", zap.Error(err))
				c.fail(err)
				return c.Err()
			}
		}
		observe.IncFrameReceived()
		if c.debugOn() {
			c.log.Debug("recv", zap.ByteString("json", body))
		}

		env, err := transport.Decode(body)
		if err != nil {
			c.log.Warn("decode_failed", zap.Error(err), zap.ByteString("raw", body))
			observe.IncDropped("decode")
			continue
		}
		if err := c.router.Route(env); err != nil {
			if c.isClosed() && c.Err() == nil {
				return transport.ErrClosed.With("receive loop", ctx.Err())
			}
			c.log.Warn("heartbeat_reply_failed", zap.Error(err))
			c.fail(err)
			return c.Err()
		}
	}
}
