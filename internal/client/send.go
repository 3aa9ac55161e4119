package client

import (
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/observe"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/transport"
)

// Send 使用当前会话 token 发送一个信封
func (c *Client) Send(msgType protocol.MessageType, payload any) error {
	return c.SendWithToken(msgType, payload, nil)
}

// SendWithToken 同步编码并写出一个信封。
//
// login 总是使用 "LOGIN"；其他类型优先用 token，为 nil 时用会话 token。
// 编码失败原样返回，连接不受影响；写失败时连接被关闭并返回 ErrConnectionLost。
func (c *Client) SendWithToken(msgType protocol.MessageType, payload any, token *string) error {
	if c.isClosed() {
		if err := c.Err(); err != nil {
			return err
		}
		return transport.ErrClosed.With("send "+msgType, nil)
	}

	switch {
	case msgType == protocol.MsgLogin:
		token = protocol.StringPtr(protocol.LoginToken)
	case token == nil:
		token = c.Token()
	}

	env, err := protocol.NewEnvelope(msgType, token, payload)
	if err != nil {
		return transport.ErrEncoding.With("type="+msgType, err)
	}
	frame, err := transport.Encode(env)
	if err != nil {
		return err
	}
	if c.debugOn() {
		c.log.Debug("send", zap.String("type", msgType), zap.ByteString("json", frame[transport.HeaderSize:]))
	}
	if err := c.conn.WriteAll(frame); err != nil {
		c.log.Error("write_failed", zap.String("type", msgType), zap.Error(err))
		c.fail(err)
		return err
	}
	observe.AddSent(len(frame))
	return nil
}

func (c *Client) replyHeartbeat() error {
	return c.Send(protocol.MsgHeartbeat, protocol.HeartbeatPayload{Content: protocol.HeartbeatAck})
}
