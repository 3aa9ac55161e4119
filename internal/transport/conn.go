package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"syscall"
)

// readChunk 单次 Read 的最大字节数
const readChunk = 1024

// Conn 连接管理器：持有唯一的 TCP 连接。
// 写端由互斥锁串行化，读端只允许接收循环一个读者，不加锁。
type Conn struct {
	nc        net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Dial 建立 TCP 连接。被拒绝时返回 ErrConnectionRefused，不重试。
func Dial(ctx context.Context, host string, port int) (*Conn, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrConnectionRefused.With(addr, err)
		}
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(nc), nil
}

// NewConn 包装已建立的连接（测试里用 net.Pipe）
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

// WriteAll 阻塞直到整个缓冲区写完。任何写错误都视为连接丢失。
func (c *Conn) WriteAll(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for len(b) > 0 {
		n, err := c.nc.Write(b)
		if err != nil {
			return ErrConnectionLost.With("write", err)
		}
		b = b[n:]
	}
	return nil
}

// Read 实现 io.Reader，供 FrameReader 使用
func (c *Conn) Read(p []byte) (int, error) { return c.nc.Read(p) }

// ReadExact 读满 n 字节，见 ReadExact 函数
func (c *Conn) ReadExact(n int) ([]byte, error) { return ReadExact(c.nc, n) }

// RemoteAddr 对端地址
func (c *Conn) RemoteAddr() string {
	if c.nc == nil || c.nc.RemoteAddr() == nil {
		return ""
	}
	return c.nc.RemoteAddr().String()
}

// Close 关闭写方向后关闭连接，只执行一次
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if tc, ok := c.nc.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}

// ReadExact 循环读取直到拿到 n 字节。
//
// 对端正常关闭时返回已读到的部分：一个字节都没读到返回 io.EOF，
// 读到一部分返回 io.ErrUnexpectedEOF。(0, nil) 的空读直接重试。
// 其他读错误包装为 ErrConnectionLost。
func ReadExact(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, 0, min(n, 64*1024))
	chunk := make([]byte, readChunk)
	for len(buf) < n {
		want := min(readChunk, n-len(buf))
		got, err := r.Read(chunk[:want])
		buf = append(buf, chunk[:got]...)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(buf) == n {
				return buf, nil
			}
			if len(buf) == 0 {
				return buf, io.EOF
			}
			return buf, io.ErrUnexpectedEOF
		}
		if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
			return buf, ErrClosed.With("read", err)
		}
		return buf, ErrConnectionLost.With("read", err)
	}
	return buf, nil
}
