package transport

import (
	"errors"
	"fmt"
	"io"
)

// ReadState 接收状态机的状态
type ReadState int

const (
	StateReadingLength ReadState = iota // 等待 4 字节长度
	StateReadingBody                    // 等待 length 字节的帧体
	StateDispatching                    // 已拿到完整帧，交给解码与路由
)

func (s ReadState) String() string {
	switch s {
	case StateReadingLength:
		return "reading_length"
	case StateReadingBody:
		return "reading_body"
	case StateDispatching:
		return "dispatching"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TruncatedFrameError 对端在帧体读完前关闭，携带期望与实际字节数
type TruncatedFrameError struct {
	Expected int
	Actual   int
}

func (e *TruncatedFrameError) Error() string {
	return fmt.Sprintf("truncated frame: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *TruncatedFrameError) Is(target error) bool { return target == ErrTruncatedFrame }

// FrameReader 按长度前缀从字节流中切出帧，只允许一个 goroutine 使用
type FrameReader struct {
	r     io.Reader
	state ReadState
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r, state: StateReadingLength}
}

// State 当前状态
func (f *FrameReader) State() ReadState { return f.state }

// Next 读取下一帧的帧体。
//
// 帧体不完整时返回 *TruncatedFrameError 并丢弃已读部分，状态回到读长度；
// 协议没有同步标记，之后读到的字节不保证落在帧边界上。
// 读长度时对端关闭或出现 I/O 错误返回 ErrConnectionLost / ErrClosed。
func (f *FrameReader) Next() ([]byte, error) {
	f.state = StateReadingLength
	header, err := ReadExact(f.r, HeaderSize)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrConnectionLost.With("peer closed", err)
		}
		return nil, err
	}

	length := FrameLength(header)
	f.state = StateReadingBody
	body, err := ReadExact(f.r, length)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			f.state = StateReadingLength
			return nil, &TruncatedFrameError{Expected: length, Actual: len(body)}
		}
		return nil, err
	}
	f.state = StateDispatching
	return body, nil
}
