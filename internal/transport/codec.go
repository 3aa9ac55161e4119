package transport

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/hongjun500/writepapers/internal/protocol"
)

const (
	// HeaderSize 长度前缀字节数
	HeaderSize = 4
	// MaxFrameSize 发送侧硬上限
	MaxFrameSize = 16 * 1024 * 1024
)

// Encode 将信封编码为一个完整的帧：4 字节大端长度 + UTF-8 JSON
func Encode(env *protocol.Envelope) ([]byte, error) {
	if env == nil {
		return nil, ErrEncoding.With("", fmt.Errorf("envelope is nil"))
	}
	body, err := Marshal(env)
	if err != nil {
		return nil, err
	}
	out, err := Frame(body)
	if err != nil {
		return nil, ErrFrameTooLarge.With(fmt.Sprintf("type=%s size=%d", env.Type, len(body)), nil)
	}
	return out, nil
}

// Frame 给已经编码好的 JSON 加上长度前缀
func Frame(body []byte) ([]byte, error) {
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge.With(fmt.Sprintf("size=%d", len(body)), nil)
	}
	out := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(out[:HeaderSize], uint32(len(body)))
	copy(out[HeaderSize:], body)
	return out, nil
}

// Marshal 只做 JSON 序列化，不加长度前缀
func Marshal(env *protocol.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, ErrEncoding.With("type="+env.Type, err)
	}
	// Encoder 会追加换行
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Decode 将帧体（不含长度前缀）解码为信封。
// 失败只影响这一帧，调用方丢弃后继续读取。
func Decode(body []byte) (*protocol.Envelope, error) {
	if !utf8.Valid(body) {
		return nil, ErrDecode.With("invalid utf-8", nil)
	}
	var env protocol.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, ErrDecode.With("invalid json", err)
	}
	if env.Type == "" {
		return nil, ErrDecode.With("envelope missing required field 'type'", nil)
	}
	return &env, nil
}

// FrameLength 读取帧头中的长度
func FrameLength(header []byte) int {
	return int(binary.BigEndian.Uint32(header[:HeaderSize]))
}
