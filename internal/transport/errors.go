package transport

import (
	"errors"
	"fmt"
)

// 传输层错误定义，errors.Is 按错误码比较
var (
	ErrEncoding          = NewTpError(1001, "Envelope encoding failed", "")
	ErrDecode            = NewTpError(1002, "Envelope decoding failed", "")
	ErrFrameTooLarge     = NewTpError(1003, "Frame too large", "")
	ErrTruncatedFrame    = NewTpError(1004, "Truncated frame", "")
	ErrConnectionLost    = NewTpError(1005, "Connection lost", "")
	ErrConnectionRefused = NewTpError(1006, "Connection refused", "")
	ErrClosed            = NewTpError(1007, "Connection closed", "")
)

type tpError struct {
	code    int
	msg     string
	context string
	cause   error
}

func (e *tpError) Error() string {
	s := fmt.Sprintf("Error %d: %s", e.code, e.msg)
	if e.context != "" {
		s += fmt.Sprintf(" (context: %s)", e.context)
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Code 错误码
func (e *tpError) Code() int { return e.code }

func (e *tpError) Unwrap() error { return e.cause }

func (e *tpError) Is(target error) bool {
	var t *tpError
	if !errors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

// With 复制一份带上下文和底层错误的同码错误
func (e *tpError) With(context string, cause error) error {
	return &tpError{code: e.code, msg: e.msg, context: context, cause: cause}
}

func NewTpError(code int, message string, context string) *tpError {
	return &tpError{
		code:    code,
		msg:     message,
		context: context,
	}
}

// IsFatal 连接层面不可恢复的错误
func IsFatal(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrConnectionRefused) || errors.Is(err, ErrClosed)
}
