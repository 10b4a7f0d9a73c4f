package transport

import (
	"fmt"
)

// 传输层错误定义
var (
	ErrSessionClosed  = NewTpError(1001, "Session is closed", "")
	ErrFrameTooLarge  = NewTpError(1003, "Frame too large", "")
	ErrBackpressure   = NewTpError(1004, "Send buffer full", "")
	ErrInvalidFraming = NewTpError(1005, "Invalid framing", "")
)

type tpError struct {
	code    int
	msg     string
	context string
}

func (e *tpError) Error() string {
	if e.context != "" {
		return fmt.Sprintf("Error %d: %s (context: %s)", e.code, e.msg, e.context)
	}
	return fmt.Sprintf("Error %d: %s", e.code, e.msg)
}

// Code 错误码
func (e *tpError) Code() int { return e.code }

// Is 按错误码比较，带上下文的错误与同码的哨兵错误相等
func (e *tpError) Is(target error) bool {
	t, ok := target.(*tpError)
	return ok && t.code == e.code
}

func NewTpError(code int, message string, context string) *tpError {
	return &tpError{
		code:    code,
		msg:     message,
		context: context,
	}
}
