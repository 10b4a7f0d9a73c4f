package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// DecodeError 线上数据结构非法或缺少 msg_type，调用方记录日志后丢弃该单元
type DecodeError struct {
	Codec  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s decode: %s: %v", e.Codec, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s decode: %s", e.Codec, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FieldError 字段缺失或无法解析为所需的标量类型
type FieldError struct {
	Field string
	Want  string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q (%s): %v", e.Field, e.Want, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func missing(field, want string) error {
	return &FieldError{Field: field, Want: want, Err: ErrMissingField}
}

func invalid(field, want string, cause error) error {
	if cause == nil {
		return &FieldError{Field: field, Want: want, Err: ErrInvalidField}
	}
	return &FieldError{Field: field, Want: want, Err: fmt.Errorf("%w: %v", ErrInvalidField, cause)}
}
