package errors

import (
	stderrors "errors"
	"fmt"

	"tradehook/pkg/errors/ecode"
)

// 携带业务错误码的error，响应层通过DecodeErr还原出码和文案

type codedError struct {
	code  int
	msg   string
	cause error
}

func (e *codedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *codedError) Unwrap() error { return e.cause }

// Code 取出错误码，非codedError返回Unknown
func Code(err error) int {
	var ce *codedError
	if stderrors.As(err, &ce) {
		return ce.code
	}
	return ecode.Unknown
}

func WithCode(code int, msg string) error {
	if msg == "" {
		msg = ecode.Message(code)
	}
	return &codedError{code: code, msg: msg}
}

func Wrap(err error, code int, msg string) error {
	if msg == "" {
		msg = ecode.Message(code)
	}
	return &codedError{code: code, msg: msg, cause: err}
}

func Wrapf(err error, code int, format string, args ...interface{}) error {
	return &codedError{code: code, msg: fmt.Sprintf(format, args...), cause: err}
}

// DecodeErr 解析error为 (code, message)，nil视为成功
func DecodeErr(err error) (int, string) {
	if err == nil {
		return ecode.Success, ecode.Message(ecode.Success)
	}
	var ce *codedError
	if stderrors.As(err, &ce) {
		return ce.code, ce.msg
	}
	return ecode.Unknown, err.Error()
}

// 透传标准库能力，避免调用方同时导入两个errors包
func New(msg string) error                  { return stderrors.New(msg) }
func Is(err, target error) bool             { return stderrors.Is(err, target) }
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
