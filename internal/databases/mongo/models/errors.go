package models

import "fmt"

// ErrorCode ...
type ErrorCode int

// Error codes generation
const (
	UnsupportedOplogVersion ErrorCode = iota + 1
	OutOfOrderOplog
	EmptyBatch
	BufferFull
	BufferShutdown
	ApplyFailure
	ConfigUnavailable
)

// ErrorDescriptions maps error codes to messages
var ErrorDescriptions = map[ErrorCode]string{
	UnsupportedOplogVersion: "unsupported oplog entry version",
	OutOfOrderOplog:         "oplog entries are not in ascending optime order",
	EmptyBatch:              "no operations to apply",
	BufferFull:              "oplog buffer is full",
	BufferShutdown:          "oplog buffer is shut down",
	ApplyFailure:            "oplog batch apply failed",
	ConfigUnavailable:       "replica set config is unavailable",
}

// Error kinds to match with errors.Is.
var (
	ErrUnsupportedOplogVersion = &Error{code: UnsupportedOplogVersion}
	ErrOutOfOrderOplog         = &Error{code: OutOfOrderOplog}
	ErrEmptyBatch              = &Error{code: EmptyBatch}
	ErrBufferFull              = &Error{code: BufferFull}
	ErrBufferShutdown          = &Error{code: BufferShutdown}
	ErrApplyFailure            = &Error{code: ApplyFailure}
	ErrConfigUnavailable       = &Error{code: ConfigUnavailable}
)

// Error is a classified failure of the initial sync external state.
type Error struct {
	code ErrorCode
	msg  string
	err  error
}

// Error ...
func (e *Error) Error() string {
	s := ErrorDescriptions[e.code]
	if e.msg != "" {
		s = fmt.Sprintf("%s - %s", s, e.msg)
	}
	if e.err != nil {
		s = fmt.Sprintf("%s: %v", s, e.err)
	}
	return s
}

// Code returns error kind
func (e *Error) Code() ErrorCode {
	return e.code
}

// Unwrap returns the cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.code == e.code
}

// NewError builds Error with error code and message
func NewError(code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg}
}

// WrapError builds Error with error code, message and cause
func WrapError(code ErrorCode, err error, msg string) error {
	return &Error{code: code, msg: msg, err: err}
}
