package error

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrMissingField        = fmt.Errorf("%w: missing field", ErrInvalidRequest)
	ErrInvalidResponse     = errors.New("invalid response")
	ErrUnknownResponseKind = errors.New("unknown response kind")
	// ErrProtocolSequence quit之后又产生了响应，属于后端的编程错误
	ErrProtocolSequence   = errors.New("response after quit")
	ErrDebuggerIsClosed   = errors.New("debug is closed")
	ErrDebuggerNotStarted = errors.New("debug not start")
	// ErrRequestPending 上一个需要等待输出的请求还没有结果
	ErrRequestPending = errors.New("another request is waiting for output")
)
