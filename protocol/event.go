package protocol

import (
	"github.com/fansqz/go-tgdb/constants"
)

const (
	ReplyMessage = "response"
	EventMessage = "event"
)

// WireRequest json连接上收到的请求
type WireRequest struct {
	// 请求序列号
	Sequence uint                  `json:"sequence"`
	Kind     constants.RequestKind `json:"kind"`
	RequestArgs
}

// Request 校验并构造请求
func (w *WireRequest) Request() (Request, error) {
	return BuildRequest(w.Kind, &w.RequestArgs)
}

// Reply 请求的处理结果，只说明请求是否已经交给后端
type Reply struct {
	Type     string `json:"type"`
	Sequence uint   `json:"sequence"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}

func NewReply(sequence uint, err error) *Reply {
	r := &Reply{Type: ReplyMessage, Sequence: sequence, Success: err == nil}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// Event 后端产生的响应在json连接上的表示
type Event struct {
	Type string                 `json:"type"`
	Kind constants.ResponseKind `json:"kind"`
	Body Response               `json:"body"`
}

func NewEvent(resp Response) *Event {
	return &Event{Type: EventMessage, Kind: resp.Kind(), Body: resp}
}
