package main

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/fansqz/go-tgdb/constants"
	"github.com/fansqz/go-tgdb/debugger"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
	"github.com/sirupsen/logrus"
)

// TerminateRequest json连接上终止调试的请求，不属于后端的请求类型
const TerminateRequest constants.RequestKind = "terminate"

// DebuggerHandler json前端
// 每行一个WireRequest，回复Reply；后端的响应以Event的形式推送
type DebuggerHandler struct {
	debugger debugger.Debugger
	stream   *stream.Stream
	log      *logrus.Entry

	lock    sync.Mutex
	encoder *json.Encoder
}

func NewDebuggerHandler(d debugger.Debugger, s *stream.Stream) *DebuggerHandler {
	return &DebuggerHandler{
		debugger: d,
		stream:   s,
		log:      logrus.WithField("session", s.ID()),
	}
}

// Serve 处理一个连接直到连接关闭，连接关闭以后等待quit事件发送完
func (d *DebuggerHandler) Serve(ctx context.Context, conn io.ReadWriter) error {
	d.encoder = json.NewEncoder(conn)
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := d.stream.Pump(pumpCtx, func(resp protocol.Response) {
		d.write(protocol.NewEvent(resp))
	})

	decoder := json.NewDecoder(conn)
	for {
		var req protocol.WireRequest
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				d.log.Infof("No more data to read")
				return nil
			}
			d.log.Warnf("parse request error, err = %v", err)
			return err
		}
		if req.Kind == TerminateRequest {
			err := d.debugger.Terminate(ctx)
			d.write(protocol.NewReply(req.Sequence, err))
			if err == nil {
				<-done
			}
			continue
		}
		d.handle(ctx, &req)
	}
}

func (d *DebuggerHandler) handle(ctx context.Context, wire *protocol.WireRequest) {
	req, err := wire.Request()
	if err != nil {
		d.log.Warnf("[%s] invalid request, err = %v", wire.Kind, err)
		d.write(protocol.NewReply(wire.Sequence, err))
		return
	}
	err = d.debugger.Submit(ctx, req)
	if err != nil {
		d.log.Warnf("[%s] submit fail, err = %v", wire.Kind, err)
	}
	d.write(protocol.NewReply(wire.Sequence, err))
}

func (d *DebuggerHandler) write(message interface{}) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if err := d.encoder.Encode(message); err != nil {
		d.log.Warnf("marshal message fail, err = %v", err)
	}
}
