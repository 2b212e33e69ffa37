package main

import (
	"context"
	"strings"
	"sync"

	"github.com/fansqz/go-tgdb/constants"
	"github.com/fansqz/go-tgdb/debugger"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
)

var fakeCommands = []string{"break", "backtrace", "bt", "continue"}

// fakeDebugger 不启动gdb，按照请求直接产生响应
type fakeDebugger struct {
	stream *stream.Stream

	lock       sync.Mutex
	requests   []protocol.Request
	submitErr  error
	terminated bool
}

func newFakeDebugger() *fakeDebugger {
	return &fakeDebugger{stream: stream.NewStream()}
}

func (f *fakeDebugger) Start(ctx context.Context, option *debugger.StartOption) error {
	return nil
}

func (f *fakeDebugger) Submit(ctx context.Context, req protocol.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	f.lock.Lock()
	if f.submitErr != nil {
		f.lock.Unlock()
		return f.submitErr
	}
	f.requests = append(f.requests, req)
	f.lock.Unlock()

	f.produce(protocol.NewCommandDelivered(constants.OriginFrontEnd, string(req.Kind())))
	switch r := req.(type) {
	case protocol.CompleteRequest:
		var completions []string
		for _, c := range fakeCommands {
			if strings.HasPrefix(c, r.Line()) {
				completions = append(completions, c)
			}
		}
		f.produce(protocol.NewUpdateCompletions(completions))
	case protocol.DisassemblePCRequest:
		f.produce(protocol.NewDisassemblePCResponse(protocol.Disassembly{
			AddrStart: 0x401136,
			AddrEnd:   0x40113d,
			Lines: []string{
				"=> 0x401136 <main+4>:\tmov    $0x0,%eax",
				"   0x40113b <main+9>:\tpop    %rbp",
			}[:min(r.Lines(), 2)],
		}))
	case protocol.ModifyBreakpointRequest:
		if r.Action() != constants.BreakpointDelete {
			f.produce(protocol.NewUpdateBreakpoints([]protocol.Breakpoint{
				{Path: r.File(), Line: r.Line(), Addr: 0x401136, Enabled: true},
			}))
		}
	case protocol.DebuggerCommandRequest:
		if r.Command() == constants.Next {
			f.produce(protocol.NewUpdateFilePosition(protocol.FilePosition{Path: "/src/main.c", LineNumber: 6, Func: "main"}))
		}
	}
	return nil
}

func (f *fakeDebugger) Terminate(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.terminated {
		return nil
	}
	f.terminated = true
	f.produce(protocol.NewQuit(constants.ExitNormal, 0))
	return nil
}

func (f *fakeDebugger) produce(resp protocol.Response) {
	if err := f.stream.Produce(resp); err != nil {
		protocol.Release(&resp)
	}
}

func (f *fakeDebugger) setSubmitErr(err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.submitErr = err
}

func (f *fakeDebugger) submitted() []protocol.Request {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]protocol.Request(nil), f.requests...)
}

// breakpointChanges 已提交的断点修改，格式为 "action location"
func (f *fakeDebugger) breakpointChanges() []string {
	var changes []string
	for _, req := range f.submitted() {
		if mb, ok := req.(protocol.ModifyBreakpointRequest); ok {
			changes = append(changes, string(mb.Action())+" "+mb.Location())
		}
	}
	return changes
}

func (f *fakeDebugger) commands() []constants.CommandType {
	var commands []constants.CommandType
	for _, req := range f.submitted() {
		if dc, ok := req.(protocol.DebuggerCommandRequest); ok {
			commands = append(commands, dc.Command())
		}
	}
	return commands
}

var _ debugger.Debugger = (*fakeDebugger)(nil)
