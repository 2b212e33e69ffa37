package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fansqz/go-tgdb/constants"
	"github.com/fansqz/go-tgdb/debugger"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
	"github.com/fansqz/go-tgdb/utils"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

// errDisconnect 客户端请求断开连接
var errDisconnect = errors.New("client disconnected")

// DebugSession 一个DAP客户端的调试会话
// 请求翻译成protocol.Request交给后端，后端的响应翻译成DAP事件。
// 协议中没有请求id，completions和disassemble的结果要等后端的响应到达以后才能回复，
// 所以同一种请求同时只能有一个在等待。
type DebugSession struct {
	ctx context.Context
	// rw is used to read requests and write events/responses
	rw *bufio.ReadWriter

	debugger debugger.Debugger
	stream   *stream.Stream
	log      *logrus.Entry

	sendLock sync.Mutex
	seq      atomic.Int64

	lock sync.Mutex
	// 每个源文件上一次设置的断点行
	breakpoints map[string][]int
	// 当前的提示符
	prompt             string
	pendingCompletions *dap.CompletionsRequest
	pendingDisassemble *dap.DisassembleRequest
}

func NewDebugSession(ctx context.Context, conn io.ReadWriter, d debugger.Debugger, s *stream.Stream) *DebugSession {
	return &DebugSession{
		ctx:         ctx,
		rw:          bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		debugger:    d,
		stream:      s,
		log:         logrus.WithField("session", s.ID()),
		breakpoints: map[string][]int{},
	}
}

// Serve 处理客户端请求直到连接关闭或者客户端断开
// 后端的响应由单独的协程转发给客户端
func (d *DebugSession) Serve() error {
	pumpCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	done := d.stream.Pump(pumpCtx, d.onResponse)
	for {
		err := d.handleRequest()
		if err == nil {
			continue
		}
		if err == errDisconnect {
			// 等待quit之前的响应都发送给客户端
			<-done
			return nil
		}
		if err == io.EOF {
			d.log.Infof("No more data to read")
			return nil
		}
		d.log.Errorf("Server error: %v", err)
		return err
	}
}

func (d *DebugSession) handleRequest() error {
	request, err := dap.ReadProtocolMessage(d.rw.Reader)
	if err != nil {
		return err
	}
	return d.dispatchRequest(request)
}

func (d *DebugSession) dispatchRequest(request dap.Message) error {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(request)
	case *dap.LaunchRequest:
		d.onLaunchRequest(request)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(request)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(request)
	case *dap.ContinueRequest:
		d.onContinueRequest(request)
	case *dap.NextRequest:
		d.onNextRequest(request)
	case *dap.StepInRequest:
		d.onStepInRequest(request)
	case *dap.StepOutRequest:
		d.onStepOutRequest(request)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(request)
	case *dap.CompletionsRequest:
		d.onCompletionsRequest(request)
	case *dap.DisassembleRequest:
		d.onDisassembleRequest(request)
	case *dap.TerminateRequest:
		d.onTerminateRequest(request)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(request)
		return errDisconnect
	default:
		if req, ok := request.(dap.RequestMessage); ok {
			baseReq := req.GetRequest()
			d.send(newErrorResponse(baseReq.Seq, baseReq.Command, fmt.Sprintf("%s is not yet supported", baseReq.Command)))
		}
		d.log.Warnf("Unable to process %#v", request)
	}
	return nil
}

// send Message响应给客户端
func (d *DebugSession) send(message dap.Message) {
	d.sendLock.Lock()
	defer d.sendLock.Unlock()
	switch m := message.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = int(d.seq.Add(1))
	case dap.EventMessage:
		m.GetEvent().Seq = int(d.seq.Add(1))
	}
	if err := dap.WriteProtocolMessage(d.rw.Writer, message); err != nil {
		d.log.Warnf("write message fail, err = %v", err)
		return
	}
	_ = d.rw.Flush()
}

// submit 把请求交给后端
func (d *DebugSession) submit(req protocol.Request) error {
	return d.debugger.Submit(d.ctx, req)
}

func (d *DebugSession) submitCommand(command constants.CommandType) error {
	req, err := protocol.NewDebuggerCommand(command)
	if err != nil {
		return err
	}
	return d.submit(req)
}

// -----------------------------------------------------------------------
// Request Handlers

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsCompletionsRequest = true
	response.Body.SupportsDisassembleRequest = true
	response.Body.SupportsTerminateRequest = true
	response.Body.SupportsEvaluateForHovers = false
	response.Body.CompletionTriggerCharacters = []string{}
	// Notify the client with an 'initialized' event. The client will end
	// the configuration sequence with 'configurationDone' request.
	d.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	d.send(response)
}

// onLaunchRequest 调试器在建立连接之前已经启动
func (d *DebugSession) onLaunchRequest(request *dap.LaunchRequest) {
	response := &dap.LaunchResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if err := d.submitCommand(constants.Run); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// onSetBreakpointsRequest DAP每次给出一个文件的全部断点，与上一次的断点对比后添加或删除
func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	path := request.Arguments.Source.Path
	lines := make([]int, len(request.Arguments.Breakpoints))
	for i, bp := range request.Arguments.Breakpoints {
		lines[i] = bp.Line
	}
	d.lock.Lock()
	previous := d.breakpoints[path]
	d.lock.Unlock()

	failed := map[int]string{}
	var kept []int
	for _, line := range utils.Difference(previous, lines) {
		if err := d.modifyBreakpoint(path, line, constants.BreakpointDelete); err != nil {
			d.log.Warnf("delete breakpoint %s:%d fail, err = %v", path, line, err)
			kept = append(kept, line)
		}
	}
	for _, line := range utils.Difference(lines, previous) {
		if err := d.modifyBreakpoint(path, line, constants.BreakpointAdd); err != nil {
			failed[line] = err.Error()
		}
	}

	current := make([]int, 0, len(lines)+len(kept))
	for _, line := range lines {
		if _, ok := failed[line]; !ok {
			current = append(current, line)
		}
	}
	d.lock.Lock()
	d.breakpoints[path] = append(current, kept...)
	d.lock.Unlock()

	response := &dap.SetBreakpointsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, len(lines))
	for i, line := range lines {
		response.Body.Breakpoints[i].Line = line
		response.Body.Breakpoints[i].Source = &request.Arguments.Source
		if msg, ok := failed[line]; ok {
			response.Body.Breakpoints[i].Message = msg
		} else {
			response.Body.Breakpoints[i].Verified = true
		}
	}
	d.send(response)
}

func (d *DebugSession) modifyBreakpoint(path string, line int, action constants.BreakpointAction) error {
	req, err := protocol.NewModifyBreakpoint(path, line, protocol.UnknownAddress, action)
	if err != nil {
		return err
	}
	return d.submit(req)
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if err := d.submitCommand(constants.Continue); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if err := d.submitCommand(constants.Next); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.NextResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if err := d.submitCommand(constants.Step); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if err := d.submitCommand(constants.Finish); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// onEvaluateRequest 表达式作为控制台命令执行，结果出现在调试器的输出中
func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	if err := d.submit(protocol.NewConsoleCommand(request.Arguments.Expression)); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.EvaluateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// onCompletionsRequest 等到update-completions响应到达以后再回复
func (d *DebugSession) onCompletionsRequest(request *dap.CompletionsRequest) {
	d.lock.Lock()
	if d.pendingCompletions != nil {
		d.lock.Unlock()
		d.send(newErrorResponse(request.Seq, request.Command, "another completions request is pending"))
		return
	}
	d.pendingCompletions = request
	d.lock.Unlock()

	if err := d.submit(protocol.NewComplete(request.Arguments.Text)); err != nil {
		d.lock.Lock()
		d.pendingCompletions = nil
		d.lock.Unlock()
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
	}
}

// onDisassembleRequest 从$pc开始反汇编，等到disassemble-pc响应到达以后再回复
func (d *DebugSession) onDisassembleRequest(request *dap.DisassembleRequest) {
	req, err := protocol.NewDisassemblePC(request.Arguments.InstructionCount)
	if err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	d.lock.Lock()
	if d.pendingDisassemble != nil {
		d.lock.Unlock()
		d.send(newErrorResponse(request.Seq, request.Command, "another disassemble request is pending"))
		return
	}
	d.pendingDisassemble = request
	d.lock.Unlock()

	if err = d.submit(req); err != nil {
		d.lock.Lock()
		d.pendingDisassemble = nil
		d.lock.Unlock()
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
	}
}

func (d *DebugSession) onTerminateRequest(request *dap.TerminateRequest) {
	if err := d.debugger.Terminate(d.ctx); err != nil {
		d.send(newErrorResponse(request.Seq, request.Command, err.Error()))
		return
	}
	response := &dap.TerminateResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	if err := d.debugger.Terminate(d.ctx); err != nil {
		d.log.Warnf("terminate on disconnect fail, err = %v", err)
	}
	response := &dap.DisconnectResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	d.send(response)
}

// -----------------------------------------------------------------------
// Response Handlers

// onResponse 把后端的响应翻译成DAP消息，返回以后响应被释放
func (d *DebugSession) onResponse(resp protocol.Response) {
	switch r := resp.(type) {
	case *protocol.UpdateBreakpointsResponse:
		for _, bp := range r.Breakpoints {
			e := &dap.BreakpointEvent{Event: *newEvent("breakpoint")}
			e.Body.Reason = "changed"
			e.Body.Breakpoint = dap.Breakpoint{
				Verified: bp.Enabled,
				Line:     bp.Line,
				Source:   &dap.Source{Name: filepath.Base(bp.Path), Path: bp.Path},
			}
			if bp.Addr.Known() {
				e.Body.Breakpoint.InstructionReference = bp.Addr.String()
			}
			d.send(e)
		}
	case *protocol.UpdateFilePositionResponse:
		e := &dap.StoppedEvent{Event: *newEvent("stopped")}
		e.Body.Reason = "step"
		e.Body.ThreadId = 1
		e.Body.AllThreadsStopped = true
		e.Body.Description = r.Position.String()
		if r.Position.Func != "" {
			e.Body.Text = r.Position.Func
		}
		d.send(e)
	case *protocol.UpdateSourceFilesResponse:
		for _, file := range r.Files {
			e := &dap.LoadedSourceEvent{Event: *newEvent("loadedSource")}
			e.Body.Reason = "new"
			e.Body.Source = dap.Source{Name: filepath.Base(file), Path: file}
			d.send(e)
		}
	case *protocol.UpdateCompletionsResponse:
		d.onCompletions(r)
	case *protocol.DisassemblePCResponse:
		d.onDisassemble(r)
	case *protocol.DisassembleFuncResponse:
		if !r.Usable() {
			d.sendOutput("stderr", "disassemble failed\n")
			return
		}
		d.sendOutput("console", strings.Join(r.Lines, "\n")+"\n")
	case *protocol.InfoLineResponse:
		if r.Error {
			d.sendOutput("stderr", "info line failed\n")
			return
		}
		d.sendOutput("console", fmt.Sprintf("Line %d of \"%s\" starts at address %s\n", r.Line, r.File, r.AddrStart))
	case *protocol.UpdateConsolePromptResponse:
		d.lock.Lock()
		d.prompt = r.Prompt
		d.lock.Unlock()
	case *protocol.DebuggerCommandDeliveredResponse:
		if r.Origin == constants.OriginInternal {
			d.log.Debugf("internal command delivered: %s", r.Command)
			return
		}
		d.lock.Lock()
		prompt := d.prompt
		d.lock.Unlock()
		d.sendOutput("console", prompt+r.Command+"\n")
	case *protocol.QuitResponse:
		d.failPending("debugger quit")
		exitCode := -1
		if v, ok := r.Result(); ok {
			exitCode = v
		}
		e := &dap.ExitedEvent{Event: *newEvent("exited")}
		e.Body.ExitCode = exitCode
		d.send(e)
		d.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	}
}

func (d *DebugSession) onCompletions(r *protocol.UpdateCompletionsResponse) {
	d.lock.Lock()
	request := d.pendingCompletions
	d.pendingCompletions = nil
	d.lock.Unlock()
	if request == nil {
		d.log.Debugf("completions without pending request")
		return
	}
	response := &dap.CompletionsResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Targets = make([]dap.CompletionItem, len(r.Completions))
	for i, c := range r.Completions {
		response.Body.Targets[i] = dap.CompletionItem{Label: c, Text: c}
	}
	d.send(response)
}

func (d *DebugSession) onDisassemble(r *protocol.DisassemblePCResponse) {
	d.lock.Lock()
	request := d.pendingDisassemble
	d.pendingDisassemble = nil
	d.lock.Unlock()
	if request == nil {
		d.log.Debugf("disassembly without pending request")
		return
	}
	if !r.Usable() {
		d.send(newErrorResponse(request.Seq, request.Command, "disassemble failed"))
		return
	}
	response := &dap.DisassembleResponse{}
	response.Response = *newResponse(request.Seq, request.Command)
	response.Body.Instructions = make([]dap.DisassembledInstruction, len(r.Lines))
	for i, line := range r.Lines {
		response.Body.Instructions[i] = dap.DisassembledInstruction{
			Address:     instructionAddress(line, r.AddrStart),
			Instruction: line,
		}
	}
	d.send(response)
}

// failPending 调试器退出以后不会再有结果，回复所有等待中的请求
func (d *DebugSession) failPending(message string) {
	d.lock.Lock()
	completions, disassemble := d.pendingCompletions, d.pendingDisassemble
	d.pendingCompletions, d.pendingDisassemble = nil, nil
	d.lock.Unlock()
	if completions != nil {
		d.send(newErrorResponse(completions.Seq, completions.Command, message))
	}
	if disassemble != nil {
		d.send(newErrorResponse(disassemble.Seq, disassemble.Command, message))
	}
}

func (d *DebugSession) sendOutput(category, output string) {
	e := &dap.OutputEvent{Event: *newEvent("output")}
	e.Body.Category = category
	e.Body.Output = output
	d.send(e)
}

// instructionAddress 取出x/i输出中的指令地址，例如 "=> 0x401136 <main+4>:	mov ..."
func instructionAddress(line string, fallback protocol.Address) string {
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "0x") {
			return strings.TrimSuffix(field, ":")
		}
	}
	return fallback.String()
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    command,
		RequestSeq: requestSeq,
		Success:    true,
	}
}

func newErrorResponse(requestSeq int, command string, message string) *dap.ErrorResponse {
	er := &dap.ErrorResponse{}
	er.Response = *newResponse(requestSeq, command)
	er.Success = false
	er.Message = message
	er.Body.Error = &dap.ErrorMessage{}
	er.Body.Error.Format = message
	er.Body.Error.Id = 12345
	return er
}
