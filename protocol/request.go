package protocol

import (
	"fmt"

	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
)

// Request 前端交给后端的一个请求
// 请求由前端持有，只在提交它的调用期间有效，构造以后不可修改
type Request interface {
	Kind() constants.RequestKind
	// Validate 重新检查请求的约束，后端在处理请求之前调用
	Validate() error
	isRequest()
}

// ConsoleCommandRequest 通过调试器执行一条控制台命令
// 空命令是合法的，gdb会重复上一条命令
type ConsoleCommandRequest struct {
	command string
}

func NewConsoleCommand(command string) ConsoleCommandRequest {
	return ConsoleCommandRequest{command: command}
}

func (r ConsoleCommandRequest) Kind() constants.RequestKind { return constants.ConsoleCommandRequest }
func (r ConsoleCommandRequest) Validate() error             { return nil }
func (r ConsoleCommandRequest) Command() string             { return r.command }
func (ConsoleCommandRequest) isRequest()                    {}

// InfoSourcesRequest 获取被调试程序的所有源文件
type InfoSourcesRequest struct{}

func NewInfoSources() InfoSourcesRequest { return InfoSourcesRequest{} }

func (InfoSourcesRequest) Kind() constants.RequestKind { return constants.InfoSourcesRequest }
func (InfoSourcesRequest) Validate() error             { return nil }
func (InfoSourcesRequest) isRequest()                  {}

// CurrentLocationRequest 获取调试器当前所在的位置
type CurrentLocationRequest struct{}

func NewCurrentLocation() CurrentLocationRequest { return CurrentLocationRequest{} }

func (CurrentLocationRequest) Kind() constants.RequestKind { return constants.CurrentLocationRequest }
func (CurrentLocationRequest) Validate() error             { return nil }
func (CurrentLocationRequest) isRequest()                  {}

// DebuggerCommandRequest 执行一条调试命令
type DebuggerCommandRequest struct {
	command constants.CommandType
}

func NewDebuggerCommand(command constants.CommandType) (DebuggerCommandRequest, error) {
	r := DebuggerCommandRequest{command: command}
	if err := r.Validate(); err != nil {
		return DebuggerCommandRequest{}, err
	}
	return r, nil
}

func (r DebuggerCommandRequest) Kind() constants.RequestKind {
	return constants.DebuggerCommandRequest
}

func (r DebuggerCommandRequest) Validate() error {
	if r.command == "" {
		return fmt.Errorf("%w: debugger command", e.ErrMissingField)
	}
	if !r.command.Valid() {
		return fmt.Errorf("%w: unknown debugger command %q", e.ErrInvalidRequest, r.command)
	}
	return nil
}

func (r DebuggerCommandRequest) Command() constants.CommandType { return r.command }
func (DebuggerCommandRequest) isRequest()                      {}

// ModifyBreakpointRequest 添加或者删除断点
// 断点位置可以通过file:line或者addr指定，至少需要一种
type ModifyBreakpointRequest struct {
	file   string
	line   int
	addr   Address
	action constants.BreakpointAction
}

func NewModifyBreakpoint(file string, line int, addr Address, action constants.BreakpointAction) (ModifyBreakpointRequest, error) {
	r := ModifyBreakpointRequest{file: file, line: line, addr: addr, action: action}
	if err := r.Validate(); err != nil {
		return ModifyBreakpointRequest{}, err
	}
	return r, nil
}

func (r ModifyBreakpointRequest) Kind() constants.RequestKind {
	return constants.ModifyBreakpointRequest
}

func (r ModifyBreakpointRequest) Validate() error {
	if r.action == "" {
		return fmt.Errorf("%w: breakpoint action", e.ErrMissingField)
	}
	if !r.action.Valid() {
		return fmt.Errorf("%w: unknown breakpoint action %q", e.ErrInvalidRequest, r.action)
	}
	if r.file == "" && !r.addr.Known() {
		return fmt.Errorf("%w: breakpoint needs file:line or addr", e.ErrMissingField)
	}
	// 行号不可用时使用addr，两者都不可用才失败
	if r.file != "" && r.line <= 0 && !r.addr.Known() {
		return fmt.Errorf("%w: breakpoint in %s has no usable line (%d)", e.ErrInvalidRequest, r.file, r.line)
	}
	return nil
}

func (r ModifyBreakpointRequest) File() string                       { return r.file }
func (r ModifyBreakpointRequest) Line() int                          { return r.line }
func (r ModifyBreakpointRequest) Addr() Address                      { return r.addr }
func (r ModifyBreakpointRequest) Action() constants.BreakpointAction { return r.action }
func (ModifyBreakpointRequest) isRequest()                           {}

// HasSourceLocation file:line是否可用，不可用时使用addr
func (r ModifyBreakpointRequest) HasSourceLocation() bool {
	return r.file != "" && r.line > 0
}

// Location 返回gdb可以识别的断点位置，优先使用file:line
func (r ModifyBreakpointRequest) Location() string {
	if r.HasSourceLocation() {
		return fmt.Sprintf("%s:%d", r.file, r.line)
	}
	return "*" + r.addr.String()
}

// CompleteRequest 获取一段文本的补全列表
type CompleteRequest struct {
	line string
}

func NewComplete(line string) CompleteRequest {
	return CompleteRequest{line: line}
}

func (r CompleteRequest) Kind() constants.RequestKind { return constants.CompleteRequest }
func (r CompleteRequest) Validate() error             { return nil }
func (r CompleteRequest) Line() string                { return r.line }
func (CompleteRequest) isRequest()                    {}

// DisassemblePCRequest 从$pc开始反汇编lines行
type DisassemblePCRequest struct {
	lines int
}

func NewDisassemblePC(lines int) (DisassemblePCRequest, error) {
	r := DisassemblePCRequest{lines: lines}
	if err := r.Validate(); err != nil {
		return DisassemblePCRequest{}, err
	}
	return r, nil
}

func (r DisassemblePCRequest) Kind() constants.RequestKind { return constants.DisassemblePCRequest }

func (r DisassemblePCRequest) Validate() error {
	if r.lines <= 0 {
		return fmt.Errorf("%w: disassemble line count %d", e.ErrInvalidRequest, r.lines)
	}
	return nil
}

func (r DisassemblePCRequest) Lines() int { return r.lines }
func (DisassemblePCRequest) isRequest()   {}

// DisassembleFuncRequest 反汇编当前函数
// source为true时穿插源码，raw为true时输出原始指令字节
type DisassembleFuncRequest struct {
	source bool
	raw    bool
}

func NewDisassembleFunc(source, raw bool) DisassembleFuncRequest {
	return DisassembleFuncRequest{source: source, raw: raw}
}

func (r DisassembleFuncRequest) Kind() constants.RequestKind {
	return constants.DisassembleFuncRequest
}
func (r DisassembleFuncRequest) Validate() error { return nil }
func (r DisassembleFuncRequest) Source() bool    { return r.source }
func (r DisassembleFuncRequest) Raw() bool       { return r.raw }
func (DisassembleFuncRequest) isRequest()        {}

// InfoLineRequest 获取某个位置的行信息
type InfoLineRequest struct {
	location string
}

func NewInfoLine(location string) (InfoLineRequest, error) {
	r := InfoLineRequest{location: location}
	if err := r.Validate(); err != nil {
		return InfoLineRequest{}, err
	}
	return r, nil
}

func (r InfoLineRequest) Kind() constants.RequestKind { return constants.InfoLineRequest }

func (r InfoLineRequest) Validate() error {
	if r.location == "" {
		return fmt.Errorf("%w: info line location", e.ErrMissingField)
	}
	return nil
}

func (r InfoLineRequest) Location() string { return r.location }
func (InfoLineRequest) isRequest()         {}

// RequestArgs 按类型构造请求时使用的参数，文本字段为nil表示缺失
type RequestArgs struct {
	Command         *string                     `json:"command,omitempty"`
	DebuggerCommand *constants.CommandType      `json:"debuggerCommand,omitempty"`
	File            *string                     `json:"file,omitempty"`
	Line            int                         `json:"line,omitempty"`
	Addr            Address                     `json:"addr,omitempty"`
	Action          *constants.BreakpointAction `json:"action,omitempty"`
	Text            *string                     `json:"text,omitempty"`
	Lines           int                         `json:"lines,omitempty"`
	Source          bool                        `json:"source,omitempty"`
	Raw             bool                        `json:"raw,omitempty"`
	Location        *string                     `json:"location,omitempty"`
}

// BuildRequest 根据请求类型和参数构造请求，必填字段缺失时返回ErrMissingField
func BuildRequest(kind constants.RequestKind, args *RequestArgs) (Request, error) {
	if args == nil {
		args = &RequestArgs{}
	}
	switch kind {
	case constants.ConsoleCommandRequest:
		if args.Command == nil {
			return nil, missing(kind, "command")
		}
		return NewConsoleCommand(*args.Command), nil
	case constants.InfoSourcesRequest:
		return NewInfoSources(), nil
	case constants.CurrentLocationRequest:
		return NewCurrentLocation(), nil
	case constants.DebuggerCommandRequest:
		if args.DebuggerCommand == nil {
			return nil, missing(kind, "debuggerCommand")
		}
		return checked[DebuggerCommandRequest](NewDebuggerCommand(*args.DebuggerCommand))
	case constants.ModifyBreakpointRequest:
		if args.Action == nil {
			return nil, missing(kind, "action")
		}
		var file string
		if args.File != nil {
			file = *args.File
		}
		return checked[ModifyBreakpointRequest](NewModifyBreakpoint(file, args.Line, args.Addr, *args.Action))
	case constants.CompleteRequest:
		if args.Text == nil {
			return nil, missing(kind, "text")
		}
		return NewComplete(*args.Text), nil
	case constants.DisassemblePCRequest:
		return checked[DisassemblePCRequest](NewDisassemblePC(args.Lines))
	case constants.DisassembleFuncRequest:
		return NewDisassembleFunc(args.Source, args.Raw), nil
	case constants.InfoLineRequest:
		if args.Location == nil {
			return nil, missing(kind, "location")
		}
		return checked[InfoLineRequest](NewInfoLine(*args.Location))
	default:
		return nil, fmt.Errorf("%w: unknown request kind %q", e.ErrInvalidRequest, kind)
	}
}

// checked 构造失败时返回nil请求
func checked[R Request](r R, err error) (Request, error) {
	if err != nil {
		return nil, err
	}
	return r, nil
}

func missing(kind constants.RequestKind, field string) error {
	return fmt.Errorf("%w: %s needs %s", e.ErrMissingField, kind, field)
}
