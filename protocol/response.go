package protocol

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
)

// Response 后端产生的一个响应，是前端了解调试器状态的唯一途径
// 响应在交付之前由后端独占，交付之后由前端独占，前端用完以后必须调用一次Release
type Response interface {
	Kind() constants.ResponseKind
	// Validate 检查响应内容是否满足该类型的约束
	Validate() error
	open()
	release()
}

// outstanding 已经创建但还没有释放的响应数量
var outstanding atomic.Int64

// Outstanding 返回已经创建但还没有释放的响应数量
func Outstanding() int64 {
	return outstanding.Load()
}

// envelope 记录响应的生命周期
type envelope struct {
	live bool
}

func (v *envelope) open() {
	v.live = true
	outstanding.Add(1)
}

func (v *envelope) close() {
	if !v.live {
		return
	}
	v.live = false
	outstanding.Add(-1)
}

// Create 创建一个指定类型的空响应，序列为空，可选文本为空，数值为0，由后端填充内容
func Create(kind constants.ResponseKind) (Response, error) {
	var r Response
	switch kind {
	case constants.UpdateBreakpoints:
		r = &UpdateBreakpointsResponse{Breakpoints: []Breakpoint{}}
	case constants.UpdateFilePosition:
		r = &UpdateFilePositionResponse{}
	case constants.UpdateSourceFiles:
		r = &UpdateSourceFilesResponse{Files: []string{}}
	case constants.UpdateCompletions:
		r = &UpdateCompletionsResponse{Completions: []string{}}
	case constants.DisassemblePC:
		r = &DisassemblePCResponse{Disassembly: Disassembly{Lines: []string{}}}
	case constants.DisassembleFunc:
		r = &DisassembleFuncResponse{Disassembly: Disassembly{Lines: []string{}}}
	case constants.InfoLine:
		r = &InfoLineResponse{}
	case constants.UpdateConsolePrompt:
		r = &UpdateConsolePromptResponse{}
	case constants.DebuggerCommandDelivered:
		r = &DebuggerCommandDeliveredResponse{}
	case constants.Quit:
		r = &QuitResponse{}
	default:
		return nil, fmt.Errorf("%w: %q", e.ErrUnknownResponseKind, kind)
	}
	r.open()
	return r, nil
}

// Release 释放响应以及它持有的所有内容，并把调用方的引用置空，释放以后不能再访问该响应
// 对nil调用是安全的
func Release[R Response](r *R) {
	if r == nil {
		return
	}
	if any(*r) != nil {
		(*r).release()
	}
	var zero R
	*r = zero
}

// UpdateBreakpointsResponse 所有已设置的断点
type UpdateBreakpointsResponse struct {
	envelope
	Breakpoints []Breakpoint `json:"breakpoints"`
}

func NewUpdateBreakpoints(breakpoints []Breakpoint) *UpdateBreakpointsResponse {
	r := &UpdateBreakpointsResponse{Breakpoints: cloneOrEmpty(breakpoints)}
	r.open()
	return r
}

func (r *UpdateBreakpointsResponse) Kind() constants.ResponseKind {
	return constants.UpdateBreakpoints
}

func (r *UpdateBreakpointsResponse) Validate() error {
	for _, bp := range r.Breakpoints {
		if err := bp.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *UpdateBreakpointsResponse) release() {
	if r == nil {
		return
	}
	clear(r.Breakpoints)
	r.Breakpoints = nil
	r.close()
}

// UpdateFilePositionResponse 调试器当前所在的位置
type UpdateFilePositionResponse struct {
	envelope
	Position FilePosition `json:"position"`
}

func NewUpdateFilePosition(position FilePosition) *UpdateFilePositionResponse {
	r := &UpdateFilePositionResponse{Position: position}
	r.open()
	return r
}

func (r *UpdateFilePositionResponse) Kind() constants.ResponseKind {
	return constants.UpdateFilePosition
}

func (r *UpdateFilePositionResponse) Validate() error {
	return r.Position.Validate()
}

func (r *UpdateFilePositionResponse) release() {
	if r == nil {
		return
	}
	r.Position = FilePosition{}
	r.close()
}

// UpdateSourceFilesResponse 组成被调试程序的源文件，路径可能是相对路径
type UpdateSourceFilesResponse struct {
	envelope
	Files []string `json:"files"`
}

func NewUpdateSourceFiles(files []string) *UpdateSourceFilesResponse {
	r := &UpdateSourceFilesResponse{Files: cloneOrEmpty(files)}
	r.open()
	return r
}

func (r *UpdateSourceFilesResponse) Kind() constants.ResponseKind {
	return constants.UpdateSourceFiles
}

func (r *UpdateSourceFilesResponse) Validate() error {
	for i, f := range r.Files {
		if f == "" {
			return fmt.Errorf("%w: source file %d is empty", e.ErrInvalidResponse, i)
		}
	}
	return nil
}

func (r *UpdateSourceFilesResponse) release() {
	if r == nil {
		return
	}
	clear(r.Files)
	r.Files = nil
	r.close()
}

// UpdateCompletionsResponse 补全列表
type UpdateCompletionsResponse struct {
	envelope
	Completions []string `json:"completions"`
}

func NewUpdateCompletions(completions []string) *UpdateCompletionsResponse {
	r := &UpdateCompletionsResponse{Completions: cloneOrEmpty(completions)}
	r.open()
	return r
}

func (r *UpdateCompletionsResponse) Kind() constants.ResponseKind {
	return constants.UpdateCompletions
}

func (r *UpdateCompletionsResponse) Validate() error { return nil }

func (r *UpdateCompletionsResponse) release() {
	if r == nil {
		return
	}
	clear(r.Completions)
	r.Completions = nil
	r.close()
}

// Disassembly 反汇编的结果
// Error为true时表示调试器无法完成反汇编，其他字段不可信
type Disassembly struct {
	AddrStart Address  `json:"addrStart"`
	AddrEnd   Address  `json:"addrEnd"`
	Error     bool     `json:"error"`
	Lines     []string `json:"lines"`
}

// Usable 反汇编结果是否可以使用
func (d Disassembly) Usable() bool {
	return !d.Error
}

func (d Disassembly) validate() error {
	if d.Error {
		return nil
	}
	if d.AddrStart.Known() && d.AddrEnd.Known() && d.AddrEnd < d.AddrStart {
		return fmt.Errorf("%w: disassembly ends at %s before it starts at %s", e.ErrInvalidResponse, d.AddrEnd, d.AddrStart)
	}
	return nil
}

func (d *Disassembly) reset() {
	clear(d.Lines)
	*d = Disassembly{}
}

// DisassemblePCResponse 反汇编$pc的输出
type DisassemblePCResponse struct {
	envelope
	Disassembly
}

func NewDisassemblePCResponse(d Disassembly) *DisassemblePCResponse {
	d.Lines = cloneOrEmpty(d.Lines)
	r := &DisassemblePCResponse{Disassembly: d}
	r.open()
	return r
}

func (r *DisassemblePCResponse) Kind() constants.ResponseKind {
	return constants.DisassemblePC
}

func (r *DisassemblePCResponse) Validate() error {
	return r.Disassembly.validate()
}

func (r *DisassemblePCResponse) release() {
	if r == nil {
		return
	}
	r.Disassembly.reset()
	r.close()
}

// DisassembleFuncResponse 反汇编函数的输出
type DisassembleFuncResponse struct {
	envelope
	Disassembly
}

func NewDisassembleFuncResponse(d Disassembly) *DisassembleFuncResponse {
	d.Lines = cloneOrEmpty(d.Lines)
	r := &DisassembleFuncResponse{Disassembly: d}
	r.open()
	return r
}

func (r *DisassembleFuncResponse) Kind() constants.ResponseKind {
	return constants.DisassembleFunc
}

func (r *DisassembleFuncResponse) Validate() error {
	return r.Disassembly.validate()
}

func (r *DisassembleFuncResponse) release() {
	if r == nil {
		return
	}
	r.Disassembly.reset()
	r.close()
}

// InfoLineResponse info line的输出，Error为true时其他字段不可信
type InfoLineResponse struct {
	envelope
	Error     bool    `json:"error"`
	File      string  `json:"file,omitempty"`
	Line      int     `json:"line"`
	AddrStart Address `json:"addrStart"`
}

func NewInfoLineResponse(file string, line int, addrStart Address) *InfoLineResponse {
	r := &InfoLineResponse{File: file, Line: line, AddrStart: addrStart}
	r.open()
	return r
}

// NewInfoLineError 调试器无法获取行信息时的响应
func NewInfoLineError() *InfoLineResponse {
	r := &InfoLineResponse{Error: true}
	r.open()
	return r
}

func (r *InfoLineResponse) Kind() constants.ResponseKind {
	return constants.InfoLine
}

func (r *InfoLineResponse) Validate() error {
	if !r.Error && r.Line < 0 {
		return fmt.Errorf("%w: info line has line %d", e.ErrInvalidResponse, r.Line)
	}
	return nil
}

func (r *InfoLineResponse) release() {
	if r == nil {
		return
	}
	r.File = ""
	r.close()
}

// UpdateConsolePromptResponse 调试器新的提示符
type UpdateConsolePromptResponse struct {
	envelope
	Prompt string `json:"prompt"`
}

func NewUpdateConsolePrompt(prompt string) *UpdateConsolePromptResponse {
	r := &UpdateConsolePromptResponse{Prompt: prompt}
	r.open()
	return r
}

func (r *UpdateConsolePromptResponse) Kind() constants.ResponseKind {
	return constants.UpdateConsolePrompt
}

func (r *UpdateConsolePromptResponse) Validate() error { return nil }

func (r *UpdateConsolePromptResponse) release() {
	if r == nil {
		return
	}
	r.Prompt = ""
	r.close()
}

// DebuggerCommandDeliveredResponse 一条命令已经交给调试器
// Origin区分前端请求的命令和后端为了同步状态自己执行的命令，只用于展示
// 空的控制台命令也会交给调试器，所以Command可以为空
type DebuggerCommandDeliveredResponse struct {
	envelope
	Origin  constants.CommandOrigin `json:"origin"`
	Command string                  `json:"command"`
}

func NewCommandDelivered(origin constants.CommandOrigin, command string) *DebuggerCommandDeliveredResponse {
	r := &DebuggerCommandDeliveredResponse{Origin: origin, Command: command}
	r.open()
	return r
}

func (r *DebuggerCommandDeliveredResponse) Kind() constants.ResponseKind {
	return constants.DebuggerCommandDelivered
}

func (r *DebuggerCommandDeliveredResponse) Validate() error {
	if r.Origin != constants.OriginFrontEnd && r.Origin != constants.OriginInternal {
		return fmt.Errorf("%w: unknown command origin %q", e.ErrInvalidResponse, r.Origin)
	}
	return nil
}

func (r *DebuggerCommandDeliveredResponse) release() {
	if r == nil {
		return
	}
	r.Command = ""
	r.close()
}

// QuitResponse 调试器退出，之后不会再有任何响应
type QuitResponse struct {
	envelope
	Status      constants.ExitStatus `json:"exitStatus"`
	ReturnValue int                  `json:"returnValue"`
}

func NewQuit(status constants.ExitStatus, returnValue int) *QuitResponse {
	r := &QuitResponse{Status: status, ReturnValue: returnValue}
	r.open()
	return r
}

func (r *QuitResponse) Kind() constants.ResponseKind {
	return constants.Quit
}

func (r *QuitResponse) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: exit status %d", e.ErrInvalidResponse, r.Status)
	}
	return nil
}

// Result 返回调试器的返回值，只有正常退出时有效
func (r *QuitResponse) Result() (int, bool) {
	if r.Status != constants.ExitNormal {
		return 0, false
	}
	return r.ReturnValue, true
}

func (r *QuitResponse) release() {
	if r == nil {
		return
	}
	r.close()
}

func cloneOrEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return slices.Clone(s)
}
