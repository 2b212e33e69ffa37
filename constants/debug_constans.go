package constants

// CommandType 可以交给调试器执行的命令
type CommandType string

const (
	// Continue 继续执行，直到下一个断点或程序结束
	Continue CommandType = "continue"
	// Finish 执行到当前函数返回
	Finish CommandType = "finish"
	// Next 执行下一行源码，不进入函数内部
	Next CommandType = "next"
	// Start 重新开始程序，并停在main
	Start CommandType = "start"
	// Run 重新运行程序
	Run CommandType = "run"
	// Kill 杀死被调试程序
	Kill CommandType = "kill"
	// Step 执行下一行源码，会进入函数内部
	Step CommandType = "step"
	// Until 运行到当前行之后的源码行，用来跳过循环
	Until CommandType = "until"
	// Up 向上切换一个栈帧
	Up CommandType = "up"
	// Down 向下切换一个栈帧
	Down CommandType = "down"
)

// CommandTypes 所有合法的调试器命令
var CommandTypes = []CommandType{Continue, Finish, Next, Start, Run, Kill, Step, Until, Up, Down}

func (c CommandType) Valid() bool {
	for _, t := range CommandTypes {
		if t == c {
			return true
		}
	}
	return false
}

// BreakpointAction 断点操作类型
// 目前不支持enable/disable
type BreakpointAction string

const (
	BreakpointAdd          BreakpointAction = "add"
	TemporaryBreakpointAdd BreakpointAction = "temporary-add"
	BreakpointDelete       BreakpointAction = "delete"
)

func (b BreakpointAction) Valid() bool {
	switch b {
	case BreakpointAdd, TemporaryBreakpointAdd, BreakpointDelete:
		return true
	}
	return false
}

// RequestKind 前端发给后端的请求类型
type RequestKind string

const (
	// ConsoleCommandRequest 通过调试器执行一条控制台命令
	ConsoleCommandRequest RequestKind = "console-command"
	// InfoSourcesRequest 获取调试器当前已知的所有源文件
	InfoSourcesRequest RequestKind = "info-sources"
	// CurrentLocationRequest 获取调试器当前所在的文件和行号
	CurrentLocationRequest RequestKind = "current-location"
	// DebuggerCommandRequest 执行一条调试命令，例如next、step、finish
	DebuggerCommandRequest RequestKind = "debugger-command"
	// ModifyBreakpointRequest 添加或删除断点
	ModifyBreakpointRequest RequestKind = "modify-breakpoint"
	// CompleteRequest 获取一段文本的tab补全列表
	CompleteRequest RequestKind = "complete"
	// DisassemblePCRequest 反汇编$pc
	DisassemblePCRequest RequestKind = "disassemble-pc"
	// DisassembleFuncRequest 反汇编当前函数
	DisassembleFuncRequest RequestKind = "disassemble-func"
	// InfoLineRequest 获取某个位置的行信息
	InfoLineRequest RequestKind = "info-line"
)

var RequestKinds = []RequestKind{
	ConsoleCommandRequest, InfoSourcesRequest, CurrentLocationRequest, DebuggerCommandRequest,
	ModifyBreakpointRequest, CompleteRequest, DisassemblePCRequest, DisassembleFuncRequest, InfoLineRequest,
}

// ResponseKind 后端产生的响应（事件）类型
type ResponseKind string

const (
	// UpdateBreakpoints 所有已设置的断点
	UpdateBreakpoints ResponseKind = "update-breakpoints"
	// UpdateFilePosition 调试器当前所在的位置，位置变化时产生
	UpdateFilePosition ResponseKind = "update-file-position"
	// UpdateSourceFiles 组成被调试程序的所有源文件
	UpdateSourceFiles ResponseKind = "update-source-files"
	// UpdateCompletions 补全列表
	UpdateCompletions ResponseKind = "update-completions"
	// DisassemblePC 反汇编$pc的输出
	DisassemblePC ResponseKind = "disassemble-pc"
	// DisassembleFunc 反汇编函数的输出
	DisassembleFunc ResponseKind = "disassemble-func"
	// InfoLine info line的输出
	InfoLine ResponseKind = "info-line"
	// UpdateConsolePrompt 调试器的提示符发生了变化
	UpdateConsolePrompt ResponseKind = "update-console-prompt"
	// DebuggerCommandDelivered 一条命令已经交给调试器执行
	DebuggerCommandDelivered ResponseKind = "debugger-command-delivered"
	// Quit 调试器退出，之后不会再有任何响应
	Quit ResponseKind = "quit"
)

var ResponseKinds = []ResponseKind{
	UpdateBreakpoints, UpdateFilePosition, UpdateSourceFiles, UpdateCompletions, DisassemblePC,
	DisassembleFunc, InfoLine, UpdateConsolePrompt, DebuggerCommandDelivered, Quit,
}

// CommandOrigin 命令的来源
type CommandOrigin string

const (
	// OriginFrontEnd 前端请求执行的命令
	OriginFrontEnd CommandOrigin = "frontend"
	// OriginInternal 后端为了同步状态自己执行的命令，例如获取断点列表
	OriginInternal CommandOrigin = "internal"
)

// ExitStatus 调试器的退出方式
type ExitStatus int

const (
	// ExitNormal 正常退出，返回值有效
	ExitNormal ExitStatus = 0
	// ExitAbnormal 异常退出，返回值无效
	ExitAbnormal ExitStatus = -1
)

func (s ExitStatus) Valid() bool {
	return s == ExitNormal || s == ExitAbnormal
}
