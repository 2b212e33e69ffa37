package debugger

import (
	"context"
	"io"
	"time"

	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
)

// StartOption 启动调试的参数
type StartOption struct {
	// GDBPath gdb可执行文件，为空时使用PATH中的gdb
	GDBPath string
	// ExecFile 被调试的程序，可以为空
	ExecFile string
	// Args 传给gdb的额外参数
	Args []string
	// Stream 后端产生的响应都写入该流
	Stream *stream.Stream
	// Output 调试器的原始输出，为空时丢弃
	Output io.Writer
	// QuitTimeout Terminate以后等待调试器退出的时间，超时后强制结束
	QuitTimeout time.Duration
	// OutputTimeout 等待补全、反汇编等命令输出的时间，超时后产生失败的结果
	OutputTimeout time.Duration
}

// Debugger
// 驱动外部调试器进程的后端，是响应的唯一生产者
// 前端一次只提交一个请求，请求处理可以是异步的，响应按照产生顺序写入StartOption.Stream
type Debugger interface {
	// Start 启动调试器
	Start(ctx context.Context, option *StartOption) error
	// Submit 提交一个请求，请求只在调用期间有效
	Submit(ctx context.Context, req protocol.Request) error
	// Terminate 终止调试，调试器退出以后会产生quit响应
	Terminate(ctx context.Context) error
}
