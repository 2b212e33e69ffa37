package gdb_debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/fansqz/go-tgdb/constants"
	. "github.com/fansqz/go-tgdb/debugger"
	e "github.com/fansqz/go-tgdb/error"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
	. "github.com/fansqz/go-tgdb/utils"
	"github.com/fansqz/go-tgdb/utils/gosync"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPrompt        = "(tgdb) "
	DefaultQuitTimeout   = time.Second * 3
	DefaultOutputTimeout = time.Second * 5
)

// housekeepingCommands 启动以后后端自己执行的命令，让gdb的输出适合在前端展示
var housekeepingCommands = []string{
	"set confirm off",
	"set pagination off",
	"set width 0",
	"set height 0",
	"set prompt " + DefaultPrompt,
}

// GDBDebugger 在伪终端中运行gdb，把请求翻译成gdb命令
// gdb的输出原样写入StartOption.Output，只有补全和反汇编的输出会被截取并解析成响应
type GDBDebugger struct {
	startOption *StartOption

	cmd    *exec.Cmd
	pty    *os.File
	stream *stream.Stream
	log    *logrus.Entry

	// 调试的状态管理
	StatusManager *StatusManager

	// 保证写入gdb的命令和产生的响应顺序一致
	mutex sync.Mutex

	// gdb退出时关闭
	exited chan struct{}

	timeoutManager *TimeoutManager

	// 正在等待输出的请求，同时只有一个
	captureLock sync.Mutex
	capture     *outputCapture
}

func NewGDBDebugger() *GDBDebugger {
	return &GDBDebugger{
		StatusManager:  NewStatusManager(Init),
		exited:         make(chan struct{}),
		timeoutManager: NewTimeoutManager(),
	}
}

func (g *GDBDebugger) Start(ctx context.Context, option *StartOption) error {
	if option == nil || option.Stream == nil {
		return errors.New("start option needs a response stream")
	}
	if !g.StatusManager.Is(Init) {
		return errors.New("gdb already started")
	}
	g.startOption = option
	g.stream = option.Stream
	g.log = logrus.WithField("session", option.Stream.ID())

	gdbPath := option.GDBPath
	if gdbPath == "" {
		gdbPath = "gdb"
	}
	args := append([]string{"-q", "-nx"}, option.Args...)
	if option.ExecFile != "" {
		args = append(args, option.ExecFile)
	}
	g.cmd = exec.Command(gdbPath, args...)
	f, err := pty.Start(g.cmd)
	if err != nil {
		g.log.Errorf("[Start] start gdb fail, err = %v", err)
		return err
	}
	g.pty = f
	g.StatusManager.Set(Active)
	g.log.Infof("[Start] gdb started, pid = %d", g.cmd.Process.Pid)

	gosync.Go(context.Background(), g.processOutput)
	gosync.Go(context.Background(), g.waitExit)

	for _, c := range housekeepingCommands {
		if err = g.deliver(constants.OriginInternal, c); err != nil {
			g.abort(err)
			return err
		}
	}
	prompt := protocol.NewUpdateConsolePrompt(DefaultPrompt)
	if err = g.stream.Produce(prompt); err != nil {
		protocol.Release(&prompt)
		g.abort(err)
		return err
	}
	return nil
}

// abort 启动失败时结束gdb，退出以后waitExit会把状态置为Terminated
func (g *GDBDebugger) abort(err error) {
	g.log.Errorf("[Start] setup gdb fail, kill it, err = %v", err)
	if killErr := g.cmd.Process.Kill(); killErr != nil {
		g.log.Errorf("[Start] kill gdb fail, err = %v", killErr)
	}
}

func (g *GDBDebugger) Submit(ctx context.Context, req protocol.Request) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", e.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	line, err := CommandLine(req)
	if err != nil {
		return err
	}
	if capturedKind(req.Kind()) {
		return g.submitCaptured(req.Kind(), line)
	}
	if err = g.deliver(constants.OriginFrontEnd, line); err != nil {
		return err
	}
	// 断点发生变化以后重新获取断点列表
	if req.Kind() == constants.ModifyBreakpointRequest {
		return g.deliver(constants.OriginInternal, "info breakpoints")
	}
	return nil
}

// submitCaptured 执行命令并截取它的输出，解析完成或者超时以后产生响应
func (g *GDBDebugger) submitCaptured(kind constants.RequestKind, line string) error {
	c := newOutputCapture(kind, line)
	g.captureLock.Lock()
	if g.capture != nil {
		pending := g.capture.kind
		g.captureLock.Unlock()
		return fmt.Errorf("%w: %s", e.ErrRequestPending, pending)
	}
	g.capture = c
	g.captureLock.Unlock()

	timeout := g.startOption.OutputTimeout
	if timeout <= 0 {
		timeout = DefaultOutputTimeout
	}
	c.timeoutManager.Start(context.Background(), timeout, func() {
		g.log.Warnf("[capture] no output for %q in %s", line, timeout)
		g.finishCapture(c, nil, false)
	})

	steps := []struct {
		origin constants.CommandOrigin
		line   string
	}{
		{constants.OriginInternal, markerCommand(c.begin)},
		{constants.OriginFrontEnd, line},
		{constants.OriginInternal, markerCommand(c.end)},
	}
	for _, step := range steps {
		if err := g.deliver(step.origin, step.line); err != nil {
			g.dropCapture(c)
			return err
		}
	}
	return nil
}

// captureOutput 把gdb输出交给正在等待的请求
func (g *GDBDebugger) captureOutput(data string) {
	g.captureLock.Lock()
	c := g.capture
	if c == nil {
		g.captureLock.Unlock()
		return
	}
	lines, done := c.feed(data)
	g.captureLock.Unlock()
	if done {
		g.finishCapture(c, lines, true)
	}
}

// finishCapture 产生等待输出的请求的结果，每个请求只产生一次
func (g *GDBDebugger) finishCapture(c *outputCapture, lines []string, ok bool) {
	if !g.dropCapture(c) {
		return
	}
	resp := c.response(lines, ok)
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if !g.StatusManager.Is(Active) {
		protocol.Release(&resp)
		return
	}
	if err := g.stream.Produce(resp); err != nil {
		g.log.Errorf("[capture] produce %s fail, err = %v", resp.Kind(), err)
		protocol.Release(&resp)
	}
}

// dropCapture 取消等待，c已经不是当前等待的请求时返回false
func (g *GDBDebugger) dropCapture(c *outputCapture) bool {
	g.captureLock.Lock()
	defer g.captureLock.Unlock()
	if g.capture != c || c == nil {
		return false
	}
	g.capture = nil
	c.timeoutManager.Chancel()
	return true
}

// deliver 把一行命令写入gdb，并产生debugger-command-delivered响应
func (g *GDBDebugger) deliver(origin constants.CommandOrigin, line string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.StatusManager.Is(Init) {
		return e.ErrDebuggerNotStarted
	}
	if !g.StatusManager.Is(Active) {
		return e.ErrDebuggerIsClosed
	}
	if _, err := io.WriteString(g.pty, line+"\n"); err != nil {
		g.log.Errorf("[deliver] write %q fail, err = %v", line, err)
		return err
	}
	g.log.Debugf("[deliver] %s command: %s", origin, line)
	resp := protocol.NewCommandDelivered(origin, line)
	if err := g.stream.Produce(resp); err != nil {
		protocol.Release(&resp)
		return err
	}
	return nil
}

// Terminate 让gdb退出，超时以后强制结束gdb
func (g *GDBDebugger) Terminate(ctx context.Context) error {
	if g.StatusManager.Is(Init) {
		return e.ErrDebuggerNotStarted
	}
	if g.StatusManager.Is(Terminated) {
		return nil
	}
	timeout := g.startOption.QuitTimeout
	if timeout <= 0 {
		timeout = DefaultQuitTimeout
	}
	g.timeoutManager.Start(context.Background(), timeout, g.kill)
	if err := g.deliver(constants.OriginInternal, "quit"); err != nil && !errors.Is(err, e.ErrDebuggerIsClosed) {
		g.kill()
	}
	select {
	case <-g.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done gdb退出以后关闭
func (g *GDBDebugger) Done() <-chan struct{} {
	return g.exited
}

func (g *GDBDebugger) kill() {
	g.log.Warnf("[kill] gdb did not quit in time, kill it")
	if err := g.cmd.Process.Kill(); err != nil {
		g.log.Errorf("[kill] kill gdb fail, err = %v", err)
	}
}

// processOutput 循环读取gdb输出
func (g *GDBDebugger) processOutput(ctx context.Context) {
	out := g.startOption.Output
	if out == nil {
		out = io.Discard
	}
	buf := make([]byte, 4096)
	for {
		n, err := g.pty.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				g.log.Debugf("[processOutput] write output fail, err = %v", werr)
			}
			g.captureOutput(string(buf[:n]))
		}
		// gdb退出以后读取伪终端会返回错误
		if err != nil {
			return
		}
	}
}

// waitExit 等待gdb退出并产生quit响应
func (g *GDBDebugger) waitExit(ctx context.Context) {
	err := g.cmd.Wait()
	status, returnValue := exitStatus(g.cmd.ProcessState)
	g.log.Infof("[waitExit] gdb exited, status = %d, return value = %d, err = %v", status, returnValue, err)

	g.mutex.Lock()
	g.StatusManager.Set(Terminated)
	quit := protocol.NewQuit(status, returnValue)
	if err := g.stream.Produce(quit); err != nil {
		g.log.Errorf("[waitExit] produce quit fail, err = %v", err)
		protocol.Release(&quit)
	}
	g.mutex.Unlock()

	g.captureLock.Lock()
	c := g.capture
	g.captureLock.Unlock()
	g.dropCapture(c)
	g.timeoutManager.Chancel()
	_ = g.pty.Close()
	close(g.exited)
}

// exitStatus 正常退出时返回值有效，被信号结束时视为异常退出
func exitStatus(state *os.ProcessState) (constants.ExitStatus, int) {
	if state == nil || !state.Exited() {
		return constants.ExitAbnormal, 0
	}
	return constants.ExitNormal, state.ExitCode()
}

var _ Debugger = (*GDBDebugger)(nil)
