package main

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

// dapClient 在测试中模拟DAP客户端，后台持续读取消息，避免net.Pipe互相阻塞
type dapClient struct {
	t        *testing.T
	conn     net.Conn
	seq      int
	messages chan dap.Message
	// 等待某种消息时跳过的其他消息
	skipped []dap.Message
}

func newDAPClient(t *testing.T, conn net.Conn) *dapClient {
	c := &dapClient{t: t, conn: conn, messages: make(chan dap.Message, 100)}
	go func() {
		defer close(c.messages)
		reader := bufio.NewReader(conn)
		for {
			m, err := dap.ReadProtocolMessage(reader)
			if err != nil {
				return
			}
			c.messages <- m
		}
	}()
	return c
}

func (c *dapClient) request(command string) dap.Request {
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

func (c *dapClient) send(m dap.Message) {
	require.Nil(c.t, dap.WriteProtocolMessage(c.conn, m))
}

// waitFor 读取消息直到出现类型为T的消息
func waitFor[T dap.Message](c *dapClient) T {
	c.t.Helper()
	for i, m := range c.skipped {
		if v, ok := m.(T); ok {
			c.skipped = append(c.skipped[:i], c.skipped[i+1:]...)
			return v
		}
	}
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case m, ok := <-c.messages:
			require.True(c.t, ok, "connection closed")
			if v, ok := m.(T); ok {
				return v
			}
			c.skipped = append(c.skipped, m)
		case <-timer.C:
			var zero T
			require.FailNowf(c.t, "timeout", "no %T received, skipped %d messages", zero, len(c.skipped))
		}
	}
}

func startSession(t *testing.T) (*fakeDebugger, *dapClient, <-chan error) {
	fake := newFakeDebugger()
	server, client := net.Pipe()
	session := NewDebugSession(context.Background(), server, fake, fake.stream)
	errCh := make(chan error, 1)
	go func() {
		errCh <- session.Serve()
	}()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return fake, newDAPClient(t, client), errCh
}

func TestInitialize(t *testing.T) {
	_, c, _ := startSession(t)
	c.send(&dap.InitializeRequest{Request: c.request("initialize")})
	waitFor[*dap.InitializedEvent](c)
	resp := waitFor[*dap.InitializeResponse](c)
	assert.True(t, resp.Success)
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
	assert.True(t, resp.Body.SupportsCompletionsRequest)
	assert.True(t, resp.Body.SupportsDisassembleRequest)
	assert.True(t, resp.Body.SupportsTerminateRequest)
}

func TestExecutionCommands(t *testing.T) {
	fake, c, _ := startSession(t)
	c.send(&dap.ConfigurationDoneRequest{Request: c.request("configurationDone")})
	waitFor[*dap.ConfigurationDoneResponse](c)
	c.send(&dap.NextRequest{Request: c.request("next")})
	waitFor[*dap.NextResponse](c)
	c.send(&dap.StepInRequest{Request: c.request("stepIn")})
	waitFor[*dap.StepInResponse](c)
	c.send(&dap.StepOutRequest{Request: c.request("stepOut")})
	waitFor[*dap.StepOutResponse](c)
	c.send(&dap.ContinueRequest{Request: c.request("continue")})
	resp := waitFor[*dap.ContinueResponse](c)
	assert.True(t, resp.Body.AllThreadsContinued)

	assert.Equal(t, []constants.CommandType{
		constants.Run, constants.Next, constants.Step, constants.Finish, constants.Continue,
	}, fake.commands())

	// next产生的文件位置变成stopped事件
	stopped := waitFor[*dap.StoppedEvent](c)
	assert.Equal(t, "/src/main.c:6", stopped.Body.Description)
	assert.Equal(t, "main", stopped.Body.Text)
}

func TestSetBreakpointsDiff(t *testing.T) {
	fake, c, _ := startSession(t)
	setBreakpoints := func(lines ...int) *dap.SetBreakpointsResponse {
		req := &dap.SetBreakpointsRequest{Request: c.request("setBreakpoints")}
		req.Arguments.Source = dap.Source{Name: "main.c", Path: "/src/main.c"}
		for _, line := range lines {
			req.Arguments.Breakpoints = append(req.Arguments.Breakpoints, dap.SourceBreakpoint{Line: line})
		}
		c.send(req)
		return waitFor[*dap.SetBreakpointsResponse](c)
	}

	resp := setBreakpoints(3, 5)
	require.Len(t, resp.Body.Breakpoints, 2)
	assert.True(t, resp.Body.Breakpoints[0].Verified)
	assert.Equal(t, 5, resp.Body.Breakpoints[1].Line)
	assert.Equal(t, []string{"add /src/main.c:3", "add /src/main.c:5"}, fake.breakpointChanges())

	event := waitFor[*dap.BreakpointEvent](c)
	assert.Equal(t, "/src/main.c", event.Body.Breakpoint.Source.Path)
	assert.Equal(t, "0x401136", event.Body.Breakpoint.InstructionReference)

	setBreakpoints(5, 7)
	assert.Equal(t, []string{
		"add /src/main.c:3", "add /src/main.c:5",
		"delete /src/main.c:3", "add /src/main.c:7",
	}, fake.breakpointChanges())

	// 清空断点
	resp = setBreakpoints()
	assert.Empty(t, resp.Body.Breakpoints)
	assert.Len(t, fake.breakpointChanges(), 6)
}

func TestSetBreakpointsRejected(t *testing.T) {
	_, c, _ := startSession(t)
	req := &dap.SetBreakpointsRequest{Request: c.request("setBreakpoints")}
	req.Arguments.Source = dap.Source{Path: "/src/main.c"}
	req.Arguments.Breakpoints = []dap.SourceBreakpoint{{Line: 0}, {Line: 4}}
	c.send(req)
	resp := waitFor[*dap.SetBreakpointsResponse](c)
	require.Len(t, resp.Body.Breakpoints, 2)
	assert.False(t, resp.Body.Breakpoints[0].Verified)
	assert.NotEmpty(t, resp.Body.Breakpoints[0].Message)
	assert.True(t, resp.Body.Breakpoints[1].Verified)
}

// completions的回复要等到补全结果到达
func TestCompletions(t *testing.T) {
	fake, c, _ := startSession(t)
	req := &dap.CompletionsRequest{Request: c.request("completions")}
	req.Arguments.Text = "b"
	c.send(req)
	resp := waitFor[*dap.CompletionsResponse](c)
	assert.Equal(t, req.Seq, resp.RequestSeq)
	labels := make([]string, len(resp.Body.Targets))
	for i, target := range resp.Body.Targets {
		labels[i] = target.Label
	}
	assert.Equal(t, []string{"break", "backtrace", "bt"}, labels)
	require.Len(t, fake.submitted(), 1)
	assert.Equal(t, "b", fake.submitted()[0].(protocol.CompleteRequest).Line())
}

func TestDisassemble(t *testing.T) {
	_, c, _ := startSession(t)
	req := &dap.DisassembleRequest{Request: c.request("disassemble")}
	req.Arguments.MemoryReference = "$pc"
	req.Arguments.InstructionCount = 2
	c.send(req)
	resp := waitFor[*dap.DisassembleResponse](c)
	assert.Equal(t, req.Seq, resp.RequestSeq)
	require.Len(t, resp.Body.Instructions, 2)
	assert.Equal(t, "0x401136", resp.Body.Instructions[0].Address)
	assert.Equal(t, "0x40113b", resp.Body.Instructions[1].Address)

	bad := &dap.DisassembleRequest{Request: c.request("disassemble")}
	c.send(bad)
	errResp := waitFor[*dap.ErrorResponse](c)
	assert.Equal(t, bad.Seq, errResp.RequestSeq)
	assert.False(t, errResp.Success)
}

func TestSubmitFailure(t *testing.T) {
	fake, c, _ := startSession(t)
	fake.setSubmitErr(e.ErrDebuggerIsClosed)
	c.send(&dap.NextRequest{Request: c.request("next")})
	resp := waitFor[*dap.ErrorResponse](c)
	assert.Equal(t, "next", resp.Command)
	assert.Equal(t, e.ErrDebuggerIsClosed.Error(), resp.Message)

	req := &dap.CompletionsRequest{Request: c.request("completions")}
	c.send(req)
	resp = waitFor[*dap.ErrorResponse](c)
	assert.Equal(t, "completions", resp.Command)
}

func TestUnsupportedRequest(t *testing.T) {
	_, c, _ := startSession(t)
	c.send(&dap.ThreadsRequest{Request: c.request("threads")})
	resp := waitFor[*dap.ErrorResponse](c)
	assert.Equal(t, "threads", resp.Command)
	assert.Contains(t, resp.Message, "not yet supported")
}

func TestDisconnect(t *testing.T) {
	_, c, errCh := startSession(t)
	c.send(&dap.DisconnectRequest{Request: c.request("disconnect")})
	exited := waitFor[*dap.ExitedEvent](c)
	assert.Equal(t, 0, exited.Body.ExitCode)
	waitFor[*dap.TerminatedEvent](c)
	waitFor[*dap.DisconnectResponse](c)
	select {
	case err := <-errCh:
		assert.Nil(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop after disconnect")
	}
}

func TestInstructionAddress(t *testing.T) {
	assert.Equal(t, "0x401136", instructionAddress("=> 0x401136 <main+4>:\tmov $0x0,%eax", 0))
	assert.Equal(t, "0x40113b", instructionAddress("   0x40113b:\tret", 0))
	assert.Equal(t, "0x10", instructionAddress("mov %rax,%rbx", 0x10))
	assert.Equal(t, "unknown", instructionAddress("", protocol.UnknownAddress))
}
