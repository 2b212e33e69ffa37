package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fansqz/go-tgdb/debugger"
	"github.com/fansqz/go-tgdb/debugger/gdb_debugger"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/stream"
	"github.com/fansqz/go-tgdb/utils/gosync"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Console 终端前端，每输入一行作为一条控制台命令提交
// 调试器的输出直接写到终端上，提示符跟随update-console-prompt
type Console struct {
	debugger debugger.Debugger
	stream   *stream.Stream
	term     *term.Terminal
	log      *logrus.Entry
}

func NewConsole(screen io.ReadWriter, s *stream.Stream) *Console {
	return &Console{
		stream: s,
		term:   term.NewTerminal(screen, gdb_debugger.DefaultPrompt),
		log:    logrus.WithField("session", s.ID()),
	}
}

// Output 调试器输出写入的位置，需要在调试器启动前交给StartOption
func (c *Console) Output() io.Writer {
	return c.term
}

// Run 读取用户输入直到输入结束或者调试器退出
func (c *Console) Run(ctx context.Context, d debugger.Debugger) error {
	c.debugger = d
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := c.stream.Pump(pumpCtx, c.onResponse)

	lines := make(chan string)
	readErr := make(chan error, 1)
	gosync.Go(ctx, func(ctx context.Context) {
		for {
			line, err := c.term.ReadLine()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	})

	for {
		select {
		case line := <-lines:
			if err := c.debugger.Submit(ctx, protocol.NewConsoleCommand(line)); err != nil {
				fmt.Fprintf(c.term, "%v\n", err)
			}
		case err := <-readErr:
			if err != io.EOF {
				c.log.Warnf("read line fail, err = %v", err)
			}
			// Ctrl-D结束调试
			if err := c.debugger.Terminate(ctx); err != nil {
				c.log.Warnf("terminate fail, err = %v", err)
			}
			<-done
			return nil
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Console) onResponse(resp protocol.Response) {
	switch r := resp.(type) {
	case *protocol.UpdateConsolePromptResponse:
		c.term.SetPrompt(r.Prompt)
	case *protocol.DebuggerCommandDeliveredResponse:
		c.log.Debugf("%s command delivered: %s", r.Origin, r.Command)
	case *protocol.QuitResponse:
		if v, ok := r.Result(); ok {
			fmt.Fprintf(c.term, "debugger exited with code %d\n", v)
		} else {
			fmt.Fprintf(c.term, "debugger exited abnormally\n")
		}
	default:
		c.log.Debugf("ignore %s in console", resp.Kind())
	}
}
