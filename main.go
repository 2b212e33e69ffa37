package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/fansqz/go-tgdb/debugger"
	"github.com/fansqz/go-tgdb/debugger/gdb_debugger"
	"github.com/fansqz/go-tgdb/stream"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// 定义版本号
const Version = "1.0.0"

const (
	ModeDAP     = "dap"
	ModeJSON    = "json"
	ModeConsole = "console"
)

func main() {
	showVersion := flag.Bool("version", false, "Show the version number")
	port := flag.String("port", "8889", "TCP port to listen on")
	mode := flag.String("mode", ModeDAP, "Front end: dap, json or console")
	gdbPath := flag.String("gdb", "gdb", "gdb binary")
	execFile := flag.String("file", "", "Exec file")
	logPath := flag.String("log", "/var/tgdb.log", "Log file")
	logLevel := flag.String("log-level", "info", "Log level")
	quitTimeout := flag.Duration("quit-timeout", gdb_debugger.DefaultQuitTimeout, "Time to wait for gdb to quit before killing it")
	outputTimeout := flag.Duration("output-timeout", gdb_debugger.DefaultOutputTimeout, "Time to wait for completion or disassembly output")
	flag.Parse()

	// 检查是否需要显示版本信息
	if *showVersion {
		fmt.Printf("Version: %s\n", Version)
		return
	}

	//启动日志
	SetupLogger(*logPath, *logLevel)
	defer CloseLogger()

	option := &debugger.StartOption{
		GDBPath:       *gdbPath,
		ExecFile:      *execFile,
		QuitTimeout:   *quitTimeout,
		OutputTimeout: *outputTimeout,
		Stream:        stream.NewStream(),
	}
	ctx := context.Background()

	var err error
	switch *mode {
	case ModeDAP, ModeJSON:
		err = serve(ctx, *mode, *port, option)
	case ModeConsole:
		err = runConsole(ctx, option)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		logrus.Errorf("exit, err = %v", err)
		CloseLogger()
		os.Exit(1)
	}
}

// serve 监听端口，接受一个前端连接
// 响应流只有一个消费者，所以一次调试只服务一个连接
func serve(ctx context.Context, mode string, port string, option *debugger.StartOption) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	defer listener.Close()
	fmt.Printf("started listening at: %s\n", listener.Addr().String())

	// 启动调试器
	d := gdb_debugger.NewGDBDebugger()
	if err = d.Start(ctx, option); err != nil {
		logrus.Errorf("start debug fail, err = %v", err)
		return err
	}
	defer terminate(d, option.QuitTimeout)

	conn, err := listener.Accept()
	if err != nil {
		logrus.Errorf("Connection failed: %v", err)
		return err
	}
	defer conn.Close()
	logrus.Infof("accept connection from %s", conn.RemoteAddr())

	if mode == ModeJSON {
		return NewDebuggerHandler(d, option.Stream).Serve(ctx, conn)
	}
	return NewDebugSession(ctx, conn, d, option.Stream).Serve()
}

func runConsole(ctx context.Context, option *debugger.StartOption) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return err
		}
		defer term.Restore(fd, oldState)
	}
	screen := struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	console := NewConsole(screen, option.Stream)
	option.Output = console.Output()

	d := gdb_debugger.NewGDBDebugger()
	if err := d.Start(ctx, option); err != nil {
		return err
	}
	defer terminate(d, option.QuitTimeout)
	return console.Run(ctx, d)
}

// terminate 前端退出以后确保gdb也退出
func terminate(d *gdb_debugger.GDBDebugger, timeout time.Duration) {
	select {
	case <-d.Done():
		return
	default:
	}
	if timeout <= 0 {
		timeout = gdb_debugger.DefaultQuitTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()
	if err := d.Terminate(ctx); err != nil {
		logrus.Warnf("terminate gdb fail, err = %v", err)
	}
}
