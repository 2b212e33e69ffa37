package gdb_debugger

import (
	"fmt"
	"strings"

	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
	"github.com/fansqz/go-tgdb/protocol"
)

// CommandLine 把请求翻译成一行gdb命令
func CommandLine(req protocol.Request) (string, error) {
	var line string
	switch r := req.(type) {
	case protocol.ConsoleCommandRequest:
		line = r.Command()
	case protocol.InfoSourcesRequest:
		line = "info sources"
	case protocol.CurrentLocationRequest:
		line = "frame"
	case protocol.DebuggerCommandRequest:
		line = string(r.Command())
	case protocol.ModifyBreakpointRequest:
		switch r.Action() {
		case constants.BreakpointAdd:
			line = "break " + r.Location()
		case constants.TemporaryBreakpointAdd:
			line = "tbreak " + r.Location()
		case constants.BreakpointDelete:
			line = "clear " + r.Location()
		}
	case protocol.CompleteRequest:
		line = "complete " + r.Line()
	case protocol.DisassemblePCRequest:
		line = fmt.Sprintf("x/%di $pc", r.Lines())
	case protocol.DisassembleFuncRequest:
		// gdb只解析一组修饰符，例如 /sr
		modifiers := ""
		if r.Source() {
			modifiers += "s"
		}
		if r.Raw() {
			modifiers += "r"
		}
		line = "disassemble"
		if modifiers != "" {
			line += " /" + modifiers
		}
	case protocol.InfoLineRequest:
		line = "info line " + r.Location()
	default:
		return "", fmt.Errorf("%w: unsupported request %T", e.ErrInvalidRequest, req)
	}
	// 一个请求只能对应一行命令
	if strings.ContainsAny(line, "\r\n") {
		return "", fmt.Errorf("%w: %s contains a line break", e.ErrInvalidRequest, req.Kind())
	}
	return line, nil
}
