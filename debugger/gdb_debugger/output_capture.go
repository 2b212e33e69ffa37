package gdb_debugger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fansqz/go-tgdb/constants"
	"github.com/fansqz/go-tgdb/protocol"
	"github.com/fansqz/go-tgdb/utils"
)

const markerPrefix = "tgdb"

var (
	// 终端控制序列，例如readline的bracketed paste
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	// 控制字符，保留换行和制表符
	controlChars = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// outputCapture 截取一条命令的gdb输出
// 命令前后各执行一条printf输出标记，两个标记之间的输出就是命令的结果。
// printf命令的回显中只有"tgdb", "<id>"，不会与标记本身混淆。
type outputCapture struct {
	kind    constants.RequestKind
	command string
	begin   string
	end     string
	buf     strings.Builder

	timeoutManager *utils.TimeoutManager
}

func newOutputCapture(kind constants.RequestKind, command string) *outputCapture {
	id := utils.GetUUID()
	return &outputCapture{
		kind:           kind,
		command:        command,
		begin:          id + "-begin",
		end:            id + "-end",
		timeoutManager: utils.NewTimeoutManager(),
	}
}

// capturedKind 结果需要从gdb输出中解析的请求
func capturedKind(kind constants.RequestKind) bool {
	return kind == constants.CompleteRequest || kind == constants.DisassemblePCRequest
}

// markerCommand 让gdb输出 tgdb-<id>
func markerCommand(id string) string {
	return fmt.Sprintf(`printf "%%s-%%s\n", "%s", "%s"`, markerPrefix, id)
}

func markerOutput(id string) string {
	return markerPrefix + "-" + id
}

// feed 追加一段gdb输出，两个标记都出现以后返回标记之间的输出行
func (c *outputCapture) feed(data string) ([]string, bool) {
	c.buf.WriteString(data)
	lines := strings.Split(cleanOutput(c.buf.String()), "\n")
	begin, end := markerOutput(c.begin), markerOutput(c.end)
	beginAt := -1
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if beginAt < 0 {
			if strings.HasSuffix(line, begin) {
				beginAt = i
			}
			continue
		}
		if strings.HasSuffix(line, end) {
			return c.filter(lines[beginAt+1 : i]), true
		}
	}
	return nil, false
}

// filter 去掉提示符、命令回显和标记命令的回显
func (c *outputCapture) filter(lines []string) []string {
	answer := make([]string, 0, len(lines))
	markerEcho := fmt.Sprintf(`"%s", "`, markerPrefix)
	for _, line := range lines {
		for strings.HasPrefix(line, DefaultPrompt) {
			line = line[len(DefaultPrompt):]
		}
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == strings.TrimSpace(DefaultPrompt) ||
			trimmed == c.command || strings.Contains(line, markerEcho) {
			continue
		}
		answer = append(answer, line)
	}
	return answer
}

// response 根据截取的输出构造响应，ok为false表示等待输出超时
func (c *outputCapture) response(lines []string, ok bool) protocol.Response {
	switch c.kind {
	case constants.CompleteRequest:
		if !ok {
			return protocol.NewUpdateCompletions(nil)
		}
		return protocol.NewUpdateCompletions(parseCompletions(lines))
	default:
		if !ok {
			return protocol.NewDisassemblePCResponse(protocol.Disassembly{Error: true})
		}
		return protocol.NewDisassemblePCResponse(parseDisassembly(lines))
	}
}

func cleanOutput(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r", "")
	return controlChars.ReplaceAllString(s, "")
}

// parseCompletions complete命令每行输出一个候选
func parseCompletions(lines []string) []string {
	answer := make([]string, 0, len(lines))
	for _, line := range lines {
		// *** List may be truncated, max-completions reached. ***
		if strings.HasPrefix(line, "***") {
			continue
		}
		answer = append(answer, strings.TrimSpace(line))
	}
	return answer
}

// parseDisassembly 解析x/i的输出，每行形如 "=> 0x401136 <main+4>:	mov    $0x0,%eax"
// 没有任何指令时（例如No registers.）视为失败
func parseDisassembly(lines []string) protocol.Disassembly {
	d := protocol.Disassembly{}
	for _, line := range lines {
		addr, ok := instructionAddress(line)
		if !ok {
			continue
		}
		if !d.AddrStart.Known() {
			d.AddrStart = addr
		}
		d.AddrEnd = addr
		d.Lines = append(d.Lines, line)
	}
	if len(d.Lines) == 0 {
		return protocol.Disassembly{Error: true}
	}
	return d
}

func instructionAddress(line string) (protocol.Address, bool) {
	for _, field := range strings.Fields(line) {
		if !strings.HasPrefix(field, "0x") {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(field, ":"), 0, 64)
		if err != nil {
			return protocol.UnknownAddress, false
		}
		return protocol.Address(v), true
	}
	return protocol.UnknownAddress, false
}
