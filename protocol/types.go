package protocol

import (
	"fmt"

	e "github.com/fansqz/go-tgdb/error"
)

// Address 被调试程序地址空间中的地址，0表示未知
type Address uint64

const UnknownAddress Address = 0

// Known 地址是否已知
func (a Address) Known() bool {
	return a != UnknownAddress
}

func (a Address) String() string {
	if !a.Known() {
		return "unknown"
	}
	return fmt.Sprintf("0x%x", uint64(a))
}

// FilePosition 被调试程序的一个位置
// 如果能确定源码位置，Path和LineNumber有效，否则Addr有效，两者也可能同时有效，但不会都无效
type FilePosition struct {
	// 文件路径，一般为绝对路径，gdb拿不到绝对路径时为相对路径
	Path       string  `json:"path,omitempty"`
	LineNumber int     `json:"line"`
	Addr       Address `json:"addr"`
	// 函数所在的共享库，未知时为空
	From string `json:"from,omitempty"`
	// 函数名称，未知时为空
	Func string `json:"func,omitempty"`
}

func (p FilePosition) HasSource() bool {
	return p.Path != ""
}

func (p FilePosition) Validate() error {
	if p.Path == "" && !p.Addr.Known() {
		return fmt.Errorf("%w: file position has neither path nor address", e.ErrInvalidResponse)
	}
	if p.LineNumber < 0 {
		return fmt.Errorf("%w: negative line number %d", e.ErrInvalidResponse, p.LineNumber)
	}
	return nil
}

func (p FilePosition) String() string {
	if p.Path == "" {
		return p.Addr.String()
	}
	return fmt.Sprintf("%s:%d", p.Path, p.LineNumber)
}

// Breakpoint 调试器中的一个源码断点，Addr为补充信息，可能未知
type Breakpoint struct {
	Path    string  `json:"path"`
	Line    int     `json:"line"`
	Addr    Address `json:"addr"`
	Enabled bool    `json:"enabled"`
}

func (b Breakpoint) Validate() error {
	if b.Path == "" {
		return fmt.Errorf("%w: breakpoint without path", e.ErrInvalidResponse)
	}
	if b.Line <= 0 {
		return fmt.Errorf("%w: breakpoint %s has line %d", e.ErrInvalidResponse, b.Path, b.Line)
	}
	return nil
}
