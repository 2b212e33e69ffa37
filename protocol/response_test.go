package protocol

import (
	"encoding/json"
	"testing"

	"github.com/fansqz/go-tgdb/constants"
	e "github.com/fansqz/go-tgdb/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 每种类型创建以后再释放，都不会遗留未释放的响应
func TestCreateRelease(t *testing.T) {
	base := Outstanding()
	for _, kind := range constants.ResponseKinds {
		t.Run(string(kind), func(t *testing.T) {
			r, err := Create(kind)
			require.Nil(t, err)
			assert.Equal(t, kind, r.Kind())
			assert.Equal(t, base+1, Outstanding())
			Release(&r)
			assert.Nil(t, r)
			assert.Equal(t, base, Outstanding())
		})
	}
}

func TestCreateUnknownKind(t *testing.T) {
	r, err := Create("inferior-exited")
	assert.ErrorIs(t, err, e.ErrUnknownResponseKind)
	assert.Nil(t, r)
}

func TestCreateEmptyPayload(t *testing.T) {
	r, err := Create(constants.UpdateBreakpoints)
	require.Nil(t, err)
	bps := r.(*UpdateBreakpointsResponse)
	assert.NotNil(t, bps.Breakpoints)
	assert.Empty(t, bps.Breakpoints)
	Release(&r)

	r, err = Create(constants.DisassembleFunc)
	require.Nil(t, err)
	d := r.(*DisassembleFuncResponse)
	assert.Equal(t, UnknownAddress, d.AddrStart)
	assert.False(t, d.Error)
	assert.Empty(t, d.Lines)
	Release(&r)

	r, err = Create(constants.Quit)
	require.Nil(t, err)
	q := r.(*QuitResponse)
	assert.Equal(t, constants.ExitNormal, q.Status)
	assert.Equal(t, 0, q.ReturnValue)
	Release(&r)
}

// 空断点列表
func TestReleaseEmptyBreakpoints(t *testing.T) {
	base := Outstanding()
	r := NewUpdateBreakpoints(nil)
	assert.NotNil(t, r.Breakpoints)
	assert.Nil(t, r.Validate())
	Release(&r)
	assert.Nil(t, r)
	assert.Equal(t, base, Outstanding())
}

func TestReleaseFilePosition(t *testing.T) {
	base := Outstanding()
	r := NewUpdateFilePosition(FilePosition{Path: "/src/main.c", LineNumber: 42, Addr: 0})
	assert.Nil(t, r.Validate())
	payload := r
	Release(&r)
	assert.Nil(t, r)
	assert.Equal(t, FilePosition{}, payload.Position)
	assert.Equal(t, base, Outstanding())

	// 其他引用再次释放不会重复计数
	Release(&payload)
	assert.Equal(t, base, Outstanding())
}

func TestReleaseNil(t *testing.T) {
	Release[Response](nil)
	var r Response
	Release(&r)
	var q *QuitResponse
	Release(&q)
	assert.Nil(t, q)
}

// 释放会清空响应持有的所有内容
func TestReleaseClearsOwnedContent(t *testing.T) {
	files := []string{"main.c", "util.c"}
	r := NewUpdateSourceFiles(files)
	alias := r
	Release(&r)
	assert.Nil(t, alias.Files)
	// 构造时复制了调用方的切片
	assert.Equal(t, []string{"main.c", "util.c"}, files)

	d := NewDisassemblePCResponse(Disassembly{AddrStart: 0x10, AddrEnd: 0x20, Lines: []string{"nop"}})
	dAlias := d
	Release(&d)
	assert.Equal(t, Disassembly{}, dAlias.Disassembly)
}

func TestDisassemblyError(t *testing.T) {
	r := NewDisassembleFuncResponse(Disassembly{Error: true})
	assert.Nil(t, r.Validate())
	assert.False(t, r.Usable())
	assert.Empty(t, r.Lines)
	Release(&r)

	bad := NewDisassemblePCResponse(Disassembly{AddrStart: 0x20, AddrEnd: 0x10})
	assert.ErrorIs(t, bad.Validate(), e.ErrInvalidResponse)
	Release(&bad)
}

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name  string
		resp  Response
		valid bool
	}{
		{"position with path", NewUpdateFilePosition(FilePosition{Path: "a.c", LineNumber: 1}), true},
		{"position with addr", NewUpdateFilePosition(FilePosition{Addr: 0x400}), true},
		{"position without path or addr", NewUpdateFilePosition(FilePosition{LineNumber: 4, Func: "main"}), false},
		{"breakpoint", NewUpdateBreakpoints([]Breakpoint{{Path: "a.c", Line: 3, Enabled: true}}), true},
		{"breakpoint without path", NewUpdateBreakpoints([]Breakpoint{{Line: 3, Addr: 0x10}}), false},
		{"breakpoint without line", NewUpdateBreakpoints([]Breakpoint{{Path: "a.c"}}), false},
		{"empty source file", NewUpdateSourceFiles([]string{"a.c", ""}), false},
		{"completions", NewUpdateCompletions([]string{"break", "bt"}), true},
		{"info line error", NewInfoLineError(), true},
		{"info line", NewInfoLineResponse("a.c", 3, 0x1000), true},
		{"prompt", NewUpdateConsolePrompt("(gdb) "), true},
		{"delivered", NewCommandDelivered(constants.OriginInternal, "info breakpoints"), true},
		{"delivered empty console command", NewCommandDelivered(constants.OriginFrontEnd, ""), true},
		{"delivered unknown origin", NewCommandDelivered("cgdb", "next"), false},
		{"quit normal", NewQuit(constants.ExitNormal, 1), true},
		{"quit abnormal", NewQuit(constants.ExitAbnormal, 0), true},
		{"quit bad status", NewQuit(3, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate()
			if tt.valid {
				assert.Nil(t, err)
			} else {
				assert.ErrorIs(t, err, e.ErrInvalidResponse)
			}
			Release(&tt.resp)
		})
	}
}

func TestQuitResult(t *testing.T) {
	q := NewQuit(constants.ExitNormal, 1)
	v, ok := q.Result()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	Release(&q)

	q = NewQuit(constants.ExitAbnormal, 7)
	_, ok = q.Result()
	assert.False(t, ok)
	Release(&q)
}

// 不同类型的响应在类型选择中互不混淆
func TestResponseVariants(t *testing.T) {
	for _, kind := range constants.ResponseKinds {
		r, err := Create(kind)
		require.Nil(t, err)
		var got constants.ResponseKind
		switch r.(type) {
		case *UpdateBreakpointsResponse:
			got = constants.UpdateBreakpoints
		case *UpdateFilePositionResponse:
			got = constants.UpdateFilePosition
		case *UpdateSourceFilesResponse:
			got = constants.UpdateSourceFiles
		case *UpdateCompletionsResponse:
			got = constants.UpdateCompletions
		case *DisassemblePCResponse:
			got = constants.DisassemblePC
		case *DisassembleFuncResponse:
			got = constants.DisassembleFunc
		case *InfoLineResponse:
			got = constants.InfoLine
		case *UpdateConsolePromptResponse:
			got = constants.UpdateConsolePrompt
		case *DebuggerCommandDeliveredResponse:
			got = constants.DebuggerCommandDelivered
		case *QuitResponse:
			got = constants.Quit
		}
		assert.Equal(t, kind, got)
		Release(&r)
	}
}

func TestEventJSON(t *testing.T) {
	r := NewUpdateFilePosition(FilePosition{Path: "/src/main.c", LineNumber: 42, Func: "main"})
	data, err := json.Marshal(NewEvent(r))
	require.Nil(t, err)
	assert.JSONEq(t, `{
		"type": "event",
		"kind": "update-file-position",
		"body": {"position": {"path": "/src/main.c", "line": 42, "addr": 0, "func": "main"}}
	}`, string(data))
	Release(&r)

	q := NewQuit(constants.ExitNormal, 1)
	data, err = json.Marshal(NewEvent(q))
	require.Nil(t, err)
	assert.JSONEq(t, `{"type":"event","kind":"quit","body":{"exitStatus":0,"returnValue":1}}`, string(data))
	Release(&q)
}

func TestWireRequest(t *testing.T) {
	var w WireRequest
	err := json.Unmarshal([]byte(`{"sequence":3,"kind":"modify-breakpoint","addr":4198400,"action":"temporary-add"}`), &w)
	require.Nil(t, err)
	assert.Equal(t, uint(3), w.Sequence)
	r, err := w.Request()
	require.Nil(t, err)
	mb := r.(ModifyBreakpointRequest)
	assert.Equal(t, Address(0x401000), mb.Addr())
	assert.Equal(t, "*0x401000", mb.Location())

	w = WireRequest{}
	err = json.Unmarshal([]byte(`{"sequence":4,"kind":"console-command"}`), &w)
	require.Nil(t, err)
	_, err = w.Request()
	assert.ErrorIs(t, err, e.ErrMissingField)
}

func TestAddress(t *testing.T) {
	assert.False(t, UnknownAddress.Known())
	assert.Equal(t, "unknown", UnknownAddress.String())
	assert.Equal(t, "0x400", Address(0x400).String())
	assert.Equal(t, "/a.c:3", FilePosition{Path: "/a.c", LineNumber: 3}.String())
	assert.Equal(t, "0x400", FilePosition{Addr: 0x400}.String())
}
