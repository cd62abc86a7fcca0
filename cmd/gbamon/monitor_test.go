package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

// counting program: r0 = 1, 2, 3 then spin
var program = []uint32{
	0xE3A00001, // mov r0, #1
	0xE2800001, // add r0, r0, #1
	0xE2800001, // add r0, r0, #1
	0xEAFFFFFE, // b .
}

func newTestMonitor(t *testing.T) (*monitor, *bytes.Buffer) {
	t.Helper()
	rom := make([]byte, 0x200)
	for i, w := range program {
		binary.LittleEndian.PutUint32(rom[i*4:], w)
	}
	copy(rom[0xA0:], "MONTEST")
	rom[0xB2] = 0x96

	m, err := emu.New(emu.Config{}, log.NewTestLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, m.LoadCartridge(rom))

	var out bytes.Buffer
	mon := newMonitor(m, &out)
	t.Cleanup(mon.Close)
	return mon, &out
}

func TestStep(t *testing.T) {
	mon, out := newTestMonitor(t)

	assert.NoError(t, mon.exec("step"))
	assert.Equal(t, uint32(1), mon.m.CPU().Reg(0))
	if !strings.Contains(out.String(), "08000004: e2800001") {
		t.Fatalf("got %q want position 08000004", out.String())
	}

	assert.NoError(t, mon.exec("step 2"))
	assert.Equal(t, uint32(3), mon.m.CPU().Reg(0))
	assert.Equal(t, uint32(0x0800000C), mon.m.CPU().NextSignals().Addr)

	// empty line repeats the last command
	before := mon.m.CPU().Instructions()
	assert.NoError(t, mon.exec(""))
	assert.Equal(t, before+2, mon.m.CPU().Instructions())
}

func TestRunToExecBreakpoint(t *testing.T) {
	mon, out := newTestMonitor(t)

	assert.NoError(t, mon.exec("break exec 0x08000008"))
	assert.NoError(t, mon.exec("run"))
	assert.True(t, strings.Contains(out.String(), "break: #1 exec 08000008"))
	assert.Equal(t, uint32(2), mon.m.CPU().Reg(0))

	// resuming passes the breakpoint it stopped on
	assert.NoError(t, mon.exec("step"))
	assert.Equal(t, uint32(3), mon.m.CPU().Reg(0))
}

func TestCondBreakpoint(t *testing.T) {
	mon, out := newTestMonitor(t)

	assert.NoError(t, mon.exec("cond r0 == 3"))
	assert.NoError(t, mon.exec("run"))
	assert.True(t, strings.Contains(out.String(), "break: #1 cond if r0 == 3"))
	assert.Equal(t, uint32(3), mon.m.CPU().Reg(0))
	assert.Equal(t, uint32(0x0800000C), mon.m.CPU().NextSignals().Addr)
}

func TestBreakpointList(t *testing.T) {
	mon, out := newTestMonitor(t)

	assert.NoError(t, mon.exec("break write 03000000"))
	assert.NoError(t, mon.exec("break reg r0 2 if r1 == 0"))
	out.Reset()
	assert.NoError(t, mon.exec("list"))
	want := "#1 write 03000000\n#2 reg r0 == 00000002 if r1 == 0\n"
	if out.String() != want {
		t.Fatalf("got %q want %q", out.String(), want)
	}

	assert.NoError(t, mon.exec("delete 1"))
	assert.Error(t, mon.exec("delete 1"))
	assert.Equal(t, 1, len(mon.dbg.List()))
	assert.NoError(t, mon.exec("clear"))
	assert.Equal(t, 0, len(mon.dbg.List()))
}

func TestBadCommands(t *testing.T) {
	mon, _ := newTestMonitor(t)

	for _, line := range []string{
		"frobnicate",
		"break",
		"break exec zz",
		"break bogus 100",
		"break exec 100 when r0",
		"break reg r16 1",
		"cond",
		"cond r0 ==",
		"step -1",
		"peek",
	} {
		if err := mon.exec(line); err == nil {
			t.Fatalf("%q: expected an error", line)
		}
	}
	assert.True(t, errors.Is(mon.exec("quit"), errQuit))
}

func TestPeek(t *testing.T) {
	mon, out := newTestMonitor(t)

	assert.NoError(t, mon.exec("peek 08000000 4"))
	assert.Equal(t, "08000000: 01 00 a0 e3\n", out.String())

	out.Reset()
	assert.NoError(t, mon.exec("peek 10000000 2"))
	assert.Equal(t, "10000000: -- --\n", out.String())
}

func TestDump(t *testing.T) {
	mon, _ := newTestMonitor(t)
	assert.NoError(t, mon.exec("step"))

	path := filepath.Join(t.TempDir(), "state.dot")
	assert.NoError(t, mon.exec("dump "+path))
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "digraph"))
}

func TestRunScript(t *testing.T) {
	mon, _ := newTestMonitor(t)

	script := "step\n# comment\n\nstep\nquit\nstep\n"
	assert.NoError(t, runScript(mon, strings.NewReader(script)))
	assert.Equal(t, uint32(2), mon.m.CPU().Reg(0))

	err := runScript(mon, strings.NewReader("regs\nnope\n"))
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "line 2:"))
}
