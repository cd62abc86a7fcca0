package debug

import (
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

func fetchAt(addr uint32) arm.Signals {
	return arm.Signals{Addr: addr, Size: arm.Word, MemReq: true, Fetch: true, Execute: true}
}

func TestNopNeverAborts(t *testing.T) {
	var h Hook = Nop{}
	abort, reason := h.Check(0, fetchAt(0), &arm.Registers{})
	assert.False(t, abort)
	assert.Equal(t, "", reason)
}

func TestExecBreakpointAndResume(t *testing.T) {
	d := New()
	defer d.Close()
	_, err := d.Add(Breakpoint{Kind: Exec, Addr: 0x08000010})
	assert.NoError(t, err)
	regs := &arm.Registers{}

	abort, _ := d.Check(10, fetchAt(0x0800000C), regs)
	assert.False(t, abort)

	// a refill fetch of the same address is not an instruction start
	refill := fetchAt(0x08000010)
	refill.Execute = false
	abort, _ = d.Check(11, refill, regs)
	assert.False(t, abort)

	abort, reason := d.Check(12, fetchAt(0x08000010), regs)
	assert.True(t, abort)
	assert.True(t, strings.Contains(reason, "exec 08000010"))

	// the scheduler retries the aborted cycle when resuming
	abort, _ = d.Check(12, fetchAt(0x08000010), regs)
	assert.False(t, abort)
	abort, _ = d.Check(20, fetchAt(0x08000010), regs)
	assert.True(t, abort)
}

func TestReadWriteBreakpointsMatchAccessRange(t *testing.T) {
	d := New()
	defer d.Close()
	_, err := d.Add(Breakpoint{Kind: Write, Addr: 0x03000002})
	assert.NoError(t, err)
	regs := &arm.Registers{}

	read := arm.Signals{Addr: 0x03000000, Size: arm.Word, MemReq: true}
	abort, _ := d.Check(1, read, regs)
	assert.False(t, abort)

	write := read
	write.Write = true
	abort, _ = d.Check(2, write, regs)
	assert.True(t, abort)

	// the wait states that stretch the same access do not break again
	stretched := write
	stretched.Wait = true
	abort, _ = d.Check(3, stretched, regs)
	assert.False(t, abort)

	write.Addr, write.Size = 0x03000000, arm.Half
	abort, _ = d.Check(4, write, regs)
	assert.False(t, abort)
}

func TestRegisterBreakpoint(t *testing.T) {
	d := New()
	defer d.Close()
	_, err := d.Add(Breakpoint{Kind: Reg, Reg: 3, Value: 42})
	assert.NoError(t, err)
	regs := &arm.Registers{}

	abort, _ := d.Check(1, fetchAt(0), regs)
	assert.False(t, abort)
	regs.R[3] = 42
	abort, reason := d.Check(2, fetchAt(4), regs)
	assert.True(t, abort)
	assert.Equal(t, "#1 reg r3 == 0000002a", reason)

	_, err = d.Add(Breakpoint{Kind: Reg, Reg: 16})
	assert.Error(t, err)
}

func TestBreakNextIsOneShot(t *testing.T) {
	d := New()
	defer d.Close()
	regs := &arm.Registers{}
	d.BreakNext()

	abort, _ := d.Check(1, arm.Idle, regs)
	assert.False(t, abort)
	abort, _ = d.Check(2, fetchAt(0x100), regs)
	assert.True(t, abort)
	abort, _ = d.Check(3, fetchAt(0x104), regs)
	assert.False(t, abort)
}

func TestLuaConditions(t *testing.T) {
	d := New()
	defer d.Close()
	_, err := d.Add(Breakpoint{Kind: Cond, Cond: "r0 == 5 and pc >= 0x100"})
	assert.NoError(t, err)
	regs := &arm.Registers{}

	regs.R[0], regs.R[15] = 5, 0x80
	abort, _ := d.Check(1, fetchAt(0x80), regs)
	assert.False(t, abort)
	regs.R[15] = 0x100
	abort, reason := d.Check(2, fetchAt(0x100), regs)
	assert.True(t, abort)
	assert.Equal(t, "#1 cond if r0 == 5 and pc >= 0x100", reason)

	_, err = d.Add(Breakpoint{Kind: Cond, Cond: "r0 =="})
	assert.Error(t, err)
	_, err = d.Add(Breakpoint{Kind: Cond})
	assert.Error(t, err)
}

func TestConditionOnWriteData(t *testing.T) {
	d := New()
	defer d.Close()
	_, err := d.Add(Breakpoint{Kind: Write, Addr: 0x02000000, Cond: "data > 10"})
	assert.NoError(t, err)
	regs := &arm.Registers{}

	w := arm.Signals{Addr: 0x02000000, Size: arm.Byte, MemReq: true, Write: true, Data: 3}
	abort, _ := d.Check(1, w, regs)
	assert.False(t, abort)
	w.Data = 11
	abort, _ = d.Check(2, w, regs)
	assert.True(t, abort)
}

func TestRemoveAndList(t *testing.T) {
	d := New()
	defer d.Close()
	a, _ := d.Add(Breakpoint{Kind: Exec, Addr: 0x10})
	b, _ := d.Add(Breakpoint{Kind: Read, Addr: 0x20})
	assert.Equal(t, 2, len(d.List()))
	assert.True(t, d.Remove(a.ID))
	assert.False(t, d.Remove(a.ID))
	assert.Equal(t, b.ID, d.List()[0].ID)
	d.Clear()
	assert.Equal(t, 0, len(d.List()))

	k, err := ParseKind("WRITE")
	assert.NoError(t, err)
	assert.Equal(t, Write, k)
}
