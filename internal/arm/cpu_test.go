package arm

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
)

var errOutOfRange = errors.New("out of range")

// flatMem is a little-endian RAM starting at address 0 with a fixed wait state count.
type flatMem struct {
	b    []byte
	wait int
}

func (m *flatMem) ok(addr uint32, n uint32) bool { return uint64(addr)+uint64(n) <= uint64(len(m.b)) }

func (m *flatMem) Read8(addr uint32) (byte, error) {
	if !m.ok(addr, 1) {
		return 0, errOutOfRange
	}
	return m.b[addr], nil
}

func (m *flatMem) Read16(addr uint32) (uint16, error) {
	if !m.ok(addr, 2) {
		return 0, errOutOfRange
	}
	return binary.LittleEndian.Uint16(m.b[addr:]), nil
}

func (m *flatMem) Read32(addr uint32) (uint32, error) {
	if !m.ok(addr, 4) {
		return 0, errOutOfRange
	}
	return binary.LittleEndian.Uint32(m.b[addr:]), nil
}

func (m *flatMem) Write8(addr uint32, v byte) error {
	if !m.ok(addr, 1) {
		return errOutOfRange
	}
	m.b[addr] = v
	return nil
}

func (m *flatMem) Write16(addr uint32, v uint16) error {
	if !m.ok(addr, 2) {
		return errOutOfRange
	}
	binary.LittleEndian.PutUint16(m.b[addr:], v)
	return nil
}

func (m *flatMem) Write32(addr uint32, v uint32) error {
	if !m.ok(addr, 4) {
		return errOutOfRange
	}
	binary.LittleEndian.PutUint32(m.b[addr:], v)
	return nil
}

func (m *flatMem) WaitStates(uint32, Size, bool) int { return m.wait }

type fakeIRQ struct{ interrupt, wake bool }

func (f *fakeIRQ) ShouldInterrupt() bool { return f.interrupt }
func (f *fakeIRQ) ShouldWake() bool      { return f.wake }

func newCPU(words ...uint32) (*CPU, *flatMem, *fakeIRQ) {
	mem := &flatMem{b: make([]byte, 0x1000)}
	for i, w := range words {
		binary.LittleEndian.PutUint32(mem.b[i*4:], w)
	}
	irq := &fakeIRQ{}
	return New(mem, irq), mem, irq
}

func step(t *testing.T, c *CPU) int {
	t.Helper()
	n, err := c.Step()
	assert.NoError(t, err)
	return n
}

func TestBranchToSelfKeepsPC(t *testing.T) {
	c, _, _ := newCPU(0xEAFFFFFE) // B .
	for i := 0; i < 100; i++ {
		if n := step(t, c); n != 3 {
			t.Fatalf("B . cycles got %d want 3", n)
		}
		if c.Regs.PC() != 0 {
			t.Fatalf("PC got %08x want 00000000", c.Regs.PC())
		}
	}
}

func TestWaitStatesStretchEveryAccess(t *testing.T) {
	c, mem, _ := newCPU(0xEAFFFFFE)
	mem.wait = 2
	s := c.NextSignals()
	assert.True(t, s.Fetch)
	assert.True(t, s.Execute)
	assert.False(t, s.Seq)

	// the refill fetches after the branch are not instruction starts
	assert.NoError(t, c.Cycle())
	for c.Busy() {
		assert.False(t, c.NextSignals().Execute)
		assert.NoError(t, c.Cycle())
	}
	assert.True(t, c.NextSignals().Execute)
}

func TestWaitStatesCycleCount(t *testing.T) {
	c, mem, _ := newCPU(0xEAFFFFFE)
	mem.wait = 2
	assert.Equal(t, 9, step(t, c))
}

func TestAddsSetsZeroAndCarry(t *testing.T) {
	c, _, _ := newCPU(
		0xE3A00001, // MOV r0,#1
		0xE3E02000, // MVN r2,#0
		0xE0901002, // ADDS r1,r0,r2
	)
	step(t, c)
	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(0), c.Regs.R[1])
	assert.True(t, c.Regs.flag(FlagZ))
	assert.True(t, c.Regs.flag(FlagC))
	assert.False(t, c.Regs.flag(FlagV))
	assert.Equal(t, uint32(12), c.Regs.PC())
}

func TestStoreLoadSignals(t *testing.T) {
	c, _, _ := newCPU(
		0xE3A00C01, // MOV r0,#0x100
		0xE3A01042, // MOV r1,#0x42
		0xE5801000, // STR r1,[r0]
		0xE5902000, // LDR r2,[r0]
	)
	step(t, c)
	step(t, c)

	assert.NoError(t, c.Cycle()) // STR fetch
	s := c.NextSignals()
	assert.True(t, s.Write)
	assert.True(t, s.MemReq)
	assert.Equal(t, uint32(0x100), s.Addr)
	assert.Equal(t, uint32(0x42), s.Data)
	assert.NoError(t, c.Cycle())
	assert.False(t, c.Busy())

	assert.Equal(t, 3, step(t, c))
	assert.Equal(t, uint32(0x42), c.Regs.R[2])
}

func TestStoreCommitsInItsOwnCycle(t *testing.T) {
	c, mem, _ := newCPU(
		0xE3A00C01, // MOV r0,#0x100
		0xE3A01042, // MOV r1,#0x42
		0xE4801004, // STR r1,[r0],#4
	)
	mem.wait = 1
	step(t, c)
	step(t, c)

	assert.NoError(t, c.Cycle()) // fetch
	assert.NoError(t, c.Cycle()) // fetch wait state
	s := c.NextSignals()
	assert.True(t, s.Write)
	assert.False(t, s.Wait)
	assert.NoError(t, c.Cycle())
	assert.True(t, c.NextSignals().Wait)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(mem.b[0x100:]))
	assert.Equal(t, uint32(0x100), c.Regs.R[0])
	assert.Equal(t, uint32(8), c.Regs.PC())

	assert.NoError(t, c.Cycle())
	assert.False(t, c.Busy())
	assert.Equal(t, uint32(0x42), binary.LittleEndian.Uint32(mem.b[0x100:]))
	assert.Equal(t, uint32(0x104), c.Regs.R[0])
	assert.Equal(t, uint32(12), c.Regs.PC())
}

func TestLoadedBaseWinsOverWriteBack(t *testing.T) {
	c, mem, _ := newCPU(
		0xE3A00C01, // MOV r0,#0x100
		0xE8B00003, // LDMIA r0!,{r0,r1}
		0xE3A02C01, // MOV r2,#0x100
		0xE4923004, // LDR r3,[r2],#4
	)
	binary.LittleEndian.PutUint32(mem.b[0x100:], 0x11)
	binary.LittleEndian.PutUint32(mem.b[0x104:], 0x22)
	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(0x11), c.Regs.R[0])
	assert.Equal(t, uint32(0x22), c.Regs.R[1])

	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(0x11), c.Regs.R[3])
	assert.Equal(t, uint32(0x104), c.Regs.R[2])
}

func TestLoadIntoPCRefillsAfterData(t *testing.T) {
	c, mem, _ := newCPU(
		0xE3A00C01, // MOV r0,#0x100
		0xE590F000, // LDR pc,[r0]
	)
	binary.LittleEndian.PutUint32(mem.b[0x100:], 0x40)
	step(t, c)
	// fetch, load, internal, two refill fetches
	assert.Equal(t, 5, step(t, c))
	assert.Equal(t, uint32(0x40), c.Regs.PC())
}

func TestThumbPopPC(t *testing.T) {
	c, mem, _ := newCPU()
	c.Regs.CPSR |= FlagT
	c.Regs.R[13] = 0x200
	binary.LittleEndian.PutUint16(mem.b[0x00:], 0xBD01) // POP {r0,pc}
	binary.LittleEndian.PutUint32(mem.b[0x200:], 0x77)
	binary.LittleEndian.PutUint32(mem.b[0x204:], 0x81)

	step(t, c)
	assert.Equal(t, uint32(0x77), c.Regs.R[0])
	assert.Equal(t, uint32(0x208), c.Regs.R[13])
	assert.Equal(t, uint32(0x80), c.Regs.PC())
}

func TestMisalignedLoadRotates(t *testing.T) {
	c, mem, _ := newCPU(
		0xE3A00C01, // MOV r0,#0x100
		0xE5902001, // LDR r2,[r0,#1]
	)
	binary.LittleEndian.PutUint32(mem.b[0x100:], 0x11223344)
	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(0x44112233), c.Regs.R[2])
}

func TestMultiply(t *testing.T) {
	c, _, _ := newCPU(
		0xE3A01007, // MOV r1,#7
		0xE3A02006, // MOV r2,#6
		0xE0030291, // MUL r3,r1,r2
	)
	step(t, c)
	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(42), c.Regs.R[3])
}

func TestPushPopBlockTransfer(t *testing.T) {
	c, _, _ := newCPU(
		0xE3A0DC02, // MOV sp,#0x200
		0xE3A00011, // MOV r0,#0x11
		0xE3A01022, // MOV r1,#0x22
		0xE92D0003, // STMDB sp!,{r0,r1}
		0xE8BD000C, // LDMIA sp!,{r2,r3}
	)
	for i := 0; i < 4; i++ {
		step(t, c)
	}
	assert.Equal(t, uint32(0x1F8), c.Regs.R[13])
	step(t, c)
	assert.Equal(t, uint32(0x11), c.Regs.R[2])
	assert.Equal(t, uint32(0x22), c.Regs.R[3])
	assert.Equal(t, uint32(0x200), c.Regs.R[13])
}

func TestBXEntersThumbAndBL(t *testing.T) {
	c, mem, _ := newCPU(
		0xE28F0001, // ADD r0,pc,#1
		0xE12FFF10, // BX r0
	)
	binary.LittleEndian.PutUint16(mem.b[0x08:], 0xF000) // BL +16
	binary.LittleEndian.PutUint16(mem.b[0x0A:], 0xF808)
	binary.LittleEndian.PutUint16(mem.b[0x1C:], 0x2105) // MOVS r1,#5

	step(t, c)
	step(t, c)
	assert.True(t, c.Regs.Thumb())
	assert.Equal(t, uint32(0x08), c.Regs.PC())

	step(t, c)
	step(t, c)
	assert.Equal(t, uint32(0x1C), c.Regs.PC())
	assert.Equal(t, uint32(0x0D), c.Regs.R[14])

	step(t, c)
	assert.Equal(t, uint32(5), c.Regs.R[1])
	assert.Equal(t, uint32(0x1E), c.Regs.PC())
}

func TestIRQEntrySavesStateAndVectors(t *testing.T) {
	c, mem, irq := newCPU()
	binary.LittleEndian.PutUint32(mem.b[0x18:], 0xEAFFFFFE)
	binary.LittleEndian.PutUint32(mem.b[0x40:], 0xE3A00001)
	c.Regs.SetCPSR(uint32(ModeSystem))
	c.Regs.R[15] = 0x40

	irq.interrupt = true
	s := c.NextSignals()
	assert.Equal(t, uint32(VectorIRQ), s.Addr)

	step(t, c)
	assert.Equal(t, ModeIRQ, c.Regs.Mode())
	assert.Equal(t, uint32(0x44), c.Regs.R[14])
	assert.Equal(t, uint32(ModeSystem), c.Regs.SPSR())
	assert.True(t, c.Regs.flag(FlagI))
	assert.Equal(t, uint32(0x18), c.Regs.PC())

	// I is now set, so a pending line no longer vectors
	step(t, c)
	assert.Equal(t, uint32(0x18), c.Regs.PC())
}

func TestIRQReturnRestoresMode(t *testing.T) {
	c, mem, irq := newCPU()
	binary.LittleEndian.PutUint32(mem.b[0x18:], 0xE25EF004) // SUBS pc,lr,#4
	binary.LittleEndian.PutUint32(mem.b[0x40:], 0xE3A00001) // MOV r0,#1
	c.Regs.SetCPSR(uint32(ModeSystem))
	c.Regs.R[15] = 0x40

	irq.interrupt = true
	step(t, c)
	irq.interrupt = false
	assert.Equal(t, ModeSystem, c.Regs.Mode())
	assert.Equal(t, uint32(0x40), c.Regs.PC())

	step(t, c)
	assert.Equal(t, uint32(1), c.Regs.R[0])
}

func TestHaltIdlesUntilWake(t *testing.T) {
	c, _, irq := newCPU(0xE3A00001)
	c.Halt()
	for i := 0; i < 10; i++ {
		assert.Equal(t, Idle, c.NextSignals())
		assert.NoError(t, c.Cycle())
	}
	assert.Equal(t, uint32(0), c.Regs.R[0])

	irq.wake = true
	assert.NoError(t, c.Cycle()) // wake-up cycle
	assert.False(t, c.Halted())
	step(t, c)
	assert.Equal(t, uint32(1), c.Regs.R[0])
}

func TestBusErrorIsReturned(t *testing.T) {
	c, _, _ := newCPU(
		0xE3A00402, // MOV r0,#0x02000000
		0xE5901000, // LDR r1,[r0]
	)
	step(t, c)
	_, err := c.Step()
	assert.True(t, errors.Is(err, errOutOfRange))
}

func TestModeBankingPreservesStackPointers(t *testing.T) {
	var r Registers
	r.SetCPSR(uint32(ModeSupervisor))
	r.R[13] = 0x3007FE0
	r.SetMode(ModeIRQ)
	r.R[13] = 0x3007FA0
	r.SetMode(ModeSystem)
	r.R[13] = 0x3007F00

	sp, _ := r.Banked(ModeSupervisor)
	assert.Equal(t, uint32(0x3007FE0), sp)
	sp, _ = r.Banked(ModeIRQ)
	assert.Equal(t, uint32(0x3007FA0), sp)
	sp, _ = r.Banked(ModeUser)
	assert.Equal(t, uint32(0x3007F00), sp)
}

func TestFIQBanksHighRegisters(t *testing.T) {
	var r Registers
	r.SetCPSR(uint32(ModeSystem))
	r.R[8] = 8
	r.SetMode(ModeFIQ)
	r.R[8] = 0x88
	assert.Equal(t, uint32(8), r.userReg(8))
	r.SetMode(ModeSystem)
	assert.Equal(t, uint32(8), r.R[8])
}

func TestShiftImmediateZeroEncodings(t *testing.T) {
	tests := []struct {
		name  string
		typ   uint32
		v     uint32
		carry bool
		want  uint32
		wantC bool
	}{
		{"lsl0", shiftLSL, 0x80000001, true, 0x80000001, true},
		{"lsr32", shiftLSR, 0x80000000, false, 0, true},
		{"asr32", shiftASR, 0x80000000, false, 0xFFFFFFFF, true},
		{"rrx", shiftROR, 0x00000003, true, 0x80000001, true},
	}
	for _, tt := range tests {
		got, c := shiftImm(tt.typ, tt.v, 0, tt.carry)
		if got != tt.want || c != tt.wantC {
			t.Fatalf("%s: got %08x/%v want %08x/%v", tt.name, got, c, tt.want, tt.wantC)
		}
	}
}
