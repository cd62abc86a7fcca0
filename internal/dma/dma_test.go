package dma

import (
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

// sparseMem stores half-words by address and records every write.
type sparseMem struct {
	m      map[uint32]uint16
	writes []uint32
}

func newSparseMem() *sparseMem { return &sparseMem{m: map[uint32]uint16{}} }

func (s *sparseMem) Read16(addr uint32) (uint16, error) { return s.m[addr], nil }

func (s *sparseMem) Read32(addr uint32) (uint32, error) {
	return uint32(s.m[addr]) | uint32(s.m[addr+2])<<16, nil
}

func (s *sparseMem) Write16(addr uint32, v uint16) error {
	s.m[addr] = v
	s.writes = append(s.writes, addr)
	return nil
}

func (s *sparseMem) Write32(addr uint32, v uint32) error {
	s.m[addr], s.m[addr+2] = uint16(v), uint16(v>>16)
	s.writes = append(s.writes, addr)
	return nil
}

func write16(c *Controller, off uint32, v uint16) {
	c.Write8(off, byte(v))
	c.Write8(off+1, byte(v>>8))
}

func write32(c *Controller, off uint32, v uint32) {
	write16(c, off, uint16(v))
	write16(c, off+2, uint16(v>>16))
}

// setup programs channel n; the control value is written last.
func setup(c *Controller, n int, src, dst uint32, count, control uint16) {
	base := RegBase + uint32(n)*chanStride
	write32(c, base, src)
	write32(c, base+4, dst)
	write16(c, base+8, count)
	write16(c, base+10, control)
}

func run(t *testing.T, c *Controller) int {
	t.Helper()
	n := 0
	for c.Active() {
		assert.NoError(t, c.Step())
		n++
	}
	return n
}

func TestImmediateHalfWordCopy(t *testing.T) {
	mem := newSparseMem()
	for i := uint32(0); i < 4; i++ {
		mem.m[0x02000000+2*i] = uint16(0x100 + i)
	}
	irqc := irq.New()
	c := New(irqc, mem)
	setup(c, 3, 0x02000000, 0x03000000, 4, ctrlEnable|ctrlIRQ)

	assert.True(t, c.Active())
	assert.Equal(t, 4, run(t, c))
	for i := uint32(0); i < 4; i++ {
		assert.Equal(t, uint16(0x100+i), mem.m[0x03000000+2*i])
	}
	assert.Equal(t, uint16(1<<irq.DMA3), irqc.Request())
	assert.Equal(t, byte(0), c.Read8(RegBase+3*chanStride+11)&0x80)
}

func TestVBlankRepeatWithReload(t *testing.T) {
	mem := newSparseMem()
	c := New(irq.New(), mem)
	setup(c, 0, 0x02000000, 0x03000000, 2,
		ctrlEnable|ctrlRepeat|uint16(VBlank)<<12|stepReload<<ctrlDstShift)
	assert.False(t, c.Active())

	c.VBlank()
	assert.Equal(t, 2, run(t, c))
	c.VBlank()
	assert.Equal(t, 2, run(t, c))
	assert.Equal(t, []uint32{0x03000000, 0x03000002, 0x03000000, 0x03000002}, mem.writes)
}

func TestLowerChannelWinsTheBus(t *testing.T) {
	mem := newSparseMem()
	c := New(irq.New(), mem)
	setup(c, 2, 0x02000000, 0x03000100, 1, ctrlEnable)
	setup(c, 1, 0x02000000, 0x03000200, 1, ctrlEnable)
	run(t, c)
	assert.Equal(t, []uint32{0x03000200, 0x03000100}, mem.writes)
}

func TestDecrementAndFixedSteps(t *testing.T) {
	mem := newSparseMem()
	c := New(irq.New(), mem)
	setup(c, 3, 0x02000010, 0x03000000, 3, ctrlEnable|stepDec<<ctrlSrcShift|stepFixed<<ctrlDstShift)
	run(t, c)
	assert.Equal(t, []uint32{0x03000000, 0x03000000, 0x03000000}, mem.writes)
}

func TestFIFORequestMovesFourWords(t *testing.T) {
	mem := newSparseMem()
	c := New(irq.New(), mem)
	setup(c, 1, 0x02000000, 0x040000A0, 0, ctrlEnable|ctrlRepeat|uint16(Special)<<12)
	assert.False(t, c.Active())

	c.FIFORequest(1)
	assert.Equal(t, 4, run(t, c))
	assert.Equal(t, []uint32{0x040000A0, 0x040000A0, 0x040000A0, 0x040000A0}, mem.writes)

	c.FIFORequest(1)
	assert.Equal(t, 4, run(t, c))
}

func TestRequestFIFOMatchesDestination(t *testing.T) {
	mem := newSparseMem()
	c := New(irq.New(), mem)
	setup(c, 2, 0x02000000, 0x040000A4, 0, ctrlEnable|ctrlRepeat|uint16(Special)<<12)
	c.RequestFIFO(0x040000A0)
	assert.False(t, c.Active())
	c.RequestFIFO(0x040000A4)
	assert.Equal(t, 4, run(t, c))
}

func TestGamePakLengthHint(t *testing.T) {
	c := New(irq.New(), newSparseMem())
	got := 0
	c.OnGamePakLength = func(units int) { got = units }
	setup(c, 3, 0x02000000, 0x0D000000, 73, ctrlEnable)
	assert.Equal(t, 73, got)
}

func TestZeroCountMeansMaximum(t *testing.T) {
	c := New(irq.New(), newSparseMem())
	setup(c, 0, 0x02000000, 0x03000000, 0, ctrlEnable|stepFixed<<ctrlDstShift|stepFixed<<ctrlSrcShift)
	assert.Equal(t, 0x4000, run(t, c))
}
