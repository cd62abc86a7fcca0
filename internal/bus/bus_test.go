package bus

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

type fakeVideo struct {
	pal, oam  [0x400]byte
	vram      [0x18000]byte
	objBase   uint32
	oamWrites []uint32
}

func (v *fakeVideo) Palette() []byte       { return v.pal[:] }
func (v *fakeVideo) VRAM() []byte          { return v.vram[:] }
func (v *fakeVideo) OAM() []byte           { return v.oam[:] }
func (v *fakeVideo) ObjTileBase() uint32   { return v.objBase }
func (v *fakeVideo) OAMWritten(off uint32) { v.oamWrites = append(v.oamWrites, off) }

// recorder logs every lane access it receives.
type recorder struct {
	regs [4]byte
	seq  []uint32
}

func (r *recorder) Read8(off uint32) byte {
	r.seq = append(r.seq, off)
	return r.regs[off&3]
}

func (r *recorder) Write8(off uint32, v byte) {
	r.seq = append(r.seq, off)
	r.regs[off&3] = v
}

type fifoOnly struct{ recorder }

func (f *fifoOnly) Supports(_ uint32, _ arm.Size, write bool) bool { return write }

func newTestBus(t *testing.T) (*Bus, *irq.Controller, *fakeVideo) {
	t.Helper()
	irqc := irq.New()
	b := New(log.NewTestLogger(t), irqc)
	v := &fakeVideo{objBase: 0x10000}
	b.AttachVideo(v)
	return b, irqc, v
}

func TestWordWriteReadSymmetry(t *testing.T) {
	b, _, _ := newTestBus(t)
	addrs := []uint32{
		0x02000100, // EWRAM
		0x0203FFFC,
		0x03000010, // IWRAM
		0x04000120, // SIODATA32
		0x04000800, // memory control
		0x05000004, // palette
		0x06000100, // VRAM
		0x06014000,
		0x07000008, // OAM
	}
	for _, addr := range addrs {
		for _, v := range []uint32{0x00000000, 0xDEADBEEF, 0x12345678, 0xFFFFFFFF} {
			assert.NoError(t, b.Write32(addr, v))
			got, err := b.Read32(addr)
			assert.NoError(t, err)
			if got != v {
				t.Fatalf("addr %08x: got %08x want %08x", addr, got, v)
			}
		}
	}

	// WAITCNT with its read-only bit clear; the following half-word is unused and reads 0
	assert.NoError(t, b.Write32(0x04000204, 0x00004317))
	got, err := b.Read32(0x04000204)
	assert.NoError(t, err)
	assert.Equal(t, uint32(0x00004317), got)
}

func TestWordAccessSplitsIntoOrderedLanes(t *testing.T) {
	b, _, _ := newTestBus(t)
	r := &recorder{}
	b.Map(0x0E0, 0x0E3, r)

	assert.NoError(t, b.Write32(0x040000E0, 0x44332211))
	assert.Equal(t, []uint32{0xE0, 0xE1, 0xE2, 0xE3}, r.seq)
	assert.Equal(t, [4]byte{0x11, 0x22, 0x33, 0x44}, r.regs)

	r.seq = nil
	v, err := b.Read16(0x040000E2)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x4433), v)
	assert.Equal(t, []uint32{0xE2, 0xE3}, r.seq)

	// repeated accesses are never elided
	r.seq = nil
	_, _ = b.Read8(0x040000E0)
	_, _ = b.Read8(0x040000E0)
	assert.Equal(t, 2, len(r.seq))
}

func TestUnmappedAddressesSurface(t *testing.T) {
	b, _, _ := newTestBus(t)
	for _, addr := range []uint32{0x00004000, 0x01000000, 0x04000160, 0x04000400, 0x10000000, 0xFFFFFFFC} {
		_, err := b.Read32(addr)
		if !errors.Is(err, ErrUnmapped) {
			t.Fatalf("read %08x: got %v want ErrUnmapped", addr, err)
		}
		err = b.Write16(addr, 0)
		if !errors.Is(err, ErrUnmapped) {
			t.Fatalf("write %08x: got %v want ErrUnmapped", addr, err)
		}
	}

	_, err := b.Read8(0x04000160)
	var be *Error
	assert.True(t, errors.As(err, &be))
	assert.Equal(t, uint32(0x04000160), be.Addr)
	assert.Equal(t, arm.Byte, be.Size)
	assert.Equal(t, "read", be.Op)
}

func TestUnimplementedShapesAreDistinct(t *testing.T) {
	b, _, _ := newTestBus(t)
	b.Map(0x0E0, 0x0E3, &fifoOnly{})

	assert.NoError(t, b.Write32(0x040000E0, 1))
	_, err := b.Read32(0x040000E0)
	assert.True(t, errors.Is(err, ErrUnimplemented))
	assert.False(t, errors.Is(err, ErrUnmapped))

	assert.True(t, errors.Is(b.Write32(0x0E000000, 1), ErrUnimplemented))
	assert.True(t, errors.Is(b.Write16(0x0E000000, 1), ErrUnimplemented))
	_, err = b.Read32(0x0E000000)
	assert.True(t, errors.Is(err, ErrUnimplemented))
}

func TestInterruptAcknowledgeThroughBus(t *testing.T) {
	b, irqc, _ := newTestBus(t)
	assert.NoError(t, b.Write16(0x04000200, 1<<irq.Timer0))
	assert.NoError(t, b.Write16(0x04000208, 1))
	irqc.Raise(irq.Timer0)
	irqc.Raise(irq.DMA3)
	assert.True(t, irqc.ShouldInterrupt())

	assert.NoError(t, b.Write16(0x04000202, 1<<irq.Timer0))
	assert.False(t, irqc.ShouldInterrupt())
	v, err := b.Read16(0x04000202)
	assert.NoError(t, err)
	assert.Equal(t, uint16(1<<irq.DMA3), v)
}

func TestVideoByteWriteRules(t *testing.T) {
	b, _, v := newTestBus(t)

	assert.NoError(t, b.Write8(0x05000011, 0x7C))
	assert.Equal(t, byte(0x7C), v.pal[0x10])
	assert.Equal(t, byte(0x7C), v.pal[0x11])

	assert.NoError(t, b.Write8(0x06000002, 0x12))
	assert.Equal(t, byte(0x12), v.vram[3])
	assert.NoError(t, b.Write8(0x06010000, 0x34))
	assert.Equal(t, byte(0), v.vram[0x10000])

	assert.NoError(t, b.Write8(0x07000000, 0x56))
	assert.Equal(t, byte(0), v.oam[0])
	assert.NoError(t, b.Write16(0x07000402, 0xBEEF))
	assert.Equal(t, []uint32{2}, v.oamWrites)
}

func TestMirrors(t *testing.T) {
	b, _, v := newTestBus(t)
	assert.NoError(t, b.Write8(0x02040001, 0xAA))
	got, _ := b.Read8(0x02000001)
	assert.Equal(t, byte(0xAA), got)

	assert.NoError(t, b.Write32(0x03FFFFFC, 0x03007FA0))
	w, _ := b.Read32(0x03007FFC)
	assert.Equal(t, uint32(0x03007FA0), w)

	assert.NoError(t, b.Write16(0x06018000, 0x1234))
	assert.Equal(t, byte(0x34), v.vram[0x10000])
}

func TestWaitStatesFollowWAITCNT(t *testing.T) {
	b, _, _ := newTestBus(t)
	assert.Equal(t, 0, b.WaitStates(0x03000000, arm.Word, false))
	assert.Equal(t, 2, b.WaitStates(0x02000000, arm.Half, false))
	assert.Equal(t, 5, b.WaitStates(0x02000000, arm.Word, true))

	assert.Equal(t, 4, b.WaitStates(0x08000100, arm.Half, false))
	assert.Equal(t, 2, b.WaitStates(0x08000100, arm.Half, true))
	assert.Equal(t, 7, b.WaitStates(0x08000100, arm.Word, false))
	// a sequential access across a 128 KiB boundary is non-sequential
	assert.Equal(t, 4, b.WaitStates(0x08020000, arm.Half, true))

	// WS0 N=3, S=1
	assert.NoError(t, b.Write16(0x04000204, 0x0014))
	assert.Equal(t, 3, b.WaitStates(0x08000100, arm.Half, false))
	assert.Equal(t, 1, b.WaitStates(0x08000100, arm.Half, true))
	assert.Equal(t, 4, b.WaitStates(0x0E000000, arm.Byte, false))
}

func TestHaltcntInvokesHandler(t *testing.T) {
	b, _, _ := newTestBus(t)
	halted, stopped := 0, 0
	b.System.OnHalt = func() { halted++ }
	b.System.OnStop = func() { stopped++ }

	assert.NoError(t, b.Write8(0x04000301, 0))
	assert.NoError(t, b.Write8(0x04000301, 0x80))
	assert.Equal(t, 1, halted)
	assert.Equal(t, 1, stopped)
	v, _ := b.Read8(0x04000301)
	assert.Equal(t, byte(0), v)
}

func TestKeypadInputAndInterrupt(t *testing.T) {
	b, irqc, _ := newTestBus(t)
	v, _ := b.Read16(0x04000130)
	assert.Equal(t, uint16(0x03FF), v)

	assert.NoError(t, b.Write16(0x04000132, 0x4000|KeyStart))
	b.Keypad.SetPressed(KeyStart | KeyA)
	v, _ = b.Read16(0x04000130)
	assert.Equal(t, uint16(0x03FF&^(KeyStart|KeyA)), v)
	assert.Equal(t, uint16(1<<irq.Keypad), irqc.Request())
}

func TestSerialTransferEndsAfterShiftTime(t *testing.T) {
	b, irqc, _ := newTestBus(t)
	irqc.Write8(irq.RegIE, 1<<irq.Serial)
	assert.NoError(t, b.Write16(0x04000128, 0x4083)) // 2 MHz, 8 bit
	assert.True(t, b.Serial.Busy())
	for i := 0; i < 63; i++ {
		b.Serial.Step()
	}
	assert.Equal(t, uint16(0), irqc.Request())
	b.Serial.Step()
	assert.False(t, b.Serial.Busy())
	assert.Equal(t, uint16(1<<irq.Serial), irqc.Request())
	v, _ := b.Read16(0x04000128)
	assert.Equal(t, uint16(0x4003), v)
	v, _ = b.Read16(0x0400012A)
	assert.Equal(t, uint16(0x00FF), v)
}

func TestSerialHalfWordEqualsTwoByteWrites(t *testing.T) {
	run := func(write func(b *Bus)) uint16 {
		b, irqc, _ := newTestBus(t)
		irqc.Write8(irq.RegIE, 1<<irq.Serial)
		write(b)
		for b.Serial.Busy() {
			b.Serial.Step()
		}
		return irqc.Request()
	}
	half := run(func(b *Bus) { assert.NoError(t, b.Write16(0x04000128, 0x4080)) })
	lanes := run(func(b *Bus) {
		assert.NoError(t, b.Write8(0x04000128, 0x80))
		assert.NoError(t, b.Write8(0x04000129, 0x40))
	})
	if half != lanes || half != 1<<irq.Serial {
		t.Fatalf("IF got %04x (half-word) and %04x (two bytes) want %04x", half, lanes, 1<<irq.Serial)
	}
}

func TestCartridgeRegions(t *testing.T) {
	b, _, _ := newTestBus(t)
	v, err := b.Read16(0x08000200)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x0100), v)

	rom := make([]byte, 0x400)
	rom[0], rom[1], rom[2], rom[3] = 0xFE, 0xFF, 0xFF, 0xEA
	copy(rom[0x200:], "SRAM_V110")
	c, err := cart.New(rom)
	assert.NoError(t, err)
	b.AttachCartridge(c)

	w, err := b.Read32(0x0A000000) // wait state mirror
	assert.NoError(t, err)
	assert.Equal(t, uint32(0xEAFFFFFE), w)

	assert.NoError(t, b.Write8(0x0E000010, 0x99))
	s, err := b.Read8(0x0E000010)
	assert.NoError(t, err)
	assert.Equal(t, byte(0x99), s)
	h, err := b.Read16(0x0E000010)
	assert.NoError(t, err)
	assert.Equal(t, uint16(0x9999), h)
}
