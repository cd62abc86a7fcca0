package bus

import (
	"fmt"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

// IOSize is the size of the IO register window at 0x04000000.
const IOSize = 0x400

// Peripheral is a block of IO registers. Offsets are relative to the IO base.
// Write-only registers read back as 0. Wider accesses reach a block as ordered
// byte lanes, low address first.
type Peripheral interface {
	Read8(off uint32) byte
	Write8(off uint32, v byte)
}

// AccessChecker is implemented by blocks that reject some access shapes,
// such as reads of a write-only FIFO.
type AccessChecker interface {
	Supports(off uint32, size arm.Size, write bool) bool
}

// Map registers p for the IO offsets [start, end]. Blocks are half-word
// aligned and may not overlap; wiring mistakes panic at construction.
func (b *Bus) Map(start, end uint32, p Peripheral) {
	if start&1 != 0 || end&1 == 0 || end >= IOSize {
		panic(fmt.Sprintf("bus: bad IO range %03x-%03x", start, end))
	}
	for off := start; off <= end; off++ {
		if b.io[off] != nil {
			panic(fmt.Sprintf("bus: IO offset %03x mapped twice", off))
		}
		b.io[off] = p
	}
}

func (b *Bus) ioBlock(op string, off uint32, size arm.Size) (Peripheral, error) {
	addr := ioBase + off
	if off >= IOSize {
		return nil, unmapped(op, addr, size)
	}
	p := b.io[off]
	if p == nil {
		return nil, unmapped(op, addr, size)
	}
	if chk, ok := p.(AccessChecker); ok && !chk.Supports(off, size, op == "write") {
		return nil, unimplemented(op, addr, size)
	}
	return p, nil
}

func (b *Bus) ioRead8(off uint32) (byte, error) {
	p, err := b.ioBlock("read", off, arm.Byte)
	if err != nil {
		return 0, err
	}
	return p.Read8(off), nil
}

func (b *Bus) ioRead16(off uint32) (uint16, error) {
	p, err := b.ioBlock("read", off, arm.Half)
	if err != nil {
		return 0, err
	}
	lo := p.Read8(off)
	hi := p.Read8(off + 1)
	return uint16(lo) | uint16(hi)<<8, nil
}

func (b *Bus) ioRead32(off uint32) (uint32, error) {
	lo, err := b.ioRead16(off)
	if err != nil {
		return 0, err
	}
	hi, err := b.ioRead16(off + 2)
	if err != nil {
		return 0, err
	}
	return uint32(lo) | uint32(hi)<<16, nil
}

func (b *Bus) ioWrite8(off uint32, v byte) error {
	p, err := b.ioBlock("write", off, arm.Byte)
	if err != nil {
		return err
	}
	p.Write8(off, v)
	return nil
}

func (b *Bus) ioWrite16(off uint32, v uint16) error {
	p, err := b.ioBlock("write", off, arm.Half)
	if err != nil {
		return err
	}
	p.Write8(off, byte(v))
	p.Write8(off+1, byte(v>>8))
	return nil
}

func (b *Bus) ioWrite32(off uint32, v uint32) error {
	if err := b.ioWrite16(off, uint16(v)); err != nil {
		return err
	}
	return b.ioWrite16(off+2, uint16(v>>16))
}
