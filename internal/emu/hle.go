package emu

import (
	"errors"
	"fmt"
	"math"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

// ErrUnimplementedSWI is returned for BIOS calls the built-in BIOS does not provide.
var ErrUnimplementedSWI = errors.New("unimplemented BIOS call")

// ErrDivideByZero is returned by Div and DivArm with a zero denominator,
// where a real BIOS never returns.
var ErrDivideByZero = errors.New("BIOS division by zero")

// BIOS call numbers.
const (
	swiHalt           = 0x02
	swiStop           = 0x03
	swiIntrWait       = 0x04
	swiVBlankIntrWait = 0x05
	swiDiv            = 0x06
	swiDivArm         = 0x07
	swiSqrt           = 0x08
	swiCpuSet         = 0x0B
	swiCpuFastSet     = 0x0C
)

// hleBIOS services software interrupts when no BIOS image is loaded.
type hleBIOS struct {
	irq *irq.Controller

	// waiting is set while IntrWait sleeps; the call is re-executed after every
	// interrupt until one of the requested sources has been flagged.
	waiting bool
}

func (h *hleBIOS) reset() { h.waiting = false }

func (h *hleBIOS) SWI(c *arm.CPU, number uint32) (bool, error) {
	r := &c.Regs.R
	switch number {
	case swiHalt, swiStop:
		c.Halt()
	case swiIntrWait:
		return true, h.intrWait(c, r[0] != 0, uint16(r[1]))
	case swiVBlankIntrWait:
		r[0], r[1] = 1, 1
		return true, h.intrWait(c, true, 1)
	case swiDiv:
		return true, div(c, int32(r[0]), int32(r[1]))
	case swiDivArm:
		return true, div(c, int32(r[1]), int32(r[0]))
	case swiSqrt:
		r[0] = uint32(math.Sqrt(float64(r[0])))
		c.AddInternalCycles(8)
	case swiCpuSet:
		return true, cpuSet(c, r[0], r[1], r[2])
	case swiCpuFastSet:
		return true, cpuFastSet(c, r[0], r[1], r[2])
	default:
		return false, fmt.Errorf("%w: swi %02x at %08x", ErrUnimplementedSWI, number, c.InstrAddr())
	}
	return true, nil
}

func (h *hleBIOS) intrWait(c *arm.CPU, discard bool, mask uint16) error {
	mem := c.Mem()
	flags, err := mem.Read16(irqCheckFlags)
	if err != nil {
		return err
	}
	if discard && !h.waiting {
		flags &^= mask
	}
	if flags&mask != 0 {
		h.waiting = false
		return mem.Write16(irqCheckFlags, flags&^mask)
	}
	if err := mem.Write16(irqCheckFlags, flags); err != nil {
		return err
	}
	h.waiting = true
	h.irq.SetMasterEnable(true)
	c.Halt()
	c.SetPC(c.InstrAddr())
	return nil
}

func div(c *arm.CPU, num, den int32) error {
	if den == 0 {
		return fmt.Errorf("%w at %08x", ErrDivideByZero, c.InstrAddr())
	}
	q := num / den
	c.Regs.R[0] = uint32(q)
	c.Regs.R[1] = uint32(num % den)
	if q < 0 {
		q = -q
	}
	c.Regs.R[3] = uint32(q)
	c.AddInternalCycles(20)
	return nil
}

// cpuSet copies or fills count units; bit 24 of ctrl keeps the source fixed,
// bit 26 selects 32-bit units.
func cpuSet(c *arm.CPU, src, dst, ctrl uint32) error {
	count := ctrl & 0x1FFFFF
	fill := ctrl&(1<<24) != 0
	mem := c.Mem()
	if ctrl&(1<<26) != 0 {
		src, dst = src&^3, dst&^3
		for i := uint32(0); i < count; i++ {
			v, err := mem.Read32(src)
			if err != nil {
				return err
			}
			if err := mem.Write32(dst, v); err != nil {
				return err
			}
			if !fill {
				src += 4
			}
			dst += 4
		}
	} else {
		src, dst = src&^1, dst&^1
		for i := uint32(0); i < count; i++ {
			v, err := mem.Read16(src)
			if err != nil {
				return err
			}
			if err := mem.Write16(dst, v); err != nil {
				return err
			}
			if !fill {
				src += 2
			}
			dst += 2
		}
	}
	c.AddInternalCycles(int(count))
	return nil
}

// cpuFastSet is cpuSet in 32-bit units with the count rounded up to eight words.
func cpuFastSet(c *arm.CPU, src, dst, ctrl uint32) error {
	count := (ctrl&0x1FFFFF + 7) &^ 7
	return cpuSet(c, src, dst, ctrl&(1<<24)|1<<26|count)
}
