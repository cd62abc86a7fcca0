package dma

import (
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

// IO offsets; channel n's registers start at RegBase + 12n.
const (
	RegBase = 0x0B0
	RegEnd  = 0x0DF

	chanStride = 12
)

// Timing is the start condition in CNT_H bits 12-13.
type Timing uint8

const (
	Immediate Timing = iota
	VBlank
	HBlank
	Special
)

// CNT_H bits
const (
	ctrlDstShift = 5
	ctrlSrcShift = 7
	ctrlRepeat   = 1 << 9
	ctrlWord     = 1 << 10
	ctrlIRQ      = 1 << 14
	ctrlEnable   = 1 << 15
)

// address step modes for source and destination
const (
	stepInc = iota
	stepDec
	stepFixed
	stepReload // destination only: increment, reload DAD on repeat
)

// Memory is the bus as seen by the DMA unit.
type Memory interface {
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
}

var (
	srcMask   = [4]uint32{0x07FFFFFF, 0x0FFFFFFF, 0x0FFFFFFF, 0x0FFFFFFF}
	dstMask   = [4]uint32{0x07FFFFFF, 0x07FFFFFF, 0x07FFFFFF, 0x0FFFFFFF}
	countMask = [4]uint16{0x3FFF, 0x3FFF, 0x3FFF, 0xFFFF}
)

// Channel is the register state of one DMA channel plus its internal latches.
type Channel struct {
	sad, dad uint32
	count    uint16
	control  uint16

	src, dst  uint32
	remaining uint32
	pending   bool
	fifo      bool
}

func (c *Channel) timing() Timing { return Timing(c.control>>12) & 3 }
func (c *Channel) enabled() bool  { return c.control&ctrlEnable != 0 }

// Controller owns the four channels. Lower channel numbers win the bus.
type Controller struct {
	irq *irq.Controller
	mem Memory
	ch  [4]Channel

	// OnGamePakLength receives the unit count of a transfer touching 0x0D000000
	// (how the EEPROM learns its address width).
	OnGamePakLength func(units int)
}

func New(irqc *irq.Controller, mem Memory) *Controller {
	return &Controller{irq: irqc, mem: mem}
}

func (c *Controller) Reset() { c.ch = [4]Channel{} }

// Active reports whether a channel owns the bus this cycle.
func (c *Controller) Active() bool {
	for i := range c.ch {
		if c.ch[i].pending {
			return true
		}
	}
	return false
}

// VBlank and HBlank start channels waiting on those timings.
func (c *Controller) VBlank() { c.trigger(VBlank) }
func (c *Controller) HBlank() { c.trigger(HBlank) }

func (c *Controller) trigger(t Timing) {
	for i := range c.ch {
		ch := &c.ch[i]
		if ch.enabled() && ch.timing() == t {
			ch.pending = true
		}
	}
}

// FIFORequest starts sound FIFO channel n (1 or 2) for four words into the fixed FIFO address.
func (c *Controller) FIFORequest(n int) {
	ch := &c.ch[n]
	if !ch.enabled() || ch.timing() != Special || ch.pending {
		return
	}
	ch.pending = true
	ch.fifo = true
	ch.remaining = 4
}

// RequestFIFO starts the sound channels whose destination is the FIFO at addr.
func (c *Controller) RequestFIFO(addr uint32) {
	for n := 1; n <= 2; n++ {
		if c.ch[n].dad == addr&dstMask[n] {
			c.FIFORequest(n)
		}
	}
}

// Step moves one unit for the highest priority pending channel.
func (c *Controller) Step() error {
	n := -1
	for i := range c.ch {
		if c.ch[i].pending {
			n = i
			break
		}
	}
	if n < 0 {
		return nil
	}
	ch := &c.ch[n]

	word := ch.control&ctrlWord != 0 || ch.fifo
	size := uint32(2)
	if word {
		size = 4
		v, err := c.mem.Read32(ch.src &^ 3)
		if err != nil {
			return err
		}
		if err := c.mem.Write32(ch.dst&^3, v); err != nil {
			return err
		}
	} else {
		v, err := c.mem.Read16(ch.src &^ 1)
		if err != nil {
			return err
		}
		if err := c.mem.Write16(ch.dst&^1, v); err != nil {
			return err
		}
	}

	ch.src = advance(ch.src, int(ch.control>>ctrlSrcShift)&3, size)
	if !ch.fifo {
		ch.dst = advance(ch.dst, int(ch.control>>ctrlDstShift)&3, size)
	}
	ch.remaining--
	if ch.remaining > 0 {
		return nil
	}
	c.finish(n)
	return nil
}

func advance(addr uint32, mode int, size uint32) uint32 {
	switch mode {
	case stepDec:
		return addr - size
	case stepFixed:
		return addr
	}
	return addr + size
}

func (c *Controller) finish(n int) {
	ch := &c.ch[n]
	ch.pending = false
	if ch.control&ctrlIRQ != 0 {
		c.irq.Raise(irq.DMA0 + irq.Source(n))
	}
	if ch.control&ctrlRepeat != 0 && ch.timing() != Immediate {
		ch.remaining = ch.units(n)
		if int(ch.control>>ctrlDstShift)&3 == stepReload {
			ch.dst = ch.dad
		}
		ch.fifo = false
		return
	}
	ch.fifo = false
	ch.control &^= ctrlEnable
}

func (ch *Channel) units(n int) uint32 {
	if ch.count == 0 {
		return uint32(countMask[n]) + 1
	}
	return uint32(ch.count)
}

func (c *Controller) setControl(n int, v uint16) {
	ch := &c.ch[n]
	wasOn := ch.enabled()
	ch.control = v
	if wasOn || !ch.enabled() {
		if !ch.enabled() {
			ch.pending = false
		}
		return
	}
	ch.src = ch.sad
	ch.dst = ch.dad
	ch.remaining = ch.units(n)
	ch.fifo = false
	if c.OnGamePakLength != nil && (ch.src>>24 == 0x0D || ch.dst>>24 == 0x0D) {
		c.OnGamePakLength(int(ch.remaining))
	}
	if ch.timing() == Immediate {
		ch.pending = true
	}
}

// Read8 exposes CNT_H; the address and count registers are write-only.
func (c *Controller) Read8(off uint32) byte {
	n := (off - RegBase) / chanStride
	if n > 3 {
		return 0
	}
	switch (off - RegBase) % chanStride {
	case 10:
		return byte(c.ch[n].control)
	case 11:
		return byte(c.ch[n].control >> 8)
	}
	return 0
}

func (c *Controller) Write8(off uint32, v byte) {
	n := int((off - RegBase) / chanStride)
	if n > 3 {
		return
	}
	ch := &c.ch[n]
	reg := (off - RegBase) % chanStride
	shift := (reg & 3) * 8
	switch {
	case reg < 4:
		ch.sad = (ch.sad&^(0xFF<<shift) | uint32(v)<<shift) & srcMask[n]
	case reg < 8:
		ch.dad = (ch.dad&^(0xFF<<shift) | uint32(v)<<shift) & dstMask[n]
	case reg < 10:
		ch.count = (ch.count&^(0xFF<<shift) | uint16(v)<<shift) & countMask[n]
	case reg == 10:
		c.setControl(n, ch.control&0xFF00|uint16(v))
	default:
		c.setControl(n, ch.control&0x00FF|uint16(v)<<8)
	}
}
