package ppu

import (
	"encoding/binary"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

// Screen geometry and timing, in bus cycles.
const (
	Width  = 240
	Height = 160

	CyclesPerLine  = 1232
	HBlankStart    = 960
	Lines          = 228
	CyclesPerFrame = CyclesPerLine * Lines
)

// IO offsets of the display registers.
const (
	RegBase = 0x000
	RegEnd  = 0x05F

	RegDISPCNT  = 0x00
	RegDISPSTAT = 0x04
	RegVCOUNT   = 0x06
	RegBG0CNT   = 0x08
	RegBG0HOFS  = 0x10
	RegBG2PA    = 0x20
	RegBG2X     = 0x28
	RegBG2Y     = 0x2C
	RegWIN0H    = 0x40
	RegWIN0V    = 0x44
	RegWININ    = 0x48
	RegWINOUT   = 0x4A
	RegMOSAIC   = 0x4C
	RegBLDCNT   = 0x50
	RegBLDALPHA = 0x52
	RegBLDY     = 0x54
)

// DISPSTAT bits
const (
	statVBlank    = 1 << 0
	statHBlank    = 1 << 1
	statVCount    = 1 << 2
	statVBlankIRQ = 1 << 3
	statHBlankIRQ = 1 << 4
	statVCountIRQ = 1 << 5
)

// readable lists the registers that read back; the rest are write-only and read 0.
var readable = [RegEnd + 1]bool{
	0x00: true, 0x01: true, 0x02: true, 0x03: true, 0x04: true, 0x05: true, 0x06: true, 0x07: true,
	0x08: true, 0x09: true, 0x0A: true, 0x0B: true, 0x0C: true, 0x0D: true, 0x0E: true, 0x0F: true,
	0x48: true, 0x49: true, 0x4A: true, 0x4B: true,
	0x50: true, 0x51: true, 0x52: true, 0x53: true,
}

// PPU owns palette RAM, VRAM and OAM, the display registers and the frame buffers.
type PPU struct {
	irq *irq.Controller

	palette [0x400]byte
	vram    [0x18000]byte
	oam     [0x400]byte
	sprites [128]Sprite

	regs   [RegEnd + 1]byte
	vcount int
	dot    int

	// internal affine reference points of BG2 and BG3 (20.8 fixed point)
	refX, refY [2]int32

	front, back []byte
	frames      uint64

	// OnVBlank and OnHBlank start DMA channels waiting on those timings.
	OnVBlank func()
	OnHBlank func()
}

func New(irqc *irq.Controller) *PPU {
	p := &PPU{irq: irqc}
	p.front = make([]byte, Width*Height*4)
	p.back = make([]byte, Width*Height*4)
	p.Reset()
	return p
}

// Reset clears the registers and video memory. The affine matrices start as identity.
func (p *PPU) Reset() {
	p.palette = [0x400]byte{}
	p.vram = [0x18000]byte{}
	p.oam = [0x400]byte{}
	for i := range p.sprites {
		p.sprites[i] = decodeSprite(0, 0, 0)
	}
	p.regs = [RegEnd + 1]byte{}
	for _, off := range []uint32{RegBG2PA, RegBG2PA + 6, RegBG2PA + 0x10, RegBG2PA + 0x16} {
		p.setReg16(off, 0x0100)
	}
	p.vcount, p.dot = 0, 0
	p.refX, p.refY = [2]int32{}, [2]int32{}
	p.frames = 0
	for i := range p.front {
		p.front[i], p.back[i] = 0, 0
	}
	p.updateVCount()
}

func (p *PPU) Palette() []byte { return p.palette[:] }
func (p *PPU) VRAM() []byte    { return p.vram[:] }
func (p *PPU) OAM() []byte     { return p.oam[:] }

// ObjTileBase is where object tiles begin; bitmap modes take the lower half of that area.
func (p *PPU) ObjTileBase() uint32 {
	if p.mode() >= 3 {
		return 0x14000
	}
	return 0x10000
}

// OAMWritten refreshes the sprite projection of the entry containing off.
func (p *PPU) OAMWritten(off uint32) {
	i := (off & 0x3FF) / 8
	e := p.oam[i*8:]
	p.sprites[i] = decodeSprite(
		binary.LittleEndian.Uint16(e[0:]),
		binary.LittleEndian.Uint16(e[2:]),
		binary.LittleEndian.Uint16(e[4:]),
	)
}

// Sprite returns the decoded view of OAM entry i.
func (p *PPU) Sprite(i int) Sprite { return p.sprites[i] }

// Frame returns the last completed frame as RGBA. The slice is replaced, not
// overwritten, at the next VBlank.
func (p *PPU) Frame() []byte { return p.front }

// Frames counts completed frames.
func (p *PPU) Frames() uint64 { return p.frames }

func (p *PPU) VCount() int { return p.vcount }
func (p *PPU) Dot() int    { return p.dot }

// Step advances the display by the given number of bus cycles.
func (p *PPU) Step(cycles int) {
	for i := 0; i < cycles; i++ {
		p.dot++
		if p.dot == HBlankStart {
			p.enterHBlank()
		}
		if p.dot == CyclesPerLine {
			p.dot = 0
			p.nextLine()
		}
	}
}

func (p *PPU) enterHBlank() {
	p.regs[RegDISPSTAT] |= statHBlank
	if p.vcount < Height {
		p.renderLine(p.vcount)
		p.advanceAffine()
	}
	if p.regs[RegDISPSTAT]&statHBlankIRQ != 0 {
		p.irq.Raise(irq.HBlank)
	}
	if p.vcount < Height && p.OnHBlank != nil {
		p.OnHBlank()
	}
}

func (p *PPU) nextLine() {
	p.regs[RegDISPSTAT] &^= statHBlank
	p.vcount++
	switch p.vcount {
	case Height:
		p.enterVBlank()
	case Lines - 1:
		p.regs[RegDISPSTAT] &^= statVBlank
	case Lines:
		p.vcount = 0
	}
	p.updateVCount()
}

func (p *PPU) enterVBlank() {
	p.regs[RegDISPSTAT] |= statVBlank
	p.front, p.back = p.back, p.front
	p.frames++
	p.latchAffine(0)
	p.latchAffine(1)
	if p.regs[RegDISPSTAT]&statVBlankIRQ != 0 {
		p.irq.Raise(irq.VBlank)
	}
	if p.OnVBlank != nil {
		p.OnVBlank()
	}
}

func (p *PPU) updateVCount() {
	if p.vcount != int(p.regs[RegDISPSTAT+1]) {
		p.regs[RegDISPSTAT] &^= statVCount
		return
	}
	if p.regs[RegDISPSTAT]&statVCount != 0 {
		return
	}
	p.regs[RegDISPSTAT] |= statVCount
	if p.regs[RegDISPSTAT]&statVCountIRQ != 0 {
		p.irq.Raise(irq.VCount)
	}
}

// latchAffine reloads the internal reference point of BG2 (n=0) or BG3 (n=1).
func (p *PPU) latchAffine(n int) {
	base := uint32(RegBG2X + 0x10*n)
	p.refX[n] = signExtend28(p.reg32(base))
	p.refY[n] = signExtend28(p.reg32(base + 4))
}

// advanceAffine moves the reference points down one line by PB and PD.
func (p *PPU) advanceAffine() {
	for n := 0; n < 2; n++ {
		base := uint32(RegBG2PA + 0x10*n)
		p.refX[n] += int32(int16(p.reg16(base + 2)))
		p.refY[n] += int32(int16(p.reg16(base + 6)))
	}
}

func signExtend28(v uint32) int32 { return int32(v<<4) >> 4 }

func (p *PPU) mode() int { return int(p.regs[RegDISPCNT] & 7) }

func (p *PPU) reg16(off uint32) uint16 {
	return binary.LittleEndian.Uint16(p.regs[off:])
}

func (p *PPU) reg32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(p.regs[off:])
}

func (p *PPU) setReg16(off uint32, v uint16) {
	binary.LittleEndian.PutUint16(p.regs[off:], v)
}

func (p *PPU) Read8(off uint32) byte {
	if off > RegEnd || !readable[off] {
		return 0
	}
	if off == RegVCOUNT {
		return byte(p.vcount)
	}
	return p.regs[off]
}

func (p *PPU) Write8(off uint32, v byte) {
	switch {
	case off > RegEnd:
		return
	case off == RegDISPSTAT:
		p.regs[off] = p.regs[off]&7 | v&^7
		return
	case off == RegDISPSTAT+1:
		p.regs[off] = v
		p.updateVCount()
		return
	case off == RegVCOUNT || off == RegVCOUNT+1:
		return
	}
	p.regs[off] = v
	switch {
	case off >= RegBG2X && off < RegBG2X+8:
		p.latchAffine(0)
	case off >= RegBG2X+0x10 && off < RegBG2X+0x18:
		p.latchAffine(1)
	}
}
