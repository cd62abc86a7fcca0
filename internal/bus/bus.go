package bus

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
)

// Region sizes and bases.
const (
	BIOSSize  = 16 * 1024
	EWRAMSize = 256 * 1024
	IWRAMSize = 32 * 1024

	ioBase      = 0x04000000
	memCtrlAddr = 0x04000800
)

// VideoMemory is the palette, VRAM and OAM storage owned by the picture unit.
// The bus applies the access rules; the owner only sees the resulting bytes.
type VideoMemory interface {
	Palette() []byte
	VRAM() []byte
	OAM() []byte
	// ObjTileBase is the VRAM offset where object tiles start (byte writes above it are ignored).
	ObjTileBase() uint32
	// OAMWritten is called after every store into OAM with the half-word offset written.
	OAMWritten(off uint32)
}

// Bus routes CPU and DMA accesses to memories and register blocks.
type Bus struct {
	log *log.Logger

	bios  [BIOSSize]byte
	ewram [EWRAMSize]byte
	iwram [IWRAMSize]byte

	io    [IOSize]Peripheral
	video VideoMemory
	cart  *cart.Cartridge

	System *System
	Keypad *Keypad
	Serial *Serial

	memCtrl uint32
}

// New returns a bus with its own system control, keypad and serial blocks mapped.
// irqc receives keypad and serial requests; the caller maps everything else.
func New(logger *log.Logger, irqc *irq.Controller) *Bus {
	b := &Bus{log: logger}
	b.System = &System{}
	b.Keypad = NewKeypad(irqc)
	b.Serial = &Serial{irq: irqc}
	b.Map(irq.RegIE, irq.RegIF+1, irqc)
	b.Map(irq.RegIME, irq.RegIME+3, irqc)
	b.Map(RegWAITCNT, RegWAITCNT+3, b.System)
	b.Map(RegPOSTFLG, RegPOSTFLG+3, b.System)
	b.Map(RegKEYINPUT, RegKEYCNT+1, b.Keypad)
	b.Map(RegSIOData32, RegSIOData8+5, b.Serial)
	b.Map(RegRCNT, RegJOYSTAT+7, b.Serial)
	b.Reset()
	return b
}

// Reset clears the work RAMs and restores the register blocks the bus owns.
func (b *Bus) Reset() {
	b.ewram = [EWRAMSize]byte{}
	b.iwram = [IWRAMSize]byte{}
	b.System.Reset()
	b.Keypad.Reset()
	b.Serial.Reset()
	b.memCtrl = 0x0D000020
}

// LoadBIOS installs a BIOS image of at most 16 KiB.
func (b *Bus) LoadBIOS(img []byte) error {
	if len(img) > BIOSSize {
		return fmt.Errorf("BIOS image of %d bytes exceeds %d", len(img), BIOSSize)
	}
	b.bios = [BIOSSize]byte{}
	copy(b.bios[:], img)
	return nil
}

func (b *Bus) AttachVideo(v VideoMemory)         { b.video = v }
func (b *Bus) AttachCartridge(c *cart.Cartridge) { b.cart = c }
func (b *Bus) Cartridge() *cart.Cartridge        { return b.cart }

// --- region helpers ---

func vramOffset(addr uint32) uint32 {
	off := addr & 0x1FFFF
	if off >= 0x18000 {
		off -= 0x8000
	}
	return off
}

func (b *Bus) videoMem(addr uint32) ([]byte, uint32, bool) {
	if b.video == nil {
		return nil, 0, false
	}
	switch addr >> 24 {
	case 0x05:
		return b.video.Palette(), addr & 0x3FF, true
	case 0x06:
		return b.video.VRAM(), vramOffset(addr), true
	case 0x07:
		return b.video.OAM(), addr & 0x3FF, true
	}
	return nil, 0, false
}

func (b *Bus) cartOffset(addr uint32) uint32 { return addr - 0x08000000 }

// --- reads ---

func (b *Bus) Read8(addr uint32) (byte, error) {
	switch addr >> 24 {
	case 0x00:
		if addr < BIOSSize {
			return b.bios[addr], nil
		}
	case 0x02:
		return b.ewram[addr&(EWRAMSize-1)], nil
	case 0x03:
		return b.iwram[addr&(IWRAMSize-1)], nil
	case 0x04:
		if addr&^3 == memCtrlAddr {
			return byte(b.memCtrl >> ((addr & 3) * 8)), nil
		}
		return b.ioRead8(addr - ioBase)
	case 0x05, 0x06, 0x07:
		if mem, off, ok := b.videoMem(addr); ok {
			return mem[off], nil
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		if b.cart == nil {
			return byte(cart.OpenBus(b.cartOffset(addr)&^1) >> ((addr & 1) * 8)), nil
		}
		return b.cart.Read8(b.cartOffset(addr)), nil
	case 0x0E, 0x0F:
		if b.cart == nil {
			return 0xFF, nil
		}
		return b.cart.BackupRead8(addr), nil
	}
	return 0, unmapped("read", addr, arm.Byte)
}

func (b *Bus) Read16(addr uint32) (uint16, error) {
	addr &^= 1
	switch addr >> 24 {
	case 0x00:
		if addr < BIOSSize {
			return binary.LittleEndian.Uint16(b.bios[addr:]), nil
		}
	case 0x02:
		return binary.LittleEndian.Uint16(b.ewram[addr&(EWRAMSize-1):]), nil
	case 0x03:
		return binary.LittleEndian.Uint16(b.iwram[addr&(IWRAMSize-1):]), nil
	case 0x04:
		if addr&^3 == memCtrlAddr {
			return uint16(b.memCtrl >> ((addr & 2) * 8)), nil
		}
		return b.ioRead16(addr - ioBase)
	case 0x05, 0x06, 0x07:
		if mem, off, ok := b.videoMem(addr); ok {
			return binary.LittleEndian.Uint16(mem[off:]), nil
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		off := b.cartOffset(addr)
		if b.cart == nil {
			return cart.OpenBus(off), nil
		}
		if b.cart.IsEEPROM(off) {
			return b.cart.EEPROM().Read16(), nil
		}
		return b.cart.Read16(off), nil
	case 0x0E, 0x0F:
		// the 8-bit backup bus replicates the byte on both lanes
		v, _ := b.Read8(addr)
		return uint16(v) * 0x0101, nil
	}
	return 0, unmapped("read", addr, arm.Half)
}

func (b *Bus) Read32(addr uint32) (uint32, error) {
	addr &^= 3
	switch addr >> 24 {
	case 0x00:
		if addr < BIOSSize {
			return binary.LittleEndian.Uint32(b.bios[addr:]), nil
		}
	case 0x02:
		return binary.LittleEndian.Uint32(b.ewram[addr&(EWRAMSize-1):]), nil
	case 0x03:
		return binary.LittleEndian.Uint32(b.iwram[addr&(IWRAMSize-1):]), nil
	case 0x04:
		if addr == memCtrlAddr {
			return b.memCtrl, nil
		}
		return b.ioRead32(addr - ioBase)
	case 0x05, 0x06, 0x07:
		if mem, off, ok := b.videoMem(addr); ok {
			return binary.LittleEndian.Uint32(mem[off:]), nil
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		off := b.cartOffset(addr)
		if b.cart == nil {
			return uint32(cart.OpenBus(off)) | uint32(cart.OpenBus(off+2))<<16, nil
		}
		if b.cart.IsEEPROM(off) {
			return 0, unimplemented("read", addr, arm.Word)
		}
		return b.cart.Read32(off), nil
	case 0x0E, 0x0F:
		return 0, unimplemented("read", addr, arm.Word)
	}
	return 0, unmapped("read", addr, arm.Word)
}

// Peek reads go through the normal path, side effects included.
func (b *Bus) Peek8(addr uint32) (byte, error)    { return b.Read8(addr) }
func (b *Bus) Peek16(addr uint32) (uint16, error) { return b.Read16(addr) }
func (b *Bus) Peek32(addr uint32) (uint32, error) { return b.Read32(addr) }

// --- writes ---

func (b *Bus) Write8(addr uint32, v byte) error {
	switch addr >> 24 {
	case 0x00:
		if addr < BIOSSize {
			b.log.Debug("ignored BIOS write", log.String("addr", fmt.Sprintf("%08x", addr)))
			return nil
		}
	case 0x02:
		b.ewram[addr&(EWRAMSize-1)] = v
		return nil
	case 0x03:
		b.iwram[addr&(IWRAMSize-1)] = v
		return nil
	case 0x04:
		if addr&^3 == memCtrlAddr {
			shift := (addr & 3) * 8
			b.memCtrl = b.memCtrl&^(0xFF<<shift) | uint32(v)<<shift
			return nil
		}
		return b.ioWrite8(addr-ioBase, v)
	case 0x05, 0x06:
		// palette and background VRAM store the byte on both lanes; object VRAM ignores it
		if mem, off, ok := b.videoMem(addr); ok {
			if addr>>24 == 0x06 && off >= b.video.ObjTileBase() {
				return nil
			}
			off &^= 1
			mem[off], mem[off+1] = v, v
			return nil
		}
	case 0x07:
		if b.video != nil {
			return nil // OAM ignores byte writes
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		return nil
	case 0x0E, 0x0F:
		if b.cart != nil {
			b.cart.BackupWrite8(addr, v)
		}
		return nil
	}
	return unmapped("write", addr, arm.Byte)
}

func (b *Bus) Write16(addr uint32, v uint16) error {
	addr &^= 1
	switch addr >> 24 {
	case 0x00:
		if addr < BIOSSize {
			return nil
		}
	case 0x02:
		binary.LittleEndian.PutUint16(b.ewram[addr&(EWRAMSize-1):], v)
		return nil
	case 0x03:
		binary.LittleEndian.PutUint16(b.iwram[addr&(IWRAMSize-1):], v)
		return nil
	case 0x04:
		if addr&^3 == memCtrlAddr {
			shift := (addr & 2) * 8
			b.memCtrl = b.memCtrl&^(0xFFFF<<shift) | uint32(v)<<shift
			return nil
		}
		return b.ioWrite16(addr-ioBase, v)
	case 0x05, 0x06, 0x07:
		if mem, off, ok := b.videoMem(addr); ok {
			binary.LittleEndian.PutUint16(mem[off:], v)
			if addr>>24 == 0x07 {
				b.video.OAMWritten(off)
			}
			return nil
		}
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		if off := b.cartOffset(addr); b.cart != nil && b.cart.IsEEPROM(off) {
			b.cart.EEPROM().Write16(v)
		}
		return nil
	case 0x0E, 0x0F:
		return unimplemented("write", addr, arm.Half)
	}
	return unmapped("write", addr, arm.Half)
}

func (b *Bus) Write32(addr uint32, v uint32) error {
	addr &^= 3
	switch addr >> 24 {
	case 0x04:
		if addr == memCtrlAddr {
			b.memCtrl = v
			return nil
		}
		return b.ioWrite32(addr-ioBase, v)
	case 0x05, 0x06, 0x07:
		if mem, off, ok := b.videoMem(addr); ok {
			binary.LittleEndian.PutUint32(mem[off:], v)
			if addr>>24 == 0x07 {
				b.video.OAMWritten(off)
				b.video.OAMWritten(off + 2)
			}
			return nil
		}
	case 0x0D:
		if off := b.cartOffset(addr); b.cart != nil && b.cart.IsEEPROM(off) {
			return unimplemented("write", addr, arm.Word)
		}
		return nil
	case 0x0E, 0x0F:
		return unimplemented("write", addr, arm.Word)
	}
	if err := b.Write16(addr, uint16(v)); err != nil {
		return rewidth(err, arm.Word)
	}
	return b.Write16(addr+2, uint16(v>>16))
}

// rewidth reports a failed half of a word access as the word access itself.
func rewidth(err error, size arm.Size) error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{Op: e.Op, Addr: e.Addr, Size: size, Err: e.Err}
	}
	return err
}
