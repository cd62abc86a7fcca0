package cart

import (
	"bytes"
	"errors"
	"fmt"
)

// MaxROMSize is the largest image the 25-bit cartridge address bus can reach.
const MaxROMSize = 32 << 20

// Kind is the detected backup medium.
type Kind int

const (
	None Kind = iota
	SRAM
	Flash64
	Flash128
	EEPROMKind
)

func (k Kind) String() string {
	switch k {
	case SRAM:
		return "SRAM"
	case Flash64:
		return "Flash 64K"
	case Flash128:
		return "Flash 128K"
	case EEPROMKind:
		return "EEPROM"
	default:
		return "none"
	}
}

// Backup is a battery or flash backed save medium. Bytes returns a copy for
// persistence; Load accepts data previously returned by Bytes.
type Backup interface {
	Kind() Kind
	Bytes() []byte
	Load(data []byte) error
}

// ByteBackup is a backup reachable on the 8-bit bus at 0x0E000000 (SRAM and Flash).
type ByteBackup interface {
	Backup
	Read8(off uint32) byte
	Write8(off uint32, v byte)
}

// ErrSaveSize is returned by Load for data that does not fit the medium.
var ErrSaveSize = errors.New("save data size does not match backup")

// signatures are the library ID strings linked into games, checked in order.
var signatures = []struct {
	id   string
	kind Kind
}{
	{"EEPROM_V", EEPROMKind},
	{"SRAM_F_V", SRAM},
	{"SRAM_V", SRAM},
	{"FLASH1M_V", Flash128},
	{"FLASH512_V", Flash64},
	{"FLASH_V", Flash64},
}

// DetectBackup scans the image for a backup library signature.
func DetectBackup(rom []byte) Kind {
	for _, s := range signatures {
		if bytes.Contains(rom, []byte(s.id)) {
			return s.kind
		}
	}
	return None
}

// Cartridge is an immutable ROM image plus its backup medium.
type Cartridge struct {
	rom    []byte
	header Header
	kind   Kind

	bytesBackup ByteBackup
	eeprom      *EEPROM
}

// New wraps rom. Images without a readable header are accepted with empty metadata.
func New(rom []byte) (*Cartridge, error) {
	if len(rom) == 0 {
		return nil, errors.New("empty ROM image")
	}
	if len(rom) > MaxROMSize {
		return nil, fmt.Errorf("ROM image of %d bytes exceeds %d", len(rom), MaxROMSize)
	}
	c := &Cartridge{rom: rom, kind: DetectBackup(rom)}
	if h, err := ParseHeader(rom); err == nil {
		c.header = *h
	}
	switch c.kind {
	case SRAM:
		c.bytesBackup = NewSRAM()
	case Flash64:
		c.bytesBackup = NewFlash(Flash64)
	case Flash128:
		c.bytesBackup = NewFlash(Flash128)
	case EEPROMKind:
		c.eeprom = NewEEPROM()
	}
	return c, nil
}

func (c *Cartridge) Title() string    { return c.header.Title }
func (c *Cartridge) GameCode() string { return c.header.GameCode }
func (c *Cartridge) Maker() string    { return c.header.MakerCode }
func (c *Cartridge) Header() Header   { return c.header }
func (c *Cartridge) Kind() Kind       { return c.kind }
func (c *Cartridge) Size() int        { return len(c.rom) }
func (c *Cartridge) EEPROM() *EEPROM  { return c.eeprom }

// Backup returns the save medium, or nil when the cartridge has none.
func (c *Cartridge) Backup() Backup {
	switch {
	case c.bytesBackup != nil:
		return c.bytesBackup
	case c.eeprom != nil:
		return c.eeprom
	}
	return nil
}

// OpenBus is the value a half-word read past the end of the image returns.
func OpenBus(off uint32) uint16 { return uint16(off >> 1) }

// Read16 reads the ROM half-word at off (relative to 0x08000000, any mirror).
func (c *Cartridge) Read16(off uint32) uint16 {
	off &= MaxROMSize - 2
	if int(off)+1 < len(c.rom) {
		return uint16(c.rom[off]) | uint16(c.rom[off+1])<<8
	}
	return OpenBus(off)
}

func (c *Cartridge) Read8(off uint32) byte {
	return byte(c.Read16(off&^1) >> ((off & 1) * 8))
}

func (c *Cartridge) Read32(off uint32) uint32 {
	off &^= 3
	return uint32(c.Read16(off)) | uint32(c.Read16(off+2))<<16
}

// IsEEPROM reports whether off (relative to 0x08000000) addresses the EEPROM
// rather than ROM. Large images leave only the top 256 bytes of 0x0D000000 to it.
func (c *Cartridge) IsEEPROM(off uint32) bool {
	if c.eeprom == nil || off < 0x05000000 {
		return false
	}
	if len(c.rom) > 16<<20 {
		return off >= 0x05FFFF00
	}
	return true
}

// BackupRead8 reads the 8-bit backup bus at 0x0E000000+off.
func (c *Cartridge) BackupRead8(off uint32) byte {
	if c.bytesBackup == nil {
		return 0xFF
	}
	return c.bytesBackup.Read8(off & 0xFFFF)
}

func (c *Cartridge) BackupWrite8(off uint32, v byte) {
	if c.bytesBackup != nil {
		c.bytesBackup.Write8(off&0xFFFF, v)
	}
}
