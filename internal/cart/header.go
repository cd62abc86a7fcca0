package cart

import (
	"errors"
	"strings"
)

const (
	headerStart = 0x00A0
	headerEnd   = 0x00BD

	fixedValue = 0x96 // at 0xB2 on every licensed cartridge
)

type Header struct {
	Title          string // 0xA0-0xAB (trimmed ASCII)
	GameCode       string // 0xAC-0xAF
	MakerCode      string // 0xB0-0xB1
	FixedValue     byte   // 0xB2, must be 0x96
	UnitCode       byte   // 0xB3
	DeviceType     byte   // 0xB4
	Version        byte   // 0xBC
	HeaderChecksum byte   // 0xBD

	// Decoded helpers (for logs)
	Region string
}

func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerEnd+1 {
		return nil, errors.New("ROM too small to contain header")
	}

	h := &Header{
		Title:          trimField(rom[0xA0:0xAC]),
		GameCode:       trimField(rom[0xAC:0xB0]),
		MakerCode:      trimField(rom[0xB0:0xB2]),
		FixedValue:     rom[0xB2],
		UnitCode:       rom[0xB3],
		DeviceType:     rom[0xB4],
		Version:        rom[0xBC],
		HeaderChecksum: rom[0xBD],
	}
	if len(h.GameCode) == 4 {
		h.Region = regionString(h.GameCode[3])
	}
	return h, nil
}

// HeaderChecksumOK verifies the complement check over 0xA0-0xBC.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < headerEnd+1 {
		return false
	}
	var sum byte
	for addr := headerStart; addr < headerEnd; addr++ {
		sum -= rom[addr]
	}
	return sum-0x19 == rom[headerEnd]
}

// trimField cuts at the first NUL and drops trailing padding.
func trimField(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " ")
}

func regionString(code byte) string {
	switch code {
	case 'J':
		return "Japan"
	case 'E':
		return "USA/English"
	case 'P':
		return "Europe"
	case 'D':
		return "German"
	case 'F':
		return "French"
	case 'I':
		return "Italian"
	case 'S':
		return "Spanish"
	default:
		return "Other/unknown"
	}
}
