package bus

import "github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"

// System control register offsets.
const (
	RegWAITCNT = 0x204
	RegPOSTFLG = 0x300
	RegHALTCNT = 0x301
)

// System holds WAITCNT, POSTFLG and HALTCNT.
type System struct {
	waitcnt uint16
	postflg byte

	// OnHalt is called when HALTCNT is written with bit 7 clear; OnStop when it is set.
	OnHalt func()
	OnStop func()
}

func (s *System) Reset() {
	s.waitcnt = 0
	s.postflg = 0
}

func (s *System) WaitCnt() uint16 { return s.waitcnt }
func (s *System) PostFlag() byte  { return s.postflg }

// SetPostFlag marks the boot as past the BIOS (as the BIOS does before jumping to the cartridge).
func (s *System) SetPostFlag(v byte) { s.postflg = v & 1 }

func (s *System) Read8(off uint32) byte {
	switch off {
	case RegWAITCNT:
		return byte(s.waitcnt)
	case RegWAITCNT + 1:
		return byte(s.waitcnt >> 8)
	case RegPOSTFLG:
		return s.postflg
	}
	return 0
}

func (s *System) Write8(off uint32, v byte) {
	switch off {
	case RegWAITCNT:
		s.waitcnt = s.waitcnt&0xFF00 | uint16(v)
	case RegWAITCNT + 1:
		// bit 15 (cartridge type) is read-only
		s.waitcnt = s.waitcnt&0x80FF | uint16(v&0x5F)<<8
	case RegPOSTFLG:
		s.postflg = v & 1
	case RegHALTCNT:
		if v&0x80 != 0 {
			if s.OnStop != nil {
				s.OnStop()
			}
			return
		}
		if s.OnHalt != nil {
			s.OnHalt()
		}
	}
}

var (
	waitN     = [4]int{4, 3, 2, 8}
	waitWS0S  = [2]int{2, 1}
	waitWS1S  = [2]int{4, 1}
	waitWS2S  = [2]int{8, 1}
	waitSRAMN = waitN
)

// romWaits returns the first (N) and sequential (S) wait counts for a ROM mirror.
func (s *System) romWaits(region uint32) (n, seq int) {
	w := s.waitcnt
	switch region {
	case 0x08, 0x09:
		return waitN[(w>>2)&3], waitWS0S[(w>>4)&1]
	case 0x0A, 0x0B:
		return waitN[(w>>5)&3], waitWS1S[(w>>7)&1]
	default:
		return waitN[(w>>8)&3], waitWS2S[(w>>10)&1]
	}
}

// WaitStates returns the cycles an access costs beyond the first one, per
// region, width, and N/S kind, following WAITCNT for the cartridge regions.
func (b *Bus) WaitStates(addr uint32, size arm.Size, seq bool) int {
	region := addr >> 24
	switch region {
	case 0x02:
		if size == arm.Word {
			return 5
		}
		return 2
	case 0x05, 0x06:
		if size == arm.Word {
			return 1
		}
		return 0
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D:
		n, s := b.System.romWaits(region)
		first := n
		// the ROM address counter wraps at 128 KiB boundaries, forcing an N access
		if seq && addr&0x1FFFF != 0 {
			first = s
		}
		if size == arm.Word {
			return first + 1 + s
		}
		return first
	case 0x0E, 0x0F:
		return waitSRAMN[b.System.waitcnt&3]
	}
	return 0
}
