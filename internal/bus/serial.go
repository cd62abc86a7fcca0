package bus

import "github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"

const (
	RegSIOData32 = 0x120
	RegSIOCNT    = 0x128
	RegSIOData8  = 0x12A
	RegRCNT      = 0x134
	RegJOYSTAT   = 0x158
)

// SIOCNT bits
const (
	sioFastClock = 1 << 1
	sioStart     = 1 << 7
	sio32Bit     = 1 << 12
	sioIRQ       = 1 << 14
)

// Serial is the link port register file. No cable is ever attached: a started
// transfer shifts in all ones and finishes after the time the selected clock
// and length would take. The IRQ enable is sampled when the transfer ends.
type Serial struct {
	irq *irq.Controller

	regs      [0x40]byte // 0x120-0x15F
	remaining int        // cycles until the running transfer ends; 0 when idle
}

func (s *Serial) Reset() {
	s.regs = [0x40]byte{}
	s.remaining = 0
}

func (s *Serial) Read8(off uint32) byte { return s.regs[off-RegSIOData32] }

func (s *Serial) Write8(off uint32, v byte) {
	s.regs[off-RegSIOData32] = v
	if off != RegSIOCNT {
		return
	}
	switch {
	case v&sioStart == 0:
		s.remaining = 0
	case s.remaining == 0:
		s.remaining = s.duration()
	}
}

func (s *Serial) control() uint16 {
	i := RegSIOCNT - RegSIOData32
	return uint16(s.regs[i]) | uint16(s.regs[i+1])<<8
}

// duration is the transfer time in bus cycles: 64 per bit at 256 KHz, 8 at 2 MHz.
func (s *Serial) duration() int {
	cnt := s.control()
	perBit := 64
	if cnt&sioFastClock != 0 {
		perBit = 8
	}
	n := 8
	if cnt&sio32Bit != 0 {
		n = 32
	}
	return n * perBit
}

// Busy reports whether a transfer is running.
func (s *Serial) Busy() bool { return s.remaining > 0 }

// Step advances a running transfer by one bus cycle.
func (s *Serial) Step() {
	if s.remaining == 0 {
		return
	}
	s.remaining--
	if s.remaining == 0 {
		s.finish()
	}
}

func (s *Serial) finish() {
	cnt := RegSIOCNT - RegSIOData32
	s.regs[cnt] &^= sioStart
	for j := 0; j < 8; j++ {
		s.regs[j] = 0xFF
	}
	s.regs[RegSIOData8-RegSIOData32] = 0xFF
	if s.control()&sioIRQ != 0 {
		s.irq.Raise(irq.Serial)
	}
}
