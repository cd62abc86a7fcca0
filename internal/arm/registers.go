package arm

import "fmt"

// Mode is the processor mode held in CPSR bits 0-4.
type Mode uint32

const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1B
	ModeSystem     Mode = 0x1F
)

func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "USR"
	case ModeFIQ:
		return "FIQ"
	case ModeIRQ:
		return "IRQ"
	case ModeSupervisor:
		return "SVC"
	case ModeAbort:
		return "ABT"
	case ModeUndefined:
		return "UND"
	case ModeSystem:
		return "SYS"
	}
	return fmt.Sprintf("%02X", uint32(m))
}

// CPSR flag bits
const (
	FlagN uint32 = 1 << 31
	FlagZ uint32 = 1 << 30
	FlagC uint32 = 1 << 29
	FlagV uint32 = 1 << 28
	FlagI uint32 = 1 << 7
	FlagF uint32 = 1 << 6
	FlagT uint32 = 1 << 5

	modeMask uint32 = 0x1F
)

// bank indices; User and System share bank 0 and have no SPSR.
const (
	bankUser = iota
	bankFIQ
	bankIRQ
	bankSupervisor
	bankAbort
	bankUndefined
	numBanks
)

func bankOf(m Mode) int {
	switch m {
	case ModeFIQ:
		return bankFIQ
	case ModeIRQ:
		return bankIRQ
	case ModeSupervisor:
		return bankSupervisor
	case ModeAbort:
		return bankAbort
	case ModeUndefined:
		return bankUndefined
	}
	return bankUser
}

// Registers is the register file: the active R0-R15 and CPSR, plus the banked
// copies of the modes not currently selected. Exactly one bank is live in R.
type Registers struct {
	R    [16]uint32
	CPSR uint32

	r13  [numBanks]uint32
	r14  [numBanks]uint32
	spsr [numBanks]uint32

	// R8-R12 for FIQ and for every other mode
	fiqHigh [5]uint32
	usrHigh [5]uint32
}

func (r *Registers) Mode() Mode  { return Mode(r.CPSR & modeMask) }
func (r *Registers) Thumb() bool { return r.CPSR&FlagT != 0 }
func (r *Registers) PC() uint32  { return r.R[15] }

// SetMode switches the live bank. The vacated bank keeps its values.
func (r *Registers) SetMode(m Mode) {
	old := bankOf(r.Mode())
	next := bankOf(m)
	r.CPSR = (r.CPSR &^ modeMask) | uint32(m)
	if old == next {
		return
	}
	r.r13[old], r.r14[old] = r.R[13], r.R[14]
	if old == bankFIQ {
		copy(r.fiqHigh[:], r.R[8:13])
		copy(r.R[8:13], r.usrHigh[:])
	}
	if next == bankFIQ {
		copy(r.usrHigh[:], r.R[8:13])
		copy(r.R[8:13], r.fiqHigh[:])
	}
	r.R[13], r.R[14] = r.r13[next], r.r14[next]
}

// SetCPSR writes the whole status register, switching banks if the mode changes.
func (r *Registers) SetCPSR(v uint32) {
	r.SetMode(Mode(v & modeMask))
	r.CPSR = v
}

// SPSR returns the saved status of the current mode; User/System have none and read CPSR.
func (r *Registers) SPSR() uint32 {
	b := bankOf(r.Mode())
	if b == bankUser {
		return r.CPSR
	}
	return r.spsr[b]
}

func (r *Registers) SetSPSR(v uint32) {
	b := bankOf(r.Mode())
	if b == bankUser {
		return
	}
	r.spsr[b] = v
}

// Banked returns R13/R14 of mode m without switching to it.
func (r *Registers) Banked(m Mode) (sp, lr uint32) {
	b := bankOf(m)
	if b == bankOf(r.Mode()) {
		return r.R[13], r.R[14]
	}
	return r.r13[b], r.r14[b]
}

// SetBanked sets R13/R14 of mode m without switching to it.
func (r *Registers) SetBanked(m Mode, sp, lr uint32) {
	b := bankOf(m)
	if b == bankOf(r.Mode()) {
		r.R[13], r.R[14] = sp, lr
		return
	}
	r.r13[b], r.r14[b] = sp, lr
}

// userReg/setUserReg access the User bank regardless of mode (LDM/STM with S bit).
func (r *Registers) userReg(n int) uint32 {
	cur := bankOf(r.Mode())
	switch {
	case n >= 8 && n <= 12 && cur == bankFIQ:
		return r.usrHigh[n-8]
	case n == 13 && cur != bankUser:
		return r.r13[bankUser]
	case n == 14 && cur != bankUser:
		return r.r14[bankUser]
	}
	return r.R[n]
}

func (r *Registers) setUserReg(n int, v uint32) {
	cur := bankOf(r.Mode())
	switch {
	case n >= 8 && n <= 12 && cur == bankFIQ:
		r.usrHigh[n-8] = v
	case n == 13 && cur != bankUser:
		r.r13[bankUser] = v
	case n == 14 && cur != bankUser:
		r.r14[bankUser] = v
	default:
		r.R[n] = v
	}
}

func (r *Registers) flag(f uint32) bool { return r.CPSR&f != 0 }

func (r *Registers) setFlag(f uint32, on bool) {
	if on {
		r.CPSR |= f
	} else {
		r.CPSR &^= f
	}
}

func (r *Registers) setNZ(v uint32) {
	r.setFlag(FlagN, v&0x80000000 != 0)
	r.setFlag(FlagZ, v == 0)
}

func (r *Registers) String() string {
	flags := []byte("nzcvift")
	for i, f := range []uint32{FlagN, FlagZ, FlagC, FlagV, FlagI, FlagF, FlagT} {
		if r.CPSR&f != 0 {
			flags[i] -= 'a' - 'A'
		}
	}
	return fmt.Sprintf("r0=%08x r1=%08x r2=%08x r3=%08x r4=%08x r5=%08x r6=%08x r7=%08x\n"+
		"r8=%08x r9=%08x r10=%08x r11=%08x r12=%08x sp=%08x lr=%08x pc=%08x\n"+
		"cpsr=%08x [%s] %s",
		r.R[0], r.R[1], r.R[2], r.R[3], r.R[4], r.R[5], r.R[6], r.R[7],
		r.R[8], r.R[9], r.R[10], r.R[11], r.R[12], r.R[13], r.R[14], r.R[15],
		r.CPSR, flags, r.Mode())
}
