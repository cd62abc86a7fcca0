package arm

import "math/bits"

// Shift types in bits 5-6 of a shifted operand.
const (
	shiftLSL = iota
	shiftLSR
	shiftASR
	shiftROR
)

// shiftImm applies an immediate-amount shift. Amount 0 encodes LSL #0, LSR #32,
// ASR #32 and RRX respectively.
func shiftImm(typ, v, amt uint32, carry bool) (uint32, bool) {
	switch typ {
	case shiftLSL:
		if amt == 0 {
			return v, carry
		}
		return v << amt, v&(1<<(32-amt)) != 0
	case shiftLSR:
		if amt == 0 {
			return 0, v&0x80000000 != 0
		}
		return v >> amt, v&(1<<(amt-1)) != 0
	case shiftASR:
		if amt == 0 {
			if v&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amt), v&(1<<(amt-1)) != 0
	default:
		if amt == 0 { // RRX
			out := v >> 1
			if carry {
				out |= 0x80000000
			}
			return out, v&1 != 0
		}
		return bits.RotateLeft32(v, -int(amt)), v&(1<<(amt-1)) != 0
	}
}

// shiftReg applies a register-specified shift (amount from the bottom byte).
// Amount 0 leaves both value and carry untouched.
func shiftReg(typ, v, amt uint32, carry bool) (uint32, bool) {
	if amt == 0 {
		return v, carry
	}
	switch typ {
	case shiftLSL:
		switch {
		case amt < 32:
			return v << amt, v&(1<<(32-amt)) != 0
		case amt == 32:
			return 0, v&1 != 0
		}
		return 0, false
	case shiftLSR:
		switch {
		case amt < 32:
			return v >> amt, v&(1<<(amt-1)) != 0
		case amt == 32:
			return 0, v&0x80000000 != 0
		}
		return 0, false
	case shiftASR:
		if amt >= 32 {
			if v&0x80000000 != 0 {
				return 0xFFFFFFFF, true
			}
			return 0, false
		}
		return uint32(int32(v) >> amt), v&(1<<(amt-1)) != 0
	default:
		amt &= 31
		if amt == 0 {
			return v, v&0x80000000 != 0
		}
		return bits.RotateLeft32(v, -int(amt)), v&(1<<(amt-1)) != 0
	}
}

// addWithCarry returns a+b+cin with the resulting carry and overflow.
func addWithCarry(a, b uint32, cin bool) (res uint32, carry, overflow bool) {
	var ci uint32
	if cin {
		ci = 1
	}
	sum, c := bits.Add32(a, b, ci)
	res = sum
	carry = c != 0
	overflow = (a^res)&(b^res)&0x80000000 != 0
	return
}

// subWithCarry returns a-b-!cin; carry is NOT borrow, as on ARM.
func subWithCarry(a, b uint32, cin bool) (uint32, bool, bool) {
	return addWithCarry(a, ^b, cin)
}

// mulCycles is the number of internal cycles the multiplier takes for rs.
func mulCycles(rs uint32, signed bool) int {
	if signed {
		switch {
		case rs&0xFFFFFF00 == 0 || rs&0xFFFFFF00 == 0xFFFFFF00:
			return 1
		case rs&0xFFFF0000 == 0 || rs&0xFFFF0000 == 0xFFFF0000:
			return 2
		case rs&0xFF000000 == 0 || rs&0xFF000000 == 0xFF000000:
			return 3
		}
		return 4
	}
	switch {
	case rs&0xFFFFFF00 == 0:
		return 1
	case rs&0xFFFF0000 == 0:
		return 2
	case rs&0xFF000000 == 0:
		return 3
	}
	return 4
}

// rotateRead applies the ARM7 misaligned word load rotation.
func rotateRead(v, addr uint32) uint32 {
	return bits.RotateLeft32(v, -int((addr&3)*8))
}

func (c *CPU) setAddFlags(res uint32, carry, overflow bool) {
	c.Regs.setNZ(res)
	c.Regs.setFlag(FlagC, carry)
	c.Regs.setFlag(FlagV, overflow)
}
