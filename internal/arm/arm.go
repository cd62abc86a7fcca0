package arm

import (
	"math/bits"
)

func (c *CPU) execARM(op uint32) {
	if !c.condition(op >> 28) {
		return
	}

	switch {
	case op&0x0FFFFFF0 == 0x012FFF10:
		c.armBX(op)
	case op&0x0FC000F0 == 0x00000090:
		c.armMultiply(op)
	case op&0x0F8000F0 == 0x00800090:
		c.armMultiplyLong(op)
	case op&0x0FB00FF0 == 0x01000090:
		c.armSwap(op)
	case op&0x0E000090 == 0x00000090 && op&0x60 != 0:
		c.armHalfTransfer(op)
	case op&0x0FBF0FFF == 0x010F0000:
		c.armMRS(op)
	case op&0x0DB0F000 == 0x0120F000:
		c.armMSR(op)
	case op&0x0C000000 == 0x00000000:
		c.armDataProcessing(op)
	case op&0x0E000010 == 0x06000010:
		c.undefined()
	case op&0x0C000000 == 0x04000000:
		c.armSingleTransfer(op)
	case op&0x0E000000 == 0x08000000:
		c.armBlockTransfer(op)
	case op&0x0E000000 == 0x0A000000:
		c.armBranch(op)
	case op&0x0F000000 == 0x0F000000:
		c.softwareInterrupt((op >> 16) & 0xFF)
	default:
		// coprocessor space; nothing is attached
		c.undefined()
	}
}

func (c *CPU) armBX(op uint32) {
	v := c.reg(int(op & 0xF))
	c.Regs.setFlag(FlagT, v&1 != 0)
	c.branchTo(v)
}

func (c *CPU) armBranch(op uint32) {
	off := uint32(int32(op<<8) >> 6)
	if op&(1<<24) != 0 {
		c.Regs.R[14] = c.instrAddr + 4
	}
	c.branchTo(c.reg(15) + off)
}

func (c *CPU) armDataProcessing(op uint32) {
	opcode := (op >> 21) & 0xF
	setFlags := op&(1<<20) != 0
	rn := int((op >> 16) & 0xF)
	rd := int((op >> 12) & 0xF)

	carry := c.Regs.flag(FlagC)
	shCarry := carry
	var op2 uint32
	var pcExtra uint32

	if op&(1<<25) != 0 {
		rot := ((op >> 8) & 0xF) * 2
		op2 = bits.RotateLeft32(op&0xFF, -int(rot))
		if rot != 0 {
			shCarry = op2&0x80000000 != 0
		}
	} else {
		rm := int(op & 0xF)
		typ := (op >> 5) & 3
		if op&(1<<4) != 0 {
			// register-specified shift reads PC one word further on
			c.internal(1)
			pcExtra = 4
			v := c.reg(rm)
			if rm == 15 {
				v += pcExtra
			}
			op2, shCarry = shiftReg(typ, v, c.reg(int((op>>8)&0xF))&0xFF, carry)
		} else {
			op2, shCarry = shiftImm(typ, c.reg(rm), (op>>7)&0x1F, carry)
		}
	}

	a := c.reg(rn)
	if rn == 15 {
		a += pcExtra
	}

	var res uint32
	logical := false
	cout, vout := carry, c.Regs.flag(FlagV)
	switch opcode {
	case 0x0, 0x8: // AND, TST
		res, logical = a&op2, true
	case 0x1, 0x9: // EOR, TEQ
		res, logical = a^op2, true
	case 0x2, 0xA: // SUB, CMP
		res, cout, vout = subWithCarry(a, op2, true)
	case 0x3: // RSB
		res, cout, vout = subWithCarry(op2, a, true)
	case 0x4, 0xB: // ADD, CMN
		res, cout, vout = addWithCarry(a, op2, false)
	case 0x5: // ADC
		res, cout, vout = addWithCarry(a, op2, carry)
	case 0x6: // SBC
		res, cout, vout = subWithCarry(a, op2, carry)
	case 0x7: // RSC
		res, cout, vout = subWithCarry(op2, a, carry)
	case 0xC: // ORR
		res, logical = a|op2, true
	case 0xD: // MOV
		res, logical = op2, true
	case 0xE: // BIC
		res, logical = a&^op2, true
	case 0xF: // MVN
		res, logical = ^op2, true
	}
	test := opcode >= 0x8 && opcode <= 0xB

	if setFlags && rd == 15 {
		// exception return: restore CPSR from SPSR before the jump so the T bit applies
		c.Regs.SetCPSR(c.Regs.SPSR())
		if !test {
			c.branchTo(res)
		}
		return
	}
	if setFlags {
		c.Regs.setNZ(res)
		if logical {
			c.Regs.setFlag(FlagC, shCarry)
		} else {
			c.Regs.setFlag(FlagC, cout)
			c.Regs.setFlag(FlagV, vout)
		}
	}
	if !test {
		c.setReg(rd, res)
	}
}

func (c *CPU) armMRS(op uint32) {
	rd := int((op >> 12) & 0xF)
	if op&(1<<22) != 0 {
		c.Regs.R[rd] = c.Regs.SPSR()
	} else {
		c.Regs.R[rd] = c.Regs.CPSR
	}
}

func (c *CPU) armMSR(op uint32) {
	var v uint32
	if op&(1<<25) != 0 {
		v = bits.RotateLeft32(op&0xFF, -int(((op>>8)&0xF)*2))
	} else {
		v = c.reg(int(op & 0xF))
	}
	var mask uint32
	for i := uint32(0); i < 4; i++ {
		if op&(1<<(16+i)) != 0 {
			mask |= 0xFF << (8 * i)
		}
	}
	if op&(1<<22) != 0 {
		c.Regs.SetSPSR(c.Regs.SPSR()&^mask | v&mask)
		return
	}
	if c.Regs.Mode() == ModeUser {
		mask &= 0xFF000000
	}
	// the T bit is not writable through MSR
	mask &^= FlagT
	c.Regs.SetCPSR(c.Regs.CPSR&^mask | v&mask)
}

func (c *CPU) armMultiply(op uint32) {
	rd := int((op >> 16) & 0xF)
	rn := int((op >> 12) & 0xF)
	rs := c.reg(int((op >> 8) & 0xF))
	rm := c.reg(int(op & 0xF))

	res := rm * rs
	c.internal(mulCycles(rs, true))
	if op&(1<<21) != 0 {
		res += c.reg(rn)
		c.internal(1)
	}
	c.setReg(rd, res)
	if op&(1<<20) != 0 {
		c.Regs.setNZ(res)
	}
}

func (c *CPU) armMultiplyLong(op uint32) {
	rdHi := int((op >> 16) & 0xF)
	rdLo := int((op >> 12) & 0xF)
	rs := c.reg(int((op >> 8) & 0xF))
	rm := c.reg(int(op & 0xF))
	signed := op&(1<<22) != 0

	var res uint64
	if signed {
		res = uint64(int64(int32(rm)) * int64(int32(rs)))
	} else {
		res = uint64(rm) * uint64(rs)
	}
	c.internal(mulCycles(rs, signed) + 1)
	if op&(1<<21) != 0 {
		res += uint64(c.reg(rdHi))<<32 | uint64(c.reg(rdLo))
		c.internal(1)
	}
	c.setReg(rdLo, uint32(res))
	c.setReg(rdHi, uint32(res>>32))
	if op&(1<<20) != 0 {
		c.Regs.setFlag(FlagN, res>>63 != 0)
		c.Regs.setFlag(FlagZ, res == 0)
	}
}

func (c *CPU) armSwap(op uint32) {
	addr := c.reg(int((op >> 16) & 0xF))
	rd := int((op >> 12) & 0xF)
	src := c.reg(int(op & 0xF))
	if op&(1<<22) != 0 {
		c.load8(addr, func(v byte) { c.put(rd, uint32(v)) })
		c.store8(addr, byte(src))
	} else {
		c.load32(addr, func(v uint32) { c.put(rd, rotateRead(v, addr)) })
		c.store32(addr, src)
	}
	c.internal(1)
}

func (c *CPU) armHalfTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	writeBack := op&(1<<21) != 0 || !pre
	load := op&(1<<20) != 0
	rn := int((op >> 16) & 0xF)
	rd := int((op >> 12) & 0xF)

	var off uint32
	if op&(1<<22) != 0 {
		off = (op>>4)&0xF0 | op&0xF
	} else {
		off = c.reg(int(op & 0xF))
	}
	base := c.reg(rn)
	target := base - off
	if up {
		target = base + off
	}
	addr := base
	if pre {
		addr = target
	}

	if !load {
		v := c.reg(rd)
		if rd == 15 {
			v += 4
		}
		c.store16(addr, uint16(v))
		if writeBack {
			c.then(func() { c.put(rn, target) })
		}
		return
	}

	// the loaded value wins over the written-back base when rd == rn
	set := func(v uint32) {
		if writeBack {
			c.put(rn, target)
		}
		c.put(rd, v)
	}
	signedByte := func(v byte) { set(uint32(int32(int8(v)))) }
	switch (op >> 5) & 3 {
	case 1: // LDRH
		c.load16(addr, func(v uint16) { set(bits.RotateLeft32(uint32(v), -int((addr&1)*8))) })
	case 2: // LDRSB
		c.load8(addr, signedByte)
	case 3: // LDRSH; misaligned behaves as LDRSB
		if addr&1 != 0 {
			c.load8(addr, signedByte)
		} else {
			c.load16(addr, func(v uint16) { set(uint32(int32(int16(v)))) })
		}
	}
	c.internal(1)
}

func (c *CPU) armSingleTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	byteSize := op&(1<<22) != 0
	writeBack := op&(1<<21) != 0 || !pre
	load := op&(1<<20) != 0
	rn := int((op >> 16) & 0xF)
	rd := int((op >> 12) & 0xF)

	var off uint32
	if op&(1<<25) == 0 {
		off = op & 0xFFF
	} else {
		off, _ = shiftImm((op>>5)&3, c.reg(int(op&0xF)), (op>>7)&0x1F, c.Regs.flag(FlagC))
	}
	base := c.reg(rn)
	target := base - off
	if up {
		target = base + off
	}
	addr := base
	if pre {
		addr = target
	}

	if !load {
		v := c.reg(rd)
		if rd == 15 {
			v += 4
		}
		if byteSize {
			c.store8(addr, byte(v))
		} else {
			c.store32(addr, v)
		}
		if writeBack {
			c.then(func() { c.put(rn, target) })
		}
		return
	}

	set := func(v uint32) {
		if writeBack {
			c.put(rn, target)
		}
		c.put(rd, v)
	}
	if byteSize {
		c.load8(addr, func(v byte) { set(uint32(v)) })
	} else {
		c.load32(addr, func(v uint32) { set(rotateRead(v, addr)) })
	}
	c.internal(1)
}

func (c *CPU) armBlockTransfer(op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	psr := op&(1<<22) != 0
	writeBack := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn := int((op >> 16) & 0xF)
	list := uint16(op)

	n := uint32(bits.OnesCount16(list))
	if n == 0 {
		c.internal(1)
		return
	}
	base := c.reg(rn)
	var start, newBase uint32
	switch {
	case up && !pre: // IA
		start, newBase = base, base+4*n
	case up && pre: // IB
		start, newBase = base+4, base+4*n
	case !up && !pre: // DA
		start, newBase = base-4*n+4, base-4*n
	default: // DB
		start, newBase = base-4*n, base-4*n
	}

	// S bit without R15 in a load (or any store) moves the User bank
	userBank := psr && (!load || list&0x8000 == 0)

	addr := start
	if !load {
		first := true
		for r := 0; r < 16; r++ {
			if list&(1<<r) == 0 {
				continue
			}
			var v uint32
			switch {
			case userBank:
				v = c.Regs.userReg(r)
			case r == rn && writeBack && !first:
				v = newBase
			default:
				v = c.reg(r)
			}
			if r == 15 {
				v += 4
			}
			c.store32(addr, v)
			addr += 4
			first = false
		}
		if writeBack {
			c.then(func() { c.put(rn, newBase) })
		}
		return
	}

	// the base is written back with the first load so a loaded base wins
	first := writeBack
	for r := 0; r < 16; r++ {
		if list&(1<<r) == 0 {
			continue
		}
		wb := first
		first = false
		c.load32(addr, func(v uint32) {
			if wb {
				c.put(rn, newBase)
			}
			switch {
			case userBank:
				c.Regs.setUserReg(r, v)
			case r == 15:
				if psr {
					c.Regs.SetCPSR(c.Regs.SPSR())
				}
				c.jump(v)
			default:
				c.Regs.R[r] = v
			}
		})
		addr += 4
	}
	c.internal(1)
}
