package arm

import "math/bits"

func (c *CPU) execThumb(op uint16) {
	switch {
	case op&0xF800 == 0x1800:
		c.thumbAddSub(op)
	case op&0xE000 == 0x0000:
		c.thumbShift(op)
	case op&0xE000 == 0x2000:
		c.thumbImmediate(op)
	case op&0xFC00 == 0x4000:
		c.thumbALU(op)
	case op&0xFC00 == 0x4400:
		c.thumbHiReg(op)
	case op&0xF800 == 0x4800:
		addr := (c.reg(15) &^ 2) + uint32(op&0xFF)*4
		rd := (op >> 8) & 7
		c.load32(addr, func(v uint32) { c.Regs.R[rd] = v })
		c.internal(1)
	case op&0xF200 == 0x5000:
		c.thumbTransferReg(op)
	case op&0xF200 == 0x5200:
		c.thumbTransferSigned(op)
	case op&0xE000 == 0x6000:
		c.thumbTransferImm(op)
	case op&0xF000 == 0x8000:
		c.thumbTransferHalf(op)
	case op&0xF000 == 0x9000:
		c.thumbTransferSP(op)
	case op&0xF000 == 0xA000:
		rd := (op >> 8) & 7
		off := uint32(op&0xFF) * 4
		if op&0x0800 != 0 {
			c.Regs.R[rd] = c.reg(13) + off
		} else {
			c.Regs.R[rd] = (c.reg(15) &^ 2) + off
		}
	case op&0xFF00 == 0xB000:
		off := uint32(op&0x7F) * 4
		if op&0x80 != 0 {
			c.Regs.R[13] -= off
		} else {
			c.Regs.R[13] += off
		}
	case op&0xF600 == 0xB400:
		c.thumbPushPop(op)
	case op&0xF000 == 0xC000:
		c.thumbMultiple(op)
	case op&0xFF00 == 0xDF00:
		c.softwareInterrupt(uint32(op & 0xFF))
	case op&0xFF00 == 0xDE00:
		c.undefined()
	case op&0xF000 == 0xD000:
		if c.condition(uint32(op>>8) & 0xF) {
			c.branchTo(c.reg(15) + uint32(int32(int8(op))<<1))
		}
	case op&0xF800 == 0xE000:
		c.branchTo(c.reg(15) + uint32(int32(uint32(op)<<21)>>20))
	case op&0xF800 == 0xF000:
		// BL first half: high part of the offset into LR
		c.Regs.R[14] = c.reg(15) + uint32(int32(uint32(op)<<21)>>9)
	case op&0xF800 == 0xF800:
		next := c.instrAddr + 2
		c.branchTo(c.Regs.R[14] + uint32(op&0x7FF)<<1)
		c.Regs.R[14] = next | 1
	default:
		c.undefined()
	}
}

func (c *CPU) thumbShift(op uint16) {
	rd := op & 7
	v := c.Regs.R[(op>>3)&7]
	res, carry := shiftImm(uint32(op>>11)&3, v, uint32(op>>6)&0x1F, c.Regs.flag(FlagC))
	c.Regs.R[rd] = res
	c.Regs.setNZ(res)
	c.Regs.setFlag(FlagC, carry)
}

func (c *CPU) thumbAddSub(op uint16) {
	rd := op & 7
	a := c.Regs.R[(op>>3)&7]
	b := uint32(op>>6) & 7
	if op&0x0400 == 0 {
		b = c.Regs.R[b]
	}
	var res uint32
	var carry, overflow bool
	if op&0x0200 != 0 {
		res, carry, overflow = subWithCarry(a, b, true)
	} else {
		res, carry, overflow = addWithCarry(a, b, false)
	}
	c.Regs.R[rd] = res
	c.setAddFlags(res, carry, overflow)
}

func (c *CPU) thumbImmediate(op uint16) {
	rd := (op >> 8) & 7
	imm := uint32(op & 0xFF)
	a := c.Regs.R[rd]
	switch (op >> 11) & 3 {
	case 0: // MOV
		c.Regs.R[rd] = imm
		c.Regs.setNZ(imm)
	case 1: // CMP
		res, carry, overflow := subWithCarry(a, imm, true)
		c.setAddFlags(res, carry, overflow)
	case 2: // ADD
		res, carry, overflow := addWithCarry(a, imm, false)
		c.Regs.R[rd] = res
		c.setAddFlags(res, carry, overflow)
	case 3: // SUB
		res, carry, overflow := subWithCarry(a, imm, true)
		c.Regs.R[rd] = res
		c.setAddFlags(res, carry, overflow)
	}
}

func (c *CPU) thumbALU(op uint16) {
	rd := op & 7
	a := c.Regs.R[rd]
	b := c.Regs.R[(op>>3)&7]
	carry := c.Regs.flag(FlagC)

	var res uint32
	write := true
	switch (op >> 6) & 0xF {
	case 0x0: // AND
		res = a & b
		c.Regs.setNZ(res)
	case 0x1: // EOR
		res = a ^ b
		c.Regs.setNZ(res)
	case 0x2, 0x3, 0x4, 0x7: // LSL, LSR, ASR, ROR
		typ := [...]uint32{0x2: shiftLSL, 0x3: shiftLSR, 0x4: shiftASR, 0x7: shiftROR}[(op>>6)&0xF]
		res, carry = shiftReg(typ, a, b&0xFF, carry)
		c.internal(1)
		c.Regs.setNZ(res)
		c.Regs.setFlag(FlagC, carry)
	case 0x5: // ADC
		var cy, v bool
		res, cy, v = addWithCarry(a, b, carry)
		c.setAddFlags(res, cy, v)
	case 0x6: // SBC
		var cy, v bool
		res, cy, v = subWithCarry(a, b, carry)
		c.setAddFlags(res, cy, v)
	case 0x8: // TST
		c.Regs.setNZ(a & b)
		write = false
	case 0x9: // NEG
		var cy, v bool
		res, cy, v = subWithCarry(0, b, true)
		c.setAddFlags(res, cy, v)
	case 0xA: // CMP
		r, cy, v := subWithCarry(a, b, true)
		c.setAddFlags(r, cy, v)
		write = false
	case 0xB: // CMN
		r, cy, v := addWithCarry(a, b, false)
		c.setAddFlags(r, cy, v)
		write = false
	case 0xC: // ORR
		res = a | b
		c.Regs.setNZ(res)
	case 0xD: // MUL
		res = a * b
		c.internal(mulCycles(a, true))
		c.Regs.setNZ(res)
	case 0xE: // BIC
		res = a &^ b
		c.Regs.setNZ(res)
	case 0xF: // MVN
		res = ^b
		c.Regs.setNZ(res)
	}
	if write {
		c.Regs.R[rd] = res
	}
}

func (c *CPU) thumbHiReg(op uint16) {
	rd := int(op&7) | int(op>>4)&8
	rs := int(op>>3) & 0xF
	v := c.reg(rs)
	switch (op >> 8) & 3 {
	case 0: // ADD
		c.setReg(rd, c.reg(rd)+v)
	case 1: // CMP
		res, carry, overflow := subWithCarry(c.reg(rd), v, true)
		c.setAddFlags(res, carry, overflow)
	case 2: // MOV
		c.setReg(rd, v)
	case 3: // BX
		c.Regs.setFlag(FlagT, v&1 != 0)
		c.branchTo(v)
	}
}

func (c *CPU) thumbTransferReg(op uint16) {
	rd := op & 7
	addr := c.Regs.R[(op>>3)&7] + c.Regs.R[(op>>6)&7]
	switch (op >> 10) & 3 {
	case 0: // STR
		c.store32(addr, c.Regs.R[rd])
	case 1: // STRB
		c.store8(addr, byte(c.Regs.R[rd]))
	case 2: // LDR
		c.load32(addr, func(v uint32) { c.Regs.R[rd] = rotateRead(v, addr) })
		c.internal(1)
	case 3: // LDRB
		c.load8(addr, func(v byte) { c.Regs.R[rd] = uint32(v) })
		c.internal(1)
	}
}

func (c *CPU) thumbTransferSigned(op uint16) {
	rd := op & 7
	addr := c.Regs.R[(op>>3)&7] + c.Regs.R[(op>>6)&7]
	signedByte := func(v byte) { c.Regs.R[rd] = uint32(int32(int8(v))) }
	switch (op >> 10) & 3 {
	case 0: // STRH
		c.store16(addr, uint16(c.Regs.R[rd]))
		return
	case 1: // LDSB
		c.load8(addr, signedByte)
	case 2: // LDRH
		c.load16(addr, func(v uint16) { c.Regs.R[rd] = bits.RotateLeft32(uint32(v), -int((addr&1)*8)) })
	case 3: // LDSH
		if addr&1 != 0 {
			c.load8(addr, signedByte)
		} else {
			c.load16(addr, func(v uint16) { c.Regs.R[rd] = uint32(int32(int16(v))) })
		}
	}
	c.internal(1)
}

func (c *CPU) thumbTransferImm(op uint16) {
	rd := op & 7
	base := c.Regs.R[(op>>3)&7]
	off := uint32(op>>6) & 0x1F
	byteSize := op&0x1000 != 0
	load := op&0x0800 != 0
	if !byteSize {
		off *= 4
	}
	addr := base + off
	switch {
	case !load && byteSize:
		c.store8(addr, byte(c.Regs.R[rd]))
	case !load:
		c.store32(addr, c.Regs.R[rd])
	case byteSize:
		c.load8(addr, func(v byte) { c.Regs.R[rd] = uint32(v) })
		c.internal(1)
	default:
		c.load32(addr, func(v uint32) { c.Regs.R[rd] = rotateRead(v, addr) })
		c.internal(1)
	}
}

func (c *CPU) thumbTransferHalf(op uint16) {
	rd := op & 7
	addr := c.Regs.R[(op>>3)&7] + uint32(op>>6)&0x1F*2
	if op&0x0800 == 0 {
		c.store16(addr, uint16(c.Regs.R[rd]))
		return
	}
	c.load16(addr, func(v uint16) { c.Regs.R[rd] = bits.RotateLeft32(uint32(v), -int((addr&1)*8)) })
	c.internal(1)
}

func (c *CPU) thumbTransferSP(op uint16) {
	rd := (op >> 8) & 7
	addr := c.Regs.R[13] + uint32(op&0xFF)*4
	if op&0x0800 == 0 {
		c.store32(addr, c.Regs.R[rd])
		return
	}
	c.load32(addr, func(v uint32) { c.Regs.R[rd] = rotateRead(v, addr) })
	c.internal(1)
}

func (c *CPU) thumbPushPop(op uint16) {
	list := op & 0xFF
	extra := op&0x0100 != 0
	n := uint32(bits.OnesCount16(list))
	if extra {
		n++
	}
	if op&0x0800 == 0 { // PUSH
		sp := c.Regs.R[13] - 4*n
		addr := sp
		for r := 0; r < 8; r++ {
			if list&(1<<r) != 0 {
				c.store32(addr, c.Regs.R[r])
				addr += 4
			}
		}
		if extra {
			c.store32(addr, c.Regs.R[14])
		}
		c.then(func() { c.Regs.R[13] = sp })
		return
	}

	addr := c.Regs.R[13]
	sp := addr + 4*n
	for r := 0; r < 8; r++ {
		if list&(1<<r) != 0 {
			c.load32(addr, func(v uint32) { c.Regs.R[r] = v })
			addr += 4
		}
	}
	if extra {
		c.load32(addr, c.jump)
	}
	c.then(func() { c.Regs.R[13] = sp })
	c.internal(1)
}

func (c *CPU) thumbMultiple(op uint16) {
	rb := int(op>>8) & 7
	list := op & 0xFF
	addr := c.Regs.R[rb]
	newBase := addr + 4*uint32(bits.OnesCount16(list))
	if list == 0 {
		c.internal(1)
		return
	}
	if op&0x0800 == 0 { // STMIA
		first := true
		for r := 0; r < 8; r++ {
			if list&(1<<r) == 0 {
				continue
			}
			v := c.Regs.R[r]
			if r == rb && !first {
				v = newBase
			}
			c.store32(addr, v)
			addr += 4
			first = false
		}
		c.then(func() { c.Regs.R[rb] = newBase })
		return
	}
	first := true
	for r := 0; r < 8; r++ {
		if list&(1<<r) == 0 {
			continue
		}
		wb := first
		first = false
		c.load32(addr, func(v uint32) {
			if wb {
				c.Regs.R[rb] = newBase
			}
			c.Regs.R[r] = v
		})
		addr += 4
	}
	c.internal(1)
}
