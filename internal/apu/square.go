package apu

// square is a pulse channel. Channel 1 has a sweep register in front of the
// duty byte; channel 2 starts at the duty byte.
type square struct {
	dutyReg  int
	hasSweep bool

	sweep  sweep
	env    envelope
	length lengthCounter

	duty  byte
	freq  uint16
	hi    byte
	timer int
	phase int
	on    bool
}

func newSquare(withSweep bool) *square {
	s := &square{hasSweep: withSweep}
	if withSweep {
		s.dutyReg = 2
	}
	s.Reset()
	return s
}

func (s *square) Reset() {
	*s = square{dutyReg: s.dutyReg, hasSweep: s.hasSweep}
	s.length.max = 64
}

func (s *square) Enabled() bool { return s.on }

func (s *square) period() int { return 16 * (2048 - int(s.freq&0x7FF)) }

func (s *square) Step() {
	if !s.on {
		return
	}
	s.timer--
	if s.timer <= 0 {
		s.timer = s.period()
		s.phase = (s.phase + 1) & 7
	}
}

func (s *square) Clock(step int) {
	if step%2 == 0 && s.length.clock() {
		s.on = false
	}
	if s.hasSweep && (step == 2 || step == 6) && s.on {
		if !s.sweep.clock(&s.freq) {
			s.on = false
		}
	}
	if step == 7 {
		s.env.clock()
	}
}

func (s *square) Sample() int {
	if !s.on {
		return 0
	}
	v := int(s.env.volume)
	if dutyTable[s.duty][s.phase] == 0 {
		return -v
	}
	return v
}

func (s *square) trigger() {
	s.on = s.env.dacOn()
	s.length.restart()
	s.phase = 0
	s.timer = s.period()
	s.env.restart()
	if s.hasSweep && !s.sweep.restart(s.freq&0x7FF) {
		s.on = false
	}
}

func (s *square) Read8(reg int) byte {
	switch {
	case s.hasSweep && reg == 0:
		return s.sweep.read()
	case reg == s.dutyReg:
		return s.duty << 6
	case reg == s.dutyReg+1:
		return s.env.read()
	case reg == 5:
		return s.hi & 0x40
	}
	return 0
}

func (s *square) Write8(reg int, v byte) {
	switch {
	case s.hasSweep && reg == 0:
		s.sweep.write(v)
	case reg == s.dutyReg:
		s.duty = v >> 6
		s.length.load(int(v & 0x3F))
	case reg == s.dutyReg+1:
		s.env.write(v)
		if !s.env.dacOn() {
			s.on = false
		}
	case reg == 4:
		s.freq = s.freq&0x700 | uint16(v)
	case reg == 5:
		s.hi = v
		s.freq = s.freq&0xFF | uint16(v&7)<<8
		s.length.enabled = v&0x40 != 0
		if v&0x80 != 0 {
			s.trigger()
		}
	}
}
