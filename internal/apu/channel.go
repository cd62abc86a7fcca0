package apu

// Channel is one of the four tone generators. Register offsets are relative
// to the channel's 8-byte block.
type Channel interface {
	Reset()
	// Step advances the channel's frequency timer by one bus cycle.
	Step()
	// Clock runs the length, sweep and envelope units for frame sequencer step 0-7.
	Clock(step int)
	// Sample is the current output in -15..15.
	Sample() int
	Enabled() bool
	Read8(reg int) byte
	Write8(reg int, v byte)
}

var dutyTable = [4][8]byte{
	// 12.5%, 25%, 50%, 75%
	{0, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 0, 0, 1},
	{1, 0, 0, 0, 0, 1, 1, 1},
	{0, 1, 1, 1, 1, 1, 1, 0},
}

// lengthCounter silences a channel after a programmed number of 256 Hz ticks.
type lengthCounter struct {
	max     int
	counter int
	enabled bool
}

func (l *lengthCounter) load(v int) { l.counter = l.max - v }

func (l *lengthCounter) restart() {
	if l.counter == 0 {
		l.counter = l.max
	}
}

// clock returns true when the counter runs out.
func (l *lengthCounter) clock() bool {
	if !l.enabled || l.counter == 0 {
		return false
	}
	l.counter--
	return l.counter == 0
}

// envelope is the NRx2 volume unit.
type envelope struct {
	initial byte
	up      bool
	period  byte
	volume  byte
	timer   byte
}

func (e *envelope) write(v byte) {
	e.initial = v >> 4
	e.up = v&8 != 0
	e.period = v & 7
}

func (e *envelope) read() byte {
	v := e.initial<<4 | e.period
	if e.up {
		v |= 8
	}
	return v
}

// dacOn is false when the envelope can only ever output silence.
func (e *envelope) dacOn() bool { return e.initial != 0 || e.up }

func (e *envelope) restart() {
	e.volume = e.initial
	e.timer = e.period
	if e.timer == 0 {
		e.timer = 8
	}
}

func (e *envelope) clock() {
	if e.period == 0 {
		return
	}
	if e.timer > 0 {
		e.timer--
	}
	if e.timer != 0 {
		return
	}
	e.timer = e.period
	if e.up && e.volume < 15 {
		e.volume++
	} else if !e.up && e.volume > 0 {
		e.volume--
	}
}

// sweep is channel 1's frequency sweep unit.
type sweep struct {
	period  byte
	negate  bool
	shift   byte
	timer   byte
	shadow  uint16
	enabled bool
}

func (s *sweep) write(v byte) {
	s.shift = v & 7
	s.negate = v&8 != 0
	s.period = (v >> 4) & 7
}

func (s *sweep) read() byte {
	v := s.period<<4 | s.shift
	if s.negate {
		v |= 8
	}
	return v
}

func (s *sweep) next() int {
	delta := int(s.shadow >> s.shift)
	if s.negate {
		return int(s.shadow) - delta
	}
	return int(s.shadow) + delta
}

// restart latches freq and reports false when the first calculation already overflows.
func (s *sweep) restart(freq uint16) bool {
	s.shadow = freq
	s.enabled = s.period != 0 || s.shift != 0
	s.timer = s.period
	if s.timer == 0 {
		s.timer = 8
	}
	return s.shift == 0 || s.next() <= 2047
}

// clock updates *freq and reports false when the channel must be silenced.
func (s *sweep) clock(freq *uint16) bool {
	if !s.enabled || s.period == 0 {
		return true
	}
	if s.timer > 0 {
		s.timer--
	}
	if s.timer != 0 {
		return true
	}
	s.timer = s.period
	nf := s.next()
	if nf > 2047 {
		return false
	}
	if s.shift != 0 {
		s.shadow = uint16(nf)
		*freq = uint16(nf)
		return s.next() <= 2047
	}
	return true
}
