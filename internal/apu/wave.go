package apu

// NR30 bits
const (
	waveTwoBanks = 1 << 5
	waveBank     = 1 << 6
	wavePlay     = 1 << 7
)

// wave is the wavetable channel. Wave RAM has two 16-byte banks; the CPU
// always sees the bank not selected in NR30, and restart copies the selected
// bank (or both, in two-bank mode) into the playback buffer. Nothing the CPU
// writes is heard before the next restart.
type wave struct {
	banks [2][16]byte
	play  [32]byte
	// samples is the playback length in 4-bit samples: 32, or 64 in two-bank mode.
	samples int

	control byte
	volume  byte
	length  lengthCounter
	freq    uint16
	hi      byte
	timer   int
	pos     int
	on      bool
}

func newWave() *wave {
	w := &wave{}
	w.Reset()
	return w
}

// Reset clears the registers; wave RAM keeps its contents.
func (w *wave) Reset() {
	banks := w.banks
	*w = wave{banks: banks, samples: 32}
	w.length.max = 256
}

func (w *wave) Enabled() bool { return w.on }

func (w *wave) cpuBank() int {
	if w.control&waveBank != 0 {
		return 0
	}
	return 1
}

// ReadRAM and WriteRAM access byte i (0-15) of the bank the CPU can see.
func (w *wave) ReadRAM(i int) byte     { return w.banks[w.cpuBank()][i&15] }
func (w *wave) WriteRAM(i int, v byte) { w.banks[w.cpuBank()][i&15] = v }

func (w *wave) period() int { return 8 * (2048 - int(w.freq&0x7FF)) }

func (w *wave) Step() {
	if !w.on {
		return
	}
	w.timer--
	if w.timer <= 0 {
		w.timer = w.period()
		w.pos = (w.pos + 1) % w.samples
	}
}

func (w *wave) Clock(step int) {
	if step%2 == 0 && w.length.clock() {
		w.on = false
	}
}

func (w *wave) Sample() int {
	if !w.on || w.control&wavePlay == 0 {
		return 0
	}
	b := w.play[w.pos/2]
	if w.pos&1 == 0 {
		b >>= 4
	}
	s := int(b&0xF)*2 - 15
	if w.volume&0x80 != 0 {
		return s * 3 / 4
	}
	switch (w.volume >> 5) & 3 {
	case 1:
		return s
	case 2:
		return s / 2
	case 3:
		return s / 4
	}
	return 0
}

func (w *wave) trigger() {
	sel := 1 - w.cpuBank()
	copy(w.play[:16], w.banks[sel][:])
	copy(w.play[16:], w.banks[sel^1][:])
	w.samples = 32
	if w.control&waveTwoBanks != 0 {
		w.samples = 64
	}
	w.pos = 0
	w.timer = w.period()
	w.length.restart()
	w.on = w.control&wavePlay != 0
}

func (w *wave) Read8(reg int) byte {
	switch reg {
	case 0:
		return w.control & 0xE0
	case 3:
		return w.volume & 0xE0
	case 5:
		return w.hi & 0x40
	}
	return 0
}

func (w *wave) Write8(reg int, v byte) {
	switch reg {
	case 0:
		w.control = v & 0xE0
		if w.control&wavePlay == 0 {
			w.on = false
		}
	case 2:
		w.length.load(int(v))
	case 3:
		w.volume = v & 0xE0
	case 4:
		w.freq = w.freq&0x700 | uint16(v)
	case 5:
		w.hi = v
		w.freq = w.freq&0xFF | uint16(v&7)<<8
		w.length.enabled = v&0x40 != 0
		if v&0x80 != 0 {
			w.trigger()
		}
	}
}
