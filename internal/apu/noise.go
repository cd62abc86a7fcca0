package apu

var noiseDivisors = [8]int{8, 16, 32, 48, 64, 80, 96, 112}

// noise is the LFSR channel.
type noise struct {
	env    envelope
	length lengthCounter

	poly  byte
	hi    byte
	lfsr  uint16
	timer int
	on    bool
}

func newNoise() *noise {
	n := &noise{}
	n.Reset()
	return n
}

func (n *noise) Reset() {
	*n = noise{lfsr: 0x7FFF}
	n.length.max = 64
}

func (n *noise) Enabled() bool { return n.on }

func (n *noise) period() int {
	return noiseDivisors[n.poly&7] << (n.poly >> 4) << 2
}

func (n *noise) Step() {
	if !n.on {
		return
	}
	n.timer--
	if n.timer > 0 {
		return
	}
	n.timer = n.period()
	x := (n.lfsr ^ n.lfsr>>1) & 1
	n.lfsr = n.lfsr>>1 | x<<14
	if n.poly&8 != 0 {
		n.lfsr = n.lfsr&^(1<<6) | x<<6
	}
}

func (n *noise) Clock(step int) {
	if step%2 == 0 && n.length.clock() {
		n.on = false
	}
	if step == 7 {
		n.env.clock()
	}
}

func (n *noise) Sample() int {
	if !n.on {
		return 0
	}
	v := int(n.env.volume)
	if n.lfsr&1 != 0 {
		return -v
	}
	return v
}

func (n *noise) Read8(reg int) byte {
	switch reg {
	case 1:
		return n.env.read()
	case 4:
		return n.poly
	case 5:
		return n.hi & 0x40
	}
	return 0
}

func (n *noise) Write8(reg int, v byte) {
	switch reg {
	case 0:
		n.length.load(int(v & 0x3F))
	case 1:
		n.env.write(v)
		if !n.env.dacOn() {
			n.on = false
		}
	case 4:
		n.poly = v
	case 5:
		n.hi = v
		n.length.enabled = v&0x40 != 0
		if v&0x80 != 0 {
			n.on = n.env.dacOn()
			n.length.restart()
			n.env.restart()
			n.lfsr = 0x7FFF
			if n.poly&8 != 0 {
				n.lfsr = 0x7F
			}
			n.timer = n.period()
		}
	}
}
