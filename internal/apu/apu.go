package apu

import (
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

// CPU frequency in Hz
const cpuHz = 16 * 1024 * 1024

// seqPeriod is the frame sequencer period (512 Hz).
const seqPeriod = cpuHz / 512

// IO offsets of the sound registers.
const (
	RegBase = 0x060
	RegEnd  = 0x0AF

	RegSOUNDCNTL = 0x080
	RegSOUNDCNTH = 0x082
	RegSOUNDCNTX = 0x084
	RegSOUNDBIAS = 0x088
	RegWaveRAM   = 0x090
	RegFIFOA     = 0x0A0
	RegFIFOB     = 0x0A4
)

// FIFO addresses as seen by DMA.
const (
	FIFOAddrA = 0x04000000 + RegFIFOA
	FIFOAddrB = 0x04000000 + RegFIFOB
)

var channelBase = [4]uint32{0x60, 0x68, 0x70, 0x78}

// APU mixes the four tone channels and the two direct sound FIFOs into a
// stereo int16 ring buffer at the host sample rate.
type APU struct {
	sq1   *square
	sq2   *square
	wave  *wave
	noise *noise
	ch    [4]Channel

	fifo [2]fifo

	cntL   uint16 // NR50/NR51: master volume and routing
	cntH   uint16 // direct sound control
	master bool
	bias   uint16

	seqTimer int
	seqStep  int

	sampleRate      int
	cyclesPerSample float64
	cycAccum        float64

	// stereo ring buffers (left/right), power-of-two size
	sL    []int16
	sR    []int16
	sHead int
	sTail int

	// OnFIFORequest asks DMA to refill the FIFO at addr (FIFOAddrA or FIFOAddrB).
	OnFIFORequest func(addr uint32)
}

func New(sampleRate int) *APU {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	a := &APU{
		sq1:             newSquare(true),
		sq2:             newSquare(false),
		wave:            newWave(),
		noise:           newNoise(),
		sampleRate:      sampleRate,
		cyclesPerSample: float64(cpuHz) / float64(sampleRate),
		sL:              make([]int16, 16384),
		sR:              make([]int16, 16384),
	}
	a.ch = [4]Channel{a.sq1, a.sq2, a.wave, a.noise}
	a.Reset()
	return a
}

// Reset restores power-on state and drops buffered samples.
func (a *APU) Reset() {
	for _, c := range a.ch {
		c.Reset()
	}
	a.wave.banks = [2][16]byte{}
	a.fifo[0].reset()
	a.fifo[1].reset()
	a.cntL, a.cntH = 0, 0
	a.master = false
	a.bias = 0x200
	a.seqTimer, a.seqStep = 0, 0
	a.cycAccum = 0
	a.sHead, a.sTail = 0, 0
}

func (a *APU) SampleRate() int { return a.sampleRate }

// Channel exposes tone channel n (0-3).
func (a *APU) Channel(n int) Channel { return a.ch[n] }

// Step advances the sound unit by one bus cycle and emits a sample when due.
func (a *APU) Step() {
	if a.master {
		a.seqTimer++
		if a.seqTimer == seqPeriod {
			a.seqTimer = 0
			a.seqStep = (a.seqStep + 1) & 7
			for _, c := range a.ch {
				c.Clock(a.seqStep)
			}
		}
		for _, c := range a.ch {
			c.Step()
		}
	}
	a.cycAccum++
	if a.cycAccum >= a.cyclesPerSample {
		a.cycAccum -= a.cyclesPerSample
		l, r := a.mix()
		a.pushStereo(l, r)
	}
}

// TimerOverflow feeds the FIFOs clocked by timer n (0 or 1).
func (a *APU) TimerOverflow(n int) {
	if !a.master || n > 1 {
		return
	}
	for i := range a.fifo {
		if int(a.cntH>>(10+4*i))&1 != n {
			continue
		}
		f := &a.fifo[i]
		f.pop()
		if f.len() <= 16 && a.OnFIFORequest != nil {
			a.OnFIFORequest(FIFOAddrA + uint32(4*i))
		}
	}
}

func (a *APU) mix() (int16, int16) {
	if !a.master {
		return 0, 0
	}
	var psgL, psgR int
	route := a.cntL >> 8
	for i, c := range a.ch {
		s := c.Sample()
		if route&(1<<(4+i)) != 0 {
			psgL += s
		}
		if route&(1<<i) != 0 {
			psgR += s
		}
	}
	psgR *= int(a.cntL&7) + 1
	psgL *= int(a.cntL>>4&7) + 1
	shift := 2 - int(a.cntH&3)
	if shift < 0 {
		shift = 0
	}
	psgL >>= shift
	psgR >>= shift

	l, r := psgL, psgR
	for i := range a.fifo {
		s := int(a.fifo[i].sample)
		if a.cntH&(1<<(2+i)) != 0 {
			s *= 2
		}
		ctl := a.cntH >> (8 + 4*i)
		if ctl&1 != 0 {
			r += s
		}
		if ctl&2 != 0 {
			l += s
		}
	}
	bias := int(a.bias & 0x3FE)
	return a.clip(l, bias), a.clip(r, bias)
}

func (a *APU) clip(v, bias int) int16 {
	v += bias
	if v < 0 {
		v = 0
	} else if v > 0x3FF {
		v = 0x3FF
	}
	return int16((v - bias) << 5)
}

// pushStereo pushes a stereo frame to the ring buffers.
func (a *APU) pushStereo(l, r int16) {
	next := (a.sHead + 1) & (len(a.sL) - 1)
	if next == a.sTail {
		return // drop if full
	}
	a.sL[a.sHead] = l
	a.sR[a.sHead] = r
	a.sHead = next
}

// PullStereo returns up to max stereo frames as an interleaved int16 slice [L0,R0,L1,R1,...].
func (a *APU) PullStereo(max int) []int16 {
	count := a.StereoAvailable()
	if max < count {
		count = max
	}
	if count <= 0 {
		return nil
	}
	out := make([]int16, 0, count*2)
	for i := 0; i < count; i++ {
		out = append(out, a.sL[a.sTail], a.sR[a.sTail])
		a.sTail = (a.sTail + 1) & (len(a.sL) - 1)
	}
	return out
}

// StereoAvailable returns the number of stereo frames currently buffered.
func (a *APU) StereoAvailable() int {
	return (a.sHead - a.sTail) & (len(a.sL) - 1)
}

// CapBuffered drops the oldest frames so that at most max remain, bounding latency.
func (a *APU) CapBuffered(max int) {
	if n := a.StereoAvailable(); n > max {
		a.sTail = (a.sTail + n - max) & (len(a.sL) - 1)
	}
}

// Supports rejects reads of the write-only FIFOs.
func (a *APU) Supports(off uint32, _ arm.Size, write bool) bool {
	return write || off < RegFIFOA || off >= RegFIFOB+4
}

func (a *APU) Read8(off uint32) byte {
	switch {
	case off < RegSOUNDCNTL:
		n := (off - RegBase) / 8
		return a.ch[n].Read8(int(off - channelBase[n]))
	case off < RegSOUNDCNTH:
		return byte(a.cntL >> ((off & 1) * 8))
	case off < RegSOUNDCNTX:
		return byte((a.cntH &^ 0x8800) >> ((off & 1) * 8))
	case off == RegSOUNDCNTX:
		var v byte
		if a.master {
			v = 0x80
		}
		for i, c := range a.ch {
			if c.Enabled() {
				v |= 1 << i
			}
		}
		return v
	case off == RegSOUNDBIAS, off == RegSOUNDBIAS+1:
		return byte(a.bias >> ((off & 1) * 8))
	case off >= RegWaveRAM && off < RegWaveRAM+16:
		return a.wave.ReadRAM(int(off - RegWaveRAM))
	}
	return 0
}

func (a *APU) Write8(off uint32, v byte) {
	switch {
	case off < RegSOUNDCNTH:
		if !a.master {
			return
		}
		if off >= RegSOUNDCNTL {
			shift := (off & 1) * 8
			a.cntL = a.cntL&^(0xFF<<shift) | uint16(v)<<shift
			return
		}
		n := (off - RegBase) / 8
		a.ch[n].Write8(int(off-channelBase[n]), v)
	case off < RegSOUNDCNTX:
		shift := (off & 1) * 8
		a.cntH = a.cntH&^(0xFF<<shift) | uint16(v)<<shift
		if a.cntH&(1<<11) != 0 {
			a.fifo[0].reset()
		}
		if a.cntH&(1<<15) != 0 {
			a.fifo[1].reset()
		}
		a.cntH &^= 0x8800
	case off == RegSOUNDCNTX:
		on := v&0x80 != 0
		if a.master && !on {
			for _, c := range a.ch {
				c.Reset()
			}
			a.cntL = 0
		}
		a.master = on
	case off == RegSOUNDBIAS:
		a.bias = a.bias&0xFF00 | uint16(v)
	case off == RegSOUNDBIAS+1:
		a.bias = a.bias&0x00FF | uint16(v&0xC3)<<8
	case off >= RegWaveRAM && off < RegWaveRAM+16:
		a.wave.WriteRAM(int(off-RegWaveRAM), v)
	case off >= RegFIFOA && off < RegFIFOB+4:
		a.fifo[(off-RegFIFOA)/4].push(v)
	}
}
