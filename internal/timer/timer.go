package timer

import "github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"

// IO offsets: TMxCNT_L at RegBase+4x, TMxCNT_H at RegBase+4x+2.
const (
	RegBase = 0x100
	RegEnd  = 0x10F

	ctrlCascade = 1 << 2
	ctrlIRQ     = 1 << 6
	ctrlEnable  = 1 << 7
)

var prescale = [4]int{1, 64, 256, 1024}

// Timer is one 16-bit counter. Reading CNT_L returns the counter; writing it sets the reload value.
type Timer struct {
	counter uint16
	reload  uint16
	control uint16
	ticks   int
}

func (t *Timer) Counter() uint16 { return t.counter }
func (t *Timer) Enabled() bool   { return t.control&ctrlEnable != 0 }

// Unit owns the four timers.
type Unit struct {
	irq    *irq.Controller
	timers [4]Timer

	// OnOverflow is called for every overflow of timer n (the sound FIFOs listen on 0 and 1).
	OnOverflow func(n int)
}

func New(irqc *irq.Controller) *Unit { return &Unit{irq: irqc} }

func (u *Unit) Reset() { u.timers = [4]Timer{} }

func (u *Unit) Timer(n int) *Timer { return &u.timers[n] }

// Step advances all timers by one bus cycle.
func (u *Unit) Step() {
	for i := range u.timers {
		t := &u.timers[i]
		if !t.Enabled() || (i > 0 && t.control&ctrlCascade != 0) {
			continue
		}
		t.ticks++
		if t.ticks >= prescale[t.control&3] {
			t.ticks = 0
			u.increment(i)
		}
	}
}

func (u *Unit) increment(i int) {
	t := &u.timers[i]
	t.counter++
	if t.counter != 0 {
		return
	}
	t.counter = t.reload
	if t.control&ctrlIRQ != 0 {
		u.irq.Raise(irq.Timer0 + irq.Source(i))
	}
	if u.OnOverflow != nil {
		u.OnOverflow(i)
	}
	if i < 3 {
		next := &u.timers[i+1]
		if next.Enabled() && next.control&ctrlCascade != 0 {
			u.increment(i + 1)
		}
	}
}

func (u *Unit) setControl(i int, v uint16) {
	t := &u.timers[i]
	wasOn := t.Enabled()
	t.control = v & 0xC7
	if !wasOn && t.Enabled() {
		t.counter = t.reload
		t.ticks = 0
	}
}

func (u *Unit) Read16(off uint32) uint16 {
	t := &u.timers[(off-RegBase)/4]
	if off&2 == 0 {
		return t.counter
	}
	return t.control
}

func (u *Unit) Write16(off uint32, v uint16) {
	i := int((off - RegBase) / 4)
	if off&2 == 0 {
		u.timers[i].reload = v
		return
	}
	u.setControl(i, v)
}

func (u *Unit) Read8(off uint32) byte {
	return byte(u.Read16(off&^1) >> ((off & 1) * 8))
}

func (u *Unit) Write8(off uint32, v byte) {
	i := int((off - RegBase) / 4)
	t := &u.timers[i]
	switch off & 3 {
	case 0:
		t.reload = t.reload&0xFF00 | uint16(v)
	case 1:
		t.reload = t.reload&0x00FF | uint16(v)<<8
	case 2:
		u.setControl(i, t.control&0xFF00|uint16(v))
	}
}
