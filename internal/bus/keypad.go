package bus

import "github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"

const (
	RegKEYINPUT = 0x130
	RegKEYCNT   = 0x132
)

// Key bits in KEYINPUT (active low on the bus).
const (
	KeyA uint16 = 1 << iota
	KeyB
	KeySelect
	KeyStart
	KeyRight
	KeyLeft
	KeyUp
	KeyDown
	KeyR
	KeyL

	keyMask uint16 = 0x03FF
)

// Keypad holds the pressed button set and KEYCNT.
type Keypad struct {
	irq *irq.Controller

	pressed uint16
	keycnt  uint16
	matched bool
}

func NewKeypad(irqc *irq.Controller) *Keypad { return &Keypad{irq: irqc} }

func (k *Keypad) Reset() {
	k.pressed = 0
	k.keycnt = 0
	k.matched = false
}

// SetPressed replaces the set of held buttons (1 = held).
func (k *Keypad) SetPressed(keys uint16) {
	k.pressed = keys & keyMask
	k.check()
}

func (k *Keypad) Pressed() uint16 { return k.pressed }

// check raises the keypad interrupt on the transition into the KEYCNT condition.
func (k *Keypad) check() {
	if k.keycnt&0x4000 == 0 {
		k.matched = false
		return
	}
	sel := k.keycnt & keyMask
	var hit bool
	if k.keycnt&0x8000 != 0 {
		hit = sel != 0 && k.pressed&sel == sel
	} else {
		hit = k.pressed&sel != 0
	}
	if hit && !k.matched {
		k.irq.Raise(irq.Keypad)
	}
	k.matched = hit
}

func (k *Keypad) Read8(off uint32) byte {
	input := ^k.pressed & keyMask
	switch off {
	case RegKEYINPUT:
		return byte(input)
	case RegKEYINPUT + 1:
		return byte(input >> 8)
	case RegKEYCNT:
		return byte(k.keycnt)
	case RegKEYCNT + 1:
		return byte(k.keycnt >> 8)
	}
	return 0
}

func (k *Keypad) Write8(off uint32, v byte) {
	switch off {
	case RegKEYCNT:
		k.keycnt = k.keycnt&0xFF00 | uint16(v)
	case RegKEYCNT + 1:
		k.keycnt = k.keycnt&0x00FF | uint16(v&0xC3)<<8
	default:
		return
	}
	k.check()
}
