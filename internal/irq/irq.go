package irq

// Source is one interrupt request line. Its value is the bit position in IE and IF.
type Source uint8

const (
	VBlank Source = iota
	HBlank
	VCount
	Timer0
	Timer1
	Timer2
	Timer3
	Serial
	DMA0
	DMA1
	DMA2
	DMA3
	Keypad
	GamePak
)

var sourceNames = [...]string{
	"VBlank", "HBlank", "VCount", "Timer0", "Timer1", "Timer2", "Timer3",
	"Serial", "DMA0", "DMA1", "DMA2", "DMA3", "Keypad", "GamePak",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "Unknown"
}

// IO offsets (relative to 0x04000000) owned by the controller.
const (
	RegIE  = 0x200
	RegIF  = 0x202
	RegIME = 0x208
)

// Mask covers the 14 implemented request lines.
const Mask uint16 = 0x3FFF

// Controller owns IE, IF and IME and the two flags derived from them.
// Every mutating method finishes with update(), so the derived flags are never stale.
type Controller struct {
	ie  uint16
	ifr uint16
	ime bool

	shouldInterrupt bool
	shouldWake      bool
}

func New() *Controller { return &Controller{} }

// Reset restores power-on state (everything disabled, nothing pending).
func (c *Controller) Reset() {
	c.ie, c.ifr, c.ime = 0, 0, false
	c.update()
}

// Raise sets the request bit for src. This is the only way a request bit becomes set.
func (c *Controller) Raise(src Source) {
	c.ifr |= (1 << src) & Mask
	c.update()
}

// Acknowledge clears the request bits set in bits, leaving the others untouched.
func (c *Controller) Acknowledge(bits uint16) {
	c.ifr &^= bits & Mask
	c.update()
}

func (c *Controller) SetEnable(v uint16) {
	c.ie = v & Mask
	c.update()
}

func (c *Controller) SetMasterEnable(on bool) {
	c.ime = on
	c.update()
}

func (c *Controller) Enable() uint16        { return c.ie }
func (c *Controller) Request() uint16       { return c.ifr }
func (c *Controller) MasterEnable() bool    { return c.ime }
func (c *Controller) ShouldInterrupt() bool { return c.shouldInterrupt }

// ShouldWake ignores IME: a halted CPU resumes on any enabled request even with
// interrupts globally disabled. Vectoring still requires ShouldInterrupt.
func (c *Controller) ShouldWake() bool { return c.shouldWake }

func (c *Controller) update() {
	pending := c.ie&c.ifr&Mask != 0
	c.shouldWake = pending
	c.shouldInterrupt = c.ime && pending
}

// Read8 reads one byte lane of IE, IF or IME. off is relative to the IO base.
func (c *Controller) Read8(off uint32) byte {
	switch off {
	case RegIE:
		return byte(c.ie)
	case RegIE + 1:
		return byte(c.ie >> 8)
	case RegIF:
		return byte(c.ifr)
	case RegIF + 1:
		return byte(c.ifr >> 8)
	case RegIME:
		if c.ime {
			return 1
		}
		return 0
	}
	return 0
}

// Write8 writes one byte lane. IF lanes acknowledge: a 1 bit clears the pending request.
func (c *Controller) Write8(off uint32, v byte) {
	switch off {
	case RegIE:
		c.ie = (c.ie & 0xFF00) | uint16(v)
	case RegIE + 1:
		c.ie = (c.ie & 0x00FF) | uint16(v&0x3F)<<8
	case RegIF:
		c.ifr &^= uint16(v)
	case RegIF + 1:
		c.ifr &^= uint16(v&0x3F) << 8
	case RegIME:
		c.ime = v&1 != 0
	}
	c.update()
}
