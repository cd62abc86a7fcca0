package cart

const (
	eepromSmall = 512
	eepromLarge = 8 * 1024

	// DMA lengths (in half-word units) of read and write requests per address width
	eepromReadSmall  = 2 + 6 + 1
	eepromReadLarge  = 2 + 14 + 1
	eepromWriteSmall = 2 + 6 + 64 + 1
	eepromWriteLarge = 2 + 14 + 64 + 1

	eepromReadLen = 4 + 64 // dummy bits then the data block
)

// EEPROM is the serial EEPROM, clocked one bit per 16-bit access at 0x0D000000.
// Requests are "11"+addr+"0" (read a 64-bit block) and "10"+addr+data+"0" (write).
// The address width is 6 bits for 512 B parts and 14 bits for 8 KiB parts;
// it is inferred from DMA transfer lengths, starting out as 512 B.
type EEPROM struct {
	data     []byte
	addrBits int

	in []byte // request bits received so far

	out    uint64
	outPos int
	// reading is set while a requested block is being clocked out
	reading bool
}

func NewEEPROM() *EEPROM {
	e := &EEPROM{in: make([]byte, 0, eepromWriteLarge)}
	e.resize(eepromSmall)
	return e
}

func (e *EEPROM) Kind() Kind { return EEPROMKind }
func (e *EEPROM) Size() int  { return len(e.data) }

func (e *EEPROM) resize(size int) {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	copy(data, e.data)
	e.data = data
	e.addrBits = 6
	if size == eepromLarge {
		e.addrBits = 14
	}
}

// SetTransferLength receives the unit count of a DMA touching the EEPROM.
func (e *EEPROM) SetTransferLength(units int) {
	switch units {
	case eepromReadLarge, eepromWriteLarge:
		if len(e.data) != eepromLarge {
			e.resize(eepromLarge)
		}
	case eepromReadSmall, eepromWriteSmall:
		if len(e.data) != eepromSmall && !e.used() {
			e.resize(eepromSmall)
		}
	}
}

func (e *EEPROM) used() bool {
	for _, b := range e.data {
		if b != 0xFF {
			return true
		}
	}
	return false
}

// Read16 clocks one bit out. Outside of a read it reports ready (1).
func (e *EEPROM) Read16() uint16 {
	if !e.reading {
		return 1
	}
	pos := e.outPos
	e.outPos++
	if e.outPos == eepromReadLen {
		e.reading = false
	}
	if pos < 4 {
		return 0
	}
	return uint16(e.out>>(63-(pos-4))) & 1
}

// Write16 clocks one request bit in (bit 0 of v).
func (e *EEPROM) Write16(v uint16) {
	e.in = append(e.in, byte(v&1))
	if len(e.in) < 2 {
		return
	}
	if e.in[0] != 1 {
		e.in = e.in[:0]
		return
	}
	read := e.in[1] == 1
	need := 2 + e.addrBits + 1
	if !read {
		need += 64
	}
	if len(e.in) < need {
		return
	}

	block := e.bits(2, e.addrBits) & 0x3FF
	base := int(block*8) % len(e.data)
	if read {
		e.out = 0
		for i := 0; i < 8; i++ {
			e.out = e.out<<8 | uint64(e.data[base+i])
		}
		e.outPos = 0
		e.reading = true
	} else {
		word := e.bits(2+e.addrBits, 64)
		for i := 0; i < 8; i++ {
			e.data[base+i] = byte(word >> (56 - 8*i))
		}
		e.reading = false
	}
	e.in = e.in[:0]
}

func (e *EEPROM) bits(from, n int) uint64 {
	var v uint64
	for _, b := range e.in[from : from+n] {
		v = v<<1 | uint64(b)
	}
	return v
}

func (e *EEPROM) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}

func (e *EEPROM) Load(data []byte) error {
	switch len(data) {
	case eepromSmall, eepromLarge:
		e.data = nil
		e.resize(len(data))
		copy(e.data, data)
		return nil
	}
	return ErrSaveSize
}
