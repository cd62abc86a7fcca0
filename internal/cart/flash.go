package cart

// Flash command addresses and bytes.
const (
	flashAddr1 = 0x5555
	flashAddr2 = 0x2AAA

	flashCmdEnterID  = 0x90
	flashCmdExitID   = 0xF0
	flashCmdErase    = 0x80
	flashCmdChip     = 0x10
	flashCmdSector   = 0x30
	flashCmdWrite    = 0xA0
	flashCmdBank     = 0xB0
	flashUnlockFirst = 0xAA
	flashUnlockNext  = 0x55

	flashBankSize   = 64 * 1024
	flashSectorSize = 4 * 1024
)

type flashState uint8

const (
	flashReady flashState = iota
	flashUnlock1
	flashUnlock2
	flashProgram
	flashSelectBank
)

// FlashBackup models the 64 KiB (Panasonic ID) and 128 KiB (Sanyo ID) chips.
type FlashBackup struct {
	kind Kind
	data []byte

	state  flashState
	idMode bool
	erase  bool
	bank   uint32

	maker, device byte
}

func NewFlash(kind Kind) *FlashBackup {
	f := &FlashBackup{kind: kind}
	size := flashBankSize
	f.maker, f.device = 0x32, 0x1B
	if kind == Flash128 {
		size = 2 * flashBankSize
		f.maker, f.device = 0x62, 0x13
	}
	f.data = make([]byte, size)
	for i := range f.data {
		f.data[i] = 0xFF
	}
	return f
}

func (f *FlashBackup) Kind() Kind { return f.kind }

func (f *FlashBackup) Read8(off uint32) byte {
	off &= 0xFFFF
	if f.idMode && off < 2 {
		if off == 0 {
			return f.maker
		}
		return f.device
	}
	return f.data[f.bank*flashBankSize+off]
}

func (f *FlashBackup) Write8(off uint32, v byte) {
	off &= 0xFFFF
	switch f.state {
	case flashProgram:
		// programming can only clear bits
		f.data[f.bank*flashBankSize+off] &= v
		f.state = flashReady
		return
	case flashSelectBank:
		if off == 0 && f.kind == Flash128 {
			f.bank = uint32(v & 1)
		}
		f.state = flashReady
		return
	case flashReady:
		if off == flashAddr1 && v == flashUnlockFirst {
			f.state = flashUnlock1
			return
		}
		if v == flashCmdExitID {
			f.idMode = false
		}
		return
	case flashUnlock1:
		if off == flashAddr2 && v == flashUnlockNext {
			f.state = flashUnlock2
			return
		}
		f.state = flashReady
		return
	}

	// flashUnlock2: command byte
	f.state = flashReady
	if f.erase {
		f.erase = false
		switch {
		case off == flashAddr1 && v == flashCmdChip:
			f.fill(0, uint32(len(f.data)))
		case v == flashCmdSector:
			start := f.bank*flashBankSize + off&^(flashSectorSize-1)
			f.fill(start, start+flashSectorSize)
		}
		return
	}
	if off != flashAddr1 {
		return
	}
	switch v {
	case flashCmdEnterID:
		f.idMode = true
	case flashCmdExitID:
		f.idMode = false
	case flashCmdErase:
		f.erase = true
	case flashCmdWrite:
		f.state = flashProgram
	case flashCmdBank:
		f.state = flashSelectBank
	}
}

func (f *FlashBackup) fill(start, end uint32) {
	for i := start; i < end; i++ {
		f.data[i] = 0xFF
	}
}

func (f *FlashBackup) Bytes() []byte {
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

func (f *FlashBackup) Load(data []byte) error {
	if len(data) != len(f.data) {
		return ErrSaveSize
	}
	copy(f.data, data)
	return nil
}
