package cart

const sramSize = 32 * 1024

// SRAMBackup is 32 KiB of battery backed static RAM on the 8-bit bus.
type SRAMBackup struct {
	ram []byte
}

func NewSRAM() *SRAMBackup {
	s := &SRAMBackup{ram: make([]byte, sramSize)}
	for i := range s.ram {
		s.ram[i] = 0xFF
	}
	return s
}

func (s *SRAMBackup) Kind() Kind                { return SRAM }
func (s *SRAMBackup) Read8(off uint32) byte     { return s.ram[off&(sramSize-1)] }
func (s *SRAMBackup) Write8(off uint32, v byte) { s.ram[off&(sramSize-1)] = v }

func (s *SRAMBackup) Bytes() []byte {
	out := make([]byte, len(s.ram))
	copy(out, s.ram)
	return out
}

// Load accepts any size up to 32 KiB; shorter saves (8 KiB chips) fill the start.
func (s *SRAMBackup) Load(data []byte) error {
	if len(data) > len(s.ram) {
		return ErrSaveSize
	}
	copy(s.ram, data)
	return nil
}
