package arm

import "fmt"

// Size is the width of one bus access in bytes.
type Size uint8

const (
	Byte Size = 1
	Half Size = 2
	Word Size = 4
)

// Signals is the state of the CPU bus pins for one cycle. It is a value: the CPU
// computes it before any peripheral reacts and consumers only ever see copies.
// Data carries the value of a write or an opcode fetch; a data read is only
// known once its last cycle commits.
type Signals struct {
	Addr   uint32
	Data   uint32
	Size   Size
	Write  bool // nRW: true for a write cycle
	MemReq bool // nMREQ asserted: a memory access is in progress
	Seq    bool // sequential to the previous access
	Fetch  bool // opcode fetch (nOPC)
	Wait   bool // nWAIT: the previous access is stretched by a wait state
	// Execute marks the fetch that begins a new instruction, as opposed to a
	// pipeline refill after a branch.
	Execute bool
}

// Idle is the signal set of an internal or halted cycle.
var Idle = Signals{}

func (s Signals) String() string {
	if !s.MemReq {
		return "idle"
	}
	dir := "R"
	if s.Write {
		dir = "W"
	}
	kind := "N"
	if s.Seq {
		kind = "S"
	}
	op := ""
	if s.Fetch {
		op = " fetch"
	}
	return fmt.Sprintf("%s%d %s %08x=%08x%s", dir, s.Size*8, kind, s.Addr, s.Data, op)
}
