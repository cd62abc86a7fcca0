package bus

import (
	"errors"
	"fmt"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

var (
	// ErrUnmapped is returned for an address no region or register block owns.
	ErrUnmapped = errors.New("unmapped address")
	// ErrUnimplemented is returned for a known address accessed in a shape that is not modelled.
	ErrUnimplemented = errors.New("unimplemented access")
)

// Error describes a failed bus access. It wraps ErrUnmapped or ErrUnimplemented.
type Error struct {
	Op   string // "read" or "write"
	Addr uint32
	Size arm.Size
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus %s%d at %08x: %v", e.Op, e.Size*8, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func unmapped(op string, addr uint32, size arm.Size) error {
	return &Error{Op: op, Addr: addr, Size: size, Err: ErrUnmapped}
}

func unimplemented(op string, addr uint32, size arm.Size) error {
	return &Error{Op: op, Addr: addr, Size: size, Err: ErrUnimplemented}
}
