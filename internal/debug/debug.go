// Package debug provides the hook the scheduler consults before every bus
// cycle, and a breakpoint debugger built on it.
package debug

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
)

// Hook sees the signals of every cycle before the CPU commits it. Returning
// abort stops the scheduler without running the cycle.
type Hook interface {
	Check(cycle uint64, sig arm.Signals, regs *arm.Registers) (abort bool, reason string)
}

// Nop never aborts.
type Nop struct{}

func (Nop) Check(uint64, arm.Signals, *arm.Registers) (bool, string) { return false, "" }

// Kind selects what a breakpoint watches.
type Kind int

const (
	Exec Kind = iota
	Read
	Write
	Reg
	// Cond breaks at any instruction boundary where its condition holds.
	Cond
)

var kindNames = [...]string{"exec", "read", "write", "reg", "cond"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(s, n) {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown breakpoint kind %q", s)
}

// Breakpoint is one break condition. Addr is used by Exec, Read and Write;
// Reg and Value by Reg. Cond is an optional Lua expression that must also hold.
type Breakpoint struct {
	ID    int
	Kind  Kind
	Addr  uint32
	Reg   int
	Value uint32
	Cond  string
}

func (b Breakpoint) String() string {
	var s string
	switch b.Kind {
	case Reg:
		s = fmt.Sprintf("#%d reg r%d == %08x", b.ID, b.Reg, b.Value)
	case Cond:
		s = fmt.Sprintf("#%d cond", b.ID)
	default:
		s = fmt.Sprintf("#%d %s %08x", b.ID, b.Kind, b.Addr)
	}
	if b.Cond != "" {
		s += " if " + b.Cond
	}
	return s
}

type breaker struct {
	Breakpoint
	cond *lua.LFunction
}

// Debugger implements Hook with execute, read, write, register and scripted
// breakpoints plus a one-shot break at the next instruction boundary.
type Debugger struct {
	L      *lua.LState
	breaks []breaker
	nextID int
	next   bool

	// the cycle that last aborted; checking it again resumes past the break
	held    uint64
	holding bool
}

func New() *Debugger {
	return &Debugger{L: lua.NewState(lua.Options{SkipOpenLibs: true}), nextID: 1}
}

// Close releases the Lua state.
func (d *Debugger) Close() { d.L.Close() }

// Add installs b and returns it with its assigned ID. A condition that does
// not compile is rejected.
func (d *Debugger) Add(b Breakpoint) (Breakpoint, error) {
	bk := breaker{Breakpoint: b}
	if b.Kind == Cond && b.Cond == "" {
		return b, fmt.Errorf("cond breakpoint needs an expression")
	}
	if b.Kind == Reg && (b.Reg < 0 || b.Reg > 15) {
		return b, fmt.Errorf("register r%d out of range", b.Reg)
	}
	if b.Cond != "" {
		fn, err := d.L.LoadString("return " + b.Cond)
		if err != nil {
			return b, fmt.Errorf("compiling condition: %w", err)
		}
		bk.cond = fn
	}
	bk.ID = d.nextID
	d.nextID++
	d.breaks = append(d.breaks, bk)
	return bk.Breakpoint, nil
}

// Remove deletes the breakpoint with the given ID and reports whether it existed.
func (d *Debugger) Remove(id int) bool {
	for i, b := range d.breaks {
		if b.ID == id {
			d.breaks = append(d.breaks[:i], d.breaks[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every breakpoint and cancels a pending BreakNext.
func (d *Debugger) Clear() {
	d.breaks = nil
	d.next = false
}

func (d *Debugger) List() []Breakpoint {
	out := make([]Breakpoint, len(d.breaks))
	for i, b := range d.breaks {
		out[i] = b.Breakpoint
	}
	return out
}

// BreakNext stops at the next instruction boundary.
func (d *Debugger) BreakNext() { d.next = true }

func (d *Debugger) CancelNext() { d.next = false }

func (d *Debugger) Check(cycle uint64, sig arm.Signals, regs *arm.Registers) (bool, string) {
	if d.holding && cycle == d.held {
		d.holding = false
		return false, ""
	}
	d.holding = false

	abort, reason := d.check(cycle, sig, regs)
	if abort {
		d.held, d.holding = cycle, true
	}
	return abort, reason
}

func (d *Debugger) check(cycle uint64, sig arm.Signals, regs *arm.Registers) (bool, string) {
	if d.next && sig.Execute {
		d.next = false
		return true, fmt.Sprintf("step at %08x", sig.Addr)
	}
	for i := range d.breaks {
		b := &d.breaks[i]
		if !b.matches(sig, regs) {
			continue
		}
		if b.cond != nil {
			ok, err := d.eval(b.cond, cycle, sig, regs)
			if err != nil {
				return true, fmt.Sprintf("%s: condition failed: %v", b.Breakpoint, err)
			}
			if !ok {
				continue
			}
		}
		return true, b.Breakpoint.String()
	}
	return false, ""
}

func (b *breaker) matches(sig arm.Signals, regs *arm.Registers) bool {
	switch b.Kind {
	case Exec:
		return sig.Execute && sig.Addr == b.Addr
	case Read, Write:
		if !sig.MemReq || sig.Fetch || sig.Wait || sig.Write != (b.Kind == Write) {
			return false
		}
		return b.Addr >= sig.Addr && b.Addr < sig.Addr+uint32(sig.Size)
	case Reg:
		return sig.Execute && regs.R[b.Reg] == b.Value
	case Cond:
		return sig.Execute
	}
	return false
}

// eval runs a compiled condition with the registers and bus signals as globals.
func (d *Debugger) eval(fn *lua.LFunction, cycle uint64, sig arm.Signals, regs *arm.Registers) (bool, error) {
	L := d.L
	for i := 0; i < 16; i++ {
		L.SetGlobal(fmt.Sprintf("r%d", i), lua.LNumber(regs.R[i]))
	}
	L.SetGlobal("pc", lua.LNumber(regs.R[15]))
	L.SetGlobal("sp", lua.LNumber(regs.R[13]))
	L.SetGlobal("lr", lua.LNumber(regs.R[14]))
	L.SetGlobal("cpsr", lua.LNumber(regs.CPSR))
	L.SetGlobal("thumb", lua.LBool(regs.Thumb()))
	L.SetGlobal("addr", lua.LNumber(sig.Addr))
	L.SetGlobal("data", lua.LNumber(sig.Data))
	L.SetGlobal("size", lua.LNumber(sig.Size))
	L.SetGlobal("write", lua.LBool(sig.Write))
	L.SetGlobal("fetch", lua.LBool(sig.Fetch))
	L.SetGlobal("cycle", lua.LNumber(cycle))

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return false, err
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret), nil
}
