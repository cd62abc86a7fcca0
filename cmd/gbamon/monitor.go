package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyjkemp/memviz"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

var errQuit = errors.New("quit")

// runLimit bounds "run" and "step" so a halted or looping program hands the
// prompt back.
const runLimit = 3600 * emu.CyclesPerFrame

const helpText = `commands:
  step [n]              execute n instructions
  cycle [n]             run n bus cycles
  frame [n]             run n frames
  run                   run until a breakpoint (at most one minute of machine time)
  regs                  show registers
  peek <addr> [n]       dump n bytes (default 64)
  break exec|read|write <addr> [if <lua>]
  break reg <rN> <value> [if <lua>]
  cond <lua>            break at any instruction where the expression holds
  next                  break at the next instruction boundary on the following run or frame
  list                  list breakpoints
  delete <id>           remove a breakpoint
  clear                 remove all breakpoints
  reset [bios]          restart the cartridge, or power on through the BIOS
  dump <file.dot>       write a graph of the machine state
  quit`

// monitor executes command lines against a machine with a debugger installed as its hook.
type monitor struct {
	m    *emu.Machine
	dbg  *debug.Debugger
	out  io.Writer
	last string
}

func newMonitor(m *emu.Machine, out io.Writer) *monitor {
	d := debug.New()
	m.SetHook(d)
	return &monitor{m: m, dbg: d, out: out}
}

func (mon *monitor) Close() { mon.dbg.Close() }

// exec runs one command line. An empty line repeats the previous command.
func (mon *monitor) exec(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		line = mon.last
	}
	if line == "" {
		return nil
	}
	mon.last = line
	f := strings.Fields(line)
	args := f[1:]

	switch strings.ToLower(f[0]) {
	case "q", "quit", "exit":
		return errQuit
	case "h", "help", "?":
		fmt.Fprintln(mon.out, helpText)
	case "s", "step":
		n, err := count(args, 1)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			ok, err := mon.stepInstruction()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
		}
		mon.where()
	case "c", "cycle":
		n, err := count(args, 1)
		if err != nil {
			return err
		}
		if _, err := mon.run(n); err != nil {
			return err
		}
		mon.where()
	case "f", "frame":
		n, err := count(args, 1)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			res, err := mon.m.RunFrame()
			if err != nil {
				return err
			}
			if res.Status == emu.Aborted {
				fmt.Fprintf(mon.out, "break: %s\n", res.Reason)
				break
			}
		}
		mon.where()
	case "r", "run":
		if _, err := mon.run(runLimit); err != nil {
			return err
		}
		mon.where()
	case "regs":
		fmt.Fprintln(mon.out, mon.m.CPU().Regs.String())
	case "p", "peek":
		return mon.peek(args)
	case "b", "break":
		return mon.addBreak(args)
	case "cond":
		if len(args) == 0 {
			return errors.New("cond needs an expression")
		}
		return mon.add(debug.Breakpoint{Kind: debug.Cond, Cond: strings.Join(args, " ")})
	case "n", "next":
		mon.dbg.BreakNext()
	case "l", "list":
		bs := mon.dbg.List()
		if len(bs) == 0 {
			fmt.Fprintln(mon.out, "no breakpoints")
		}
		for _, b := range bs {
			fmt.Fprintln(mon.out, b)
		}
	case "d", "delete":
		if len(args) != 1 {
			return errors.New("delete needs a breakpoint id")
		}
		id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil {
			return err
		}
		if !mon.dbg.Remove(id) {
			return fmt.Errorf("no breakpoint #%d", id)
		}
	case "clear":
		mon.dbg.Clear()
	case "reset":
		entry := emu.EntryCartridge
		if len(args) > 0 && args[0] == "bios" {
			entry = emu.EntryPowerOn
		}
		mon.m.Reset(entry)
		mon.where()
	case "dump":
		if len(args) != 1 {
			return errors.New("dump needs a file name")
		}
		return mon.dump(args[0])
	default:
		return fmt.Errorf("unknown command %q (try help)", f[0])
	}
	return nil
}

// run advances up to limit cycles and returns the reason a breakpoint stopped
// it, or "" when the limit ran out.
func (mon *monitor) run(limit int) (string, error) {
	for i := 0; i < limit; i++ {
		res, err := mon.m.RunCycle()
		if err != nil {
			return "", err
		}
		if res.Status == emu.Aborted {
			if !isStep(res.Reason) {
				fmt.Fprintf(mon.out, "break: %s\n", res.Reason)
			}
			return res.Reason, nil
		}
	}
	return "", nil
}

// stepInstruction runs the pending instruction and stops at the next boundary.
// It reports false when a breakpoint or the run limit got in the way.
func (mon *monitor) stepInstruction() (bool, error) {
	res, err := mon.m.RunCycle()
	if err != nil {
		return false, err
	}
	if res.Status == emu.Aborted {
		fmt.Fprintf(mon.out, "break: %s\n", res.Reason)
		return false, nil
	}
	mon.dbg.BreakNext()
	reason, err := mon.run(runLimit)
	mon.dbg.CancelNext()
	if err != nil {
		return false, err
	}
	if reason == "" {
		fmt.Fprintln(mon.out, "no instruction boundary reached")
	}
	return isStep(reason), nil
}

func isStep(reason string) bool { return strings.HasPrefix(reason, "step at") }

func (mon *monitor) where() {
	c := mon.m.CPU()
	pc, thumb := c.InstrAddr(), c.Regs.Thumb()
	if c.AtBoundary() {
		sig := c.NextSignals()
		pc, thumb = sig.Addr, sig.Size == arm.Half
	}
	var op string
	if thumb {
		v, err := mon.m.Peek16(pc)
		op = fmt.Sprintf("%04x", v)
		if err != nil {
			op = "????"
		}
	} else {
		v, err := mon.m.Peek32(pc)
		op = fmt.Sprintf("%08x", v)
		if err != nil {
			op = "????????"
		}
	}
	state := ""
	if c.Halted() {
		state = " halted"
	}
	fmt.Fprintf(mon.out, "%08x: %s  cycle %d frame %d%s\n", pc, op, mon.m.Cycles(), mon.m.Frames(), state)
}

func (mon *monitor) peek(args []string) error {
	if len(args) == 0 {
		return errors.New("peek needs an address")
	}
	addr, err := parseHex(args[0])
	if err != nil {
		return err
	}
	n, err := count(args[1:], 64)
	if err != nil {
		return err
	}
	for row := 0; row < n; row += 16 {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%08x:", addr+uint32(row))
		for i := row; i < row+16 && i < n; i++ {
			v, err := mon.m.Peek8(addr + uint32(i))
			if err != nil {
				sb.WriteString(" --")
				continue
			}
			fmt.Fprintf(&sb, " %02x", v)
		}
		fmt.Fprintln(mon.out, sb.String())
	}
	return nil
}

func (mon *monitor) addBreak(args []string) error {
	if len(args) < 2 {
		return errors.New("break needs a kind and an address")
	}
	kind, err := debug.ParseKind(args[0])
	if err != nil {
		return err
	}
	b := debug.Breakpoint{Kind: kind}
	rest := args[1:]
	switch kind {
	case debug.Reg:
		if len(rest) < 2 {
			return errors.New("break reg needs a register and a value")
		}
		r, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(rest[0]), "r"))
		if err != nil {
			return fmt.Errorf("register %q: %w", rest[0], err)
		}
		if b.Value, err = parseHex(rest[1]); err != nil {
			return err
		}
		b.Reg = r
		rest = rest[2:]
	case debug.Cond:
		return errors.New("use cond <expression>")
	default:
		if b.Addr, err = parseHex(rest[0]); err != nil {
			return err
		}
		rest = rest[1:]
	}
	if len(rest) > 0 {
		if rest[0] != "if" || len(rest) == 1 {
			return fmt.Errorf("unexpected %q", strings.Join(rest, " "))
		}
		b.Cond = strings.Join(rest[1:], " ")
	}
	return mon.add(b)
}

func (mon *monitor) add(b debug.Breakpoint) error {
	b, err := mon.dbg.Add(b)
	if err != nil {
		return err
	}
	fmt.Fprintln(mon.out, "added", b)
	return nil
}

// snapshot is the part of the machine written by dump.
type snapshot struct {
	R           [16]uint32
	CPSR        uint32
	Mode        string
	Halted      bool
	IE, IF      uint16
	IME         bool
	Cycles      uint64
	Frames      uint64
	Breakpoints []debug.Breakpoint
}

func (mon *monitor) dump(path string) error {
	c := mon.m.CPU()
	irqc := mon.m.IRQ()
	s := snapshot{
		R:           c.Regs.R,
		CPSR:        c.Regs.CPSR,
		Mode:        c.Regs.Mode().String(),
		Halted:      c.Halted(),
		IE:          irqc.Enable(),
		IF:          irqc.Request(),
		IME:         irqc.MasterEnable(),
		Cycles:      mon.m.Cycles(),
		Frames:      mon.m.Frames(),
		Breakpoints: mon.dbg.List(),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	memviz.Map(f, &s)
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(mon.out, "wrote", path)
	return nil
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	s = strings.TrimPrefix(s, "$")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", s, err)
	}
	return uint32(v), nil
}

func count(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad count %q", args[0])
	}
	return n, nil
}
