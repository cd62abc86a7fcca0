package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

// traceEntry is one executed instruction with the registers it left behind.
type traceEntry struct {
	pc    uint32
	op    uint32
	thumb bool
	cyc   int
	r     [16]uint32
	cpsr  uint32
	ie    uint16
	iflag uint16
}

func (te traceEntry) String() string {
	op := fmt.Sprintf("%08X", te.op)
	if te.thumb {
		op = fmt.Sprintf("    %04X", te.op)
	}
	return fmt.Sprintf("PC=%08X OP=%s cyc=%d R0=%08X R1=%08X R2=%08X R3=%08X R12=%08X SP=%08X LR=%08X CPSR=%08X IE=%04X IF=%04X",
		te.pc, op, te.cyc, te.r[0], te.r[1], te.r[2], te.r[3], te.r[12], te.r[13], te.r[14], te.cpsr, te.ie, te.iflag)
}

// step runs cycles until the instruction that started executing has finished.
func step(m *emu.Machine) (int, error) {
	n := 0
	for {
		res, err := m.RunCycle()
		n++
		if err != nil {
			return n, err
		}
		if res.Status == emu.Aborted {
			return n, fmt.Errorf("aborted: %s", res.Reason)
		}
		if !m.CPU().Busy() {
			return n, nil
		}
	}
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional BIOS image to run from 0x00000000 instead of entering the cartridge directly")
	steps := flag.Int("steps", 50_000_000, "max instructions to run")
	trace := flag.Bool("trace", false, "print every executed instruction")
	auto := flag.Bool("auto", true, "stop at the first idle loop and exit 0/1 from the result register")
	resultReg := flag.Int("reg", 12, "register holding the failed test number once the ROM idles (0 means passed)")
	idle := flag.Int("idle", 16, "consecutive executions of one address that count as an idle loop")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (e.g. 30s, 2m); 0 disables")
	traceOnFail := flag.Bool("traceOnFail", false, "when -auto detects failure, print a recent trace window (slows down)")
	traceWindow := flag.Int("traceWindow", 200, "number of recent instructions to include in 'traceOnFail' dump")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	if *resultReg < 0 || *resultReg > 14 {
		log.Fatalf("-reg %d out of range", *resultReg)
	}
	var cfg emu.Config
	if *biosPath != "" {
		b, err := os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read bios: %v", err)
		}
		cfg.BIOS = b
	}

	m, err := emu.New(cfg, emu.NewLogger(false, true))
	if err != nil {
		log.Fatalf("create machine: %v", err)
	}
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if len(cfg.BIOS) > 0 {
		m.Reset(emu.EntryPowerOn)
	}
	c := m.CPU()

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}
	done := func(n int) {
		fmt.Printf("\nDone: steps=%d cycles=%d elapsed=%s\n", n, m.Cycles(), time.Since(start).Truncate(time.Millisecond))
	}

	// ring buffer for recent traces
	ring := make([]traceEntry, *traceWindow)
	ringIdx := 0
	ringFill := 0
	dumpRing := func() {
		if ringFill == 0 {
			return
		}
		fmt.Printf("\n--- recent trace (last %d instructions) ---\n", ringFill)
		startIdx := (ringIdx - ringFill + *traceWindow) % *traceWindow
		for j := 0; j < ringFill; j++ {
			fmt.Println(ring[(startIdx+j)%*traceWindow])
		}
		fmt.Printf("--- end trace ---\n")
	}

	var lastPC uint32
	repeats := 0
	for i := 0; i < *steps; i++ {
		cyc, err := step(m)
		pc := c.InstrAddr()
		if *trace || *traceOnFail {
			te := traceEntry{pc: pc, cyc: cyc, thumb: c.Regs.Thumb(), r: c.Regs.R, cpsr: c.Regs.CPSR,
				ie: m.IRQ().Enable(), iflag: m.IRQ().Request()}
			if te.thumb {
				op, _ := m.Peek16(pc)
				te.op = uint32(op)
			} else {
				te.op, _ = m.Peek32(pc)
			}
			if *trace {
				fmt.Println(te)
			}
			if *traceOnFail && *traceWindow > 0 {
				ring[ringIdx] = te
				ringIdx = (ringIdx + 1) % *traceWindow
				if ringFill < *traceWindow {
					ringFill++
				}
			}
		}
		if err != nil {
			fmt.Printf("\nStopped at %08X: %v\n", pc, err)
			dumpRing()
			done(i + 1)
			os.Exit(1)
		}

		if *auto && !c.Halted() {
			if pc == lastPC {
				repeats++
			} else {
				lastPC, repeats = pc, 0
			}
			if repeats >= *idle {
				result := c.Reg(*resultReg)
				mode := "ARM"
				if c.Regs.Thumb() {
					mode = "THUMB"
				}
				fmt.Printf("\nIdle loop at %08X (%s, %s mode).\n", pc, mode, c.Regs.Mode())
				if result == 0 {
					fmt.Printf("Detected PASS (r%d=0).\n", *resultReg)
					done(i + 1)
					os.Exit(0)
				}
				fmt.Printf("Detected failure of test %d (r%d).\n", result, *resultReg)
				if *traceOnFail {
					dumpRing()
				}
				done(i + 1)
				os.Exit(1)
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			done(i + 1)
			os.Exit(2)
		}
	}
	done(*steps)
}
