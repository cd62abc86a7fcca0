// Command gbamon is an interactive monitor: it runs a cartridge under the
// breakpoint debugger and takes commands from a terminal prompt.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

// stdio joins stdin and stdout for term.NewTerminal.
type stdio struct {
	io.Reader
	io.Writer
}

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional BIOS image")
	debugLog := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	var cfg emu.Config
	if *biosPath != "" {
		b, err := os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read bios: %v", err)
		}
		cfg.BIOS = b
	}
	m, err := emu.New(cfg, emu.NewLogger(*debugLog, !*debugLog))
	if err != nil {
		log.Fatalf("create machine: %v", err)
	}
	if err := m.LoadROMFromFile(*romPath); err != nil {
		log.Fatalf("load rom: %v", err)
	}
	if len(cfg.BIOS) > 0 {
		m.Reset(emu.EntryPowerOn)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// scripted input: one command per line, no prompt editing
		mon := newMonitor(m, os.Stdout)
		defer mon.Close()
		if err := runScript(mon, os.Stdin); err != nil {
			log.Fatal(err)
		}
		return
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		log.Fatalf("raw mode: %v", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	t := term.NewTerminal(stdio{os.Stdin, os.Stdout}, "gbamon> ")
	if w, h, err := term.GetSize(fd); err == nil {
		_ = t.SetSize(w, h)
	}
	mon := newMonitor(m, t)
	defer mon.Close()

	title := "untitled"
	if c := m.Cartridge(); c != nil && c.Title() != "" {
		title = c.Title()
	}
	fmt.Fprintf(t, "%s loaded, type help for commands\n", title)
	mon.where()
	for {
		line, err := t.ReadLine()
		if err != nil {
			// EOF on ctrl-d
			return
		}
		if err := mon.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return
			}
			fmt.Fprintf(t, "error: %v\n", err)
		}
	}
}
