package emu

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/arm"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/bus"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/dma"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/irq"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/timer"
)

// Frame geometry and timing.
const (
	Width          = ppu.Width
	Height         = ppu.Height
	CyclesPerFrame = ppu.CyclesPerFrame
)

type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
	L, R                  bool
}

// Entry selects where execution starts after Reset.
type Entry int

const (
	// EntryPowerOn starts at the reset vector in the BIOS.
	EntryPowerOn Entry = iota
	// EntryCartridge starts at 0x08000000 in System mode with the stacks the BIOS would set up.
	EntryCartridge
)

// Status tells whether RunCycle committed its cycle.
type Status int

const (
	Completed Status = iota
	Aborted
)

func (s Status) String() string {
	if s == Aborted {
		return "aborted"
	}
	return "completed"
}

// Result is the outcome of RunCycle and RunFrame. Reason carries the hook's
// explanation when Status is Aborted.
type Result struct {
	Status Status
	Reason string
}

// Machine owns every unit and steps them one bus cycle at a time in a fixed
// order: hook, then CPU or DMA, then timers, picture and sound.
type Machine struct {
	cfg Config
	log *log.Logger

	irq    *irq.Controller
	bus    *bus.Bus
	cpu    *arm.CPU
	ppu    *ppu.PPU
	apu    *apu.APU
	timers *timer.Unit
	dma    *dma.Controller
	hle    *hleBIOS
	hook   debug.Hook

	cart    *cart.Cartridge
	romPath string

	cycles      uint64
	frames      uint64
	frameCycles int
}

// New builds a machine without a cartridge. A nil logger discards output.
func New(cfg Config, logger *log.Logger) (*Machine, error) {
	cfg.Defaults()
	if logger == nil {
		logger = NewLogger(false, true)
	}
	m := &Machine{cfg: cfg, log: logger, hook: cfg.Hook}

	m.irq = irq.New()
	m.bus = bus.New(logger, m.irq)
	m.cpu = arm.New(m.bus, m.irq)
	m.ppu = ppu.New(m.irq)
	m.apu = apu.New(cfg.SampleRate)
	m.timers = timer.New(m.irq)
	m.dma = dma.New(m.irq, m.bus)

	m.bus.AttachVideo(m.ppu)
	m.bus.Map(ppu.RegBase, ppu.RegEnd, m.ppu)
	m.bus.Map(apu.RegBase, apu.RegEnd, m.apu)
	m.bus.Map(dma.RegBase, dma.RegEnd, m.dma)
	m.bus.Map(timer.RegBase, timer.RegEnd, m.timers)

	m.bus.System.OnHalt = m.cpu.Halt
	m.bus.System.OnStop = func() {
		m.log.Debug("Stop requested, halting until the next interrupt")
		m.cpu.Halt()
	}
	m.timers.OnOverflow = m.apu.TimerOverflow
	m.apu.OnFIFORequest = m.dma.RequestFIFO
	m.ppu.OnVBlank = m.dma.VBlank
	m.ppu.OnHBlank = m.dma.HBlank
	m.dma.OnGamePakLength = func(units int) {
		if m.cart != nil && m.cart.EEPROM() != nil {
			m.cart.EEPROM().SetTransferLength(units)
		}
	}

	if len(cfg.BIOS) > 0 {
		if err := m.bus.LoadBIOS(cfg.BIOS); err != nil {
			return nil, fmt.Errorf("loading BIOS: %w", err)
		}
	} else {
		if err := m.bus.LoadBIOS(stubImage()); err != nil {
			return nil, fmt.Errorf("loading BIOS stub: %w", err)
		}
		m.hle = &hleBIOS{irq: m.irq}
		m.cpu.SetSWIHandler(m.hle)
	}

	m.Reset(EntryPowerOn)
	return m, nil
}

// LoadCartridge inserts rom and restarts at the cartridge entry point.
func (m *Machine) LoadCartridge(rom []byte) error {
	c, err := cart.New(rom)
	if err != nil {
		return fmt.Errorf("loading cartridge: %w", err)
	}
	m.cart = c
	m.bus.AttachCartridge(c)
	m.log.Info("Cartridge loaded",
		log.String("title", c.Title()),
		log.String("code", c.GameCode()),
		log.String("backup", c.Kind().String()))
	m.Reset(EntryCartridge)
	return nil
}

// LoadROMFromFile replaces the current cartridge with a ROM from disk.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SavePath returns the backup file that belongs to a ROM file.
func SavePath(romPath string) string {
	return strings.TrimSuffix(romPath, filepath.Ext(romPath)) + ".sav"
}

// ROMPath returns the file the current cartridge was loaded from, if any.
func (m *Machine) ROMPath() string { return m.romPath }

func (m *Machine) Cartridge() *cart.Cartridge { return m.cart }

// Reset restores every unit to power-on state and positions the CPU at entry.
// The cycle and frame counters restart from zero.
func (m *Machine) Reset(entry Entry) {
	m.irq.Reset()
	m.bus.Reset()
	m.cpu.Reset()
	m.ppu.Reset()
	m.apu.Reset()
	m.timers.Reset()
	m.dma.Reset()
	if m.hle != nil {
		m.hle.reset()
	}
	m.cycles, m.frames, m.frameCycles = 0, 0, 0

	if entry == EntryCartridge {
		regs := &m.cpu.Regs
		regs.SetBanked(arm.ModeIRQ, stackIRQ, 0)
		regs.SetBanked(arm.ModeSupervisor, stackSVC, 0)
		regs.SetCPSR(uint32(arm.ModeSystem))
		regs.R[13] = stackSys
		m.cpu.SetPC(cartEntry)
		m.bus.System.SetPostFlag(1)
	}
}

// SetHook replaces the cycle hook; nil installs debug.Nop.
func (m *Machine) SetHook(h debug.Hook) {
	if h == nil {
		h = debug.Nop{}
	}
	m.hook = h
}

// RunCycle runs one bus cycle. The hook sees the cycle's signals first and
// may abort it, in which case nothing advances and the next call retries the
// same cycle. Bus errors are returned as the units raised them.
func (m *Machine) RunCycle() (Result, error) {
	dmaOwns := m.dma.Active()
	sig := arm.Idle
	if !dmaOwns {
		sig = m.cpu.NextSignals()
	}
	if abort, reason := m.hook.Check(m.cycles, sig, &m.cpu.Regs); abort {
		return Result{Status: Aborted, Reason: reason}, nil
	}

	var err error
	if dmaOwns {
		err = m.dma.Step()
	} else {
		err = m.cpu.Cycle()
		if m.cfg.Trace && sig.Execute {
			m.log.Debug("Executed instruction", log.Hex("pc", m.cpu.InstrAddr()))
		}
	}
	m.timers.Step()
	m.bus.Serial.Step()
	m.ppu.Step(1)
	m.apu.Step()

	m.cycles++
	m.frameCycles++
	if m.frameCycles == CyclesPerFrame {
		m.frameCycles = 0
		m.frames++
	}
	return Result{Status: Completed}, err
}

// RunFrame runs cycles until the current frame is complete. After an abort
// the next call continues the same frame.
func (m *Machine) RunFrame() (Result, error) {
	start := m.frames
	for m.frames == start {
		res, err := m.RunCycle()
		if err != nil || res.Status == Aborted {
			return res, err
		}
	}
	return Result{Status: Completed}, nil
}

// Cycles returns the bus cycles committed since reset.
func (m *Machine) Cycles() uint64 { return m.cycles }

// Frames returns the frames completed since reset.
func (m *Machine) Frames() uint64 { return m.frames }

// FrameCycles returns the cycles already spent in the current frame.
func (m *Machine) FrameCycles() int { return m.frameCycles }

// Frame returns a copy of the last completed picture, RGBA 240x160.
func (m *Machine) Frame() []byte {
	out := make([]byte, len(m.ppu.Frame()))
	copy(out, m.ppu.Frame())
	return out
}

// Peek reads go through the bus, register side effects included.
func (m *Machine) Peek8(addr uint32) (byte, error)    { return m.bus.Peek8(addr) }
func (m *Machine) Peek16(addr uint32) (uint16, error) { return m.bus.Peek16(addr) }
func (m *Machine) Peek32(addr uint32) (uint32, error) { return m.bus.Peek32(addr) }

func (m *Machine) CPU() *arm.CPU        { return m.cpu }
func (m *Machine) IRQ() *irq.Controller { return m.irq }
func (m *Machine) PPU() *ppu.PPU        { return m.ppu }
func (m *Machine) Bus() *bus.Bus        { return m.bus }
func (m *Machine) Logger() *log.Logger  { return m.log }

// SampleRate is the rate of the frames returned by APUPullStereo.
func (m *Machine) SampleRate() int { return m.apu.SampleRate() }

func (m *Machine) SetButtons(b Buttons) {
	var keys uint16
	set := func(on bool, key uint16) {
		if on {
			keys |= key
		}
	}
	set(b.A, bus.KeyA)
	set(b.B, bus.KeyB)
	set(b.Select, bus.KeySelect)
	set(b.Start, bus.KeyStart)
	set(b.Right, bus.KeyRight)
	set(b.Left, bus.KeyLeft)
	set(b.Up, bus.KeyUp)
	set(b.Down, bus.KeyDown)
	set(b.R, bus.KeyR)
	set(b.L, bus.KeyL)
	m.bus.Keypad.SetPressed(keys)
}

// SaveBattery returns the cartridge backup contents for persistence.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.cart == nil || m.cart.Backup() == nil {
		return nil, false
	}
	return m.cart.Backup().Bytes(), true
}

// LoadBattery restores backup contents saved by SaveBattery. It reports false
// when the cartridge has no backup.
func (m *Machine) LoadBattery(data []byte) (bool, error) {
	if m.cart == nil || m.cart.Backup() == nil {
		return false, nil
	}
	if err := m.cart.Backup().Load(data); err != nil {
		return true, err
	}
	return true, nil
}

// APUPullStereo returns up to max stereo frames as interleaved int16 L,R pairs.
func (m *Machine) APUPullStereo(max int) []int16 { return m.apu.PullStereo(max) }

// APUBufferedStereo returns the number of stereo frames ready in the sound buffer.
func (m *Machine) APUBufferedStereo() int { return m.apu.StereoAvailable() }

// APUClearAudioLatency drops all buffered frames to re-sync audio with video.
func (m *Machine) APUClearAudioLatency() { m.apu.CapBuffered(0) }

// APUCapBufferedStereo trims the buffered frames to at most target frames.
func (m *Machine) APUCapBufferedStereo(target int) { m.apu.CapBuffered(target) }
