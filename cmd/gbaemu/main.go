package main

import (
	"flag"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	rlog "github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/debug"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/statsview"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/ui"
	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/wavwriter"
)

type CLIFlags struct {
	ROMPath  string
	BIOSPath string
	Scale    int
	Title    string
	Trace    bool
	SaveRAM  bool // persist backup next to ROM (.sav)
	Break    string
	Debug    bool
	Quiet    bool
	Stats    string
	Stereo   bool

	// headless
	Headless bool
	Frames   int
	PNGOut   string
	Expect   string // expected framebuffer CRC32 hex (e.g., "1a2b3c4d")
	WAVOut   string
}

func parseFlags() CLIFlags {
	var f CLIFlags
	flag.StringVar(&f.ROMPath, "rom", "", "path to ROM (.gba)")
	flag.StringVar(&f.BIOSPath, "bios", "", "optional 16 KiB BIOS image; a built-in replacement is used otherwise")
	flag.IntVar(&f.Scale, "scale", 3, "window scale")
	flag.StringVar(&f.Title, "title", "gbaemu", "window title")
	flag.BoolVar(&f.Trace, "trace", false, "log every executed instruction (implies -debug)")
	flag.BoolVar(&f.SaveRAM, "save", true, "persist backup memory to ROM.sav on exit and load on start")
	flag.StringVar(&f.Break, "break", "", "comma separated execute breakpoint addresses (hex)")
	flag.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&f.Quiet, "quiet", false, "only log errors")
	flag.StringVar(&f.Stats, "statsview", "", "serve runtime statistics on host:port (e.g. "+statsview.DefaultAddress+")")
	flag.BoolVar(&f.Stereo, "stereo", true, "stereo audio output (mono when false)")

	// headless options
	flag.BoolVar(&f.Headless, "headless", false, "run without a window")
	flag.IntVar(&f.Frames, "frames", 300, "frames to run in headless mode")
	flag.StringVar(&f.PNGOut, "outpng", "", "write last framebuffer to PNG at path")
	flag.StringVar(&f.Expect, "expect", "", "assert framebuffer CRC32 (hex)")
	flag.StringVar(&f.WAVOut, "wav", "", "record audio to a WAV file in headless mode")
	flag.Parse()
	return f
}

func runHeadless(m *emu.Machine, logger *rlog.Logger, f CLIFlags) error {
	frames := f.Frames
	if frames <= 0 {
		frames = 1
	}

	var wav *wavwriter.WavWriter
	if f.WAVOut != "" {
		var err error
		if wav, err = wavwriter.New(f.WAVOut, m.SampleRate()); err != nil {
			return err
		}
	}

	start := time.Now()
	for i := 0; i < frames; i++ {
		res, err := m.RunFrame()
		if err != nil {
			return fmt.Errorf("frame %d at %08x: %w", i, m.CPU().InstrAddr(), err)
		}
		if res.Status == emu.Aborted {
			logger.Info("Breakpoint hit",
				rlog.String("reason", res.Reason),
				rlog.Hex("pc", m.CPU().InstrAddr()))
			break
		}
		if wav != nil {
			wav.WriteStereo(m.APUPullStereo(m.APUBufferedStereo()))
		} else {
			m.APUClearAudioLatency()
		}
	}
	dur := time.Since(start)

	fb := m.Frame() // RGBA 240x160*4
	crc := crc32.ChecksumIEEE(fb)
	fps := float64(m.Frames()) / dur.Seconds()

	log.Printf("headless: frames=%d cycles=%d elapsed=%s fps=%.2f fb_crc32=%08x",
		m.Frames(), m.Cycles(), dur.Truncate(time.Millisecond), fps, crc)

	if wav != nil {
		if err := wav.Close(); err != nil {
			return err
		}
		log.Printf("wrote %s (%d frames)", f.WAVOut, wav.Frames())
	}

	if f.PNGOut != "" {
		if err := saveFramePNG(fb, emu.Width, emu.Height, f.PNGOut); err != nil {
			return fmt.Errorf("write PNG: %w", err)
		}
		log.Printf("wrote %s", f.PNGOut)
	}

	if f.Expect != "" {
		// normalize expected hex (allow with/without 0x, upper/lowercase)
		want := strings.TrimPrefix(strings.ToLower(f.Expect), "0x")
		got := fmt.Sprintf("%08x", crc)
		if got != want {
			return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
		}
	}
	return nil
}

func saveFramePNG(pix []byte, w, h int, path string) error {
	img := &image.RGBA{
		Pix:    pix,
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func mustRead(path string) []byte {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return b
}

// breakpoints builds a debugger from the -break list, or returns nil when it is empty.
func breakpoints(list string) (*debug.Debugger, error) {
	if list == "" {
		return nil, nil
	}
	d := debug.New()
	for _, s := range strings.Split(list, ",") {
		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0x"), 16, 32)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("breakpoint %q: %w", s, err)
		}
		if _, err := d.Add(debug.Breakpoint{Kind: debug.Exec, Addr: uint32(addr)}); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func main() {
	f := parseFlags()
	logger := emu.NewLogger(f.Debug || f.Trace, f.Quiet)

	if f.Stats != "" {
		url, err := statsview.Launch(f.Stats)
		if err != nil {
			log.Fatal(err)
		}
		logger.Info("Stats server started", rlog.String("url", url))
	}

	cfg := emu.Config{
		BIOS:  mustRead(f.BIOSPath),
		Trace: f.Trace,
	}
	dbg, err := breakpoints(f.Break)
	if err != nil {
		log.Fatal(err)
	}
	if dbg != nil {
		defer dbg.Close()
		cfg.Hook = dbg
	}

	m, err := emu.New(cfg, logger)
	if err != nil {
		log.Fatalf("create machine: %v", err)
	}
	if f.ROMPath != "" {
		// prefer absolute path for save placement consistency
		path := f.ROMPath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if err := m.LoadROMFromFile(path); err != nil {
			log.Fatalf("load cart: %v", err)
		}
		if len(cfg.BIOS) > 0 {
			m.Reset(emu.EntryPowerOn)
		}
	}

	// Backup memory: load .sav if present
	var savPath string
	if f.SaveRAM && m.ROMPath() != "" {
		savPath = emu.SavePath(m.ROMPath())
		if data, err := os.ReadFile(savPath); err == nil {
			if ok, err := m.LoadBattery(data); err != nil {
				logger.Error("Save data rejected", rlog.String("path", savPath), rlog.Err(err))
			} else if ok {
				logger.Info("Loaded save data", rlog.String("path", savPath))
			}
		}
	}

	if f.Headless {
		if err := runHeadless(m, logger, f); err != nil {
			log.Fatal(err)
		}
		if savPath != "" {
			if data, ok := m.SaveBattery(); ok {
				if err := os.WriteFile(savPath, data, 0644); err == nil {
					log.Printf("wrote %s", savPath)
				}
			}
		}
		return
	}

	uiCfg := ui.Config{
		Title:       f.Title,
		Scale:       f.Scale,
		AudioStereo: f.Stereo,
		SaveBattery: f.SaveRAM,
		ShowStats:   f.Debug,
	}
	app := ui.NewApp(uiCfg, m)
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
	if err := app.Close(); err != nil {
		log.Fatal(err)
	}
}
