package emu

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/log"
)

// findROMs recursively collects .gba files under dir.
func findROMs(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), ".gba") {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}

// runTestROM executes a ROM for maxFrames and fails on the first bus or BIOS error.
func runTestROM(t *testing.T, romPath string, maxFrames int) {
	t.Helper()
	m, err := New(Config{}, log.NewTestLogger(t))
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if err := m.LoadROMFromFile(romPath); err != nil {
		t.Fatalf("load ROM: %v", err)
	}
	for i := 0; i < maxFrames; i++ {
		if _, err := m.RunFrame(); err != nil {
			t.Fatalf("%s frame %d at %08x: %v", filepath.Base(romPath), i, m.CPU().InstrAddr(), err)
		}
	}
}

// moduleRoot walks up from this file to the directory holding go.mod.
func moduleRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "."
		}
		dir = parent
	}
}

// TestROMSuite runs every .gba under testroms/ (or GBA_TESTROMS).
func TestROMSuite(t *testing.T) {
	// Opt-in via env to avoid long test runs by default.
	if os.Getenv("RUN_TESTROMS") == "" {
		t.Skip("set RUN_TESTROMS=1 and place ROMs under testroms or set GBA_TESTROMS to run")
	}

	base := os.Getenv("GBA_TESTROMS")
	if base == "" {
		base = filepath.Join(moduleRoot(), "testroms")
	}
	if _, err := os.Stat(base); err != nil {
		t.Skipf("test ROM dir missing: %s", base)
	}

	roms, err := findROMs(base)
	if err != nil {
		t.Fatalf("scan ROMs: %v", err)
	}
	if len(roms) == 0 {
		t.Skipf("no ROMs found in %s", base)
	}

	maxFrames := 600
	if v := os.Getenv("TESTROMS_MAX_FRAMES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxFrames = n
		}
	}

	for _, rom := range roms {
		name := strings.TrimSuffix(filepath.Base(rom), filepath.Ext(rom))
		t.Run(name, func(t *testing.T) { runTestROM(t, rom, maxFrames) })
	}
}
