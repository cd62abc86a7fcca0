package emu

import (
	"github.com/retroenv/retrogolib/log"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/debug"
)

// Config contains settings that affect emulation behavior.
type Config struct {
	SampleRate int        // host audio rate the sound unit resamples to
	BIOS       []byte     // BIOS image; the built-in stub and SWI emulation are used when empty
	Trace      bool       // log every executed instruction at debug level
	Hook       debug.Hook // consulted before every cycle
}

// Defaults fills unset fields.
func (c *Config) Defaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.Hook == nil {
		c.Hook = debug.Nop{}
	}
}

// NewLogger returns the logger shared by the machine and the host tools.
func NewLogger(verbose, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if verbose {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
