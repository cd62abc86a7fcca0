package ui

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/font/basicfont"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

const (
	lineHeight   = 13
	screenHeight = emu.Height
)

type App struct {
	cfg    Config
	m      *emu.Machine
	log    *log.Logger
	tex    *ebiten.Image
	shade  *ebiten.Image
	paused bool
	fast   bool

	// why emulation stopped on its own (breakpoint or bus error)
	stopReason string

	// overlay/menu
	showMenu bool
	menuMode string
	menuIdx  int
	romList  []string
	romSel   int
	romOff   int
	keysOff  int

	toastMsg   string
	toastUntil time.Time

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *apuStream
	queue       *sampleQueue

	// fps measured over the last second
	fps        float64
	fpsFrames  int
	fpsStarted time.Time
}

func NewApp(cfg Config, m *emu.Machine) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(windowTitle(cfg.Title, m))
	ebiten.SetWindowSize(emu.Width*cfg.Scale, emu.Height*cfg.Scale)
	a := &App{cfg: cfg, m: m, log: m.Logger(), menuMode: "main", fpsStarted: time.Now()}

	rate := m.SampleRate()
	a.queue = newSampleQueue(rate * cfg.AudioBufferMs / 1000 * 4)
	a.audioCtx = audio.NewContext(rate)
	a.startAudio()
	return a
}

func windowTitle(base string, m *emu.Machine) string {
	if c := m.Cartridge(); c != nil && c.Title() != "" {
		return base + " - [" + c.Title() + "]"
	}
	return base
}

func (a *App) startAudio() {
	if a.audioPlayer != nil {
		a.audioPlayer.Close()
		a.audioPlayer = nil
	}
	a.audioSrc = &apuStream{q: a.queue, mono: !a.cfg.AudioStereo, lowLatency: a.cfg.AudioLowLatency}
	p, err := a.audioCtx.NewPlayer(a.audioSrc)
	if err != nil {
		a.log.Error("Creating audio player failed", log.Err(err))
		return
	}
	a.audioPlayer = p
	a.applyPlayerBufferSize()
	a.audioPlayer.Play()
}

func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) buttons() emu.Buttons {
	return emu.Buttons{
		A:      ebiten.IsKeyPressed(ebiten.KeyZ),
		B:      ebiten.IsKeyPressed(ebiten.KeyX),
		L:      ebiten.IsKeyPressed(ebiten.KeyA),
		R:      ebiten.IsKeyPressed(ebiten.KeyS),
		Start:  ebiten.IsKeyPressed(ebiten.KeyEnter),
		Select: ebiten.IsKeyPressed(ebiten.KeyShiftRight),
		Up:     ebiten.IsKeyPressed(ebiten.KeyUp),
		Down:   ebiten.IsKeyPressed(ebiten.KeyDown),
		Left:   ebiten.IsKeyPressed(ebiten.KeyLeft),
		Right:  ebiten.IsKeyPressed(ebiten.KeyRight),
	}
}

func (a *App) Update() error {
	// Toggle menu (Escape)
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) && (!a.showMenu || a.menuMode == "main") {
		a.showMenu = !a.showMenu
		a.menuMode = "main"
		a.menuIdx = 0
		return nil
	}
	if a.showMenu {
		switch a.menuMode {
		case "rom":
			a.updateRomMenu()
		case "keys":
			a.updateKeysMenu()
		default:
			a.updateMainMenu()
		}
		return nil
	}

	a.m.SetButtons(a.buttons())

	// Pause toggle (P); resuming also clears a breakpoint stop
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		a.paused = !a.paused
		if !a.paused {
			a.stopReason = ""
		}
	}

	// Fast-forward (Tab): while held, run multiple frames per Ebiten update
	fast := ebiten.IsKeyPressed(ebiten.KeyTab)
	if fast != a.fast {
		a.fast = fast
		a.applyPlayerBufferSize()
	}

	// Reset shortcuts
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		a.m.Reset(emu.EntryCartridge)
		a.queue.clear()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyB) {
		a.m.Reset(emu.EntryPowerOn)
		a.queue.clear()
	}

	// Frame-step when paused (N)
	if a.paused && inpututil.IsKeyJustPressed(ebiten.KeyN) {
		a.runFrames(1)
	}

	// Screenshot (F12)
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		if name, err := a.saveScreenshot(); err != nil {
			a.toast("Screenshot failed: " + err.Error())
		} else {
			a.toast("Saved " + name)
		}
	}

	if !a.paused {
		n := 1
		if a.fast {
			n = 5
		}
		a.runFrames(n)
	}
	return nil
}

// runFrames advances the machine and moves the produced audio to the player queue.
// A breakpoint or bus error pauses emulation and is shown on screen.
func (a *App) runFrames(n int) {
	for i := 0; i < n; i++ {
		res, err := a.m.RunFrame()
		if err != nil {
			a.log.Error("Emulation stopped", log.Err(err))
			a.stopReason = err.Error()
			a.paused = true
			break
		}
		if res.Status == emu.Aborted {
			a.stopReason = res.Reason
			a.paused = true
			break
		}
		a.fpsFrames++
	}
	if a.fast {
		// keep latency bounded while running ahead of real time
		a.m.APUCapBufferedStereo(a.m.SampleRate() / 30)
	}
	a.queue.push(a.m.APUPullStereo(a.m.APUBufferedStereo()))

	if d := time.Since(a.fpsStarted); d >= time.Second {
		a.fps = float64(a.fpsFrames) / d.Seconds()
		a.fpsFrames = 0
		a.fpsStarted = time.Now()
	}
}

func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(emu.Width, emu.Height)
		a.shade = ebiten.NewImage(emu.Width, emu.Height)
		a.shade.Fill(color.RGBA{0, 0, 0, 160})
	}
	a.tex.WritePixels(a.m.Frame())
	screen.DrawImage(a.tex, nil)

	if a.showMenu {
		screen.DrawImage(a.shade, nil)
		switch a.menuMode {
		case "rom":
			a.drawRomMenu(screen)
		case "keys":
			a.drawKeysMenu(screen)
		default:
			a.drawMainMenu(screen)
		}
		return
	}

	y := emu.Height - 4
	if a.stopReason != "" {
		a.print(screen, a.truncateText(a.stopReason, a.maxCharsForText(4)), 4, y)
		y -= lineHeight
	}
	if a.paused {
		a.print(screen, "PAUSED", 4, y)
		y -= lineHeight
	}
	if time.Now().Before(a.toastUntil) {
		a.print(screen, a.truncateText(a.toastMsg, a.maxCharsForText(4)), 4, y)
	}
	if a.cfg.ShowStats {
		a.print(screen, fmt.Sprintf("%.1f fps  frame %d", a.fps, a.m.Frames()), 4, lineHeight)
	}
}

func (a *App) Layout(outW, outH int) (int, int) { return emu.Width, emu.Height }

// print draws s with its baseline at y.
func (a *App) print(screen *ebiten.Image, s string, x, y int) {
	text.Draw(screen, s, basicfont.Face7x13, x+1, y+1, color.Black)
	text.Draw(screen, s, basicfont.Face7x13, x, y, color.White)
}

func (a *App) maxCharsForText(x int) int {
	return (emu.Width - 2*x) / basicfont.Face7x13.Advance
}

func (a *App) truncateText(s string, max int) string {
	if max < 4 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

// saveBattery writes the cartridge backup next to the current ROM.
func (a *App) saveBattery() error {
	if !a.cfg.SaveBattery || a.m.ROMPath() == "" {
		return nil
	}
	data, ok := a.m.SaveBattery()
	if !ok {
		return nil
	}
	path := emu.SavePath(a.m.ROMPath())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	a.log.Info("Wrote save data", log.String("path", path))
	return nil
}

// Close flushes the cartridge backup and stops audio.
func (a *App) Close() error {
	if a.audioPlayer != nil {
		a.audioPlayer.Close()
	}
	return a.saveBattery()
}

func (a *App) saveScreenshot() (string, error) {
	img := &image.RGBA{
		Pix:    a.m.Frame(),
		Stride: 4 * emu.Width,
		Rect:   image.Rect(0, 0, emu.Width, emu.Height),
	}
	name := fmt.Sprintf("screenshot_%s.png", time.Now().Format("20060102_150405"))
	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return name, png.Encode(f, img)
}
