package ui

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/FabianRolfMatthiasNoll/GBAEmulator/internal/emu"
)

func (a *App) updateMainMenu() {
	last := len(mainMenuItems) - 1
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.menuIdx > 0 {
		a.menuIdx--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.menuIdx < last {
		a.menuIdx++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		switch a.menuIdx {
		case 0:
			a.m.Reset(emu.EntryCartridge)
			a.queue.clear()
			a.showMenu = false
		case 1:
			a.m.Reset(emu.EntryPowerOn)
			a.queue.clear()
			a.showMenu = false
		case 2:
			if err := a.saveBattery(); err != nil {
				a.toast("Save failed: " + err.Error())
			} else {
				a.toast("Save data written")
			}
		case 3:
			a.romList = findROMs(a.cfg.ROMsDir)
			a.romSel = 0
			a.romOff = 0
			a.menuMode = "rom"
		case 4:
			a.menuMode = "keys"
			a.keysOff = 0
		case 5:
			a.showMenu = false
		}
	}
	// Back with Backspace
	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		a.showMenu = false
	}
}

// findROMs lists the .gba files directly inside dir.
func findROMs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".gba") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out
}

func (a *App) updateRomMenu() {
	back := inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyBackspace)
	n := len(a.romList)
	if n == 0 {
		if back || inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
			a.menuMode = "main"
		}
		return
	}
	// keep the selection inside the visible window
	maxRows := visibleRows(4 * lineHeight)
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.romSel > 0 {
		a.romSel--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.romSel < n-1 {
		a.romSel++
	}
	if a.romSel < a.romOff {
		a.romOff = a.romSel
	}
	if a.romSel >= a.romOff+maxRows {
		a.romOff = a.romSel - maxRows + 1
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		a.switchROM(a.romList[a.romSel])
		a.menuMode = "main"
		a.showMenu = false
	}
	if back {
		a.menuMode = "main"
	}
}

// switchROM writes the current game's save data, then loads path and its save data.
func (a *App) switchROM(path string) {
	if err := a.saveBattery(); err != nil {
		a.toast("Save failed: " + err.Error())
	}
	if err := a.m.LoadROMFromFile(path); err != nil {
		a.toast("ROM load failed: " + err.Error())
		return
	}
	a.queue.clear()
	a.paused = false
	a.stopReason = ""
	if a.cfg.SaveBattery {
		if data, err := os.ReadFile(emu.SavePath(path)); err == nil {
			if _, err := a.m.LoadBattery(data); err != nil {
				a.toast("Save data rejected: " + err.Error())
			}
		}
	}
	ebiten.SetWindowTitle(windowTitle(a.cfg.Title, a.m))
	a.toast("Loaded ROM: " + filepath.Base(path))
}

func (a *App) updateKeysMenu() {
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) && a.keysOff > 0 {
		a.keysOff--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) && a.keysOff < len(keyRows)-1 {
		a.keysOff++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		a.menuMode = "main"
	}
}
