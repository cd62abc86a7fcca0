package ui

import (
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
)

var mainMenuItems = []string{
	"Reset",
	"Reset into BIOS",
	"Write save data",
	"Switch ROM",
	"Keybindings",
	"Close",
}

func (a *App) drawMainMenu(screen *ebiten.Image) {
	a.print(screen, "Menu:", 10, lineHeight+4)
	for i, s := range mainMenuItems {
		prefix := "  "
		if i == a.menuIdx {
			prefix = "> "
		}
		a.print(screen, prefix+s, 10, lineHeight+4+(i+1)*lineHeight)
	}
	hint := "Esc: Close  Backspace: Back"
	a.print(screen, a.truncateText(hint, a.maxCharsForText(10)), 10, lineHeight+4+(len(mainMenuItems)+2)*lineHeight)
}

// visibleRows is how many menu rows fit below baseY.
func visibleRows(baseY int) int {
	n := (screenHeight - baseY) / lineHeight
	if n < 1 {
		n = 1
	}
	return n
}

func (a *App) drawRomMenu(screen *ebiten.Image) {
	a.print(screen, "Select ROM (Enter loads)", 10, lineHeight)
	a.print(screen, a.truncateText("Dir: "+a.cfg.ROMsDir, a.maxCharsForText(10)), 10, 2*lineHeight)
	if len(a.romList) == 0 {
		a.print(screen, "No ROMs found", 10, 4*lineHeight)
		return
	}
	baseY := 4 * lineHeight
	end := a.romOff + visibleRows(baseY)
	if end > len(a.romList) {
		end = len(a.romList)
	}
	maxChars := a.maxCharsForText(10) - 2 // account for "> " prefix
	for i, p := range a.romList[a.romOff:end] {
		prefix := "  "
		if a.romOff+i == a.romSel {
			prefix = "> "
		}
		a.print(screen, prefix+a.truncateText(filepath.Base(p), maxChars), 10, baseY+i*lineHeight)
	}
	// scroll indicators
	if a.romOff > 0 {
		a.print(screen, "^", 2, baseY)
	}
	if end < len(a.romList) {
		a.print(screen, "v", 2, baseY+(end-a.romOff-1)*lineHeight)
	}
}

var keyRows = []string{
	"Z: A",
	"X: B",
	"A: L",
	"S: R",
	"Enter: Start",
	"RightShift: Select",
	"Arrows: D-Pad",
	"P: Pause / resume",
	"N: Step frame (paused)",
	"Tab: Fast-forward",
	"R: Reset",
	"B: Reset into BIOS",
	"F12: Screenshot",
	"Esc: Open/Close Menu",
}

func (a *App) drawKeysMenu(screen *ebiten.Image) {
	a.print(screen, "Keybindings", 10, lineHeight)
	baseY := 3 * lineHeight
	end := a.keysOff + visibleRows(baseY)
	if end > len(keyRows) {
		end = len(keyRows)
	}
	for i := a.keysOff; i < end; i++ {
		a.print(screen, a.truncateText(keyRows[i], a.maxCharsForText(10)), 10, baseY+(i-a.keysOff)*lineHeight)
	}
	if a.keysOff > 0 {
		a.print(screen, "^", 2, baseY)
	}
	if end < len(keyRows) {
		a.print(screen, "v", 2, baseY+(end-a.keysOff-1)*lineHeight)
	}
}
