package ppu

import "encoding/binary"

// transparent marks an empty layer pixel; real colours are 15-bit.
const transparent = 0x8000

// layer ids used by the window and blend masks
const (
	layerOBJ      = 4
	layerBackdrop = 5
)

// BLDCNT effect modes
const (
	blendNone = iota
	blendAlpha
	blendBrighten
	blendDarken
)

type bgLine [Width]uint16

func (p *PPU) color(off int) uint16 {
	return binary.LittleEndian.Uint16(p.palette[off:]) & 0x7FFF
}

// renderLine draws line y into the back buffer from the current registers.
func (p *PPU) renderLine(y int) {
	row := p.back[y*Width*4 : (y+1)*Width*4]
	dispcnt := p.reg16(RegDISPCNT)
	if dispcnt&(1<<7) != 0 {
		for i := range row {
			row[i] = 0xFF
		}
		return
	}

	var bgs [4]bgLine
	var enabled [4]bool
	mode := p.mode()
	for bg := 0; bg < 4; bg++ {
		if dispcnt&(1<<(8+bg)) == 0 {
			continue
		}
		switch {
		case mode == 0, mode == 1 && bg < 2:
			p.renderText(bg, y, &bgs[bg])
		case mode == 1 && bg == 2, mode == 2 && bg >= 2:
			p.renderAffine(bg, &bgs[bg])
		case mode >= 3 && mode <= 5 && bg == 2:
			p.renderBitmap(mode, &bgs[bg])
		default:
			continue
		}
		enabled[bg] = true
	}

	var obj objLine
	p.renderSprites(y, &obj)

	backdrop := p.color(0)
	for x := 0; x < Width; x++ {
		win := p.windowMask(x, y, dispcnt, &obj)
		top, second := backdrop, backdrop
		topLayer, secondLayer := layerBackdrop, layerBackdrop
		found := 0
		for prio := 0; prio < 4 && found < 2; prio++ {
			if win&(1<<layerOBJ) != 0 && obj.color[x] != transparent && obj.prio[x] == prio {
				if found == 0 {
					top, topLayer = obj.color[x], layerOBJ
				} else {
					second, secondLayer = obj.color[x], layerOBJ
				}
				found++
			}
			for bg := 0; bg < 4 && found < 2; bg++ {
				if !enabled[bg] || win&(1<<bg) == 0 || bgs[bg][x] == transparent {
					continue
				}
				if int(p.regs[RegBG0CNT+2*bg]&3) != prio {
					continue
				}
				if found == 0 {
					top, topLayer = bgs[bg][x], bg
				} else {
					second, secondLayer = bgs[bg][x], bg
				}
				found++
			}
		}
		c := p.blend(top, second, topLayer, secondLayer, topLayer == layerOBJ && obj.semi[x], win&(1<<5) != 0)
		r, g, b := decodeRGB555(c)
		row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = r, g, b, 0xFF
	}
}

// windowMask returns the layer enable bits (BG0-3, OBJ, effects) for pixel x.
func (p *PPU) windowMask(x, y int, dispcnt uint16, obj *objLine) uint8 {
	if dispcnt&0xE000 == 0 {
		return 0x3F
	}
	for w := 0; w < 2; w++ {
		if dispcnt&(1<<(13+w)) == 0 {
			continue
		}
		h := p.reg16(RegWIN0H + uint32(2*w))
		v := p.reg16(RegWIN0V + uint32(2*w))
		if inside(x, int(h>>8), int(h&0xFF)) && inside(y, int(v>>8), int(v&0xFF)) {
			return p.regs[RegWININ+w] & 0x3F
		}
	}
	if dispcnt&(1<<15) != 0 && obj.window[x] {
		return p.regs[RegWINOUT+1] & 0x3F
	}
	return p.regs[RegWINOUT] & 0x3F
}

// inside tests start <= v < end, wrapping when start > end.
func inside(v, start, end int) bool {
	if start <= end {
		return v >= start && v < end
	}
	return v >= start || v < end
}

func (p *PPU) blend(top, second uint16, topLayer, secondLayer int, semi, effects bool) uint16 {
	bldcnt := p.reg16(RegBLDCNT)
	firstTarget := bldcnt&(1<<topLayer) != 0
	secondTarget := bldcnt&(1<<(8+secondLayer)) != 0

	if semi && secondTarget {
		return p.alpha(top, second)
	}
	if !effects || !firstTarget {
		return top
	}
	evy := int(p.regs[RegBLDY] & 0x1F)
	if evy > 16 {
		evy = 16
	}
	switch int(bldcnt>>6) & 3 {
	case blendAlpha:
		if secondTarget {
			return p.alpha(top, second)
		}
	case blendBrighten:
		return mapChannels(top, func(c int) int { return c + (31-c)*evy/16 })
	case blendDarken:
		return mapChannels(top, func(c int) int { return c - c*evy/16 })
	}
	return top
}

func (p *PPU) alpha(a, b uint16) uint16 {
	eva := int(p.regs[RegBLDALPHA] & 0x1F)
	evb := int(p.regs[RegBLDALPHA+1] & 0x1F)
	if eva > 16 {
		eva = 16
	}
	if evb > 16 {
		evb = 16
	}
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		ca := int(a>>shift) & 0x1F
		cb := int(b>>shift) & 0x1F
		c := (ca*eva + cb*evb) / 16
		if c > 31 {
			c = 31
		}
		out |= uint16(c) << shift
	}
	return out
}

func mapChannels(c uint16, f func(int) int) uint16 {
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		out |= uint16(f(int(c>>shift)&0x1F)) << shift
	}
	return out
}

// decodeRGB555 widens a 15-bit colour to 8 bits per channel.
func decodeRGB555(v uint16) (r, g, b byte) {
	r5 := byte(v & 0x1F)
	g5 := byte((v >> 5) & 0x1F)
	b5 := byte((v >> 10) & 0x1F)
	r = (r5 << 3) | (r5 >> 2)
	g = (g5 << 3) | (g5 >> 2)
	b = (b5 << 3) | (b5 >> 2)
	return
}

// renderText draws a scrolling tiled background.
func (p *PPU) renderText(bg, y int, out *bgLine) {
	cnt := p.reg16(RegBG0CNT + uint32(2*bg))
	hofs := int(p.reg16(RegBG0HOFS+uint32(4*bg)) & 0x1FF)
	vofs := int(p.reg16(RegBG0HOFS+uint32(4*bg)+2) & 0x1FF)
	charBase := int(cnt>>2&3) * 0x4000
	screenBase := int(cnt>>8&0x1F) * 0x800
	bpp8 := cnt&(1<<7) != 0
	size := int(cnt >> 14)
	wMask, hMask := 255, 255
	if size&1 != 0 {
		wMask = 511
	}
	if size&2 != 0 {
		hMask = 511
	}

	if cnt&(1<<6) != 0 {
		y -= y % (int(p.regs[RegMOSAIC]>>4) + 1)
	}
	mosaicH := 1
	if cnt&(1<<6) != 0 {
		mosaicH = int(p.regs[RegMOSAIC]&0xF) + 1
	}

	py := (y + vofs) & hMask
	for x := 0; x < Width; x++ {
		px := (x - x%mosaicH + hofs) & wMask
		tx, ty := px>>3, py>>3
		block := 0
		if tx >= 32 {
			block++
			tx -= 32
		}
		if ty >= 32 {
			if size == 3 {
				block += 2
			} else {
				block++
			}
			ty -= 32
		}
		entry := binary.LittleEndian.Uint16(p.vram[screenBase+block*0x800+(ty*32+tx)*2:])
		fx, fy := px&7, py&7
		if entry&(1<<10) != 0 {
			fx = 7 - fx
		}
		if entry&(1<<11) != 0 {
			fy = 7 - fy
		}
		tile := int(entry & 0x3FF)
		out[x] = transparent
		if bpp8 {
			addr := charBase + tile*64 + fy*8 + fx
			if addr >= 0x10000 || p.vram[addr] == 0 {
				continue
			}
			out[x] = p.color(int(p.vram[addr]) * 2)
			continue
		}
		addr := charBase + tile*32 + fy*4 + fx/2
		if addr >= 0x10000 {
			continue
		}
		ci := int(p.vram[addr]>>(uint(fx&1)*4)) & 0xF
		if ci == 0 {
			continue
		}
		out[x] = p.color((int(entry>>12)*16 + ci) * 2)
	}
}

// affineRow walks one line of BG2 (n=0) or BG3 (n=1) and calls f with the
// integer texture coordinate of every pixel.
func (p *PPU) affineRow(n int, f func(x, tx, ty int)) {
	base := uint32(RegBG2PA + 0x10*n)
	pa := int32(int16(p.reg16(base)))
	pc := int32(int16(p.reg16(base + 4)))
	cx, cy := p.refX[n], p.refY[n]
	for x := 0; x < Width; x++ {
		f(x, int(cx>>8), int(cy>>8))
		cx += pa
		cy += pc
	}
}

// renderAffine draws a rotation/scaling background with 8 bpp tiles and byte-wide map entries.
func (p *PPU) renderAffine(bg int, out *bgLine) {
	cnt := p.reg16(RegBG0CNT + uint32(2*bg))
	charBase := int(cnt>>2&3) * 0x4000
	screenBase := int(cnt>>8&0x1F) * 0x800
	wrap := cnt&(1<<13) != 0
	size := 128 << (cnt >> 14)

	p.affineRow(bg-2, func(x, tx, ty int) {
		out[x] = transparent
		if wrap {
			tx &= size - 1
			ty &= size - 1
		} else if tx < 0 || ty < 0 || tx >= size || ty >= size {
			return
		}
		mapAddr := screenBase + (ty>>3)*(size>>3) + tx>>3
		if mapAddr >= 0x10000 {
			return
		}
		addr := charBase + int(p.vram[mapAddr])*64 + (ty&7)*8 + tx&7
		if addr >= 0x10000 || p.vram[addr] == 0 {
			return
		}
		out[x] = p.color(int(p.vram[addr]) * 2)
	})
}

// renderBitmap draws BG2 in modes 3 (direct colour), 4 (paletted, two pages)
// and 5 (160x128 direct colour, two pages).
func (p *PPU) renderBitmap(mode int, out *bgLine) {
	page := 0
	if mode != 3 && p.regs[RegDISPCNT]&(1<<4) != 0 {
		page = 0xA000
	}
	w, h := Width, Height
	if mode == 5 {
		w, h = 160, 128
	}
	p.affineRow(0, func(x, tx, ty int) {
		out[x] = transparent
		if tx < 0 || ty < 0 || tx >= w || ty >= h {
			return
		}
		i := ty*w + tx
		if mode == 4 {
			ci := p.vram[page+i]
			if ci != 0 {
				out[x] = p.color(int(ci) * 2)
			}
			return
		}
		out[x] = binary.LittleEndian.Uint16(p.vram[page+i*2:]) & 0x7FFF
	})
}
