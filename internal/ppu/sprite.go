package ppu

import "encoding/binary"

// Object modes from attribute 0 bits 10-11.
const (
	ObjNormal = iota
	ObjSemiTransparent
	ObjWindow
)

// Sprite is the decoded form of one OAM entry, rebuilt whenever the entry is written.
type Sprite struct {
	X, Y          int
	Width, Height int

	Affine     bool
	DoubleSize bool
	Hidden     bool
	Mode       int
	Mosaic     bool
	Color256   bool
	HFlip      bool
	VFlip      bool
	// AffineIndex selects one of the 32 parameter groups interleaved in OAM.
	AffineIndex int

	Tile     int
	Priority int
	Palette  int
}

// objSizes is indexed by [shape][size].
var objSizes = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},
}

func decodeSprite(a0, a1, a2 uint16) Sprite {
	s := Sprite{
		Y:        int(a0 & 0xFF),
		X:        int(a1 & 0x1FF),
		Affine:   a0&(1<<8) != 0,
		Mode:     int(a0>>10) & 3,
		Mosaic:   a0&(1<<12) != 0,
		Color256: a0&(1<<13) != 0,
		Tile:     int(a2 & 0x3FF),
		Priority: int(a2>>10) & 3,
		Palette:  int(a2 >> 12),
	}
	if s.X >= Width {
		s.X -= 512
	}
	if s.Affine {
		s.DoubleSize = a0&(1<<9) != 0
		s.AffineIndex = int(a1>>9) & 0x1F
	} else {
		s.Hidden = a0&(1<<9) != 0
		s.HFlip = a1&(1<<12) != 0
		s.VFlip = a1&(1<<13) != 0
	}
	shape := int(a0 >> 14)
	if shape == 3 || s.Mode == 3 {
		s.Hidden = true
		return s
	}
	dim := objSizes[shape][a1>>14]
	s.Width, s.Height = dim[0], dim[1]
	return s
}

// Bounds is the screen area the sprite covers; double-size affine sprites take twice their size.
func (s *Sprite) Bounds() (w, h int) {
	if s.Affine && s.DoubleSize {
		return s.Width * 2, s.Height * 2
	}
	return s.Width, s.Height
}

// objLine holds the sprite layer of one scanline.
type objLine struct {
	color  [Width]uint16
	prio   [Width]int
	semi   [Width]bool
	window [Width]bool
}

func (p *PPU) renderSprites(y int, out *objLine) {
	for x := 0; x < Width; x++ {
		out.color[x] = transparent
		out.prio[x] = 4
		out.semi[x] = false
		out.window[x] = false
	}
	if p.regs[RegDISPCNT+1]&(1<<4) == 0 {
		return
	}
	oneD := p.regs[RegDISPCNT]&(1<<6) != 0
	mosaicH := int(p.regs[RegMOSAIC+1]&0xF) + 1
	mosaicV := int(p.regs[RegMOSAIC+1]>>4) + 1

	for i := range p.sprites {
		s := &p.sprites[i]
		if s.Hidden {
			continue
		}
		bw, bh := s.Bounds()
		dy := (y - s.Y) & 0xFF
		if dy >= bh {
			continue
		}
		if s.Mosaic {
			dy -= (y % mosaicV)
			if dy < 0 {
				dy = 0
			}
		}
		pa, pb, pc, pd := int32(0x100), int32(0), int32(0), int32(0x100)
		if s.Affine {
			g := p.oam[s.AffineIndex*32:]
			pa = int32(int16(binary.LittleEndian.Uint16(g[6:])))
			pb = int32(int16(binary.LittleEndian.Uint16(g[14:])))
			pc = int32(int16(binary.LittleEndian.Uint16(g[22:])))
			pd = int32(int16(binary.LittleEndian.Uint16(g[30:])))
		}
		for bx := 0; bx < bw; bx++ {
			sx := (s.X + bx) & 0x1FF
			if sx >= Width {
				continue
			}
			col := bx
			if s.Mosaic {
				col -= sx % mosaicH
				if col < 0 {
					col = 0
				}
			}
			tx, ty := col, dy
			if s.Affine {
				cx, cy := int32(col-bw/2), int32(dy-bh/2)
				tx = int((pa*cx+pb*cy)>>8) + s.Width/2
				ty = int((pc*cx+pd*cy)>>8) + s.Height/2
				if tx < 0 || ty < 0 || tx >= s.Width || ty >= s.Height {
					continue
				}
			} else {
				if s.HFlip {
					tx = s.Width - 1 - tx
				}
				if s.VFlip {
					ty = s.Height - 1 - ty
				}
			}
			color, ok := p.objTexel(s, tx, ty, oneD)
			if !ok {
				continue
			}
			if s.Mode == ObjWindow {
				out.window[sx] = true
				continue
			}
			if out.color[sx] != transparent && s.Priority >= out.prio[sx] {
				continue
			}
			out.color[sx] = color
			out.prio[sx] = s.Priority
			out.semi[sx] = s.Mode == ObjSemiTransparent
		}
	}
}

// objTexel returns the colour of texel (tx, ty) of s and false when it is transparent.
func (p *PPU) objTexel(s *Sprite, tx, ty int, oneD bool) (uint16, bool) {
	var tile, addr int
	if s.Color256 {
		stride := 32
		if oneD {
			stride = s.Width / 8 * 2
		}
		tile = s.Tile + (ty/8)*stride + (tx/8)*2
		addr = 0x10000 + (tile&0x3FF)*32 + (ty&7)*8 + tx&7
	} else {
		stride := 32
		if oneD {
			stride = s.Width / 8
		}
		tile = s.Tile + (ty/8)*stride + tx/8
		addr = 0x10000 + (tile&0x3FF)*32 + (ty&7)*4 + (tx&7)/2
	}
	if uint32(addr) < p.ObjTileBase() || addr >= len(p.vram) {
		return 0, false
	}
	b := p.vram[addr]
	if s.Color256 {
		if b == 0 {
			return 0, false
		}
		return p.color(0x200 + int(b)*2), true
	}
	ci := b >> (uint(tx&1) * 4) & 0xF
	if ci == 0 {
		return 0, false
	}
	return p.color(0x200 + (s.Palette*16+int(ci))*2), true
}
