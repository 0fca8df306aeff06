package ppu

// objDims maps (shape, size) -> (width, height) in pixels, the fixed
// GBA OBJ shape/size table.
var objDims = [3][4][2]int{
	{{8, 8}, {16, 16}, {32, 32}, {64, 64}},   // square
	{{16, 8}, {32, 8}, {32, 16}, {64, 32}},   // horizontal
	{{8, 16}, {8, 32}, {16, 32}, {32, 64}},   // vertical
}

type objEntry struct {
	y, x           int
	affine         bool
	doubleSize     bool
	disabled       bool
	gfxMode        byte // 0 normal, 1 semi-transparent, 2 window
	mosaic         bool
	is8bpp         bool
	shape, size    byte
	affineIdx      int
	hFlip, vFlip   bool
	priority       byte
	palBank        byte
	tileNum        int
	w, h           int
}

func (p *PPU) readOBJ(i int) objEntry {
	base := uint32(i * 8)
	a0 := p.CPUReadOAM16(base)
	a1 := p.CPUReadOAM16(base + 2)
	a2 := p.CPUReadOAM16(base + 4)

	e := objEntry{
		y:       int(a0 & 0xFF),
		affine:  a0&(1<<8) != 0,
		mosaic:  a0&(1<<12) != 0,
		is8bpp:  a0&(1<<13) != 0,
		shape:   byte((a0 >> 14) & 0x3),
		x:       int(a1 & 0x1FF),
		size:    byte((a1 >> 14) & 0x3),
		priority: byte((a2 >> 10) & 0x3),
		palBank: byte((a2 >> 12) & 0xF),
		tileNum: int(a2 & 0x3FF),
	}
	if e.x >= 240 {
		e.x -= 512 // sign-extend the 9-bit X coordinate
	}
	if e.affine {
		e.doubleSize = a0&(1<<9) != 0
		e.affineIdx = int((a1 >> 9) & 0x1F)
	} else {
		e.disabled = a0&(1<<9) != 0
		e.hFlip = a1&(1<<12) != 0
		e.vFlip = a1&(1<<13) != 0
	}
	e.gfxMode = byte((a0 >> 10) & 0x3)
	if e.shape > 2 {
		e.shape = 0
	}
	dim := objDims[e.shape][e.size]
	e.w, e.h = dim[0], dim[1]
	return e
}

func (p *PPU) readAffineParams(idx int) (pa, pb, pc, pd int16) {
	base := uint32(idx*4*8 + 6)
	pa = int16(p.CPUReadOAM16(base))
	pb = int16(p.CPUReadOAM16(base + 8))
	pc = int16(p.CPUReadOAM16(base + 16))
	pd = int16(p.CPUReadOAM16(base + 24))
	return
}

// renderSprites evaluates all 128 OAM entries against the scanline,
// writing into objLine[priority][x] only where currently transparent,
// per spec.md §4.4's sprite paragraph.
func (p *PPU) renderSprites(ly int) {
	for i := 0; i < 128; i++ {
		e := p.readOBJ(i)
		if !e.affine && e.disabled {
			continue
		}
		boundW, boundH := e.w, e.h
		if e.affine && e.doubleSize {
			boundW, boundH = e.w*2, e.h*2
		}
		if ly < e.y || ly >= e.y+boundH {
			// handle Y wraparound near the bottom of OAM coordinate space
			if e.y+boundH <= 256 || ly >= e.y+boundH-256 {
				continue
			}
		}
		if e.gfxMode >= 2 {
			// mode 2 only shapes the OBJ window (computeOBJWindowCoverage);
			// mode 3 is prohibited
			continue
		}

		row := ly - e.y
		if row < 0 {
			row += 256
		}

		if e.affine {
			p.renderAffineSprite(&e, row, boundW, boundH)
		} else {
			p.renderRegularSprite(&e, row)
		}
	}
}

func (p *PPU) objTilePixel(e *objEntry, tx, ty int) (palIdx byte, palOff uint32) {
	tileStrideTiles := e.w / 8
	mapping1D := p.dispcnt&(1<<6) != 0
	tileX := tx / 8
	tileY := ty / 8
	cx, cy := tx%8, ty%8

	var tileNum int
	if mapping1D {
		if e.is8bpp {
			tileNum = e.tileNum + (tileY*tileStrideTiles+tileX)*2
		} else {
			tileNum = e.tileNum + tileY*tileStrideTiles + tileX
		}
	} else {
		tileNum = e.tileNum + tileY*32 + tileX
		if e.is8bpp {
			tileNum = e.tileNum + tileY*32 + tileX*2
		}
	}

	base := p.objBoundary()
	if e.is8bpp {
		addr := base + uint32(tileNum)*32 + uint32(cy*8+cx)/2*2
		b0 := p.CPUReadVRAM8(addr)
		palIdx = b0
		palOff = uint32(palIdx) * 2
	} else {
		addr := base + uint32(tileNum)*32 + uint32(cy*8+cx)/2
		b := p.CPUReadVRAM8(addr)
		if cx&1 == 0 {
			palIdx = b & 0xF
		} else {
			palIdx = b >> 4
		}
		palOff = 0x200 + (uint32(e.palBank)*16+uint32(palIdx))*2
	}
	return
}

func (p *PPU) renderRegularSprite(e *objEntry, row int) {
	ty := row
	if e.vFlip {
		ty = e.h - 1 - row
	}
	for col := 0; col < e.w; col++ {
		screenX := e.x + col
		if screenX < 0 || screenX >= ScreenWidth {
			continue
		}
		tx := col
		if e.hFlip {
			tx = e.w - 1 - col
		}
		palIdx, palOff := p.objTilePixel(e, tx, ty)
		if e.is8bpp {
			palOff = 0x200 + uint32(palIdx)*2
		}
		if palIdx == 0 {
			continue
		}
		if p.scan.objLine[e.priority][screenX].Visible {
			continue
		}
		c := colorFromU16(p.CPUReadPalette16(palOff))
		c.Idx = LayerOBJ
		c.Visible = true
		c.ForceBlend = e.gfxMode == 1
		p.scan.objLine[e.priority][screenX] = c
	}
}

func (p *PPU) renderAffineSprite(e *objEntry, row int, boundW, boundH int) {
	pa, pb, pc, pd := p.readAffineParams(e.affineIdx)
	cx0 := float64(e.w) / 2
	cy0 := float64(e.h) / 2
	scx := float64(boundW) / 2
	scy := float64(boundH) / 2

	for sx := 0; sx < boundW; sx++ {
		screenX := e.x + sx
		if screenX < 0 || screenX >= ScreenWidth {
			continue
		}
		dx := float64(sx) - scx
		dy := float64(row) - scy
		texX := int((float64(pa)*dx + float64(pb)*dy) / 256.0 + cx0)
		texY := int((float64(pc)*dx + float64(pd)*dy) / 256.0 + cy0)
		if texX < 0 || texY < 0 || texX >= e.w || texY >= e.h {
			continue
		}
		palIdx, palOff := p.objTilePixel(e, texX, texY)
		if e.is8bpp {
			palOff = 0x200 + uint32(palIdx)*2
		}
		if palIdx == 0 {
			continue
		}
		if p.scan.objLine[e.priority][screenX].Visible {
			continue
		}
		c := colorFromU16(p.CPUReadPalette16(palOff))
		c.Idx = LayerOBJ
		c.Visible = true
		c.ForceBlend = e.gfxMode == 1
		p.scan.objLine[e.priority][screenX] = c
	}
}

// computeOBJWindowCoverage re-walks OAM looking only at GFX-mode-2
// (window) sprites, marking which x columns they cover on this
// scanline; kept separate from the opaque-pixel prerender above because
// window sprites never contribute visible pixels themselves.
func (p *PPU) computeOBJWindowCoverage(ly int, cov *[ScreenWidth]bool) {
	for i := 0; i < 128; i++ {
		e := p.readOBJ(i)
		if !e.affine && e.disabled {
			continue
		}
		if e.gfxMode != 2 {
			continue
		}
		boundH := e.h
		if e.affine && e.doubleSize {
			boundH = e.h * 2
		}
		if ly < e.y || ly >= e.y+boundH {
			continue
		}
		boundW := e.w
		if e.affine && e.doubleSize {
			boundW = e.w * 2
		}
		for col := 0; col < boundW; col++ {
			screenX := e.x + col
			if screenX >= 0 && screenX < ScreenWidth {
				cov[screenX] = true
			}
		}
	}
}
