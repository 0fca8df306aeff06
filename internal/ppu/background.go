package ppu

// renderBackgrounds fills bgLine[0..3] for every background the current
// mode actually uses, following spec.md §4.4's text/affine/bitmap split.
func (p *PPU) renderBackgrounds(ly int, mode uint16) {
	switch mode {
	case 0:
		for bg := 0; bg < 4; bg++ {
			if p.bgEnabledForMode(bg, mode) && p.enableBG[bg] {
				p.renderText(bg, ly)
			}
		}
	case 1:
		for bg := 0; bg < 2; bg++ {
			if p.enableBG[bg] {
				p.renderText(bg, ly)
			}
		}
		if p.enableBG[2] {
			p.renderAffine(2, ly)
		}
	case 2:
		for bg := 2; bg < 4; bg++ {
			if p.enableBG[bg] {
				p.renderAffine(bg, ly)
			}
		}
	case 3:
		if p.enableBG[2] {
			p.renderBitmapMode3(ly)
		}
	case 4:
		if p.enableBG[2] {
			p.renderBitmapMode4(ly)
		}
	case 5:
		if p.enableBG[2] {
			p.renderBitmapMode5(ly)
		}
	}
}

// renderText draws one scanline of a text-mode background: up to 4
// screen blocks selected by the size code, 4bpp or 8bpp tiles, mosaic,
// and 9-bit virtual-map wraparound, per spec.md §4.4's "background
// renderer (text mode)" paragraph.
func (p *PPU) renderText(bg, ly int) {
	cnt := p.bgcnt[bg]
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	mosaicOn := cnt&(1<<6) != 0
	is8bpp := cnt&(1<<7) != 0
	sizeCode := (cnt >> 14) & 0x3

	mapW := 256
	mapH := 256
	switch sizeCode {
	case 1:
		mapW = 512
	case 2:
		mapH = 512
	case 3:
		mapW, mapH = 512, 512
	}

	hofs := int(p.bghofs[bg])
	vofs := int(p.bgvofs[bg])

	mosH := int(p.mosaic & 0xF)
	mosV := int((p.mosaic >> 4) & 0xF)

	relY := (ly + vofs) % mapH
	if relY < 0 {
		relY += mapH
	}
	if mosaicOn && mosV > 0 {
		relY -= relY % (mosV + 1)
	}

	for x := 0; x < ScreenWidth; x++ {
		srcX := x
		if mosaicOn && mosH > 0 {
			srcX -= srcX % (mosH + 1)
		}
		relX := (srcX + hofs) % mapW
		if relX < 0 {
			relX += mapW
		}

		blockX := relX / 256
		blockY := relY / 256
		blockIdx := blockY*(mapW/256) + blockX
		if mapW == 256 && mapH == 512 {
			blockIdx = blockY // vertical-only layout uses block index directly
		}

		inBlockX := relX % 256
		inBlockY := relY % 256
		tileX := inBlockX / 8
		tileY := inBlockY / 8
		mapAddr := screenBase + uint32(blockIdx)*0x800 + uint32(tileY*32+tileX)*2
		entry := p.CPUReadVRAM16(mapAddr)

		tileNum := entry & 0x3FF
		hFlip := entry&(1<<10) != 0
		vFlip := entry&(1<<11) != 0
		palBank := byte((entry >> 12) & 0xF)

		cx := inBlockX % 8
		cy := inBlockY % 8
		if hFlip {
			cx = 7 - cx
		}
		if vFlip {
			cy = 7 - cy
		}

		var palIdx byte
		if is8bpp {
			tileAddr := charBase + uint32(tileNum)*64 + uint32(cy*8+cx)
			palIdx = p.CPUReadVRAM8(tileAddr)
		} else {
			tileAddr := charBase + uint32(tileNum)*32 + uint32(cy*8+cx)/2
			b := p.CPUReadVRAM8(tileAddr)
			if cx&1 == 0 {
				palIdx = b & 0xF
			} else {
				palIdx = b >> 4
			}
		}

		if palIdx == 0 {
			p.scan.bgLine[bg][x] = Pixel{Idx: uint8(bg), Visible: false}
			continue
		}
		var palOff uint32
		if is8bpp {
			palOff = uint32(palIdx) * 2
		} else {
			palOff = (uint32(palBank)*16 + uint32(palIdx)) * 2
		}
		c := colorFromU16(p.CPUReadPalette16(palOff))
		c.Idx = uint8(bg)
		c.Visible = true
		p.scan.bgLine[bg][x] = c
	}
}

// renderAffine draws an affine background scanline by mapping screen x
// to texture space through the internal reference accumulators plus the
// per-pixel PA/PC deltas; out-of-range samples are transparent or
// wraparound depending on the overflow flag (spec.md §4.4's "Affine and
// bitmap modes").
func (p *PPU) renderAffine(bg, ly int) {
	idx := bg - 2
	cnt := p.bgcnt[bg]
	charBase := uint32((cnt>>2)&0x3) * 0x4000
	screenBase := uint32((cnt>>8)&0x1F) * 0x800
	is8bpp := true // affine backgrounds are always 8bpp/256-color
	_ = is8bpp
	sizeCode := (cnt >> 14) & 0x3
	dim := 128 << sizeCode // 128,256,512,1024
	wrap := cnt&(1<<13) != 0

	refX := p.bgRefX[idx]
	refY := p.bgRefY[idx]
	pa := int32(p.bgPA[idx])
	pc := int32(p.bgPC[idx])

	for x := 0; x < ScreenWidth; x++ {
		texX := int32(refX) + int32(x)*pa
		texY := int32(refY) + int32(x)*pc
		px := int(texX >> 8)
		py := int(texY >> 8)

		if wrap {
			px = ((px % dim) + dim) % dim
			py = ((py % dim) + dim) % dim
		} else if px < 0 || py < 0 || px >= dim || py >= dim {
			p.scan.bgLine[bg][x] = Pixel{Idx: uint8(bg), Visible: false}
			continue
		}

		tilesPerRow := dim / 8
		tileX := px / 8
		tileY := py / 8
		mapAddr := screenBase + uint32(tileY*tilesPerRow+tileX)
		tileNum := p.CPUReadVRAM8(mapAddr)

		cx := px % 8
		cy := py % 8
		tileAddr := charBase + uint32(tileNum)*64 + uint32(cy*8+cx)
		palIdx := p.CPUReadVRAM8(tileAddr)
		if palIdx == 0 {
			p.scan.bgLine[bg][x] = Pixel{Idx: uint8(bg), Visible: false}
			continue
		}
		c := colorFromU16(p.CPUReadPalette16(uint32(palIdx) * 2))
		c.Idx = uint8(bg)
		c.Visible = true
		p.scan.bgLine[bg][x] = c
	}
}

// renderBitmapMode3 treats VRAM as a direct 240x160 15-bit framebuffer.
func (p *PPU) renderBitmapMode3(ly int) {
	base := uint32(ly * ScreenWidth * 2)
	for x := 0; x < ScreenWidth; x++ {
		c := colorFromU16(p.CPUReadVRAM16(base + uint32(x)*2))
		c.Idx = LayerBG2
		c.Visible = true
		p.scan.bgLine[2][x] = c
	}
}

// renderBitmapMode4 is an 8bpp paletted 240x160 framebuffer with page
// flipping via DISPCNT bit 4.
func (p *PPU) renderBitmapMode4(ly int) {
	page := uint32(0)
	if p.dispcnt&(1<<4) != 0 {
		page = 0xA000
	}
	base := page + uint32(ly*ScreenWidth)
	for x := 0; x < ScreenWidth; x++ {
		idx := p.CPUReadVRAM8(base + uint32(x))
		if idx == 0 {
			p.scan.bgLine[2][x] = Pixel{Idx: LayerBG2, Visible: false}
			continue
		}
		c := colorFromU16(p.CPUReadPalette16(uint32(idx) * 2))
		c.Idx = LayerBG2
		c.Visible = true
		p.scan.bgLine[2][x] = c
	}
}

// renderBitmapMode5 is a smaller 160x128 15-bit framebuffer, page-flipped
// like mode 4, blank outside its bounds.
func (p *PPU) renderBitmapMode5(ly int) {
	if ly >= 128 {
		for x := 0; x < ScreenWidth; x++ {
			p.scan.bgLine[2][x] = Pixel{Idx: LayerBG2, Visible: false}
		}
		return
	}
	page := uint32(0)
	if p.dispcnt&(1<<4) != 0 {
		page = 0xA000
	}
	base := page + uint32(ly*160*2)
	for x := 0; x < ScreenWidth; x++ {
		if x >= 160 {
			p.scan.bgLine[2][x] = Pixel{Idx: LayerBG2, Visible: false}
			continue
		}
		c := colorFromU16(p.CPUReadVRAM16(base + uint32(x)*2))
		c.Idx = LayerBG2
		c.Visible = true
		p.scan.bgLine[2][x] = c
	}
}
