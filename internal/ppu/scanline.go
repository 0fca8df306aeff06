package ppu

// scanWorkspace holds the per-scanline scratch buffers from spec.md §3:
// one line per background layer, one pre-rendered sprite line per
// priority, and the final composited result. Reused across scanlines
// (the teacher's RenderBGScanlineUsingFetcher allocates a fresh [160]byte
// per call; this rewrite keeps one workspace struct on the PPU instead,
// since four BG layers plus four OBJ priority buffers makes per-call
// allocation a real cost at 160 lines/frame * 60 fps).
type scanWorkspace struct {
	bgLine  [4][ScreenWidth]Pixel
	objLine [4][ScreenWidth]Pixel // indexed by priority 0..3
	result  [ScreenWidth]Pixel
	winMask [ScreenWidth]byte // bit i: layer i visible; bit5: blend enabled
}

const (
	winBitBG0 = 1 << 0
	winBitBG1 = 1 << 1
	winBitBG2 = 1 << 2
	winBitBG3 = 1 << 3
	winBitOBJ = 1 << 4
	winBitFX  = 1 << 5
)

const allLayersNoFX = winBitBG0 | winBitBG1 | winBitBG2 | winBitBG3 | winBitOBJ

// composeScanline is the per-line entry point described by spec.md §4.4:
// backdrop init, window masks, sprite prerender, then background render
// and priority-interleaved composite.
func (p *PPU) composeScanline(ly int) {
	forcedBlank := p.dispcnt&(1<<7) != 0

	backdrop := colorFromU16(p.CPUReadPalette16(0))
	backdrop.Idx = LayerBackdrop
	backdrop.Visible = true
	if forcedBlank {
		backdrop = Pixel{R5: 31, G5: 31, B5: 31, Idx: LayerBackdrop, Visible: true}
	} else if p.bldMode() == blendLight || p.bldMode() == blendDark {
		backdrop = p.applySelfBlend(backdrop, true)
	}
	for x := 0; x < ScreenWidth; x++ {
		p.scan.result[x] = backdrop
	}

	if forcedBlank {
		p.publishLine(ly)
		return
	}

	p.buildWindowMasks(ly)

	for i := range p.scan.objLine {
		for x := range p.scan.objLine[i] {
			p.scan.objLine[i][x] = Pixel{}
		}
	}
	if p.enableOBJ && p.dispcnt&(1<<12) != 0 {
		p.renderSprites(ly)
	}

	mode := p.dispcnt & 0x7
	p.renderBackgrounds(ly, mode)

	for prio := 3; prio >= 0; prio-- {
		for bg := 3; bg >= 0; bg-- {
			if p.bgPriority(bg) != prio || !p.bgEnabledForMode(bg, mode) || !p.enableBG[bg] {
				continue
			}
			p.mergeLayer(&p.scan.bgLine[bg], bg)
		}
		p.mergeLayer(&p.scan.objLine[prio], LayerOBJ)
	}

	p.publishLine(ly)
}

func (p *PPU) publishLine(ly int) {
	base := ly * ScreenWidth
	for x := 0; x < ScreenWidth; x++ {
		p.Framebuffer[base+x] = p.scan.result[x].toU16()
	}
	if p.scanlineCB != nil {
		p.scanlineCB(ly, p.Framebuffer[base:base+ScreenWidth])
	}
}

func (p *PPU) bgPriority(bg int) int { return int(p.bgcnt[bg] & 0x3) }

func (p *PPU) bgEnabledForMode(bg int, mode uint16) bool {
	if p.dispcnt&(1<<(8+bg)) == 0 {
		return false
	}
	switch mode {
	case 0:
		return true
	case 1:
		return bg <= 2
	case 2:
		return bg >= 2
	default: // bitmap modes 3-5 only use BG2
		return bg == 2
	}
}

// buildWindowMasks fills winMask[x] per spec.md §4.4 step 2: win0, win1,
// then the OBJ window (every column of a GFX-mode "window" sprite's
// bounding box on this line; transparent sprite pixels are not excluded),
// with win0 taking priority over win1 over the OBJ
// window over the outside-windows default, matching hardware's fixed
// window priority order.
func (p *PPU) buildWindowMasks(ly int) {
	win0On := p.dispcnt&(1<<13) != 0
	win1On := p.dispcnt&(1<<14) != 0
	winObjOn := p.dispcnt&(1<<15) != 0
	anyWindow := win0On || win1On || winObjOn

	var outside byte = byte(p.winout & 0x3F)
	for x := range p.scan.winMask {
		if anyWindow {
			p.scan.winMask[x] = outside
		} else {
			p.scan.winMask[x] = allLayersNoFX | winBitFX
		}
	}
	if !anyWindow {
		return
	}

	if winObjOn {
		objWin := byte(p.winout >> 8 & 0x3F)
		p.applyOBJWindow(ly, objWin)
	}
	if win1On {
		p.applyWindowRect(p.win1h, p.win1v, ly, byte(p.winin>>8&0x3F))
	}
	if win0On {
		p.applyWindowRect(p.win0h, p.win0v, ly, byte(p.winin&0x3F))
	}
}

func (p *PPU) applyWindowRect(h, v uint16, ly int, mask byte) {
	x1, x2 := int(h>>8), int(h&0xFF)
	y1, y2 := int(v>>8), int(v&0xFF)
	if x2 > ScreenWidth || x2 <= x1 {
		x2 = ScreenWidth
	}
	if y2 > ScreenHeight || y2 <= y1 {
		y2 = ScreenHeight
	}
	if ly < y1 || ly >= y2 {
		return
	}
	for x := x1; x < x2 && x < ScreenWidth; x++ {
		if x >= 0 {
			p.scan.winMask[x] = mask
		}
	}
}

func (p *PPU) applyOBJWindow(ly int, mask byte) {
	// The OBJ window is carved by sprites in GFX mode 2 (window); their
	// coverage comes from computeOBJWindowCoverage in sprite.go, a walk
	// of OAM separate from normal sprite prerendering.
	var cov [ScreenWidth]bool
	p.computeOBJWindowCoverage(ly, &cov)
	for x := 0; x < ScreenWidth; x++ {
		if cov[x] {
			p.scan.winMask[x] = mask
		}
	}
}
