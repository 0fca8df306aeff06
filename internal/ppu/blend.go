package ppu

type blendMode int

const (
	blendOff blendMode = iota
	blendAlpha
	blendLight
	blendDark
)

func (p *PPU) bldMode() blendMode {
	return blendMode(p.bldcnt & 0x3)
}

func (p *PPU) topEnabled(idx int) bool  { return p.bldcnt&(1<<uint(idx)) != 0 }
func (p *PPU) botEnabled(idx int) bool  { return p.bldcnt&(1<<uint(idx+8)) != 0 }

func (p *PPU) evCoeffs() (eva, evb int) {
	eva = int(p.bldalpha & 0x1F)
	if eva > 16 {
		eva = 16
	}
	evb = int((p.bldalpha >> 8) & 0x1F)
	if evb > 16 {
		evb = 16
	}
	return
}

func (p *PPU) evy() int {
	v := int(p.bldy & 0x1F)
	if v > 16 {
		v = 16
	}
	return v
}

// applySelfBlend pre-applies light/dark to the backdrop per spec.md
// §4.4 step 1 ("If the color-effect mode is light/dark, pre-apply it to
// the backdrop").
func (p *PPU) applySelfBlend(c Pixel, isBackdrop bool) Pixel {
	idx := LayerBackdrop
	if !p.topEnabled(idx) {
		return c
	}
	evy := p.evy()
	mode := p.bldMode()
	return blendLightDark(c, mode, evy)
}

func blendLightDark(top Pixel, mode blendMode, evy int) Pixel {
	out := top
	switch mode {
	case blendLight:
		out.R5 = clamp31(int(top.R5) + ((31-int(top.R5))*evy)>>4)
		out.G5 = clamp31(int(top.G5) + ((31-int(top.G5))*evy)>>4)
		out.B5 = clamp31(int(top.B5) + ((31-int(top.B5))*evy)>>4)
	case blendDark:
		out.R5 = clamp31(int(top.R5) - (int(top.R5)*evy)>>4)
		out.G5 = clamp31(int(top.G5) - (int(top.G5)*evy)>>4)
		out.B5 = clamp31(int(top.B5) - (int(top.B5)*evy)>>4)
	}
	return out
}

// mergeLayer implements spec.md §4.4's "Composite (merge)" algorithm for
// one layer at one priority step: skip invisible pixels, consult the
// window mask, promote force-blend sprites to BLEND_ALPHA, then apply
// the effective blend mode. The "bot[x] <- top[x]" chain from step 4 is
// p.scan.result[x] itself: each call reads the previous layer's output
// as bot and overwrites it with this layer's, so the next priority step
// sees the right bot without a separate carry variable.
func (p *PPU) mergeLayer(layer *[ScreenWidth]Pixel, layerIdx int) {
	anyWindow := p.anyWindowActive()
	eva, evb := p.evCoeffs()
	evy := p.evy()
	baseMode := p.bldMode()

	for x := 0; x < ScreenWidth; x++ {
		top := layer[x]
		if !top.Visible {
			continue
		}

		mode := baseMode
		blendOK := true
		if anyWindow {
			mask := p.scan.winMask[x]
			if mask&(1<<uint(layerIdx)) == 0 {
				continue
			}
			if mask&winBitFX == 0 {
				blendOK = false
			}
		}

		bot := p.scan.result[x]
		effectiveMode := mode
		if !blendOK {
			effectiveMode = blendOff
		}

		botTarget := p.botEnabled(int(bot.Idx))
		forced := top.ForceBlend && botTarget && bot.Visible
		if forced {
			effectiveMode = blendAlpha
		}

		topSrc := p.topEnabled(layerIdx) || forced
		p.scan.result[x] = applyBlend(top, bot, effectiveMode, topSrc, botTarget, eva, evb, evy)
	}
}

func applyBlend(top, bot Pixel, mode blendMode, topIsBlendSrc, botIsBlendTarget bool, eva, evb, evy int) Pixel {
	switch mode {
	case blendAlpha:
		if topIsBlendSrc && botIsBlendTarget && bot.Visible {
			out := top
			out.R5 = clamp31((eva*int(top.R5) + evb*int(bot.R5)) >> 4)
			out.G5 = clamp31((eva*int(top.G5) + evb*int(bot.G5)) >> 4)
			out.B5 = clamp31((eva*int(top.B5) + evb*int(bot.B5)) >> 4)
			out.Idx = top.Idx
			return out
		}
		return top
	case blendLight, blendDark:
		if topIsBlendSrc {
			out := blendLightDark(top, mode, evy)
			out.Idx = top.Idx
			return out
		}
		return top
	default:
		return top
	}
}

// anyWindowActive reports whether any of win0/win1/OBJ-window is armed
// this frame; kept as a method so mergeLayer doesn't recompute DISPCNT
// bit tests per pixel.
func (p *PPU) anyWindowActive() bool {
	return p.dispcnt&(1<<13) != 0 || p.dispcnt&(1<<14) != 0 || p.dispcnt&(1<<15) != 0
}
