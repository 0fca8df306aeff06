// Package ppu implements the GBA's tile/sprite-plus-bitmap pixel pipeline:
// per-scanline composition of up to four background layers, a sprite
// layer, windows, and color-effect blending into a 240-wide line, driven
// by two scheduler events per scanline (HDraw/HBlank) across the 228-line
// frame. Generalized from the teacher's single-PPU-owns-its-VRAM/OAM/regs
// design (ppu.PPU with CPURead/CPUWrite and an InterruptRequester
// callback) from one 2bpp DMG background to four 4bpp/8bpp text
// backgrounds, affine backgrounds, bitmap modes, and an OBJ layer.
package ppu

import "github.com/aldenhall/pocketgba/internal/scheduler"

const (
	ScreenWidth  = 240
	ScreenHeight = 160
	totalLines   = 228
)

// InterruptRequester mirrors the teacher's ppu.InterruptRequester
// callback signature, generalized to the GBA's bit positions.
type InterruptRequester func(bit int)

// DMATrigger lets the PPU kick VBlank/HBlank-timed DMA channels without
// importing the dma package (keeps the dependency direction the same as
// the teacher's narrow callback style).
type DMATrigger func(timing byte)

// Scheduler event kinds the PPU registers with the shared scheduler.
const (
	EventHDraw scheduler.Kind = 100
	EventHBlank scheduler.Kind = 101
)

const (
	dispstatVBlank   = 1 << 0
	dispstatHBlank   = 1 << 1
	dispstatVCounter = 1 << 2
	dispstatVBlankIE = 1 << 3
	dispstatHBlankIE = 1 << 4
	dispstatVCountIE = 1 << 5
)

// PPU owns VRAM/OAM/Palette and every PPU register, plus the scanline
// composer workspace. Timing is scheduler-driven: HandleEvent is
// registered with the shared scheduler for EventHDraw/EventHBlank.
type PPU struct {
	vram [96 * 1024]byte
	oam  [1024]byte
	pal  [1024]byte

	dispcnt  uint16
	dispstat uint16
	vcount   uint16

	bgcnt  [4]uint16
	bghofs [4]uint16
	bgvofs [4]uint16

	// Affine reference points (28-bit signed, 8.8.12 wait -- 8-bit frac,
	// 19-bit int, 1 sign) and per-line deltas for BG2/BG3.
	bgRefX, bgRefY       [2]int32 // internal accumulators, reloaded at VBlank or on write
	bgX, bgY             [2]int32 // the register value as last written (reload source)
	bgPA, bgPB           [2]int16
	bgPC, bgPD           [2]int16

	win0h, win0v uint16
	win1h, win1v uint16
	winin, winout uint16
	mosaic       uint16
	bldcnt       uint16
	bldalpha     uint16
	bldy         uint16

	sch *scheduler.Scheduler
	req InterruptRequester
	dma DMATrigger

	// scanlineCB and frameCB implement spec.md §6's optional video-sink
	// callback and the façade's frame-publication hook; both are nil
	// until a front-end registers one via SetScanlineCallback/
	// SetFrameCallback.
	scanlineCB func(y int, pixels []uint16)
	frameCB    func()

	enableBG  [4]bool // host-settable layer mask, spec.md §6 Settings
	enableOBJ bool

	// Frame publication target; composer writes directly into Framebuffer
	// one scanline at a time, and the facade copies it out at VBlank
	// under its own mutex (spec.md §5 / §4.5 "Frame publication").
	Framebuffer [ScreenWidth * ScreenHeight]uint16

	scan scanWorkspace
}

func New(sch *scheduler.Scheduler, req InterruptRequester, dma DMATrigger) *PPU {
	p := &PPU{sch: sch, req: req, dma: dma}
	for i := range p.enableBG {
		p.enableBG[i] = true
	}
	p.enableOBJ = true
	p.armHBlank()
	return p
}

// HandleEvent is the scheduler dispatch entry point.
func (p *PPU) HandleEvent(_ *scheduler.Scheduler, kind scheduler.Kind, _ scheduler.Args) {
	switch kind {
	case EventHDraw:
		p.onHDraw()
	case EventHBlank:
		p.onHBlank()
	}
}

// cyclesHDraw/cyclesHBlank sum to 1232 cycles per scanline (4 cycles/dot *
// 308 dots), matching the GBA's fixed dot clock.
const (
	cyclesHDraw  = 960
	cyclesHBlank = 272
)

// armHDraw schedules the next line's HDraw event at the end of the
// current HBlank period.
func (p *PPU) armHDraw() {
	p.sch.Schedule(EventHDraw, cyclesHBlank, nil, false, 0)
}

// armHBlank schedules the HBlank event at the end of the current line's
// draw period.
func (p *PPU) armHBlank() {
	p.sch.Schedule(EventHBlank, cyclesHDraw, nil, false, 0)
}

// onHDraw fires at the start of each scanline's drawing region: advances
// VCOUNT, updates status bits, fires VCount/VBlank IRQs, kicks
// VBlank-timed DMA, and reloads affine accumulators at VBlank start.
func (p *PPU) onHDraw() {
	p.dispstat &^= dispstatHBlank

	p.vcount++
	if p.vcount >= totalLines {
		p.vcount = 0
	}

	if p.vcount == ScreenHeight {
		p.dispstat |= dispstatVBlank
		if p.dispstat&dispstatVBlankIE != 0 && p.req != nil {
			p.req(0)
		}
		if p.dma != nil {
			p.dma(1) // dma.TimingVBlank
		}
		p.reloadAffine()
		if p.frameCB != nil {
			p.frameCB()
		}
	} else if p.vcount == 0 {
		p.dispstat &^= dispstatVBlank
	}

	vcSetting := byte(p.dispstat >> 8)
	if byte(p.vcount) == vcSetting {
		p.dispstat |= dispstatVCounter
		if p.dispstat&dispstatVCountIE != 0 && p.req != nil {
			p.req(2)
		}
	} else {
		p.dispstat &^= dispstatVCounter
	}

	p.armHBlank()
}

// onHBlank fires partway through each scanline: composes the visible
// line (if any), steps affine accumulators, sets the HBlank status bit,
// fires the HBlank IRQ, kicks HBlank-timed DMA, and services
// video-capture DMA during lines 2..161. Frame publication is not done
// here: onHDraw calls frameCB the instant VCOUNT reaches 160.
func (p *PPU) onHBlank() {
	if p.vcount < ScreenHeight {
		p.composeScanline(int(p.vcount))
		p.stepAffine()
	}

	p.dispstat |= dispstatHBlank
	if p.dispstat&dispstatHBlankIE != 0 && p.req != nil {
		p.req(1)
	}
	if p.vcount < ScreenHeight && p.dma != nil {
		p.dma(2) // dma.TimingHBlank
	}
	if p.vcount >= 2 && p.vcount <= 161 && p.dma != nil {
		p.dma(3) // dma.TimingSpecial (video capture window)
	}

	p.armHDraw()
}

// reloadAffine restores BG2/BG3's internal accumulators from their
// reference registers at VBlank. A BGxX/BGxY write reloads its
// accumulator immediately (setAffineRef), mid-frame or not.
func (p *PPU) reloadAffine() {
	p.bgRefX[0], p.bgRefY[0] = p.bgX[0], p.bgY[0]
	p.bgRefX[1], p.bgRefY[1] = p.bgX[1], p.bgY[1]
}

func (p *PPU) stepAffine() {
	for i := 0; i < 2; i++ {
		p.bgRefX[i] += int32(p.bgPB[i])
		p.bgRefY[i] += int32(p.bgPD[i])
	}
}

// SetScanlineCallback registers spec.md §6's optional video-sink
// callback, invoked from the emulation thread at HBlank of every visible
// line with the freshly composed row. The front-end must not call back
// into the emulator from within it (enforced by convention, not code: the
// PPU itself is already mid-dispatch from the scheduler when this fires).
func (p *PPU) SetScanlineCallback(cb func(y int, pixels []uint16)) { p.scanlineCB = cb }

// SetFrameCallback registers the façade's hook for spec.md §4.5's frame
// publication step, fired the instant VCOUNT reaches 160.
func (p *PPU) SetFrameCallback(cb func()) { p.frameCB = cb }

// SetLayerEnable/SetOBJEnable implement spec.md §6's
// ppu.enable_bg_layers[4] / ppu.enable_oam host settings.
func (p *PPU) SetLayerEnable(layer int, on bool) { p.enableBG[layer] = on }
func (p *PPU) SetOBJEnable(on bool)              { p.enableOBJ = on }

func (p *PPU) VCount() uint16 { return p.vcount }
