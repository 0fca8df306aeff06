package ppu

import (
	"testing"

	"github.com/aldenhall/pocketgba/internal/scheduler"
)

func newWiredPPU() (*scheduler.Scheduler, *PPU) {
	var p *PPU
	sch := scheduler.New(func(s *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
		p.HandleEvent(s, kind, args)
	})
	p = New(sch, nil, nil)
	return sch, p
}

func TestScanlineBackdropWhenAllTransparent(t *testing.T) {
	_, p := newWiredPPU()

	p.CPUWritePalette16(0, 0x1234)
	p.dispcnt = 1 << 8 // enable BG0 only, mode 0
	p.bgcnt[0] = 0     // priority 0, 4bpp, screen/char base 0

	// Map entry for the tile column covering x=120 references char tile 1,
	// palette bank 2; every other column keeps map entry 0 (blank tile 0).
	// Character data for tile 1 starts at VRAM offset 32 (32 bytes/tile).
	mapCol := 120 / 8
	p.CPUWriteVRAM16(uint32(mapCol)*2, uint16(1)|uint16(2)<<12)
	// Write nibble 3 into column 0 (pixel x=120) of tile 1's row 0.
	p.CPUWriteVRAM8(32, 0x03)

	p.CPUWritePalette16(uint32(2*16+3)*2, 0x7C1F)

	p.composeScanline(0)

	want := colorFromU16(0x7C1F)
	got := p.scan.result[120]
	if got.R5 != want.R5 || got.G5 != want.G5 || got.B5 != want.B5 {
		t.Fatalf("result[120] = %+v, want color %+v", got, want)
	}
	backdrop := colorFromU16(0x1234)
	other := p.scan.result[0]
	if other.R5 != backdrop.R5 || other.G5 != backdrop.G5 {
		t.Fatalf("result[0] = %+v, want backdrop %+v", other, backdrop)
	}
}

func TestPaletteIndexZeroTransparent(t *testing.T) {
	_, p := newWiredPPU()
	p.dispcnt = 1 << 8
	p.bgcnt[0] = 0
	p.composeScanline(0)
	backdrop := p.scan.result[0]
	for x := 0; x < ScreenWidth; x++ {
		if p.scan.result[x] != backdrop {
			t.Fatalf("x=%d: expected untouched backdrop, got %+v", x, p.scan.result[x])
		}
	}
}

func TestVRAM8BitWriteOBJAreaIgnored(t *testing.T) {
	_, p := newWiredPPU()
	p.dispcnt = 0 // mode 0: OBJ tile area starts at 0x10000
	before := p.CPUReadVRAM16(objVRAMBoundaryText)
	p.CPUWriteVRAM8(objVRAMBoundaryText, 0x55)
	after := p.CPUReadVRAM16(objVRAMBoundaryText)
	if before != after {
		t.Fatalf("OBJ VRAM 8-bit write should be dropped: before=%04x after=%04x", before, after)
	}
}

func TestVRAM8BitWriteBGAreaDuplicates(t *testing.T) {
	_, p := newWiredPPU()
	p.dispcnt = 0
	p.CPUWriteVRAM8(0, 0x3F)
	if got := p.CPUReadVRAM16(0); got != 0x3F3F {
		t.Fatalf("got %04x, want 0x3F3F", got)
	}
}

func TestOAM8BitWriteDropped(t *testing.T) {
	_, p := newWiredPPU()
	p.CPUWriteOAM16(0, 0xABCD)
	p.CPUWriteOAM8(0, 0x11)
	if got := p.CPUReadOAM16(0); got != 0xABCD {
		t.Fatalf("OAM 8-bit write should be dropped, got %04x", got)
	}
}

func TestPalette8BitWriteDuplicates(t *testing.T) {
	_, p := newWiredPPU()
	p.CPUWritePalette8(0x100, 0x3F)
	if got := p.CPUReadPalette16(0x100); got != 0x3F3F {
		t.Fatalf("got %04x, want 0x3F3F", got)
	}
}

func TestVCountReachesVBlank(t *testing.T) {
	sch, p := newWiredPPU()
	for p.VCount() != ScreenHeight {
		at, ok := sch.NextEventAt()
		if !ok {
			t.Fatal("no pending PPU event")
		}
		sch.Advance(at - sch.Now())
	}
	if p.VCount() != ScreenHeight {
		t.Fatalf("vcount = %d, want %d", p.VCount(), ScreenHeight)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	_, p := newWiredPPU()
	p.dispcnt = 0x1234
	p.bgcnt[2] = 0x55
	p.bldcnt = 0x77
	snap := p.SaveState()

	_, p2 := newWiredPPU()
	p2.LoadState(snap)
	if p2.dispcnt != p.dispcnt || p2.bgcnt[2] != p.bgcnt[2] || p2.bldcnt != p.bldcnt {
		t.Fatalf("state mismatch after round trip: %+v vs %+v", p2, p)
	}
}
