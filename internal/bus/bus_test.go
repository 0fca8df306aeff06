package bus

import (
	"testing"

	"github.com/aldenhall/pocketgba/internal/cart"
	"github.com/aldenhall/pocketgba/internal/dma"
	"github.com/aldenhall/pocketgba/internal/irq"
	"github.com/aldenhall/pocketgba/internal/ppu"
	"github.com/aldenhall/pocketgba/internal/scheduler"
	"github.com/aldenhall/pocketgba/internal/timer"
)

func newWiredBus(rom []byte) *Bus {
	b := New()
	ic := irq.New()
	d := dma.New(b, ic)

	var p *ppu.PPU
	sch := scheduler.New(func(s *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
		p.HandleEvent(s, kind, args)
	})
	p = ppu.New(sch, ic.Request, d.Trigger)

	tb := timer.New(sch, ic)
	c := cart.New(rom, cart.Options{BackupKind: cart.BackupSRAM, HasBackupKind: true})

	b.Wire(c, p, d, tb, ic)
	return b
}

func TestRegionDecodeRoutesEWRAMAndIWRAM(t *testing.T) {
	b := newWiredBus(make([]byte, 0x1000))
	b.Write8(0x02000010, 0x42, false)
	if v, _ := b.Read8(0x02000010, false); v != 0x42 {
		t.Fatalf("EWRAM readback = %#x, want 0x42", v)
	}
	// EWRAM mirrors every 256 KiB within its 16 MiB window.
	if v, _ := b.Read8(0x02040010, false); v != 0x42 {
		t.Fatalf("EWRAM mirror readback = %#x, want 0x42", v)
	}

	b.Write16(0x03000100, 0xBEEF, false)
	if v, _ := b.Read16(0x03000100, false); v != 0xBEEF {
		t.Fatalf("IWRAM readback = %#x, want 0xBEEF", v)
	}
}

func TestWaitcntRecomputesCartCost(t *testing.T) {
	b := newWiredBus(make([]byte, 0x2000))
	_, costBefore := b.Read16(0x08000000, false)

	// WAITCNT bits 2-3 select WS0 non-seq wait; 0b11 -> 8 cycles (slowest).
	b.writeIO16(ioWaitcnt, 0x000C)
	_, costAfter := b.Read16(0x08000000, false)

	if costAfter <= costBefore {
		t.Fatalf("expected higher wait-state cost after WAITCNT write: before=%d after=%d", costBefore, costAfter)
	}
}

func TestPrefetchHitIsCheaperThanMiss(t *testing.T) {
	b := newWiredBus(make([]byte, 0x4000))
	b.writeIO16(ioWaitcnt, 1<<14) // enable prefetch, fastest wait-state encoding (0)

	_, missCost := b.Read16(0x08000000, false)
	b.Idle(1000) // let the prefetch buffer warm up well past one halfword
	_, hitCost := b.Read16(0x08000002, true)

	if hitCost >= missCost {
		t.Fatalf("expected a prefetch hit to cost less than the initial miss: miss=%d hit=%d", missCost, hitCost)
	}
	if hitCost != 1 {
		t.Fatalf("prefetch hit cost = %d, want 1", hitCost)
	}
}

func TestCrossing128KiBBoundaryForcesNonSeq(t *testing.T) {
	b := newWiredBus(make([]byte, 0x40000))
	b.writeIO16(ioWaitcnt, 1<<14) // enable prefetch, fastest wait-state encoding (0)

	// Warm the buffer right up to the boundary, then request the
	// boundary halfword itself as SEQ: spec.md §3 invariant (d) and
	// §4.2 require addr&0x1FFFF==0 to be charged NONSEQ regardless.
	b.Read16(0x0801FFFC, false)
	b.Idle(1000)
	_, atBoundary := b.Read16(0x08020000, true)

	_, nonSeqCost := b.Read16(0x08020000, false)
	if atBoundary != nonSeqCost {
		t.Fatalf("128 KiB boundary access charged %d, want NONSEQ cost %d", atBoundary, nonSeqCost)
	}
}

func TestOpenBusReturnsLastBusValue(t *testing.T) {
	b := newWiredBus(make([]byte, 0x1000))
	b.Write32(0x03000000, 0xCAFEBABE, false)
	if v, _ := b.Read32(0x01000000, false); v != 0xCAFEBABE {
		t.Fatalf("open bus read = %#x, want 0xCAFEBABE", v)
	}
}

func TestSRAMIsEightBitBusReplicated(t *testing.T) {
	b := newWiredBus(make([]byte, 0x1000))
	b.Write8(0x0E000000, 0x7A, false)
	if v, _ := b.Read16(0x0E000000, false); v != 0x7A7A {
		t.Fatalf("SRAM 16-bit readback = %#x, want 0x7A7A", v)
	}
}

func TestSaveStateRoundTrip(t *testing.T) {
	b := newWiredBus(make([]byte, 0x1000))
	b.writeIO16(ioWaitcnt, 0x4317)
	b.SetKeys(0x001)
	snap := b.SaveState()

	b2 := newWiredBus(make([]byte, 0x1000))
	b2.LoadState(snap)
	if b2.waitcnt != 0x4317 {
		t.Fatalf("waitcnt after load = %#x, want 0x4317", b2.waitcnt)
	}
	if b2.keyinput != b.keyinput {
		t.Fatalf("keyinput after load = %#x, want %#x", b2.keyinput, b.keyinput)
	}
}
