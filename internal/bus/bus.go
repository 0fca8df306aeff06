// Package bus implements the GBA's 32-bit address space: the 16-region
// decoder, per-region wait-state accounting (recomputed from WAITCNT),
// the cartridge prefetch buffer, open-bus reads for unmapped space, and
// dispatch into the PPU/DMA/timer/IRQ/cart subsystems for everything
// that isn't EWRAM/IWRAM. Modeled after the teacher's Bus struct (a
// single type owning every region plus Read/Write/Tick and delegating
// PPU/cart access through narrow methods rather than exposing raw
// slices), generalized from the DMG's flat 16-bit map to the GBA's
// region-decoded, width- and wait-state-dependent one.
package bus

import (
	"github.com/aldenhall/pocketgba/internal/apu"
	"github.com/aldenhall/pocketgba/internal/cart"
	"github.com/aldenhall/pocketgba/internal/dma"
	"github.com/aldenhall/pocketgba/internal/irq"
	"github.com/aldenhall/pocketgba/internal/ppu"
	"github.com/aldenhall/pocketgba/internal/timer"
)

const (
	ewramSize = 256 * 1024
	iwramSize = 32 * 1024
	biosSize  = 16 * 1024
	sramWindowSize = 0x10000
)

// Bus owns the regions it doesn't delegate (BIOS, EWRAM, IWRAM) and
// holds narrow references to everything it does delegate to.
type Bus struct {
	bios  [biosSize]byte
	ewram *pagedRegion
	iwram [iwramSize]byte

	cart    *cart.Cartridge
	ppu     *ppu.PPU
	dma     *dma.Engine
	timers  *timer.Bank
	irq     *irq.Controller
	apu     *apu.APU

	waitcnt  uint16
	waits    *waitTables
	prefetch prefetchUnit
	openbus  openBusShadow

	// prefetchForceDisabled implements spec.md §6's host-settable
	// prefetch_buffer toggle: a front-end can force the buffer off
	// regardless of what the game wrote to WAITCNT, useful for A/B
	// timing comparisons. Independent of WAITCNT's own enable bit.
	prefetchForceDisabled bool

	keyinput uint16 // active-low key state; bit=0 means pressed
	keycnt   uint16
	postflg  byte

	dmaLo, dmaHi [4]uint32 // latched 32-bit SAD/DAD halves for RMW on 16-bit writes

	// dmaActive gates the prefetch bypass: while a DMA burst is running,
	// CPU-issued accesses never touch the prefetch buffer (spec.md §4.2).
	dmaActive bool
}

// New allocates a Bus with its own regions ready but every delegated
// subsystem left nil. dma.Engine needs a Bus to satisfy its own Bus
// interface at construction time, while Bus needs a *dma.Engine to
// dispatch DMA's I/O registers — the same forward-reference shape the
// scheduler/PPU and scheduler/timer pairings resolve elsewhere in this
// tree. Callers construct the Bus first, hand it to dma.New, then call
// Wire with every subsystem once they all exist.
func New() *Bus {
	b := &Bus{
		ewram:    newPagedRegion(ewramSize),
		waits:    newWaitTables(),
		keyinput: 0x3FF,
	}
	b.waits.applyWaitcnt(0)
	return b
}

// WireAPU attaches the sound register file; split from Wire because the
// APU carries no cross-dependency on the other subsystems and several
// existing callers construct a Bus without one (headless CPU-only
// tests), so it stays an independent, optional attachment point.
func (b *Bus) WireAPU(a *apu.APU) { b.apu = a }

// Wire attaches the subsystems a freshly-allocated Bus delegates to.
func (b *Bus) Wire(c *cart.Cartridge, p *ppu.PPU, d *dma.Engine, t *timer.Bank, ic *irq.Controller) {
	b.cart = c
	b.ppu = p
	b.dma = d
	b.timers = t
	b.irq = ic
}

// SetBIOS loads the console BIOS image (read via LDR/LDM only while PC
// sits inside the BIOS region on real hardware; this rewrite does not
// enforce that PC-gating since the CPU's exact fetch semantics are out
// of scope).
func (b *Bus) SetBIOS(data []byte) {
	copy(b.bios[:], data)
}

// SetPrefetchForceDisabled implements spec.md §6's prefetch_buffer
// setting; when forced off, the buffer stays disabled even if the game
// has set WAITCNT's own prefetch-enable bit.
func (b *Bus) SetPrefetchForceDisabled(off bool) {
	b.prefetchForceDisabled = off
	b.prefetch.setEnabled(b.waitcnt&(1<<14) != 0 && !b.prefetchForceDisabled)
}

// SetKeys packs the pressed/released state of the 10 GBA buttons into
// KEYINPUT's active-low bit layout (spec.md's frontend input mapping).
func (b *Bus) SetKeys(pressedMask uint16) {
	b.keyinput = ^pressedMask & 0x3FF
}

// BeginDMABurst/EndDMABurst set and clear dmaActive, under which cart
// accesses bypass the prefetch buffer. Nothing in this tree calls them;
// DMARead16/DMARead32 set dmaActive themselves for each read.
func (b *Bus) BeginDMABurst() { b.dmaActive = true }
func (b *Bus) EndDMABurst()   { b.dmaActive = false }

// Idle lets the prefetch buffer advance during cycles the CPU spends
// not touching the bus (internal-cycle instructions). The cpu package
// does not call it; the buffer only advances when a caller invokes Idle.
func (b *Bus) Idle(cycles uint64) {
	if !b.dmaActive {
		b.prefetch.idle(cycles)
	}
}

// Read8/Read16/Read32 and Write8/Write16/Write32 are the CPU-facing
// access path: they return the cycle cost to charge (spec.md §4.2's
// "memory bus access algorithm"), accounting for region wait states and
// the prefetch buffer's fast path on sequential cart-ROM fetches.
func (b *Bus) Read8(addr uint32, seq bool) (byte, uint64) {
	r := regionOf(addr)
	switch r {
	case RegionBIOS:
		return b.bios[addr%biosSize], b.waits.cost16(r, seq)
	case RegionEWRAM:
		return b.ewram.readByte(addr % ewramSize), b.waits.cost16(r, seq)
	case RegionIWRAM:
		return b.iwram[addr%iwramSize], b.waits.cost16(r, seq)
	case RegionIO:
		return b.readIO8(addr & 0xFFFFFF), b.waits.cost16(r, seq)
	case RegionPalette:
		return b.ppu.CPUReadPalette8(addr & 0x3FF), b.waits.cost16(r, seq)
	case RegionVRAM:
		return b.ppu.CPUReadVRAM8(vramOffset(addr)), b.waits.cost16(r, seq)
	case RegionOAM:
		return b.ppu.CPUReadOAM8(addr & 0x3FF), b.waits.cost16(r, seq)
	case RegionSRAM, RegionSRAMMirror:
		v := b.cart.ReadBackup8(addr % sramWindowSize)
		return v, b.waits.cost16(RegionSRAM, seq)
	default:
		if isCartRegion(r) {
			v, cost := b.fetchCartHalf(addr, seq)
			if addr&1 != 0 {
				v >>= 8
			}
			return byte(v), cost
		}
		return b.openbus.read8(addr), 1
	}
}

func (b *Bus) Read16(addr uint32, seq bool) (uint16, uint64) {
	addr &^= 1
	r := regionOf(addr)
	switch r {
	case RegionBIOS:
		return le16(b.bios[:], addr%biosSize), b.waits.cost16(r, seq)
	case RegionEWRAM:
		return b.ewram.readHalf(addr % ewramSize), b.waits.cost16(r, seq)
	case RegionIWRAM:
		return le16(b.iwram[:], addr%iwramSize), b.waits.cost16(r, seq)
	case RegionIO:
		return b.readIO16(addr & 0xFFFFFF), b.waits.cost16(r, seq)
	case RegionPalette:
		return b.ppu.CPUReadPalette16(addr & 0x3FF), b.waits.cost16(r, seq)
	case RegionVRAM:
		return b.ppu.CPUReadVRAM16(vramOffset(addr)), b.waits.cost16(r, seq)
	case RegionOAM:
		return b.ppu.CPUReadOAM16(addr & 0x3FF), b.waits.cost16(r, seq)
	case RegionSRAM, RegionSRAMMirror:
		// SRAM/flash sit on an 8-bit-only bus: a 16-bit CPU load just
		// reads the single addressed byte, replicated into both halves
		// (spec.md's backup-storage section).
		v := uint16(b.cart.ReadBackup8(addr % sramWindowSize))
		return v | v<<8, b.waits.cost16(RegionSRAM, seq)
	default:
		if isCartRegion(r) {
			if b.cart.IsEEPROMWindow(cartOffset(addr)) {
				return b.cart.ReadBackup16(cartOffset(addr)), b.waits.cost16(r, seq)
			}
			return b.fetchCartHalf(addr, seq)
		}
		return b.openbus.read16(addr), 1
	}
}

func (b *Bus) Read32(addr uint32, seq bool) (uint32, uint64) {
	addr &^= 3
	r := regionOf(addr)
	switch r {
	case RegionBIOS:
		return le32(b.bios[:], addr%biosSize), b.waits.cost32(r, seq)
	case RegionEWRAM:
		return b.ewram.readWord(addr % ewramSize), b.waits.cost32(r, seq)
	case RegionIWRAM:
		return le32(b.iwram[:], addr%iwramSize), b.waits.cost32(r, seq)
	case RegionIO:
		return b.readIO32(addr & 0xFFFFFF), b.waits.cost32(r, seq)
	case RegionPalette:
		return b.ppu.CPUReadPalette32(addr & 0x3FF), b.waits.cost32(r, seq)
	case RegionVRAM:
		return b.ppu.CPUReadVRAM32(vramOffset(addr)), b.waits.cost32(r, seq)
	case RegionOAM:
		return b.ppu.CPUReadOAM32(addr & 0x3FF), b.waits.cost32(r, seq)
	case RegionSRAM, RegionSRAMMirror:
		v := uint32(b.cart.ReadBackup8(addr % sramWindowSize))
		v |= v << 8
		v |= v << 16
		return v, b.waits.cost32(RegionSRAM, seq)
	default:
		if isCartRegion(r) {
			if b.cart.IsEEPROMWindow(cartOffset(addr)) {
				lo := b.cart.ReadBackup16(cartOffset(addr))
				hi := b.cart.ReadBackup16(cartOffset(addr) + 2)
				return uint32(lo) | uint32(hi)<<16, b.waits.cost32(r, seq)
			}
			lo, c1 := b.fetchCartHalf(addr, seq)
			hi, c2 := b.fetchCartHalf(addr+2, true)
			return uint32(lo) | uint32(hi)<<16, c1 + c2
		}
		return b.openbus.read32(addr), 1
	}
}

func (b *Bus) Write8(addr uint32, v byte, seq bool) uint64 {
	r := regionOf(addr)
	b.openbus.recordAccess(1, addr, uint32(v))
	switch r {
	case RegionEWRAM:
		b.ewram.writeByte(addr%ewramSize, v)
	case RegionIWRAM:
		b.iwram[addr%iwramSize] = v
	case RegionIO:
		b.writeIO8(addr&0xFFFFFF, v)
	case RegionPalette:
		b.ppu.CPUWritePalette8(addr&0x3FF, v)
	case RegionVRAM:
		b.ppu.CPUWriteVRAM8(vramOffset(addr), v)
	case RegionOAM:
		b.ppu.CPUWriteOAM8(addr&0x3FF, v)
	case RegionSRAM, RegionSRAMMirror:
		b.cart.WriteBackup8(addr%sramWindowSize, v)
		return b.waits.cost16(RegionSRAM, seq)
	}
	return b.waits.cost16(r, seq)
}

func (b *Bus) Write16(addr uint32, v uint16, seq bool) uint64 {
	addr &^= 1
	r := regionOf(addr)
	b.openbus.recordAccess(2, addr, uint32(v))
	switch r {
	case RegionEWRAM:
		b.ewram.writeHalf(addr%ewramSize, v)
	case RegionIWRAM:
		se16(b.iwram[:], addr%iwramSize, v)
	case RegionIO:
		b.writeIO16(addr&0xFFFFFF, v)
	case RegionPalette:
		b.ppu.CPUWritePalette16(addr&0x3FF, v)
	case RegionVRAM:
		b.ppu.CPUWriteVRAM16(vramOffset(addr), v)
	case RegionOAM:
		b.ppu.CPUWriteOAM16(addr&0x3FF, v)
	case RegionSRAM, RegionSRAMMirror:
		// Only D0-D7 are wired to the backup chip; a 16-bit store just
		// presents its low byte.
		b.cart.WriteBackup8(addr%sramWindowSize, byte(v))
		return b.waits.cost16(RegionSRAM, seq)
	default:
		if isCartRegion(r) {
			off := cartOffset(addr)
			if b.cart.IsEEPROMWindow(off) {
				b.cart.WriteBackup16(off, v)
			} else {
				b.cart.WriteROM16(off, v)
			}
		}
	}
	return b.waits.cost16(r, seq)
}

func (b *Bus) Write32(addr uint32, v uint32, seq bool) uint64 {
	addr &^= 3
	r := regionOf(addr)
	b.openbus.recordAccess(4, addr, v)
	switch r {
	case RegionEWRAM:
		b.ewram.writeWord(addr%ewramSize, v)
	case RegionIWRAM:
		se32(b.iwram[:], addr%iwramSize, v)
	case RegionIO:
		b.writeIO32(addr&0xFFFFFF, v)
	case RegionPalette:
		b.ppu.CPUWritePalette32(addr&0x3FF, v)
	case RegionVRAM:
		b.ppu.CPUWriteVRAM32(vramOffset(addr), v)
	case RegionOAM:
		b.ppu.CPUWriteOAM32(addr&0x3FF, v)
	case RegionSRAM, RegionSRAMMirror:
		b.cart.WriteBackup8(addr%sramWindowSize, byte(v))
		return b.waits.cost32(RegionSRAM, seq)
	default:
		if isCartRegion(r) {
			off := cartOffset(addr)
			if b.cart.IsEEPROMWindow(off) {
				b.cart.WriteBackup16(off, uint16(v))
				b.cart.WriteBackup16(off+2, uint16(v>>16))
			} else {
				b.cart.WriteROM16(off, uint16(v))
				b.cart.WriteROM16(off+2, uint16(v>>16))
			}
		}
	}
	return b.waits.cost32(r, seq)
}

// fetchCartHalf serves a 16-bit cart ROM access through both the header
// GPIO window and the prefetch buffer's fast path, seeding the buffer
// to predict the following sequential halfword on a miss. A crossing of
// any 128 KiB boundary inside the cartridge forces the access to be
// non-sequential regardless of what the caller requested (spec.md §3
// invariant (d), §4.2).
func (b *Bus) fetchCartHalf(addr uint32, seq bool) (uint16, uint64) {
	boundary := addr&0x1FFFF == 0
	if boundary {
		seq = false
	}
	normalCost := b.waits.cost16(regionOf(addr), seq)
	if !b.dmaActive {
		if !boundary {
			if cycles, hit := b.prefetch.fetch(addr, normalCost); hit {
				return b.cart.ReadROM16(cartOffset(addr)), cycles
			}
		} else {
			b.prefetch.reset()
		}
		b.prefetch.seed(addr+2, b.waits.cost16(regionOf(addr), true))
	}
	return b.cart.ReadROM16(cartOffset(addr)), normalCost
}

func vramOffset(addr uint32) uint32 {
	off := addr & 0x1FFFF // 128 KiB window, mirrored every 128 KiB
	if off >= 0x18000 {
		off -= 0x8000 // the last 32 KiB mirrors 0x10000..0x17FFF
	}
	return off
}

func cartOffset(addr uint32) uint32 { return addr & 0x01FFFFFF }

func le16(b []byte, off uint32) uint16 { return uint16(b[off]) | uint16(b[off+1])<<8 }
func le32(b []byte, off uint32) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
func se16(b []byte, off uint32, v uint16) { b[off], b[off+1] = byte(v), byte(v>>8) }
func se32(b []byte, off uint32, v uint32) {
	b[off], b[off+1], b[off+2], b[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

// DMARead16/DMAWrite16/DMARead32/DMAWrite32 implement dma.Bus: plain
// region access with no wait-state return value and no prefetch
// interaction (the reads set dmaActive for their duration, so a cart
// ROM read neither consumes nor reseeds the prefetch buffer).
func (b *Bus) DMARead16(addr uint32) uint16 {
	prev := b.dmaActive
	b.dmaActive = true
	v, _ := b.Read16(addr, false)
	b.dmaActive = prev
	return v
}
func (b *Bus) DMAWrite16(addr uint32, v uint16) { b.Write16(addr, v, false) }
func (b *Bus) DMARead32(addr uint32) uint32 {
	prev := b.dmaActive
	b.dmaActive = true
	v, _ := b.Read32(addr, false)
	b.dmaActive = prev
	return v
}
func (b *Bus) DMAWrite32(addr uint32, v uint32) { b.Write32(addr, v, false) }

// SaveState/LoadState cover the bus's own registers: WAITCNT, KEYINPUT
// and POSTFLG as a 5-byte header. EWRAM/IWRAM are not part of it; they
// travel as their own region chunks through EWRAMBytes/IWRAMBytes
// (spec.md §4.6's MEMORY_EWRAM/MEMORY_IWRAM). The prefetch buffer's warm/full/draining progress is
// deliberately not saved: it is a pure timing optimization with no
// architectural effect, so a quicksave always resumes with it cold.
func (b *Bus) SaveState() []byte {
	out := []byte{byte(b.waitcnt), byte(b.waitcnt >> 8), byte(b.keyinput), byte(b.keyinput >> 8), b.postflg}
	return out
}

func (b *Bus) LoadState(data []byte) {
	if len(data) < 5 {
		return
	}
	b.waitcnt = uint16(data[0]) | uint16(data[1])<<8
	b.keyinput = uint16(data[2]) | uint16(data[3])<<8
	b.postflg = data[4]
	b.waits.applyWaitcnt(b.waitcnt)
	b.prefetch.reset()
}

// MemoryMetadata/LoadMemoryMetadata serialize the bus-owned state that
// isn't one of the five RAM regions or a subsystem's own chunk: the
// register trio SaveState already covers, the open-bus shadow word, and
// the dma-active flag (spec.md §4.6's "memory metadata" quicksave
// chunk). The prefetch buffer's own warm/full/draining progress is
// intentionally excluded per SaveState's doc comment above: it is a
// pure timing optimization with no architectural effect, so a load
// always resumes with it cold.
func (b *Bus) MemoryMetadata() []byte {
	out := b.SaveState()
	out = append(out, byte(b.openbus.lastWord), byte(b.openbus.lastWord>>8),
		byte(b.openbus.lastWord>>16), byte(b.openbus.lastWord>>24))
	if b.dmaActive {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func (b *Bus) LoadMemoryMetadata(data []byte) {
	if len(data) < 5 {
		return
	}
	b.LoadState(data[:5])
	if len(data) >= 9 {
		b.openbus.lastWord = uint32(data[5]) | uint32(data[6])<<8 | uint32(data[7])<<16 | uint32(data[8])<<24
	}
	if len(data) >= 10 {
		b.dmaActive = data[9] != 0
	}
}

func (b *Bus) EWRAMBytes() []byte    { return b.ewram.Bytes() }
func (b *Bus) LoadEWRAM(d []byte)    { b.ewram.LoadBytes(d) }
func (b *Bus) IWRAMBytes() []byte    { return b.iwram[:] }
func (b *Bus) LoadIWRAM(d []byte)    { copy(b.iwram[:], d) }

// PPU/DMA/Timers/IRQ/Cart/APU expose the wired subsystems for the
// console façade's save-state and reset orchestration, which needs to
// reach each component directly rather than only through bus-mediated
// register access.
func (b *Bus) PPU() *ppu.PPU          { return b.ppu }
func (b *Bus) DMA() *dma.Engine       { return b.dma }
func (b *Bus) Timers() *timer.Bank    { return b.timers }
func (b *Bus) IRQ() *irq.Controller   { return b.irq }
func (b *Bus) Cart() *cart.Cartridge  { return b.cart }
func (b *Bus) APU() *apu.APU          { return b.apu }
func (b *Bus) WaitcntRaw() uint16     { return b.waitcnt }
