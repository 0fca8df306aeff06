package bus

// prefetchPhase is the 4-state automaton spec.md §9 calls out for the
// cartridge prefetch unit: the buffer sits idle until the CPU makes a
// sequential ROM fetch, "warms" while the bus pulls ahead of the CPU,
// reaches "full" once it holds the maximum buffered halfwords, and
// "drains" whenever the CPU consumes buffered halfwords faster than the
// bus refills them. Generalized from the original core's prefetch[0]/
// prefetch[1] two-slot shadow into a small counter, since nothing
// downstream needs the buffered halfwords' actual values (a cart ROM
// read at the predicted address always reproduces the same bytes the
// real fetch would have, so there is nothing to cache but the credit).
type prefetchPhase int

const (
	prefetchIdle prefetchPhase = iota
	prefetchWarming
	prefetchFull
	prefetchDraining
)

const prefetchCapacity = 8 // halfwords, matching the real 8x16-bit FIFO

type prefetchUnit struct {
	enabled bool
	phase   prefetchPhase

	nextAddr  uint32 // bus address the buffer expects the CPU to fetch next
	buffered  int    // halfwords presently sitting in the FIFO
	progress  uint64 // accumulated idle cycles toward buffering one more halfword
	seqCycles uint64 // this region's sequential access cost, cached at seed time
}

func (pf *prefetchUnit) setEnabled(on bool) {
	pf.enabled = on
	if !on {
		pf.reset()
	}
}

func (pf *prefetchUnit) reset() {
	pf.phase = prefetchIdle
	pf.buffered = 0
	pf.progress = 0
}

// seed arms the prefetcher right after a non-sequential cart fetch, at
// the address the very next sequential fetch would use.
func (pf *prefetchUnit) seed(nextAddr uint32, seqCost uint64) {
	if !pf.enabled || seqCost == 0 {
		return
	}
	pf.phase = prefetchWarming
	pf.nextAddr = nextAddr
	pf.buffered = 0
	pf.progress = 0
	pf.seqCycles = seqCost
}

// idle lets the prefetcher advance during cycles the CPU spends not
// touching cart ROM (internal cycles, or cycles the bus lends it while
// the CPU is busy elsewhere). Only Bus.Idle calls it, and the cpu
// package never calls Bus.Idle, so during normal execution the buffer
// never warms past its seed point and every cart access pays full price.
func (pf *prefetchUnit) idle(cycles uint64) {
	if !pf.enabled || pf.phase == prefetchIdle {
		return
	}
	pf.progress += cycles
	for pf.buffered < prefetchCapacity && pf.progress >= pf.seqCycles {
		pf.progress -= pf.seqCycles
		pf.buffered++
	}
	if pf.buffered >= prefetchCapacity {
		pf.phase = prefetchFull
		pf.progress = 0
	} else if pf.buffered > 0 {
		pf.phase = prefetchWarming
	}
}

// fetch consumes a cart ROM access at `addr`. A hit against the head of
// the buffer is served at the hardware fast-path cost of 1 cycle and
// shifts the buffer; anything else falls through to the caller's normal
// wait-state cost and reseeds the buffer for the following address.
func (pf *prefetchUnit) fetch(addr uint32, normalCost uint64) (cycles uint64, hit bool) {
	if pf.enabled && pf.buffered > 0 && addr == pf.nextAddr {
		pf.buffered--
		pf.nextAddr += 2
		if pf.buffered == 0 {
			pf.phase = prefetchIdle
		} else {
			pf.phase = prefetchDraining
		}
		return 1, true
	}
	pf.reset()
	return normalCost, false
}
