// Package timer implements the four GBA hardware timers: a free-running
// 16-bit counter per channel, selectable prescaler, optional count-up
// chaining from the previous channel, and an overflow IRQ. Counter
// advancement is event-driven: instead of ticking every cycle, each
// running, non-cascading channel schedules its next overflow and only
// recomputes the visible counter value on demand (spec.md §4.1: "everything
// ... is modeled as an event").
package timer

import "github.com/aldenhall/pocketgba/internal/scheduler"

const numTimers = 4

var prescaleCycles = [4]uint64{1, 64, 256, 1024}

// IRQRaiser is implemented by the interrupt controller; timers request
// bit `idx` (Timer0..Timer3) whenever a channel overflows with its IRQ
// enable bit set.
type IRQRaiser interface {
	RequestTimerIRQ(channel int)
}

const timerEventKind scheduler.Kind = 900 // offset away from PPU/DMA kind ranges

type channel struct {
	reload  uint16
	counter uint16 // snapshot as of lastUpdate
	ctrlHi  byte   // raw TMxCNT_H byte: bits0-1 prescaler, bit2 cascade, bit6 irq, bit7 enable

	running    bool
	cascade    bool
	irqEnabled bool
	prescaler  int

	lastUpdate uint64 // scheduler cycle at which counter was last valid
	handle     scheduler.Handle
	hasHandle  bool
}

// Bank owns all four channels.
type Bank struct {
	ch  [numTimers]channel
	sch *scheduler.Scheduler
	irq IRQRaiser
}

func New(sch *scheduler.Scheduler, irq IRQRaiser) *Bank {
	return &Bank{sch: sch, irq: irq}
}

// HandleEvent is the scheduler dispatch entry point for timer overflow
// events; args carries the channel index.
func (b *Bank) HandleEvent(_ *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
	if kind != timerEventKind {
		return
	}
	idx := args.(int)
	b.overflow(idx)
}

func (b *Bank) overflow(idx int) {
	c := &b.ch[idx]
	if c.running && !c.cascade {
		// The new period starts at the overflow's due time, which the
		// scheduler's clock may already have passed when this fires.
		c.lastUpdate += uint64(0x10000-uint32(c.counter)) * prescaleCycles[c.prescaler]
	} else {
		c.lastUpdate = b.sch.Now()
	}
	c.counter = c.reload
	c.hasHandle = false

	if c.irqEnabled && b.irq != nil {
		b.irq.RequestTimerIRQ(idx)
	}
	if idx+1 < numTimers && b.ch[idx+1].running && b.ch[idx+1].cascade {
		b.tickCascade(idx + 1)
	}
	if c.running && !c.cascade {
		b.arm(idx)
	}
}

func (b *Bank) tickCascade(idx int) {
	c := &b.ch[idx]
	b.syncCounter(idx)
	c.counter++
	if c.counter == 0 {
		b.overflow(idx)
	}
}

// syncCounter brings ch[idx].counter up to date for a non-cascading,
// running channel by computing elapsed prescaler ticks since lastUpdate.
func (b *Bank) syncCounter(idx int) {
	c := &b.ch[idx]
	if !c.running || c.cascade {
		return
	}
	elapsed := b.sch.Now() - c.lastUpdate
	ticks := elapsed / prescaleCycles[c.prescaler]
	if ticks == 0 {
		return
	}
	span := uint32(0x10000) - uint32(c.reload)
	total := uint32(c.counter) - uint32(c.reload) + uint32(ticks)
	total %= span
	c.counter = c.reload + uint16(total)
	c.lastUpdate += ticks * prescaleCycles[c.prescaler]
}

func (b *Bank) arm(idx int) {
	c := &b.ch[idx]
	if c.hasHandle {
		b.sch.Cancel(c.handle)
	}
	due := c.lastUpdate + uint64(0x10000-uint32(c.counter))*prescaleCycles[c.prescaler]
	c.handle = b.sch.Schedule(timerEventKind, int64(due)-int64(b.sch.Now()), idx, false, 0)
	c.hasHandle = true
}

// ReadCounter returns the live 16-bit counter value (TMxCNT_L) for
// channel idx, synchronizing non-cascading running channels first.
func (b *Bank) ReadCounter(idx int) uint16 {
	b.syncCounter(idx)
	return b.ch[idx].counter
}

// WriteReload sets TMxCNT_L; only takes effect as the reload value used
// on the next start/overflow, per hardware (writing while running does
// not reload the live counter).
func (b *Bank) WriteReload(idx int, value uint16) {
	b.ch[idx].reload = value
}

// WriteControl handles a TMxCNT_H write: prescaler/cascade/irq bits, and
// the start/stop edge which reloads the counter and arms (or disarms)
// the overflow event.
func (b *Bank) WriteControl(idx int, value byte) {
	c := &b.ch[idx]
	wasRunning := c.running

	c.ctrlHi = value
	c.prescaler = int(value & 0x3)
	c.cascade = value&(1<<2) != 0 && idx != 0
	c.irqEnabled = value&(1<<6) != 0
	c.running = value&(1<<7) != 0

	if c.running && !wasRunning {
		c.counter = c.reload
		c.lastUpdate = b.sch.Now()
		if !c.cascade {
			b.arm(idx)
		}
	} else if !c.running && wasRunning {
		if c.hasHandle {
			b.sch.Cancel(c.handle)
			c.hasHandle = false
		}
	} else if c.running && !c.cascade {
		// Prescaler/cascade changed while running: resync then rearm.
		b.syncCounter(idx)
		b.arm(idx)
	}
}

func (b *Bank) ReadControl(idx int) byte { return b.ch[idx].ctrlHi }

func (b *Bank) SaveState() []byte {
	out := make([]byte, 0, numTimers*6)
	for i := range b.ch {
		b.syncCounter(i)
		c := &b.ch[i]
		out = append(out,
			byte(c.reload), byte(c.reload>>8),
			byte(c.counter), byte(c.counter>>8),
			c.ctrlHi, 0)
	}
	return out
}

func (b *Bank) LoadState(data []byte) {
	for i := range b.ch {
		off := i * 6
		if off+6 > len(data) {
			return
		}
		c := &b.ch[i]
		if c.hasHandle {
			b.sch.Cancel(c.handle)
			c.hasHandle = false
		}
		c.reload = uint16(data[off]) | uint16(data[off+1])<<8
		c.counter = uint16(data[off+2]) | uint16(data[off+3])<<8
		c.ctrlHi = data[off+4]
		c.prescaler = int(c.ctrlHi & 0x3)
		c.cascade = c.ctrlHi&(1<<2) != 0 && i != 0
		c.irqEnabled = c.ctrlHi&(1<<6) != 0
		c.running = c.ctrlHi&(1<<7) != 0
		c.lastUpdate = b.sch.Now()
		if c.running && !c.cascade {
			b.arm(i)
		}
	}
}
