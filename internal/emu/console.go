package emu

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/aldenhall/pocketgba/internal/apu"
	"github.com/aldenhall/pocketgba/internal/bus"
	"github.com/aldenhall/pocketgba/internal/cart"
	"github.com/aldenhall/pocketgba/internal/cpu"
	"github.com/aldenhall/pocketgba/internal/dma"
	"github.com/aldenhall/pocketgba/internal/irq"
	"github.com/aldenhall/pocketgba/internal/logx"
	"github.com/aldenhall/pocketgba/internal/ppu"
	"github.com/aldenhall/pocketgba/internal/savestate"
	"github.com/aldenhall/pocketgba/internal/scheduler"
	"github.com/aldenhall/pocketgba/internal/timer"
)

var log = logx.New("emu")

// Console is the machine façade: it owns every subsystem plus the
// message inbox and the shared output region, and is the only type that
// ever touches more than one subsystem directly. Shaped after the
// teacher's emu.Machine (one struct wiring Bus/CPU/PPU, LoadCartridge +
// a Step-driven run loop, Config carried alongside) generalized from a
// single-goroutine DMG machine to spec.md §5's two-thread model: only
// the goroutine running Run ever mutates Console's fields; front-ends
// talk to it exclusively through Inbox and Output.
type Console struct {
	sch *scheduler.Scheduler
	bus *bus.Bus
	cpu *cpu.CPU
	ppu *ppu.PPU
	dma *dma.Engine
	tmr *timer.Bank
	irq *irq.Controller
	apu *apu.APU
	crt *cart.Cartridge

	settings Settings
	pressed  uint16 // bitmask, Key order == bit position

	Inbox  *inbox
	Output *Output

	running bool
}

// NewConsole wires every subsystem together exactly once; the forward
// reference between the scheduler's handler and the PPU it dispatches
// to (the PPU needs the scheduler to register its own events; the
// scheduler needs a handler before the PPU exists) is resolved the same
// way bus_test.go's newWiredBus resolves it: declare the pointer,
// capture it in the closure, assign it after.
func NewConsole() *Console {
	c := &Console{
		Inbox:  newInbox(),
		Output: &Output{},
	}

	b := bus.New()
	ic := irq.New()
	d := dma.New(b, ic)

	var p *ppu.PPU
	var tb *timer.Bank
	sch := scheduler.New(func(s *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
		p.HandleEvent(s, kind, args)
		tb.HandleEvent(s, kind, args)
	})
	p = ppu.New(sch, ic.Request, d.Trigger)
	tb = timer.New(sch, ic)
	a := apu.New()

	crt := cart.New(make([]byte, 0), cart.Options{})
	b.Wire(crt, p, d, tb, ic)
	b.WireAPU(a)

	cp := cpu.New(b, ic, sch)

	p.SetFrameCallback(func() { c.publishFrame() })

	c.sch, c.bus, c.cpu, c.ppu, c.dma, c.tmr, c.irq, c.apu, c.crt = sch, b, cp, p, d, tb, ic, a, crt
	return c
}

// Reset tears down and rebuilds cartridge-dependent state (the ROM
// image, backup chip, and GPIO device), then restarts the CPU either at
// the BIOS reset vector or, with SkipBIOS set, directly at the cart
// entry point in the post-BIOS register state (spec.md §6's RESET
// message / LaunchConfig). It rejects an empty ROM and a SkipBIOS=false
// launch with no BIOS image, matching spec.md §7's "bad ROM size,
// missing BIOS with skip_bios=false: rejected at reset."
func (c *Console) Reset(cfg LaunchConfig) error {
	if len(cfg.ROM.Data) == 0 {
		log.Errorf("reset rejected: empty rom")
		return errors.New("emu: rom data is empty")
	}
	if !cfg.SkipBIOS && len(cfg.BIOS.Data) == 0 {
		log.Errorf("reset rejected: no bios and skip_bios=false")
		return errors.New("emu: bios image required unless skip_bios is set")
	}

	c.settings = cfg.Settings

	crt := cart.New(cfg.ROM.Data, cart.Options{
		BackupKind:     cfg.BackupStorage.Type,
		HasBackupKind:  cfg.BackupStorage.HasType,
		GPIODeviceKind: cfg.GPIODevice,
	})
	c.crt = crt
	c.bus.Wire(crt, c.ppu, c.dma, c.tmr, c.irq)
	c.bus.SetBIOS(cfg.BIOS.Data)
	c.bus.SetPrefetchForceDisabled(!cfg.Settings.PrefetchBuffer)

	c.applyPPUSettings(cfg.Settings.PPU)

	if cfg.SkipBIOS {
		c.cpu.SkipBIOS()
	} else {
		c.cpu.Reset()
	}

	log.Infof("reset: rom=%d bytes skip_bios=%v backup=%v", len(cfg.ROM.Data), cfg.SkipBIOS, crt.Backup.Kind())
	return nil
}

func (c *Console) applyPPUSettings(s PPUSettings) {
	for i, on := range s.EnableBGLayers {
		c.ppu.SetLayerEnable(i, on)
	}
	c.ppu.SetOBJEnable(s.EnableOAM)
}

// Run drives the emulation loop until ctx is cancelled or an EXIT
// message arrives: an errgroup pairs the emulation goroutine with a
// watchdog that simply waits on ctx, generalizing the teacher's bare
// `go app.Run()` into the joinable pthread_join-equivalent pair spec.md
// §5 calls for. Only the emulation goroutine ever touches Console's
// subsystem fields; the watchdog exists purely to give Run something to
// errgroup.Wait() on that resolves as soon as the caller cancels ctx.
func (c *Console) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.emulationLoop(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		// Wake a stopped loop blocked in Inbox.Wait so it sees ctx.Done.
		c.Inbox.Push(Message{Kind: MsgExit})
		return nil
	})

	return g.Wait()
}

// emulationLoop is spec.md §5's core "Suspension" rule: it only ever
// blocks on Inbox.Wait, and only while stopped. While running it drains
// pending messages without blocking, then steps the CPU once (which
// internally advances the scheduler by the cycles charged).
func (c *Console) emulationLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !c.running {
			msgs := c.Inbox.Wait()
			c.handleMessages(msgs)
			continue
		}

		for _, m := range c.Inbox.Drain() {
			c.handleMessage(m)
		}
		if !c.running {
			continue
		}

		c.cpu.Step()
	}
}

func (c *Console) handleMessages(msgs []Message) {
	for _, m := range msgs {
		c.handleMessage(m)
	}
}

func (c *Console) handleMessage(m Message) {
	switch m.Kind {
	case MsgReset:
		if err := c.Reset(m.Reset); err != nil {
			log.Errorf("reset message failed: %v", err)
		}
	case MsgRun:
		c.running = true
	case MsgExit:
		c.running = false
	case MsgKey:
		if m.Pressed {
			c.pressed |= 1 << uint(m.Key)
		} else {
			c.pressed &^= 1 << uint(m.Key)
		}
		c.bus.SetKeys(c.pressed)
	case MsgLoadState:
		if err := savestate.Load(c, m.StateData); err != nil {
			log.Errorf("load_state failed: %v", err)
		}
	case MsgSaveState:
		// Fire-and-forget from the inbox's point of view; the produced
		// bytes are published through Output.SaveState the same way a
		// completed frame or a dirty backup buffer is, since Message
		// carries no reply channel of its own.
		c.Output.SaveState.publish(savestate.Save(c))
	}
}

// StepFrames drives the CPU directly on the calling goroutine until n
// more frames have been published, for a headless CLI that has no
// front-end thread contending for Console's state and so has no need
// for Run/Inbox's message-passing (mirrors the teacher's Machine.
// StepFrame, generalized to a frame count).
func (c *Console) StepFrames(n int) {
	if n <= 0 {
		return
	}
	target := c.Output.ReadFrameCounter() + uint32(n)
	for c.Output.ReadFrameCounter() != target {
		c.cpu.Step()
	}
}

// CopyFramebuffer copies the most recently published frame into dst,
// for callers (headless CLI PNG/CRC output) that don't want to go
// through a front-end's own Console adapter.
func (c *Console) CopyFramebuffer(dst []uint16) { c.Output.Framebuffer.CopyInto(dst) }

// publishFrame copies the PPU's completed frame into the shared output
// region; called from the PPU's frame callback at VBlank, i.e. from
// inside cpu.Step -> scheduler.Advance -> ppu.HandleEvent, so always on
// the emulation goroutine.
func (c *Console) publishFrame() {
	c.Output.Framebuffer.publish(&c.ppu.Framebuffer)
	c.Output.bumpFrameCounter()
	if c.crt.Backup.Dirty() {
		c.Output.BackupStorage.publish(c.crt.Backup.Bytes())
		c.crt.Backup.ClearDirty()
	}
}

// savestate.Source implementation. Every method here is a thin forward
// into the subsystem that actually owns the state; Console exists as
// the implementation purely so internal/savestate never has to import
// internal/emu (see that package's doc comment).
func (c *Console) ROMSize() int   { return c.crt.ROMSize() }
func (c *Console) ROMCode() string { return c.crt.Header.GameCode }

func (c *Console) CPUState() []byte       { return c.cpu.SaveState() }
func (c *Console) LoadCPUState(d []byte)  { c.cpu.LoadState(d) }

func (c *Console) BusMemoryMetadata() []byte      { return c.bus.MemoryMetadata() }
func (c *Console) LoadBusMemoryMetadata(d []byte) { c.bus.LoadMemoryMetadata(d) }

func (c *Console) EWRAMBytes() []byte   { return c.bus.EWRAMBytes() }
func (c *Console) LoadEWRAM(d []byte)   { c.bus.LoadEWRAM(d) }
func (c *Console) IWRAMBytes() []byte   { return c.bus.IWRAMBytes() }
func (c *Console) LoadIWRAM(d []byte)   { c.bus.LoadIWRAM(d) }

func (c *Console) PPUState() []byte      { return c.ppu.SaveState() }
func (c *Console) LoadPPUState(d []byte) { c.ppu.LoadState(d) }
func (c *Console) VRAMBytes() []byte     { return c.ppu.VRAMBytes() }
func (c *Console) LoadVRAM(d []byte)     { c.ppu.LoadVRAM(d) }
func (c *Console) OAMBytes() []byte      { return c.ppu.OAMBytes() }
func (c *Console) LoadOAM(d []byte)      { c.ppu.LoadOAM(d) }
func (c *Console) PaletteBytes() []byte  { return c.ppu.PaletteBytes() }
func (c *Console) LoadPalette(d []byte)  { c.ppu.LoadPalette(d) }

func (c *Console) DMAState() []byte      { return c.dma.SaveState() }
func (c *Console) LoadDMAState(d []byte) { c.dma.LoadState(d) }
func (c *Console) TimerState() []byte      { return c.tmr.SaveState() }
func (c *Console) LoadTimerState(d []byte) { c.tmr.LoadState(d) }
func (c *Console) IRQState() []byte      { return c.irq.SaveState() }
func (c *Console) LoadIRQState(d []byte) { c.irq.LoadState(d) }
func (c *Console) APUState() []byte      { return c.apu.SaveState() }
func (c *Console) LoadAPUState(d []byte) { c.apu.LoadState(d) }
func (c *Console) GPIOState() []byte      { return c.crt.GPIOState() }
func (c *Console) LoadGPIOState(d []byte) { c.crt.LoadGPIOState(d) }
func (c *Console) BackupChipState() []byte      { return c.crt.BackupChipState() }
func (c *Console) LoadBackupChipState(d []byte) { c.crt.LoadBackupChipState(d) }

func (c *Console) SchedulerNow() uint64 { return uint64(c.sch.Now()) }
func (c *Console) SchedulerSnapshot() []scheduler.Snapshot { return c.sch.Snapshot() }
func (c *Console) SchedulerRestore(now uint64, snaps []scheduler.Snapshot) {
	c.sch.Restore(scheduler.Cycles(now), snaps)
}

// BackupBytes/LoadBackupBytes expose the raw non-volatile save buffer
// (distinct from BackupChipState's sequencer bits) for a front-end that
// persists .sav files directly rather than only quicksaves.
func (c *Console) BackupBytes() []byte      { return c.crt.Backup.Bytes() }
func (c *Console) LoadBackupBytes(d []byte) { c.crt.Backup.LoadBytes(d) }
