// Command corerunner is a headless instruction-stepper around the CPU
// core alone, the analogue of the teacher's cmd/cpurunner: wire bus+cpu
// directly (no PPU/scheduler-driven video needed to exercise raw
// execution), step a bounded number of instructions, optionally trace
// PC/cycles, and optionally poll a fixed memory address for a test
// harness's done flag instead of the teacher's serial-output scraping
// (the GBA core here has no link-cable/serial model; test ROMs in this
// ecosystem conventionally signal completion by writing a sentinel byte
// to a known EWRAM address instead).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aldenhall/pocketgba/internal/bus"
	"github.com/aldenhall/pocketgba/internal/cart"
	"github.com/aldenhall/pocketgba/internal/cpu"
	"github.com/aldenhall/pocketgba/internal/dma"
	"github.com/aldenhall/pocketgba/internal/irq"
	"github.com/aldenhall/pocketgba/internal/ppu"
	"github.com/aldenhall/pocketgba/internal/scheduler"
	"github.com/aldenhall/pocketgba/internal/timer"
)

func main() {
	romPath := flag.String("rom", "", "path to ROM (.gba)")
	biosPath := flag.String("bios", "", "optional BIOS image; omit with -skip-bios")
	skipBIOS := flag.Bool("skip-bios", true, "start at the post-BIOS cart entry point")
	steps := flag.Int64("steps", 50_000_000, "max instructions to execute")
	trace := flag.Bool("trace", false, "print PC and cycle cost per step")
	watchAddr := flag.Uint("watch-addr", 0, "bus address to poll for a done flag (0 disables)")
	watchValue := flag.Uint("watch-value", 1, "byte value that signals completion at -watch-addr")
	timeout := flag.Duration("timeout", 0, "optional wall-clock timeout (0 disables)")
	flag.Parse()

	if *romPath == "" {
		log.Fatal("-rom is required")
	}
	rom, err := os.ReadFile(*romPath)
	if err != nil {
		log.Fatalf("read rom: %v", err)
	}
	var biosData []byte
	if *biosPath != "" {
		biosData, err = os.ReadFile(*biosPath)
		if err != nil {
			log.Fatalf("read bios: %v", err)
		}
	}
	if !*skipBIOS && len(biosData) == 0 {
		log.Fatal("-bios is required unless -skip-bios is set")
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

	crt := cart.New(rom, cart.Options{})
	b.Wire(crt, p, d, tb, ic)
	b.SetBIOS(biosData)

	c := cpu.New(b, ic, sch)
	if *skipBIOS {
		c.SkipBIOS()
	}

	start := time.Now()
	var deadline time.Time
	if *timeout > 0 {
		deadline = start.Add(*timeout)
	}

	var cycles uint64
	for i := int64(0); i < *steps; i++ {
		pc := c.PC()
		cyc := c.Step()
		cycles += cyc
		if *trace {
			fmt.Printf("PC=%08X cyc=%d\n", pc, cyc)
		}

		if *watchAddr != 0 {
			v, _ := b.Read8(uint32(*watchAddr), false)
			if uint(v) == *watchValue {
				fmt.Printf("\nWatch condition met at addr=%08X after %d steps.\n", *watchAddr, i+1)
				fmt.Printf("Done: steps=%d cycles=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
				return
			}
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			fmt.Printf("\nTimeout after %s.\n", time.Since(start).Truncate(time.Millisecond))
			fmt.Printf("Done: steps=%d cycles=%d elapsed=%s\n", i+1, cycles, time.Since(start).Truncate(time.Millisecond))
			os.Exit(2)
		}
	}
	fmt.Printf("Done: steps=%d cycles=%d elapsed=%s\n", *steps, cycles, time.Since(start).Truncate(time.Millisecond))
}
