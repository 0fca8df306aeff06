package timer

import (
	"testing"

	"github.com/aldenhall/pocketgba/internal/scheduler"
)

type fakeIRQ struct {
	fired []int
}

func (f *fakeIRQ) RequestTimerIRQ(channel int) { f.fired = append(f.fired, channel) }

func TestTimerCounterAdvancesWithPrescaler(t *testing.T) {
	sch := scheduler.New(nil)
	irq := &fakeIRQ{}
	bank := New(sch, irq)
	sch2 := sch // keep naming close to convention below

	bank.WriteReload(0, 0xFFF0)
	bank.WriteControl(0, 1<<7) // prescaler=1 (x1), running

	sch2.Advance(5)
	if got := bank.ReadCounter(0); got != 0xFFF5 {
		t.Fatalf("counter after 5 cycles = %#x, want 0xFFF5", got)
	}
}

func TestTimerOverflowFiresIRQAndReloads(t *testing.T) {
	var bank *Bank
	sch := scheduler.New(func(s *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
		bank.HandleEvent(s, kind, args)
	})
	irq := &fakeIRQ{}
	bank = New(sch, irq)

	bank.WriteReload(0, 0xFFFE)
	bank.WriteControl(0, (1<<7)|(1<<6)) // running, irq enabled, prescaler x1

	sch.Advance(2) // 2 ticks to overflow from 0xFFFE
	if len(irq.fired) != 1 || irq.fired[0] != 0 {
		t.Fatalf("fired = %v, want [0]", irq.fired)
	}
	if got := bank.ReadCounter(0); got != 0xFFFE {
		t.Fatalf("counter after reload = %#x, want 0xFFFE", got)
	}
}

func TestTimerCascadeChaining(t *testing.T) {
	var bank *Bank
	sch := scheduler.New(func(s *scheduler.Scheduler, kind scheduler.Kind, args scheduler.Args) {
		bank.HandleEvent(s, kind, args)
	})
	bank = New(sch, nil)

	bank.WriteReload(0, 0xFFFF)      // overflows every 1 cycle
	bank.WriteControl(0, 1<<7)
	bank.WriteReload(1, 0xFFFD)
	bank.WriteControl(1, (1<<7)|(1<<2)) // running, cascade from timer0

	sch.Advance(2) // timer0 overflows twice -> timer1 counter += 2
	if got := bank.ReadCounter(1); got != 0xFFFF {
		t.Fatalf("cascaded counter = %#x, want 0xFFFF", got)
	}
}
