package savestate

import (
	"bytes"
	"testing"

	"github.com/aldenhall/pocketgba/internal/scheduler"
)

// fakeSource is a minimal Source: each state blob is just a distinct
// byte slice the test can compare after a round trip, and RAM regions
// are small slices, mostly zero with one non-zero run, so the RLE chunk
// encoding has something to compress.
type fakeSource struct {
	romSize int
	romCode string

	cpu, bus, ppu, dmaS, timerS, irqS, apuS, gpioS, backupS []byte
	ewram, iwram, vram, oam, pal                            []byte

	now   uint64
	snaps []scheduler.Snapshot
}

func (f *fakeSource) ROMSize() int    { return f.romSize }
func (f *fakeSource) ROMCode() string { return f.romCode }

func (f *fakeSource) CPUState() []byte      { return f.cpu }
func (f *fakeSource) LoadCPUState(d []byte) { f.cpu = append([]byte{}, d...) }

func (f *fakeSource) BusMemoryMetadata() []byte      { return f.bus }
func (f *fakeSource) LoadBusMemoryMetadata(d []byte) { f.bus = append([]byte{}, d...) }

func (f *fakeSource) EWRAMBytes() []byte    { return f.ewram }
func (f *fakeSource) LoadEWRAM(d []byte)    { f.ewram = append([]byte{}, d...) }
func (f *fakeSource) IWRAMBytes() []byte    { return f.iwram }
func (f *fakeSource) LoadIWRAM(d []byte)    { f.iwram = append([]byte{}, d...) }

func (f *fakeSource) PPUState() []byte      { return f.ppu }
func (f *fakeSource) LoadPPUState(d []byte) { f.ppu = append([]byte{}, d...) }
func (f *fakeSource) VRAMBytes() []byte     { return f.vram }
func (f *fakeSource) LoadVRAM(d []byte)     { f.vram = append([]byte{}, d...) }
func (f *fakeSource) OAMBytes() []byte      { return f.oam }
func (f *fakeSource) LoadOAM(d []byte)      { f.oam = append([]byte{}, d...) }
func (f *fakeSource) PaletteBytes() []byte  { return f.pal }
func (f *fakeSource) LoadPalette(d []byte)  { f.pal = append([]byte{}, d...) }

func (f *fakeSource) DMAState() []byte       { return f.dmaS }
func (f *fakeSource) LoadDMAState(d []byte)  { f.dmaS = append([]byte{}, d...) }
func (f *fakeSource) TimerState() []byte     { return f.timerS }
func (f *fakeSource) LoadTimerState(d []byte) { f.timerS = append([]byte{}, d...) }
func (f *fakeSource) IRQState() []byte       { return f.irqS }
func (f *fakeSource) LoadIRQState(d []byte)  { f.irqS = append([]byte{}, d...) }
func (f *fakeSource) APUState() []byte       { return f.apuS }
func (f *fakeSource) LoadAPUState(d []byte)  { f.apuS = append([]byte{}, d...) }
func (f *fakeSource) GPIOState() []byte      { return f.gpioS }
func (f *fakeSource) LoadGPIOState(d []byte) { f.gpioS = append([]byte{}, d...) }
func (f *fakeSource) BackupChipState() []byte      { return f.backupS }
func (f *fakeSource) LoadBackupChipState(d []byte) { f.backupS = append([]byte{}, d...) }

func (f *fakeSource) SchedulerNow() uint64                 { return f.now }
func (f *fakeSource) SchedulerSnapshot() []scheduler.Snapshot { return f.snaps }
func (f *fakeSource) SchedulerRestore(now uint64, snaps []scheduler.Snapshot) {
	f.now = now
	f.snaps = snaps
}

func newFakeSource() *fakeSource {
	ewram := make([]byte, 1024)
	for i := 512; i < 520; i++ {
		ewram[i] = 0xFF
	}
	return &fakeSource{
		romSize: 0x200000,
		romCode: "BPEE",
		cpu:     []byte{1, 2, 3, 4},
		bus:     []byte{9},
		ppu:     []byte{5, 6},
		dmaS:    []byte{7, 7, 7},
		timerS:  []byte{8},
		irqS:    []byte{0xAB, 0xCD, 0, 0, 3},
		ewram:   ewram,
		iwram:   make([]byte, 256),
		vram:    make([]byte, 512),
		oam:     make([]byte, 128),
		pal:     make([]byte, 64),
		now:     1000,
		snaps: []scheduler.Snapshot{
			{Kind: 1, At: 2000, Period: 0, Repeat: false, Args: nil},
			{Kind: 2, At: 3000, Period: 228, Repeat: true, Args: int(3)},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	src := newFakeSource()
	data := Save(src)

	dst := newFakeSource()
	dst.cpu, dst.ewram, dst.vram = nil, nil, nil
	dst.now = 0
	dst.snaps = nil

	if err := Load(dst, data); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(dst.cpu, src.cpu) {
		t.Fatalf("cpu state mismatch after round trip")
	}
	if !bytes.Equal(dst.ewram, src.ewram) {
		t.Fatalf("ewram mismatch after round trip (RLE/raw region codec)")
	}
	if !bytes.Equal(dst.vram, src.vram) {
		t.Fatalf("vram mismatch after round trip")
	}
	if dst.now != src.now || len(dst.snaps) != len(src.snaps) {
		t.Fatalf("scheduler state mismatch after round trip")
	}
	if dst.snaps[1].Args.(int) != 3 {
		t.Fatalf("scheduler event int arg lost in round trip: got %v", dst.snaps[1].Args)
	}
	if dst.snaps[0].Args != nil {
		t.Fatalf("scheduler event nil arg not preserved: got %v", dst.snaps[0].Args)
	}
}

func TestLoadRejectsROMFingerprintMismatch(t *testing.T) {
	src := newFakeSource()
	data := Save(src)

	dst := newFakeSource()
	dst.romCode = "AGBE"
	if err := Load(dst, data); err == nil {
		t.Fatalf("expected rejection on rom code mismatch")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	src := newFakeSource()
	data := Save(src)
	data[0] = 'X'
	if err := Load(newFakeSource(), data); err == nil {
		t.Fatalf("expected rejection on bad magic")
	}
}

func TestOptionalChunksOmittedWhenEmpty(t *testing.T) {
	src := newFakeSource()
	// apuS/gpioS/backupS left nil/empty.
	data := Save(src)

	dst := newFakeSource()
	if err := Load(dst, data); err != nil {
		t.Fatalf("Load failed with empty optional chunks: %v", err)
	}
}
