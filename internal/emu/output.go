package emu

import (
	"sync"
	"sync/atomic"

	"github.com/aldenhall/pocketgba/internal/ppu"
)

// Framebuffer is spec.md §6's output block: a 240x160 16-bit-color slot
// carrying the most recently completed frame, guarded by a mutex for the
// copy itself plus an atomic Version the front-end polls to detect a new
// frame without taking the lock, and an atomic Dirty flag a front-end
// can clear after consuming a frame (spec.md §5: "a framebuffer slot...
// a version counter... a dirty atomic flag... a mutex guarding the byte
// buffer").
type Framebuffer struct {
	mu      sync.Mutex
	data    [ppu.ScreenWidth * ppu.ScreenHeight]uint16
	version uint32
	dirty   uint32
}

// publish copies a finished frame in under the mutex and bumps Version/
// Dirty; called only from the emulation thread at VBlank.
func (f *Framebuffer) publish(src *[ppu.ScreenWidth * ppu.ScreenHeight]uint16) {
	f.mu.Lock()
	f.data = *src
	f.mu.Unlock()
	atomic.AddUint32(&f.version, 1)
	atomic.StoreUint32(&f.dirty, 1)
}

// Version returns the monotonic frame counter a front-end uses to detect
// tearing ("observes frame N before N+1 iff it observes version in
// increasing order", spec.md §5).
func (f *Framebuffer) Version() uint32 { return atomic.LoadUint32(&f.version) }

func (f *Framebuffer) Dirty() bool { return atomic.LoadUint32(&f.dirty) != 0 }
func (f *Framebuffer) ClearDirty() { atomic.StoreUint32(&f.dirty, 0) }

// CopyInto copies the current frame into dst (which must be at least
// ScreenWidth*ScreenHeight long), briefly holding the framebuffer mutex
// as spec.md §5 permits ("the front-end may briefly hold the
// framebuffer mutex while copying out a frame").
func (f *Framebuffer) CopyInto(dst []uint16) {
	f.mu.Lock()
	copy(dst, f.data[:])
	f.mu.Unlock()
}

// BackupRegion mirrors spec.md §6's backup_storage.{data,size,dirty,lock}
// output block: a mutex-guarded copy of the cartridge's non-volatile
// buffer plus an atomic Dirty flag, refreshed by the emulation thread
// whenever the underlying chip's own dirty bit is set and drained by the
// host when it persists the buffer to a .sav file.
type BackupRegion struct {
	mu    sync.Mutex
	data  []byte
	dirty uint32
}

func (r *BackupRegion) publish(data []byte) {
	r.mu.Lock()
	r.data = append(r.data[:0], data...)
	r.mu.Unlock()
	atomic.StoreUint32(&r.dirty, 1)
}

func (r *BackupRegion) Dirty() bool { return atomic.LoadUint32(&r.dirty) != 0 }
func (r *BackupRegion) ClearDirty() { atomic.StoreUint32(&r.dirty, 0) }

// Bytes returns a copy of the most recently published backup buffer.
func (r *BackupRegion) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// SaveStateSlot carries the most recently produced quicksave image back
// to a front-end that requested one via a SAVE_STATE message; shaped
// like BackupRegion (mutex-guarded bytes plus an atomic dirty flag)
// since it's the same "emulation thread publishes, front-end drains"
// pattern, just for a different payload.
type SaveStateSlot struct {
	mu    sync.Mutex
	data  []byte
	dirty uint32
}

func (s *SaveStateSlot) publish(data []byte) {
	s.mu.Lock()
	s.data = append([]byte{}, data...)
	s.mu.Unlock()
	atomic.StoreUint32(&s.dirty, 1)
}

func (s *SaveStateSlot) Dirty() bool { return atomic.LoadUint32(&s.dirty) != 0 }
func (s *SaveStateSlot) ClearDirty() { atomic.StoreUint32(&s.dirty, 0) }

// Take drains the slot, clearing Dirty, and returns the bytes (nil if
// nothing has been published yet).
func (s *SaveStateSlot) Take() []byte {
	s.mu.Lock()
	out := s.data
	s.mu.Unlock()
	s.ClearDirty()
	return out
}

// Output is the complete shared region between the emulation thread and
// front-end thread(s) (spec.md §5's full list of cross-thread state).
type Output struct {
	Framebuffer   Framebuffer
	FrameCounter  uint32 // atomic, incremented once per published frame
	BackupStorage BackupRegion
	SaveState     SaveStateSlot
}

func (o *Output) bumpFrameCounter() { atomic.AddUint32(&o.FrameCounter, 1) }

func (o *Output) ReadFrameCounter() uint32 { return atomic.LoadUint32(&o.FrameCounter) }
