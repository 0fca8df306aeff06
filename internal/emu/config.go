// Package emu is the console façade: it owns every subsystem (scheduler,
// bus, CPU, PPU, DMA, timers, IRQ controller, cartridge) plus the
// message inbox and shared output region described in spec.md §5/§6.
// Shaped after the teacher's emu.Machine (one struct wiring every
// component, Config for host-tunable behavior, LoadCartridge/StepFrame
// as the façade's narrow public surface) generalized from a DMG-sized
// machine with no inter-thread contract to the GBA spec's two-thread
// model (an emulation goroutine plus front-end goroutines talking
// through a mutex-guarded inbox and an atomic-versioned framebuffer).
package emu

import "github.com/aldenhall/pocketgba/internal/cart"

// PPUSettings mirrors spec.md §6's ppu.* settings block.
type PPUSettings struct {
	EnableBGLayers [4]bool
	EnableOAM      bool
}

// APUSettings mirrors spec.md §6's apu.* settings block. Neither toggle
// drives real mixing (spec.md's Non-goals exclude the audio pipeline);
// they're recorded so a front-end's settings UI has somewhere to read
// them back from, following the teacher's emu.Config style of carrying
// fields ahead of the subsystem that will eventually consume them.
type APUSettings struct {
	EnablePSGChannels   [4]bool
	EnableFIFOChannels  [2]bool
}

// Settings is spec.md §6's full toggle set. Console has no setter
// methods: Reset applies the Settings carried in its LaunchConfig (only
// the emulation thread ever touches these fields, same single-owner
// discipline as the teacher's Config).
type Settings struct {
	FastForward         bool
	Speed                float64 // 0 means "uncapped"; >0 is a multiplier on real time
	PrefetchBuffer       bool
	EnableFrameSkipping  bool
	FrameSkipCounter     int

	PPU PPUSettings
	APU APUSettings
}

// DefaultSettings matches real hardware behavior: prefetch on, every
// layer enabled, no frame skipping.
func DefaultSettings() Settings {
	s := Settings{
		PrefetchBuffer: true,
		Speed:          1.0,
	}
	for i := range s.PPU.EnableBGLayers {
		s.PPU.EnableBGLayers[i] = true
	}
	s.PPU.EnableOAM = true
	for i := range s.APU.EnablePSGChannels {
		s.APU.EnablePSGChannels[i] = true
	}
	for i := range s.APU.EnableFIFOChannels {
		s.APU.EnableFIFOChannels[i] = true
	}
	return s
}

// ROMSource/BIOSSource realize spec.md §6's `rom={data,size,fd,fd_offset}`
// / `bios={data,size}` fields. This rewrite only ever consumes an
// in-memory byte slice (fd/fd_offset describe how the teacher's loader
// would mmap a file descriptor on the original platform; Go callers just
// os.ReadFile first), so only Data is kept.
type ROMSource struct {
	Data []byte
}

type BIOSSource struct {
	Data []byte
}

// BackupStorageConfig pins the cartridge's backup chip kind, mirroring
// spec.md §6's backup_storage.type enum; HasType false lets cart.New
// fall back to its ROM-string autodetection (SPEC_FULL supplemented
// feature 4).
type BackupStorageConfig struct {
	Type    cart.BackupKind
	HasType bool
}

// LaunchConfig is spec.md §6's RESET payload.
type LaunchConfig struct {
	ROM            ROMSource
	BIOS           BIOSSource
	SkipBIOS       bool
	AudioFrequency int
	Settings       Settings
	BackupStorage  BackupStorageConfig
	GPIODevice     cart.GPIODeviceKind
}
