// Package backup models cartridge-side non-volatile storage: none, flat
// SRAM, Atmel/Sanyo-style flash (64K/128K), and serial EEPROM (512B/8K).
// Modeled as a tagged union per the teacher's cart.Cartridge +
// cart.NewCartridge(header-byte switch) pattern, generalized from DMG MBC
// kinds to GBA backup kinds (spec.md design note: "tagged unions over
// inheritance... avoid any pointer-to-base indirection").
package backup

// Kind identifies which backup variant a cartridge carries.
type Kind int

const (
	KindNone Kind = iota
	KindSRAM
	KindFlash64K
	KindFlash128K
	KindEEPROM512B
	KindEEPROM8K
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSRAM:
		return "sram"
	case KindFlash64K:
		return "flash-64K"
	case KindFlash128K:
		return "flash-128K"
	case KindEEPROM512B:
		return "eeprom-512B"
	case KindEEPROM8K:
		return "eeprom-8K"
	default:
		return "unknown"
	}
}

// Chip is the common interface every backup variant implements. The
// cartridge-ROM-window (0x0Dxxxxxx, 16-bit) and the SRAM window
// (0x0Exxxxxx, 8-bit) are always both presented; a variant that doesn't
// use one of the two windows simply no-ops/ignores it, which keeps the
// bus from needing a type switch on every access.
type Chip interface {
	Kind() Kind

	// ReadSRAM/WriteSRAM serve the 8-bit-only SRAM/flash window.
	ReadSRAM(offset uint32) byte
	WriteSRAM(offset uint32, value byte)

	// ReadEEPROM/WriteEEPROM serve the serial EEPROM's 16-bit window,
	// addressed within the cartridge ROM space per spec.md §4.3.
	ReadEEPROM(addr uint32) uint16
	WriteEEPROM(addr uint32, value uint16)

	// Dirty reports whether a write has landed since the last ClearDirty;
	// the host drains this flag after copying the buffer for persistence.
	Dirty() bool
	ClearDirty()

	// Bytes/LoadBytes expose the raw backing buffer for host persistence
	// (writing a .sav file) independent of the save-state format.
	Bytes() []byte
	LoadBytes(data []byte)

	// SaveState/LoadState serialize internal command-sequencer state
	// (flash bank/phase, EEPROM phase/shift registers) for the quicksave
	// memory-metadata chunk; the raw buffer itself is saved separately
	// via Bytes so .sav files stay plain binary.
	SaveState() []byte
	LoadState(data []byte)
}

// New constructs the Chip for the given kind, starting from a zeroed (or,
// for None, absent) backing buffer.
func New(kind Kind) Chip {
	switch kind {
	case KindSRAM:
		return NewSRAM()
	case KindFlash64K:
		return NewFlash(64 * 1024)
	case KindFlash128K:
		return NewFlash(128 * 1024)
	case KindEEPROM512B:
		return NewEEPROM(64, 6)
	case KindEEPROM8K:
		return NewEEPROM(1024, 14)
	default:
		return None{}
	}
}

// None is the absent-backup variant: reads return 0xFF, writes drop.
type None struct{}

func (None) Kind() Kind                           { return KindNone }
func (None) ReadSRAM(uint32) byte                 { return 0xFF }
func (None) WriteSRAM(uint32, byte)               {}
func (None) ReadEEPROM(uint32) uint16             { return 0xFFFF }
func (None) WriteEEPROM(uint32, uint16)           {}
func (None) Dirty() bool                          { return false }
func (None) ClearDirty()                          {}
func (None) Bytes() []byte                        { return nil }
func (None) LoadBytes([]byte)                     {}
func (None) SaveState() []byte                    { return nil }
func (None) LoadState([]byte)                     {}
