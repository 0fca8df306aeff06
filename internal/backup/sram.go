package backup

// SRAM is flat battery-backed RAM, direct byte access, mirrored across the
// 32 KiB SRAM window the same way GoBA's memory map reserves
// GamePakSRAMAddrStart..GamePakSRAMAddrEnd.
type SRAM struct {
	data  []byte
	dirty bool
}

const sramSize = 32 * 1024

func NewSRAM() *SRAM {
	return &SRAM{data: make([]byte, sramSize)}
}

func (s *SRAM) Kind() Kind { return KindSRAM }

func (s *SRAM) ReadSRAM(offset uint32) byte {
	return s.data[offset%uint32(len(s.data))]
}

func (s *SRAM) WriteSRAM(offset uint32, value byte) {
	s.data[offset%uint32(len(s.data))] = value
	s.dirty = true
}

func (s *SRAM) ReadEEPROM(uint32) uint16   { return 0xFFFF }
func (s *SRAM) WriteEEPROM(uint32, uint16) {}

func (s *SRAM) Dirty() bool   { return s.dirty }
func (s *SRAM) ClearDirty()   { s.dirty = false }
func (s *SRAM) Bytes() []byte { out := make([]byte, len(s.data)); copy(out, s.data); return out }
func (s *SRAM) LoadBytes(data []byte) {
	n := copy(s.data, data)
	for i := n; i < len(s.data); i++ {
		s.data[i] = 0
	}
}

// SaveState/LoadState: SRAM has no sequencer state beyond the buffer
// itself (carried separately via Bytes in the backup-storage chunk), so
// the quicksave memory-metadata entry for it is just the dirty flag.
func (s *SRAM) SaveState() []byte {
	buf := make([]byte, 1)
	if s.dirty {
		buf[0] = 1
	}
	return buf
}

func (s *SRAM) LoadState(data []byte) {
	if len(data) >= 1 {
		s.dirty = data[0] != 0
	}
}
