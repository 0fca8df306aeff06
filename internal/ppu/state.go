package ppu

import "encoding/binary"

// VRAMBytes/OAMBytes/PaletteBytes/Load* expose the raw backing arrays for
// the quicksave format's region chunks (spec.md §4.6: VRAM/palette/OAM
// are serialized as their own RAW-or-RLE region chunks, separate from
// the PPU register chunk below).
func (p *PPU) VRAMBytes() []byte    { return p.vram[:] }
func (p *PPU) OAMBytes() []byte     { return p.oam[:] }
func (p *PPU) PaletteBytes() []byte { return p.pal[:] }

func (p *PPU) LoadVRAM(data []byte)    { copy(p.vram[:], data) }
func (p *PPU) LoadOAM(data []byte)     { copy(p.oam[:], data) }
func (p *PPU) LoadPalette(data []byte) { copy(p.pal[:], data) }

// SaveState serializes every PPU register and the affine accumulators
// (everything needed to resume mid-frame) as a fixed-layout little-endian
// blob: the quicksave chunk kind for PPU wraps this verbatim.
func (p *PPU) SaveState() []byte {
	buf := make([]byte, 0, 96)
	put16 := func(v uint16) { buf = append(buf, byte(v), byte(v>>8)) }
	put32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }

	put16(p.dispcnt)
	put16(p.dispstat)
	put16(p.vcount)
	for i := 0; i < 4; i++ {
		put16(p.bgcnt[i])
		put16(p.bghofs[i])
		put16(p.bgvofs[i])
	}
	for i := 0; i < 2; i++ {
		put32(uint32(p.bgRefX[i]))
		put32(uint32(p.bgRefY[i]))
		put32(uint32(p.bgX[i]))
		put32(uint32(p.bgY[i]))
		put16(uint16(p.bgPA[i]))
		put16(uint16(p.bgPB[i]))
		put16(uint16(p.bgPC[i]))
		put16(uint16(p.bgPD[i]))
	}
	put16(p.win0h)
	put16(p.win0v)
	put16(p.win1h)
	put16(p.win1v)
	put16(p.winin)
	put16(p.winout)
	put16(p.mosaic)
	put16(p.bldcnt)
	put16(p.bldalpha)
	put16(p.bldy)
	return buf
}

func (p *PPU) LoadState(data []byte) {
	r := &byteReader{data: data}
	p.dispcnt = r.u16()
	p.dispstat = r.u16()
	p.vcount = r.u16()
	for i := 0; i < 4; i++ {
		p.bgcnt[i] = r.u16()
		p.bghofs[i] = r.u16()
		p.bgvofs[i] = r.u16()
	}
	for i := 0; i < 2; i++ {
		p.bgRefX[i] = int32(r.u32())
		p.bgRefY[i] = int32(r.u32())
		p.bgX[i] = int32(r.u32())
		p.bgY[i] = int32(r.u32())
		p.bgPA[i] = int16(r.u16())
		p.bgPB[i] = int16(r.u16())
		p.bgPC[i] = int16(r.u16())
		p.bgPD[i] = int16(r.u16())
	}
	p.win0h = r.u16()
	p.win0v = r.u16()
	p.win1h = r.u16()
	p.win1v = r.u16()
	p.winin = r.u16()
	p.winout = r.u16()
	p.mosaic = r.u16()
	p.bldcnt = r.u16()
	p.bldalpha = r.u16()
	p.bldy = r.u16()
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u16() uint16 {
	if r.pos+2 > len(r.data) {
		return 0
	}
	v := uint16(r.data[r.pos]) | uint16(r.data[r.pos+1])<<8
	r.pos += 2
	return v
}

func (r *byteReader) u32() uint32 {
	if r.pos+4 > len(r.data) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}
