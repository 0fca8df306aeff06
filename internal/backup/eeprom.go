package backup

// EEPROM models the GBA's serial EEPROM backup, addressed through the
// 16-bit DMA-only window at the top of the cartridge ROM space. Real
// carts use either 6-bit (512B) or 14-bit (8K) addressing. spec.md §4.3
// and §8 require runtime auto-detection: a chip starts unlocked (using
// its ROM-size-derived guess as the reported kind and as the address
// width for reads), and the first
// complete write observed on the wire locks the real address width —
// 6 bits locks 512B, 14 bits locks 8K — via SetAddrWidth; once locked,
// further commands no longer relearn the width.
//
// Detection works because a write's trailing stop bit is always 0:
// WriteEEPROM buffers the raw bits following the opcode without
// committing to an address/data split. After 6+64+1 = 71 bits, if the
// last bit collected (the presumptive stop bit for a 512B-width write)
// is 0, the chip locks to 6 bits and commits the write. If it's 1, a
// 512B-width write could never have produced that bit, so the stream
// must belong to a 14-bit-address write instead; the chip keeps
// buffering to 14+64+1 = 79 bits and locks to 14 unconditionally there
// (14 is the only width left to try).
type EEPROM struct {
	data     []byte // 8 bytes (one 64-bit slot) per address
	addrBits int
	locked   bool

	// Serial protocol state: the bus feeds/drains one bit per 16-bit access
	// (only bit 0 is meaningful), shifted into/out of these registers.
	phase        eepromPhase
	shiftIn      uint64
	shiftLen     int
	readAddr     int
	readBuf      uint64
	readLen      int
	readBufArmed bool // set once loadReadBuf runs, cleared once a write commits

	learning  bool
	learnBits []byte // raw address+data+stop bits of an in-progress unlocked write

	dirty bool
}

type eepromPhase int

const (
	eepromIdle eepromPhase = iota
	eepromRecvOp
	eepromRecvAddr
	eepromRecvData // write: 64 data bits follow the address
	eepromRecvStop // write: trailing 0 bit
	eepromWaitRead  // read: one dummy bit, then 64 data bits shift out
	eepromSendData
)

const (
	eepromMinAddrBits = 6
	eepromMaxAddrBits = 14
)

// NewEEPROM constructs a chip with room for slots 8-byte data slots,
// with an initial address-width guess of addrBits (6 for 512B, 14 for
// 8K). The guess sets the reported Kind and the address width reads use
// until the first observed write locks the real width (see the type's
// doc comment).
func NewEEPROM(slots int, addrBits int) *EEPROM {
	return &EEPROM{
		data:     make([]byte, slots*8),
		addrBits: addrBits,
	}
}

func (e *EEPROM) Kind() Kind {
	if e.addrBits >= eepromMaxAddrBits {
		return KindEEPROM8K
	}
	return KindEEPROM512B
}

// SetAddrWidth overrides the address width (6 or 14 bits) and resizes
// the backing buffer to match: 512 B for 6 bits, 8 KiB for 14 bits.
// Called by the auto-detect state machine in WriteEEPROM once a write's
// observed width locks in; also usable by a host that already knows the
// width from cartridge metadata.
func (e *EEPROM) SetAddrWidth(bits int) {
	slots := 1 << uint(bits)
	if slots > 1024 {
		slots = 1024 // 14-bit parts hold 1024 slots; the high address bits are unused
	}
	need := slots * 8
	if need != len(e.data) {
		grown := make([]byte, need)
		copy(grown, e.data)
		e.data = grown
	}
	e.addrBits = bits
}

func (e *EEPROM) lockAddrWidth(bits int) {
	if e.locked && e.addrBits == bits {
		return
	}
	e.SetAddrWidth(bits)
	e.locked = true
}

func (e *EEPROM) ReadSRAM(uint32) byte   { return 0xFF }
func (e *EEPROM) WriteSRAM(uint32, byte) {}

// ReadEEPROM drains one bit of the pending read reply through bit 0; the
// other 15 bits read back as 0. The dummy bit before the reply and any
// read outside a reply return 1 (ready).
func (e *EEPROM) ReadEEPROM(uint32) uint16 {
	switch e.phase {
	case eepromWaitRead:
		e.phase = eepromSendData
		e.readLen = 0
		return 1
	case eepromSendData:
		bit := (e.readBuf >> 63) & 1
		e.readBuf <<= 1
		e.readLen++
		if e.readLen >= 64 {
			e.phase = eepromIdle
		}
		return uint16(bit)
	default:
		return 1
	}
}

// WriteEEPROM feeds one bit (bit 0 of value) into the serial shift
// register per the opcode/address/data framing spec.md §4.3 describes:
// a 2-bit opcode (read=11, write=10), an addrBits-wide address, then for
// writes 64 data bits and a trailing stop bit.
func (e *EEPROM) WriteEEPROM(_ uint32, value uint16) {
	bit := uint64(value & 1)

	switch e.phase {
	case eepromIdle:
		e.shiftIn = bit
		e.shiftLen = 1
		e.phase = eepromRecvOp
	case eepromRecvOp:
		e.shiftIn = (e.shiftIn << 1) | bit
		e.shiftLen++
		if e.shiftLen == 2 {
			op := e.shiftIn & 0b11
			e.shiftIn = 0
			e.shiftLen = 0
			writing := op != 0b11
			e.phase = eepromRecvAddr
			if writing {
				e.readAddr = -2 // marks "writing"
			} else {
				e.readAddr = -1 // marks "reading", resolved once address completes
			}
			// Only an unlocked write drives auto-detection: a write's
			// trailing stop bit is a reliable 0/1 signal of whether the
			// address field just ended (see the package doc comment);
			// reads have no equivalent signal, so they always use the
			// current best-guess/locked addrBits directly.
			e.learning = writing && !e.locked
			if e.learning {
				e.learnBits = e.learnBits[:0]
			}
		}
	case eepromRecvAddr:
		if e.learning {
			e.learnBits = append(e.learnBits, byte(bit))
			switch len(e.learnBits) {
			case eepromMinAddrBits + 64 + 1:
				if e.learnBits[eepromMinAddrBits+64] == 0 {
					e.resolveLearnedWrite(eepromMinAddrBits)
				}
				// else: not a valid 512B-width stop bit, keep buffering
				// toward the 14-bit total.
			case eepromMaxAddrBits + 64 + 1:
				e.resolveLearnedWrite(eepromMaxAddrBits)
			}
			return
		}
		e.shiftIn = (e.shiftIn << 1) | bit
		e.shiftLen++
		if e.shiftLen == e.addrBits {
			// The 14-bit field carries only as many significant low bits as
			// the chip has slots; real 8K carts still clock all 14 but the
			// extra high bits are always zero in practice.
			addr := int(e.shiftIn) & (len(e.data)/8 - 1)
			e.shiftIn = 0
			e.shiftLen = 0
			writing := e.readAddr == -2
			e.readAddr = addr
			if writing {
				e.phase = eepromRecvData
			} else {
				e.loadReadBuf(addr)
				e.phase = eepromRecvStop
			}
		}
	case eepromRecvData:
		e.shiftIn = (e.shiftIn << 1) | bit
		e.shiftLen++
		if e.shiftLen == 64 {
			e.storeWriteBuf(e.readAddr, e.shiftIn)
			e.shiftIn = 0
			e.shiftLen = 0
			e.phase = eepromRecvStop
		}
	case eepromRecvStop:
		// Stop bit for a write completes the transaction; for a pending
		// read it instead arms the reply (dummy bit + 64 data bits).
		if e.readBufArmed {
			e.phase = eepromWaitRead
		} else {
			e.phase = eepromIdle
		}
	}
}

// resolveLearnedWrite splits e.learnBits (width address bits, then 64
// data bits, then a stop bit already consumed as part of the length
// check) and commits the write, locking the chip to width going
// forward. The transaction is fully consumed at this point — no
// separate stop-bit call follows — so the phase returns straight to
// idle rather than eepromRecvStop.
func (e *EEPROM) resolveLearnedWrite(width int) {
	e.lockAddrWidth(width)

	addr := 0
	for i := 0; i < width; i++ {
		addr = (addr << 1) | int(e.learnBits[i])
	}
	var value uint64
	for i := width; i < width+64; i++ {
		value = (value << 1) | uint64(e.learnBits[i])
	}

	slot := addr & (len(e.data)/8 - 1)
	e.storeWriteBuf(slot, value)

	e.learning = false
	e.learnBits = e.learnBits[:0]
	e.phase = eepromIdle
}

func (e *EEPROM) loadReadBuf(addr int) {
	e.readBuf = e.getSlot(addr)
	e.readBufArmed = true
}

func (e *EEPROM) storeWriteBuf(addr int, value uint64) {
	e.setSlot(addr, value)
	e.dirty = true
	e.readBufArmed = false
}

func (e *EEPROM) getSlot(addr int) uint64 {
	off := addr * 8
	if off+8 > len(e.data) {
		return ^uint64(0)
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = (v << 8) | uint64(e.data[off+i])
	}
	return v
}

func (e *EEPROM) setSlot(addr int, value uint64) {
	off := addr * 8
	if off+8 > len(e.data) {
		return
	}
	for i := 7; i >= 0; i-- {
		e.data[off+i] = byte(value)
		value >>= 8
	}
}

func (e *EEPROM) Dirty() bool { return e.dirty }
func (e *EEPROM) ClearDirty() { e.dirty = false }
func (e *EEPROM) Bytes() []byte {
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out
}
func (e *EEPROM) LoadBytes(data []byte) {
	n := copy(e.data, data)
	for i := n; i < len(e.data); i++ {
		e.data[i] = 0xFF
	}
}

func (e *EEPROM) SaveState() []byte {
	buf := make([]byte, 5)
	buf[0] = byte(e.phase)
	buf[1] = byte(e.addrBits)
	buf[2] = boolByte(e.dirty)
	buf[3] = boolByte(e.readBufArmed)
	buf[4] = boolByte(e.locked)
	return buf
}

func (e *EEPROM) LoadState(data []byte) {
	if len(data) < 4 {
		return
	}
	e.phase = eepromPhase(data[0])
	e.addrBits = int(data[1])
	e.dirty = data[2] != 0
	e.readBufArmed = data[3] != 0
	if len(data) >= 5 {
		e.locked = data[4] != 0
	}
}
