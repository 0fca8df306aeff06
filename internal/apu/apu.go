// Package apu holds the GBA sound register file: the PSG channel 1-4
// registers, the two direct-sound FIFO control registers, and the
// master sound-control registers. spec.md's Non-goals explicitly
// exclude "the audio mixing pipeline", so this package never produces a
// sample; it exists because the registers themselves are still
// CPU-addressable I/O state (games poll NR52, write FIFO control, etc.)
// and the quicksave format's §4.6 APU chunk has to serialize *something*
// for round-trip fidelity. Modeled as a flat register array, the same
// shape the teacher's apu.APU uses for its NRxx fields, generalized from
// DMG's 4-channel PSG-only register set to the GBA's PSG-plus-two-FIFO
// layout.
package apu

const regFileSize = 0x80 // 0x04000060..0x040000DF

// APU is a register-only stand-in for the GBA sound unit. SoundEnable
// gates whether writes to anything but NR52 itself are honored, matching
// real hardware's "APU off" behavior.
type APU struct {
	regs [regFileSize]byte

	// fifoA/fifoB are the 32-byte ring buffers of direct sound channels
	// A/B, filled by PushFIFOA/PushFIFOB. Nothing in this tree calls
	// those: bus writes to FIFO_A/FIFO_B go through WriteReg8 like any
	// other sound register, and nothing drains the buffers into audio.
	fifoA, fifoB []int8
}

func New() *APU {
	a := &APU{}
	a.regs[0x26] = 0x80 // NR52 powers on with the master enable bit set
	return a
}

// ReadReg8/WriteReg8 serve the 0x060-0x0AF sound I/O block the bus
// delegates here; NR52 bit 7 (master enable) gates every other write
// exactly like the teacher's nr52-gated channel-register writes.
func (a *APU) ReadReg8(off uint32) byte {
	if int(off) >= len(a.regs) {
		return 0
	}
	return a.regs[off]
}

func (a *APU) WriteReg8(off uint32, v byte) {
	if int(off) >= len(a.regs) {
		return
	}
	if off == 0x26 {
		a.regs[off] = v & 0x80 // only the master-enable bit is writable
		return
	}
	if a.regs[0x26]&0x80 == 0 {
		return // APU powered off: all other register writes are dropped
	}
	a.regs[off] = v
}

// PushFIFOA/PushFIFOB append a signed 8-bit sample to a direct-sound
// FIFO, dropping the oldest sample once the 32-entry buffer is full
// (real hardware's FIFO behavior on overrun).
func (a *APU) PushFIFOA(sample int8) { a.fifoA = pushFIFO(a.fifoA, sample) }
func (a *APU) PushFIFOB(sample int8) { a.fifoB = pushFIFO(a.fifoB, sample) }

func pushFIFO(buf []int8, sample int8) []int8 {
	const depth = 32
	buf = append(buf, sample)
	if len(buf) > depth {
		buf = buf[len(buf)-depth:]
	}
	return buf
}

func (a *APU) SaveState() []byte {
	out := make([]byte, regFileSize)
	copy(out, a.regs[:])
	return out
}

func (a *APU) LoadState(data []byte) {
	n := copy(a.regs[:], data)
	for i := n; i < len(a.regs); i++ {
		a.regs[i] = 0
	}
}
