// Package gpio models the cartridge-side GPIO register window some GBA
// carts expose at the top of ROM (0x080000C4..0x080000C8): a 3-register,
// bit-banged interface peripherals like the real-time clock sit behind.
// Shaped like the teacher's cart.MBC interface (one small surface the bus
// delegates to without a type switch), generalized to a pin-level device
// instead of a byte-addressed one because GBA GPIO really is a 3-pin
// serial bus multiplexed onto 16-bit registers.
package gpio

// Register offsets within the GPIO window, relative to its base.
const (
	RegData = 0x0
	RegDir  = 0x2
	RegCnt  = 0x4
)

// Pin bit positions within RegData for the devices this package models;
// real hardware exposes up to 4 GPIO lines but RTC only uses three.
const (
	PinSCK = 1 << 0
	PinSIO = 1 << 1
	PinCS  = 1 << 2
)

// Device is a peripheral living behind the GPIO window. It observes the
// raw DATA register value and the DIR mask (which bits are outputs from
// the cartridge's perspective) on every write, and contributes its own
// bits back on read for any pins it drives as inputs to the console.
type Device interface {
	// Write is called with the low 4 bits of DATA and the direction mask
	// whenever the console writes RegData or RegDir.
	Write(data byte, dir byte)
	// Read returns the device's current output pins, masked by dir so
	// only console-input (cartridge-output) pins are meaningful.
	Read() byte
}

// Port is the register file itself: DATA/DIR/CNT, with WriteEnable
// (RegCnt bit 0) gating whether the cartridge ever contributes to DATA
// reads at all. A nil Device behaves as if gpio_device_type was "none":
// DIR/CNT still latch, DATA always reads back whatever was last written
// by the console (no device drives it).
type Port struct {
	data byte
	dir  byte
	cnt  byte

	Device Device
}

func NewPort(dev Device) *Port {
	return &Port{Device: dev}
}

func (p *Port) Read(offset uint32) uint16 {
	switch offset {
	case RegData:
		out := p.data
		if p.cnt&1 != 0 && p.Device != nil {
			devBits := p.Device.Read() &^ p.dir
			out = (p.data & p.dir) | devBits
		}
		return uint16(out)
	case RegDir:
		return uint16(p.dir)
	case RegCnt:
		return uint16(p.cnt)
	default:
		return 0
	}
}

func (p *Port) Write(offset uint32, value uint16) {
	switch offset {
	case RegData:
		p.data = byte(value) & 0x0F
		if p.Device != nil {
			p.Device.Write(p.data, p.dir)
		}
	case RegDir:
		p.dir = byte(value) & 0x0F
		if p.Device != nil {
			p.Device.Write(p.data, p.dir)
		}
	case RegCnt:
		p.cnt = byte(value) & 1
	}
}

func (p *Port) SaveState() []byte {
	return []byte{p.data, p.dir, p.cnt}
}

func (p *Port) LoadState(data []byte) {
	if len(data) < 3 {
		return
	}
	p.data, p.dir, p.cnt = data[0], data[1], data[2]
}
