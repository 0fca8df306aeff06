package gpio

import "testing"

type fakeDevice struct {
	lastData, lastDir byte
	out               byte
}

func (f *fakeDevice) Write(data, dir byte) { f.lastData, f.lastDir = data, dir }
func (f *fakeDevice) Read() byte           { return f.out }

func TestPortDelegatesToDevice(t *testing.T) {
	dev := &fakeDevice{out: PinSIO}
	p := NewPort(dev)

	p.Write(RegDir, PinSCK|PinCS) // console drives SCK/CS, device drives SIO
	p.Write(RegCnt, 1)
	p.Write(RegData, PinSCK)

	if dev.lastDir != (PinSCK | PinCS) {
		t.Fatalf("device saw dir=%#x", dev.lastDir)
	}
	got := p.Read(RegData)
	if got&PinSIO == 0 {
		t.Fatalf("expected device-driven SIO bit set, got %#x", got)
	}
}

func TestPortWithNilDeviceEchoesData(t *testing.T) {
	p := NewPort(nil)
	p.Write(RegData, PinSCK|PinSIO)
	if got := p.Read(RegData); got != uint16(PinSCK|PinSIO) {
		t.Fatalf("echoed data = %#x, want %#x", got, PinSCK|PinSIO)
	}
}

func clockBit(p *Port, bit bool) {
	var sio uint16
	if bit {
		sio = PinSIO
	}
	p.Write(RegData, PinCS|sio)         // SCK low, CS stays asserted
	p.Write(RegData, PinCS|sio|PinSCK) // rising edge
}

func TestRTCControlRegisterRoundTrip(t *testing.T) {
	rtc := NewRTC()
	p := NewPort(rtc)
	p.Write(RegDir, PinSCK|PinSIO|PinCS) // console drives all three while writing

	p.Write(RegData, PinCS) // assert CS, SCK low

	// command byte: reg=2 (control), write -> 0110 010 0 = 0x64, LSB-first
	cmd := byte(0x64)
	for i := 0; i < 8; i++ {
		clockBit(p, (cmd>>uint(i))&1 != 0)
	}
	// one parameter byte: control = 0x40 (24h mode)
	param := byte(0x40)
	for i := 0; i < 8; i++ {
		clockBit(p, (param>>uint(i))&1 != 0)
	}

	p.Write(RegData, 0) // deassert CS

	if rtc.control != param {
		t.Fatalf("control register = %#x, want %#x", rtc.control, param)
	}
}
