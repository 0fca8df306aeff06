package irq

import "testing"

func TestPendingRequiresIMEAndIEOverlap(t *testing.T) {
	c := New()
	c.WriteIE(1 << BitVBlank)
	c.Request(BitVBlank)
	if c.Pending() {
		t.Fatalf("pending before IME set")
	}
	c.WriteIME(1)
	if !c.Pending() {
		t.Fatalf("pending false with IE&IF overlap and IME set")
	}
}

func TestWriteIFClearsOnlySetBits(t *testing.T) {
	c := New()
	c.Request(BitVBlank)
	c.Request(BitTimer0)
	c.WriteIF(1 << BitVBlank)
	if c.ReadIF() != 1<<BitTimer0 {
		t.Fatalf("IF = %#x, want only timer0 bit set", c.ReadIF())
	}
}

func TestHaltClearsOnMatchingRequestRegardlessOfIME(t *testing.T) {
	c := New()
	c.WriteIE(1 << BitTimer2)
	c.Halt()
	c.Request(BitTimer2) // IME still off
	if c.Halted() {
		t.Fatalf("halt still set after matching IE&IF request")
	}
}

func TestHaltSurvivesNonMatchingRequest(t *testing.T) {
	c := New()
	c.WriteIE(1 << BitTimer2)
	c.Halt()
	c.Request(BitKeypad)
	if !c.Halted() {
		t.Fatalf("halt cleared by unrelated interrupt source")
	}
}

func TestSaveLoadStateRoundTrip(t *testing.T) {
	c := New()
	c.WriteIE(0x1234)
	c.Request(BitDMA1)
	c.WriteIME(1)
	c.Halt()

	data := c.SaveState()

	other := New()
	other.LoadState(data)
	if other.ReadIE() != c.ReadIE() || other.ReadIF() != c.ReadIF() {
		t.Fatalf("IE/IF mismatch after round trip")
	}
	if other.ReadIME() != c.ReadIME() || other.Halted() != c.Halted() {
		t.Fatalf("IME/halt mismatch after round trip")
	}
}
