package emu

import "testing"

func testROM() []byte {
	rom := make([]byte, 0x200)
	copy(rom[0xA0:0xAC], "TESTGAME")
	copy(rom[0xAC:0xB0], "TEST")
	return rom
}

func TestResetRejectsEmptyROM(t *testing.T) {
	c := NewConsole()
	if err := c.Reset(LaunchConfig{Settings: DefaultSettings()}); err == nil {
		t.Fatalf("expected rejection of empty rom")
	}
}

func TestResetRejectsMissingBIOSWithoutSkip(t *testing.T) {
	c := NewConsole()
	cfg := LaunchConfig{ROM: ROMSource{Data: testROM()}, Settings: DefaultSettings()}
	if err := c.Reset(cfg); err == nil {
		t.Fatalf("expected rejection of missing bios with skip_bios=false")
	}
}

func TestResetWithSkipBIOSSucceeds(t *testing.T) {
	c := NewConsole()
	cfg := LaunchConfig{ROM: ROMSource{Data: testROM()}, SkipBIOS: true, Settings: DefaultSettings()}
	if err := c.Reset(cfg); err != nil {
		t.Fatalf("reset with skip_bios failed: %v", err)
	}
	if c.ROMCode() != "TEST" {
		t.Fatalf("rom code = %q, want TEST", c.ROMCode())
	}
}

func TestStepFramesAdvancesFrameCounter(t *testing.T) {
	c := NewConsole()
	cfg := LaunchConfig{ROM: ROMSource{Data: testROM()}, SkipBIOS: true, Settings: DefaultSettings()}
	if err := c.Reset(cfg); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	before := c.Output.ReadFrameCounter()
	c.StepFrames(2)
	after := c.Output.ReadFrameCounter()
	if after != before+2 {
		t.Fatalf("frame counter advanced by %d, want 2", after-before)
	}
}

func TestSaveStateRoundTripsThroughMessage(t *testing.T) {
	c := NewConsole()
	cfg := LaunchConfig{ROM: ROMSource{Data: testROM()}, SkipBIOS: true, Settings: DefaultSettings()}
	if err := c.Reset(cfg); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	c.StepFrames(1)

	c.handleMessage(Message{Kind: MsgSaveState})
	if !c.Output.SaveState.Dirty() {
		t.Fatalf("save_state message did not publish a state image")
	}
	data := c.Output.SaveState.Take()
	if len(data) == 0 {
		t.Fatalf("save_state produced an empty image")
	}

	c.handleMessage(Message{Kind: MsgLoadState, StateData: data})
}
