package cart

import "testing"

func makeROM(size int, title, gameCode string) []byte {
	rom := make([]byte, size)
	copy(rom[headerTitleStart:headerTitleEnd], title)
	copy(rom[headerGameCode:headerMakerCode], gameCode)
	var sum byte
	for addr := 0xA0; addr <= 0xBC; addr++ {
		sum -= rom[addr]
	}
	sum -= 0x19
	rom[headerChecksum] = sum
	return rom
}

func TestParseHeaderTrimsTitle(t *testing.T) {
	rom := makeROM(0x200, "POKEMON", "BPEE")
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Title != "POKEMON" {
		t.Fatalf("title = %q, want POKEMON", h.Title)
	}
	if h.GameCode != "BPEE" {
		t.Fatalf("game code = %q, want BPEE", h.GameCode)
	}
}

func TestHeaderChecksumOK(t *testing.T) {
	rom := makeROM(0x200, "TEST", "TEST")
	if !HeaderChecksumOK(rom) {
		t.Fatalf("checksum should validate for a freshly computed header")
	}
	rom[headerChecksum] ^= 0xFF
	if HeaderChecksumOK(rom) {
		t.Fatalf("corrupted checksum should not validate")
	}
}

func TestDetectBackupKindFromStrings(t *testing.T) {
	cases := []struct {
		marker string
		want   BackupKind
	}{
		{"EEPROM_V120", BackupEEPROM},
		{"FLASH1M_V102", BackupFlash128K},
		{"FLASH512_V130", BackupFlash64K},
		{"FLASH_V124", BackupFlash64K},
		{"SRAM_V113", BackupSRAM},
	}
	for _, c := range cases {
		rom := append(makeROM(0x200, "T", "TEST"), []byte(c.marker)...)
		got, ok := DetectBackupKindFromStrings(rom)
		if !ok || got != c.want {
			t.Fatalf("%s: got %v,%v want %v,true", c.marker, got, ok, c.want)
		}
	}
}

func TestNewCartridgeEEPROMSizeByROMSize(t *testing.T) {
	small := makeROM(1024, "SMALL", "TEST")
	small = append(small, []byte("EEPROM_V120")...)
	c := New(small, Options{})
	if c.Backup.Kind().String() != "eeprom-512B" {
		t.Fatalf("small rom eeprom kind = %v, want eeprom-512B", c.Backup.Kind())
	}

	big := makeROM(17*1024*1024, "BIG", "TEST")
	big = append(big, []byte("EEPROM_V120")...)
	c2 := New(big, Options{})
	if c2.Backup.Kind().String() != "eeprom-8K" {
		t.Fatalf("big rom eeprom kind = %v, want eeprom-8K", c2.Backup.Kind())
	}
}

func TestGPIOWindowRoutesThroughPort(t *testing.T) {
	rom := makeROM(0x200, "T", "TEST")
	c := New(rom, Options{GPIODeviceKind: GPIORTC})
	c.WriteROM16(0xC8, 1) // RegCnt offset within the window
	if got := c.ReadROM16(0xC8); got != 1 {
		t.Fatalf("gpio cnt readback = %d, want 1", got)
	}
}
