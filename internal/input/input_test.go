package input

import "testing"

func TestStrobeLatchesAndReadsButtonsInSerialOrder(t *testing.T) {
	var c Controller
	c.SetButton(ButtonA, true)
	c.SetButton(ButtonStart, true)

	c.Strobe(true)
	c.Strobe(false)

	want := []uint8{1, 0, 0, 1, 0, 0, 0, 0} // A, B, Select, Start, Up, Down, Left, Right
	for i, w := range want {
		if got := c.Read() & 1; got != w {
			t.Fatalf("read %d = %d, want %d", i, got, w)
		}
	}
}

func TestReadsBeyondEightReturnOnes(t *testing.T) {
	var c Controller
	c.Strobe(true)
	c.Strobe(false)
	for i := 0; i < 8; i++ {
		c.Read()
	}
	for i := 0; i < 4; i++ {
		if got := c.Read() & 1; got != 1 {
			t.Fatalf("post-exhaustion read %d = %d, want 1", i, got)
		}
	}
}

func TestStrobeHeldHighAlwaysReturnsButtonA(t *testing.T) {
	var c Controller
	c.SetButton(ButtonA, true)
	c.Strobe(true)
	for i := 0; i < 3; i++ {
		if got := c.Read() & 1; got != 1 {
			t.Fatal("while strobe is high every read must reflect A's live state")
		}
	}
}

func TestButtonsChangedDuringStrobeAreLatched(t *testing.T) {
	var c Controller
	c.Strobe(true)
	c.SetButton(ButtonB, true) // pressed while strobe held: reloads live
	c.Strobe(false)
	c.Read() // A
	if got := c.Read() & 1; got != 1 {
		t.Fatal("B pressed during strobe must appear in the latched snapshot")
	}
}

func TestLightSensorBits(t *testing.T) {
	s := LightSensor{Trigger: true}
	if got := s.Bits(true); got != 0x10 {
		t.Fatalf("bits = $%02X, want $10 (trigger set, light detected)", got)
	}
	if got := s.Bits(false); got != 0x18 {
		t.Fatalf("bits = $%02X, want $18 (trigger set, light-not-detected set)", got)
	}
	s.Trigger = false
	if got := s.Bits(true); got != 0x00 {
		t.Fatalf("bits = $%02X, want $00", got)
	}
}

func TestIsBrightCoversWhiteAndLightRows(t *testing.T) {
	for _, idx := range []uint8{0x20, 0x30, 0x10} {
		if !IsBright(idx) {
			t.Fatalf("palette index $%02X should read as light", idx)
		}
	}
	for _, idx := range []uint8{0x0D, 0x00, 0x1F} {
		if IsBright(idx) {
			t.Fatalf("palette index $%02X should not read as light", idx)
		}
	}
}
