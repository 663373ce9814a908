package console

import (
	"bytes"
	"testing"
)

// romBuilder assembles a minimal iNES file: one or more 16KB PRG banks
// (mapper 0, mirrored or not) with CPU code written at the given
// addresses, plus one 8KB CHR-RAM bank.
type romBuilder struct {
	prgBanks int
	vertical bool
	mapperID uint8
	code     map[uint16]uint8
}

func (b romBuilder) build() []byte {
	prgSize := b.prgBanks * 16384
	prg := make([]byte, prgSize)
	for addr, v := range b.code {
		prg[addr-0x8000] = v
	}

	header := make([]byte, 16)
	copy(header, []byte("NES\x1a"))
	header[4] = byte(b.prgBanks)
	header[5] = 0 // CHR RAM
	flags6 := (b.mapperID & 0x0F) << 4
	if b.vertical {
		flags6 |= 0x01
	}
	header[6] = flags6
	header[7] = b.mapperID & 0xF0

	data := append(header, prg...)
	return data
}

// newTestConsole builds a 32KB-PRG mapper-0 cartridge with resetVector
// programmed at $FFFC-$FFFD and the given code bytes laid out at their
// absolute CPU addresses, then constructs and powers a Console from it.
func newTestConsole(t *testing.T, resetVector uint16, code map[uint16]uint8) *Console {
	t.Helper()
	full := map[uint16]uint8{0xFFFC: uint8(resetVector), 0xFFFD: uint8(resetVector >> 8)}
	for addr, v := range code {
		full[addr] = v
	}
	rom := romBuilder{prgBanks: 2, code: full}.build()
	c, err := New(rom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestResetVectorThenJMPAbsolute(t *testing.T) {
	// Reset vector points at $8000, which holds a JMP back to itself:
	// power must land PC on the vector target, and the JMP must cost
	// exactly 3 cycles.
	c := newTestConsole(t, 0x8000, map[uint16]uint8{
		0x8000: 0x4C, 0x8001: 0x00, 0x8002: 0x80, // JMP $8000
	})
	if c.CPU.PC != 0x8000 {
		t.Fatalf("PC after power = $%04X, want $8000", c.CPU.PC)
	}
	before := c.CPU.Cycles
	c.CPU.Step()
	if c.CPU.PC != 0x8000 {
		t.Fatalf("PC after JMP = $%04X, want $8000", c.CPU.PC)
	}
	if c.CPU.Cycles-before != 3 {
		t.Fatalf("JMP absolute cost %d cycles, want 3", c.CPU.Cycles-before)
	}
}

func TestThreePPUTicksPerCPUCycleInvariant(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{
		0x8000: 0xEA, // NOP, 2 CPU cycles
	})
	if c.CycleCount != c.CPU.Cycles {
		t.Fatalf("after power: CycleCount = %d, CPU.Cycles = %d, want equal", c.CycleCount, c.CPU.Cycles)
	}
	c.CPU.Step()
	if c.CycleCount != c.CPU.Cycles {
		t.Fatalf("after step: CycleCount = %d, CPU.Cycles = %d, want equal (one tick per CPU cycle)", c.CycleCount, c.CPU.Cycles)
	}
	if st := c.PPU.State(); st.Scanline != 261 || uint64(st.Dot) != 3*c.CycleCount {
		t.Fatalf("PPU at scanline %d dot %d after %d CPU cycles, want scanline 261 dot %d", st.Scanline, st.Dot, c.CycleCount, 3*c.CycleCount)
	}
}

func TestVBlankNMIAssertedAtScanline241Dot1(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{
		0xFFFA: 0x00, 0xFFFB: 0xA0, // NMI vector -> $A000
		0x8000: 0x4C, 0x8001: 0x00, 0x8002: 0x80, // JMP $8000, spins until interrupted
		0xA000: 0x4C, 0xA001: 0x00, 0xA002: 0xA0, // NMI handler: JMP $A000, spins forever
	})
	// Enable NMI generation and rendering.
	c.Write(0x2000, 0x80) // PPUCTRL: NMI enable
	c.Write(0x2001, 0x08) // PPUMASK: show background

	// From power the PPU sits on the pre-render line, so the first Step
	// only finishes that partial frame; scanline 241 dot 1, and with it
	// the NMI, falls inside the second.
	for i := 0; i < 2; i++ {
		reason, err := c.Step()
		if err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if reason != FrameReady {
			t.Fatalf("Step %d reason = %v, want FrameReady", i, reason)
		}
	}
	if c.CPU.PC != 0xA000 {
		t.Fatalf("PC after vblank NMI = $%04X, want $A000 (serviced before next frame)", c.CPU.PC)
	}
}

func TestPaletteMirrorRoundTripThroughPPUData(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})

	c.Write(0x2006, 0x3F)
	c.Write(0x2006, 0x10)
	c.Write(0x2007, 0x42)

	c.Write(0x2006, 0x3F)
	c.Write(0x2006, 0x00)
	// Palette-range reads bypass the read buffer and return immediately.
	got := c.Read(0x2007)
	if got != 0x42 {
		t.Fatalf("$3F00 read = $%02X, want $42 (mirrors $3F10)", got)
	}
}

func TestRAMMirrorInvariant(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	c.Write(0x0000, 0x99)
	for _, mirror := range []uint16{0x0800, 0x1000, 0x1800} {
		if got := c.Read(mirror); got != 0x99 {
			t.Fatalf("read $%04X = $%02X, want $99 (mirrors $0000)", mirror, got)
		}
	}
}

func TestPPURegisterMirrorInvariant(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	c.Write(0x2003, 0x05) // OAMADDR = 5
	c.Write(0x200C, 0xAB) // OAMDATA through a mirror 8 registers up ($2004 + 8), auto-increments OAMADDR
	c.Write(0x2003, 0x05) // OAMADDR = 5 again
	if got := c.Read(0x2004); got != 0xAB {
		t.Fatalf("OAMDATA read through canonical address = $%02X, want $AB (written through mirror)", got)
	}
}

func TestOAMDMAStallsEvenAndOddStartingCycle(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	c.CycleCount = 100 // even
	before := c.CycleCount
	c.runOAMDMA(0x02)
	if got := c.CycleCount - before; got != 513 {
		t.Fatalf("even-start OAM DMA took %d cycles, want 513", got)
	}

	c.CycleCount = 101 // odd
	before = c.CycleCount
	c.runOAMDMA(0x02)
	if got := c.CycleCount - before; got != 514 {
		t.Fatalf("odd-start OAM DMA took %d cycles, want 514", got)
	}
}

func TestWritingOAMDMARegisterCopies256Bytes(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	for i := 0; i < 256; i++ {
		c.Bus.RAM[i] = uint8(i)
	}
	c.Write(0x4014, 0x00) // source page $0000, inside mirrored RAM
	for i := 0; i < 256; i++ {
		c.Write(0x2003, uint8(i))
		if got := c.Read(0x2004); got != uint8(i) {
			t.Fatalf("OAM[%d] = $%02X, want $%02X", i, got, uint8(i))
		}
	}
}

func TestSaveStateLoadStateRoundTrip(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{
		0x8000: 0xA9, 0x8001: 0x42, // LDA #$42
		0x8002: 0x4C, 0x8003: 0x02, 0x8004: 0x80, // JMP $8002 (spin)
	})
	c.CPU.Step() // LDA #$42

	// Give the APU observable state: enable pulse 1 and load its length
	// counter, so the snapshot has to carry channel internals too.
	c.Write(0x4015, 0x01)
	c.Write(0x4003, 0x08)

	var buf bytes.Buffer
	if err := c.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	c.CPU.A = 0x00        // mutate after saving
	c.CPU.Step()          // JMP, advances PC
	c.Write(0x4015, 0x00) // disabling zeroes the pulse length counter

	if err := c.LoadState(&buf); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if c.CPU.A != 0x42 {
		t.Fatalf("A after LoadState = $%02X, want $42", c.CPU.A)
	}
	if c.CPU.PC != 0x8002 {
		t.Fatalf("PC after LoadState = $%04X, want $8002", c.CPU.PC)
	}
	if got := c.Read(0x4015) & 0x01; got != 1 {
		t.Fatal("pulse 1 length counter must survive the save-state round trip")
	}
}

func TestLoadStateRejectsDifferentCartridge(t *testing.T) {
	c1 := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	c2 := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0x4C, 0x8001: 0x00, 0x8002: 0x80})

	var buf bytes.Buffer
	if err := c1.SaveState(&buf); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := c2.LoadState(&buf); err == nil {
		t.Fatal("expected LoadState to reject a state from a different cartridge")
	}
}

func TestUnimplementedOpcodeStepReturnsErrorWithoutPanicking(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0x02}) // illegal opcode
	_, err := c.Step()
	if err == nil {
		t.Fatal("expected Step to return an error for an undocumented opcode")
	}
}

func TestStepReturnsInputPollOnStrobeFallingEdge(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{
		0x8000: 0xA9, 0x8001: 0x01, // LDA #$01
		0x8002: 0x8D, 0x8003: 0x16, 0x8004: 0x40, // STA $4016 (strobe high)
		0x8005: 0xA9, 0x8006: 0x00, // LDA #$00
		0x8007: 0x8D, 0x8008: 0x16, 0x8009: 0x40, // STA $4016 (strobe low)
		0x800A: 0x4C, 0x800B: 0x0A, 0x800C: 0x80, // JMP $800A (spin)
	})
	reason, err := c.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if reason != InputPoll {
		t.Fatalf("reason = %v, want InputPoll (strobe went high then low)", reason)
	}
}

func TestInputStrobeLatchesButtonsAndReadsInOrder(t *testing.T) {
	c := newTestConsole(t, 0x8000, map[uint16]uint8{0x8000: 0xEA})
	c.SetButton(0, 1<<0, true) // ButtonA, avoid importing input package just for the constant

	c.Write(0x4016, 1)
	c.Write(0x4016, 0)
	if got := c.Read(0x4016) & 1; got != 1 {
		t.Fatalf("first read after strobe = %d, want 1 (A pressed)", got)
	}
	if got := c.Read(0x4016) & 1; got != 0 {
		t.Fatalf("second read after strobe = %d, want 0 (B not pressed)", got)
	}
}
