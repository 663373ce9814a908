package cpu

import "testing"

// flatMemory is a 64KB byte array satisfying Memory, used by every test
// in this package in place of a real bus.
type flatMemory struct {
	data [0x10000]uint8
}

func (m *flatMemory) Read(addr uint16) uint8        { return m.data[addr] }
func (m *flatMemory) Write(addr uint16, value uint8) { m.data[addr] = value }

func (m *flatMemory) loadAt(addr uint16, bytes ...uint8) {
	copy(m.data[addr:], bytes)
}

func newTestCPU(resetVec uint16) (*CPU, *flatMemory) {
	mem := &flatMemory{}
	mem.loadAt(resetVector, uint8(resetVec), uint8(resetVec>>8))
	c := New(mem)
	c.Reset()
	return c, mem
}

func TestResetVector(t *testing.T) {
	c, _ := newTestCPU(0x8000)
	if c.PC != 0x8000 {
		t.Fatalf("PC = $%04X, want $8000", c.PC)
	}
	if !c.I {
		t.Fatal("I flag should be set after reset")
	}
	if c.Cycles != 7 {
		t.Fatalf("Cycles = %d, want 7", c.Cycles)
	}
}

func TestLDAImmediateSetsFlags(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xA9, 0x00) // LDA #$00
	cycles := c.Step()
	if cycles != 2 {
		t.Fatalf("cycles = %d, want 2", cycles)
	}
	if c.A != 0 || !c.Z || c.N {
		t.Fatalf("A=%02X Z=%v N=%v, want A=0 Z=true N=false", c.A, c.Z, c.N)
	}

	c, mem = newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xA9, 0x80) // LDA #$80
	c.Step()
	if c.A != 0x80 || c.Z || !c.N {
		t.Fatalf("A=%02X Z=%v N=%v, want A=$80 Z=false N=true", c.A, c.Z, c.N)
	}
}

func TestAbsoluteXPageCrossPenalty(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xBD, 0xFF, 0x20) // LDA $20FF,X
	c.X = 0x01                          // crosses into $2100
	cycles := c.Step()
	if cycles != 5 {
		t.Fatalf("cycles = %d, want 5 (4 base + 1 page-cross)", cycles)
	}

	c, mem = newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xBD, 0x00, 0x20) // LDA $2000,X
	c.X = 0x01
	cycles = c.Step()
	if cycles != 4 {
		t.Fatalf("cycles = %d, want 4 (no page cross)", cycles)
	}
}

func TestSTAAbsoluteXAlwaysPaysExtraCycle(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0x9D, 0x00, 0x20) // STA $2000,X, no page cross
	c.A = 0x5A
	c.X = 0x01
	cycles := c.Step()
	if cycles != 5 {
		t.Fatalf("cycles = %d, want 5 regardless of page cross", cycles)
	}
	if mem.data[0x2001] != c.A {
		t.Fatalf("store landed at wrong address")
	}
}

func TestIndirectJMPPageWrapBug(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0x6C, 0xFF, 0x20) // JMP ($20FF)
	mem.data[0x20FF] = 0x34
	mem.data[0x2000] = 0x12 // buggy high byte source: wraps to $2000, not $2100
	mem.data[0x2100] = 0xFF
	c.Step()
	if c.PC != 0x1234 {
		t.Fatalf("PC = $%04X, want $1234 (page-wrap bug)", c.PC)
	}
}

func TestBRKPushesPCPlusTwoAndSetsBreakBit(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0x00, 0x00) // BRK, padding byte
	mem.loadAt(irqVector, 0x00, 0x90)
	cycles := c.Step()
	if cycles != 7 {
		t.Fatalf("cycles = %d, want 7", cycles)
	}
	if c.PC != 0x9000 {
		t.Fatalf("PC = $%04X, want $9000 (IRQ vector)", c.PC)
	}
	pushedFlags := mem.data[stackBase+uint16(c.SP)+1]
	if pushedFlags&bFlagMask == 0 {
		t.Fatal("BRK must push status with the break bit set")
	}
	pushedPC := uint16(mem.data[stackBase+uint16(c.SP)+2]) | uint16(mem.data[stackBase+uint16(c.SP)+3])<<8
	if pushedPC != 0x8002 {
		t.Fatalf("pushed PC = $%04X, want $8002 (start + 2)", pushedPC)
	}
	if !c.I {
		t.Fatal("BRK must set I")
	}
}

func TestBranchTakenCycleCounts(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xF0, 0x02) // BEQ +2, not taken
	c.Z = false
	if cycles := c.Step(); cycles != 2 {
		t.Fatalf("not-taken branch = %d cycles, want 2", cycles)
	}

	c, mem = newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xF0, 0x02) // BEQ +2, taken, same page
	c.Z = true
	if cycles := c.Step(); cycles != 3 {
		t.Fatalf("taken same-page branch = %d cycles, want 3", cycles)
	}

	c, mem = newTestCPU(0x80F0)
	mem.loadAt(0x80F0, 0xF0, 0x20) // BEQ +0x20, taken, crosses page
	c.Z = true
	if cycles := c.Step(); cycles != 4 {
		t.Fatalf("taken page-crossing branch = %d cycles, want 4", cycles)
	}
}

func TestNMIDispatchTakesSevenCyclesAndClearsOnce(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(nmiVector, 0x00, 0xA0)
	c.SetNMI(true) // rising edge requests NMI
	cycles := c.Step()
	if cycles != 7 {
		t.Fatalf("NMI dispatch = %d cycles, want 7", cycles)
	}
	if c.PC != 0xA000 {
		t.Fatalf("PC = $%04X, want $A000", c.PC)
	}
	if c.nmiPending {
		t.Fatal("nmiPending must clear once serviced")
	}
}

func TestNMILineHeldHighFiresOnlyOnce(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(nmiVector, 0x00, 0xA0)
	mem.loadAt(0xA000, 0xEA) // handler body: NOP
	c.SetNMI(true)
	c.Step() // services the NMI
	c.SetNMI(true) // line still held: no new edge
	c.Step()
	if c.PC != 0xA001 {
		t.Fatalf("PC = $%04X, want $A001 (NOP executed, no re-entry)", c.PC)
	}
}

// recordingMemory is a flatMemory that also logs every written value.
type recordingMemory struct {
	flatMemory
	writes []uint8
}

func (m *recordingMemory) Write(addr uint16, value uint8) {
	m.writes = append(m.writes, value)
	m.flatMemory.Write(addr, value)
}

func TestRMWPerformsDummyWriteThenRealWrite(t *testing.T) {
	mem := &recordingMemory{}
	mem.loadAt(resetVector, 0x00, 0x80)
	mem.loadAt(0x8000, 0xE6, 0x10) // INC $10
	mem.data[0x0010] = 0x7F
	c := New(mem)
	c.Reset()
	mem.writes = nil
	cycles := c.Step()
	if cycles != 5 {
		t.Fatalf("cycles = %d, want 5", cycles)
	}
	if mem.data[0x0010] != 0x80 {
		t.Fatalf("value = %02X, want $80", mem.data[0x0010])
	}
	if !c.N || c.Z {
		t.Fatalf("N=%v Z=%v, want N=true Z=false", c.N, c.Z)
	}
	if len(mem.writes) != 2 || mem.writes[0] != 0x7F || mem.writes[1] != 0x80 {
		t.Fatalf("writes = %X, want [7F 80] (dummy write of the old value, then the result)", mem.writes)
	}
}

func TestADCOverflowFlag(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0x69, 0x50) // ADC #$50
	c.A = 0x50
	c.C = false
	c.Step()
	if c.A != 0xA0 || !c.V || !c.N || c.C {
		t.Fatalf("A=%02X V=%v N=%v C=%v, want A=$A0 V=true N=true C=false", c.A, c.V, c.N, c.C)
	}
}

func TestSBCBorrow(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0xE9, 0x01) // SBC #$01
	c.A = 0x00
	c.C = true // carry set means "no borrow" going in
	c.Step()
	if c.A != 0xFF || c.C {
		t.Fatalf("A=%02X C=%v, want A=$FF C=false (borrow occurred)", c.A, c.C)
	}
}

func TestUnimplementedOpcodePanics(t *testing.T) {
	c, mem := newTestCPU(0x8000)
	mem.loadAt(0x8000, 0x02) // undocumented opcode
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for undocumented opcode")
		}
	}()
	c.Step()
}

func TestStatusByteRoundTrip(t *testing.T) {
	c, _ := newTestCPU(0x8000)
	c.C, c.Z, c.I, c.D, c.V, c.N = true, false, true, false, true, false
	b := c.statusByte(true)
	c2, _ := newTestCPU(0x8000)
	c2.setStatusByte(b)
	if c2.C != c.C || c2.Z != c.Z || c2.I != c.I || c2.D != c.D || c2.V != c.V || c2.N != c.N {
		t.Fatal("status byte round-trip lost a flag")
	}
}
