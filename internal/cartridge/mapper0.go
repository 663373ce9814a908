package cartridge

import "fmt"

// nrom implements iNES mapper 0 (NROM): no bank switching. 16KB PRG ROM
// is mirrored across both halves of the 0x8000-0xFFFF window; 32KB PRG
// ROM fills it directly. CHR is either 8KB of ROM (read-only) or, when
// the header declares zero CHR banks, 8KB of RAM.
type nrom struct {
	prgROM   []uint8
	chrMem   []uint8
	sram     [0x2000]uint8
	chrIsRAM bool
	mirror   Mirror
	prg16K   bool
}

func newNROM(cart *Cartridge) *nrom {
	return &nrom{
		prgROM:   cart.PRGROM,
		chrMem:   cart.CHRROM,
		chrIsRAM: cart.HasCHRRAM,
		mirror:   cart.Mirror,
		prg16K:   len(cart.PRGROM) == prgBankSize,
	}
}

func (m *nrom) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x8000:
		offset := addr - 0x8000
		if m.prg16K {
			offset &= 0x3FFF
		}
		return m.prgROM[offset]
	case addr >= 0x6000:
		return m.sram[addr-0x6000]
	default:
		return 0
	}
}

func (m *nrom) WritePRG(addr uint16, value uint8) {
	if addr >= 0x6000 && addr < 0x8000 {
		m.sram[addr-0x6000] = value
		return
	}
	// NROM has no bank-select registers: a write into $8000-$FFFF is
	// not meaningful hardware behavior and is treated as fatal.
	panic(fmt.Errorf("%w: $%04X", ErrUnimplementedROMWrite, addr))
}

func (m *nrom) ReadCHR(addr uint16) uint8 {
	return m.chrMem[addr&0x1FFF]
}

func (m *nrom) WriteCHR(addr uint16, value uint8) {
	if m.chrIsRAM {
		m.chrMem[addr&0x1FFF] = value
	}
}

func (m *nrom) Mirroring() Mirror { return m.mirror }

func (m *nrom) State() MapperState {
	s := MapperState{SRAM: append([]uint8(nil), m.sram[:]...), Mirror: m.mirror}
	if m.chrIsRAM {
		s.CHRRAM = append([]uint8(nil), m.chrMem...)
	}
	return s
}

func (m *nrom) SetState(s MapperState) {
	copy(m.sram[:], s.SRAM)
	if m.chrIsRAM && len(s.CHRRAM) == len(m.chrMem) {
		copy(m.chrMem, s.CHRRAM)
	}
	m.mirror = s.Mirror
}
