package cartridge

// mmc1 implements iNES mapper 1: a five-write serial shift register
// feeding four internal registers (control, two CHR banks, one PRG
// bank). Used by Zelda, Metroid, Mega Man 2 and roughly a quarter of
// licensed carts.
type mmc1 struct {
	prgROM []uint8
	chrMem []uint8
	sram   [0x2000]uint8

	chrIsRAM bool
	prgBanks uint8 // number of 16KB PRG banks
	chrBanks uint8 // number of 4KB CHR banks

	shiftReg   uint8
	shiftCount uint8

	control  uint8 // mirroring(1:0), prgMode(3:2), chrMode(4)
	chrBank0 uint8
	chrBank1 uint8
	prgBank  uint8
}

func newMMC1(cart *Cartridge) *mmc1 {
	m := &mmc1{
		prgROM:   cart.PRGROM,
		prgBanks: uint8(len(cart.PRGROM) / prgBankSize),
		control:  0x0C, // power-on: PRG mode 3 (fix last bank at $C000)
		shiftReg: 0,
	}
	if cart.HasCHRRAM {
		m.chrMem = cart.CHRROM // already allocated as 8KB RAM by Load
		m.chrIsRAM = true
		m.chrBanks = uint8(len(m.chrMem) / 0x1000)
	} else {
		m.chrMem = cart.CHRROM
		m.chrBanks = uint8(len(cart.CHRROM) / 0x1000)
	}
	return m
}

func (m *mmc1) mirroring() Mirror {
	switch m.control & 0x03 {
	case 0:
		return MirrorSingleLower
	case 1:
		return MirrorSingleUpper
	case 2:
		return MirrorVertical
	default:
		return MirrorHorizontal
	}
}

func (m *mmc1) Mirroring() Mirror { return m.mirroring() }

func (m *mmc1) prgMode() uint8 { return (m.control >> 2) & 0x03 }
func (m *mmc1) chrMode() uint8 { return (m.control >> 4) & 0x01 }

func (m *mmc1) ReadPRG(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr < 0x8000:
		return m.sram[addr-0x6000]
	case addr >= 0x8000 && addr < 0xC000:
		return m.prgROM[m.prgOffset(0, addr-0x8000)]
	case addr >= 0xC000:
		return m.prgROM[m.prgOffset(1, addr-0xC000)]
	default:
		return 0
	}
}

// prgOffset computes the ROM byte offset for the low (half=0, $8000) or
// high (half=1, $C000) 16KB CPU window given the current PRG mode.
func (m *mmc1) prgOffset(half int, within uint16) int {
	var bank uint8
	switch m.prgMode() {
	case 0, 1: // 32KB mode: ignore low bit, select a 32KB-aligned pair
		base := m.prgBank &^ 1
		bank = base
		if half == 1 {
			bank = base | 1
		}
	case 2: // fix first bank at $8000, switch $C000
		if half == 0 {
			bank = 0
		} else {
			bank = m.prgBank
		}
	default: // 3: switch $8000, fix last bank at $C000
		if half == 0 {
			bank = m.prgBank
		} else {
			bank = m.prgBanks - 1
		}
	}
	offset := int(bank)*prgBankSize + int(within)
	if offset >= len(m.prgROM) {
		return 0
	}
	return offset
}

func (m *mmc1) WritePRG(addr uint16, value uint8) {
	if addr >= 0x6000 && addr < 0x8000 {
		m.sram[addr-0x6000] = value
		return
	}
	if addr < 0x8000 {
		return
	}

	if value&0x80 != 0 {
		// Bit 7 set: reset shift register and force PRG mode 3.
		m.shiftReg = 0
		m.shiftCount = 0
		m.control |= 0x0C
		return
	}

	m.shiftReg = (m.shiftReg >> 1) | ((value & 1) << 4)
	m.shiftCount++
	if m.shiftCount < 5 {
		return
	}

	switch {
	case addr < 0xA000:
		m.control = m.shiftReg & 0x1F
	case addr < 0xC000:
		m.chrBank0 = m.shiftReg & 0x1F
	case addr < 0xE000:
		m.chrBank1 = m.shiftReg & 0x1F
	default:
		m.prgBank = m.shiftReg & 0x0F
	}
	m.shiftReg = 0
	m.shiftCount = 0
}

func (m *mmc1) ReadCHR(addr uint16) uint8 {
	return m.chrMem[m.chrOffset(addr)]
}

func (m *mmc1) WriteCHR(addr uint16, value uint8) {
	if m.chrIsRAM {
		m.chrMem[m.chrOffset(addr)] = value
	}
}

// chrOffset resolves a PPU pattern-table address against the CHR bank
// registers. Both CHR banks are live bank-select registers: in 4KB mode
// chrBank0 serves $0000-$0FFF and chrBank1 serves $1000-$1FFF; in 8KB
// mode chrBank0 (odd bit ignored) selects a contiguous 8KB pair and
// chrBank1 is unused, matching real MMC1 wiring.
func (m *mmc1) chrOffset(addr uint16) int {
	var bank uint16
	var within uint16
	if m.chrMode() == 0 {
		bank = uint16(m.chrBank0 &^ 1)
		within = addr & 0x1FFF
	} else if addr < 0x1000 {
		bank = uint16(m.chrBank0)
		within = addr
	} else {
		bank = uint16(m.chrBank1)
		within = addr - 0x1000
	}
	offset := int(bank)*0x1000 + int(within)
	if m.chrBanks > 0 {
		offset %= len(m.chrMem)
	} else if offset >= len(m.chrMem) {
		offset = 0
	}
	return offset
}

func (m *mmc1) State() MapperState {
	s := MapperState{
		SRAM:       append([]uint8(nil), m.sram[:]...),
		Mirror:     m.mirroring(),
		ShiftReg:   m.shiftReg,
		ShiftCount: m.shiftCount,
		Control:    m.control,
		CHRBank0:   m.chrBank0,
		CHRBank1:   m.chrBank1,
		PRGBank:    m.prgBank,
	}
	if m.chrIsRAM {
		s.CHRRAM = append([]uint8(nil), m.chrMem...)
	}
	return s
}

func (m *mmc1) SetState(s MapperState) {
	copy(m.sram[:], s.SRAM)
	if m.chrIsRAM && len(s.CHRRAM) == len(m.chrMem) {
		copy(m.chrMem, s.CHRRAM)
	}
	m.shiftReg = s.ShiftReg
	m.shiftCount = s.ShiftCount
	m.control = s.Control
	m.chrBank0 = s.CHRBank0
	m.chrBank1 = s.CHRBank1
	m.prgBank = s.PRGBank
}
