// Package cartridge implements iNES ROM loading and the cartridge/mapper
// abstraction: program ROM, character ROM/RAM, save RAM and nametable
// mirroring, all addressed through a small Mapper interface.
package cartridge

import (
	"errors"
	"fmt"
	"hash/fnv"
)

// ErrInvalidCartridge is the sentinel wrapped by every cartridge-loading
// failure: bad magic, truncated data, or an unsupported mapper number.
var ErrInvalidCartridge = errors.New("invalid cartridge")

// ErrUnimplementedROMWrite is panicked by mappers with no control
// registers (NROM) when the CPU writes into the $8000-$FFFF window.
// Console.Step recovers it and returns it as a fatal step error.
var ErrUnimplementedROMWrite = errors.New("unimplemented: write to program ROM")

// Mirror is the nametable mirroring scheme declared by the cartridge, or
// selected dynamically by a mapper such as MMC1.
type Mirror uint8

const (
	MirrorHorizontal Mirror = iota
	MirrorVertical
	MirrorSingleLower
	MirrorSingleUpper
	MirrorFourScreen
)

// NametableMask returns the AND mask and OR base that collapse a PPU
// nametable address (0x2000-0x2FFF) onto the 2KB of physical nametable
// RAM. The PPU computes (addr&mask)&0x7FF|base as the index into a
// [2048]uint8; when the mask clears bit 10 (horizontal mirroring), it
// first moves bit 11 down into bit 10 so the two tables stay distinct.
func (m Mirror) NametableMask() (mask, base uint16) {
	switch m {
	case MirrorVertical:
		return 0xF7FF, 0
	case MirrorHorizontal:
		return 0xFBFF, 0
	case MirrorSingleLower:
		return 0xF3FF, 0
	case MirrorSingleUpper:
		return 0xF3FF, 0x0400
	case MirrorFourScreen:
		return 0xFFFF, 0
	default:
		return 0xFBFF, 0
	}
}

// Mapper is the contract every cartridge memory controller satisfies: CPU
// side reads/writes over the cartridge's SRAM+ROM window, PPU side
// reads/writes over the pattern-table window, and the current mirroring.
type Mapper interface {
	ReadPRG(addr uint16) uint8
	WritePRG(addr uint16, value uint8)
	ReadCHR(addr uint16) uint8
	WriteCHR(addr uint16, value uint8)
	Mirroring() Mirror

	// State snapshots the mapper's mutable registers and RAM banks for
	// save-state round-tripping. ROM is never included.
	State() MapperState
	SetState(MapperState)
}

// MapperState is a mapper-agnostic snapshot of everything a
// mapper can mutate at runtime. Concrete mappers populate only the
// fields relevant to their own registers; unused fields stay zero.
type MapperState struct {
	SRAM       []uint8 `json:"sram"`
	CHRRAM     []uint8 `json:"chr_ram,omitempty"`
	Mirror     Mirror  `json:"mirror"`
	ShiftReg   uint8   `json:"shift_reg"`
	ShiftCount uint8   `json:"shift_count"`
	Control    uint8   `json:"control"`
	CHRBank0   uint8   `json:"chr_bank0"`
	CHRBank1   uint8   `json:"chr_bank1"`
	PRGBank    uint8   `json:"prg_bank"`
}

// Cartridge is the immutable ROM payload plus the mapper instantiated for
// it. ROM contents never change after load; a Cartridge's only mutable
// state lives inside its Mapper.
type Cartridge struct {
	PRGROM     []uint8
	CHRROM     []uint8
	HasCHRRAM  bool
	HasBattery bool
	MapperID   uint8
	Mirror     Mirror
	Hash       uint64 // FNV-1a of the raw file, for save-state validation

	Mapper Mapper
}

const (
	prgBankSize = 16 * 1024
	chrBankSize = 8 * 1024
	headerSize  = 16
	trainerSize = 512
)

// Load parses a complete iNES file (header, optional trainer, PRG, CHR)
// and instantiates the mapper named by the header.
func Load(data []uint8) (*Cartridge, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrInvalidCartridge)
	}
	header := data[:headerSize]
	if header[0] != 'N' || header[1] != 'E' || header[2] != 'S' || header[3] != 0x1A {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidCartridge)
	}

	prgBanks := int(header[4])
	chrBanks := int(header[5])
	flags6 := header[6]
	flags7 := header[7]

	hasTrainer := flags6&0x04 != 0
	hasFourScreen := flags6&0x08 != 0
	hasBattery := flags6&0x02 != 0
	mapperID := (flags6 >> 4) | (flags7 & 0xF0)

	mirror := MirrorHorizontal
	if hasFourScreen {
		mirror = MirrorFourScreen
	} else if flags6&0x01 != 0 {
		mirror = MirrorVertical
	}

	offset := headerSize
	if hasTrainer {
		offset += trainerSize
	}

	prgSize := prgBanks * prgBankSize
	if prgSize == 0 || offset+prgSize > len(data) {
		return nil, fmt.Errorf("%w: truncated PRG ROM", ErrInvalidCartridge)
	}
	prgROM := make([]uint8, prgSize)
	copy(prgROM, data[offset:offset+prgSize])
	offset += prgSize

	chrSize := chrBanks * chrBankSize
	hasCHRRAM := chrSize == 0
	var chrROM []uint8
	if hasCHRRAM {
		chrROM = make([]uint8, chrBankSize)
	} else {
		if offset+chrSize > len(data) {
			return nil, fmt.Errorf("%w: truncated CHR ROM", ErrInvalidCartridge)
		}
		chrROM = make([]uint8, chrSize)
		copy(chrROM, data[offset:offset+chrSize])
	}

	h := fnv.New64a()
	h.Write(data)

	cart := &Cartridge{
		PRGROM:     prgROM,
		CHRROM:     chrROM,
		HasCHRRAM:  hasCHRRAM,
		HasBattery: hasBattery,
		MapperID:   mapperID,
		Mirror:     mirror,
		Hash:       h.Sum64(),
	}

	mapper, err := newMapper(mapperID, cart)
	if err != nil {
		return nil, err
	}
	cart.Mapper = mapper
	return cart, nil
}

func newMapper(id uint8, cart *Cartridge) (Mapper, error) {
	switch id {
	case 0:
		return newNROM(cart), nil
	case 1:
		return newMMC1(cart), nil
	default:
		return nil, fmt.Errorf("%w: unsupported mapper %d", ErrInvalidCartridge, id)
	}
}
