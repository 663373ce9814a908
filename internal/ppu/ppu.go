// Package ppu implements the 2C02 Picture Processing Unit: the
// register file the CPU sees at $2000-$2007, its own 14-bit address
// space over nametable RAM, palette RAM and the cartridge's pattern
// tables, and the scanline/dot state machine that paints a 256x240
// frame of palette indices one pixel at a time.
package ppu

import "nesgo/internal/cartridge"

// Mapper is the subset of cartridge.Mapper the PPU needs: the pattern
// table window and the current nametable mirroring. Kept narrow so ppu
// only depends on the Mirror type, not the full cartridge API.
type Mapper interface {
	ReadCHR(addr uint16) uint8
	WriteCHR(addr uint16, value uint8)
	Mirroring() cartridge.Mirror
}

const (
	ctrlNMIEnable      = 0x80
	ctrlSpriteHeight16 = 0x20
	ctrlBGPatternHigh  = 0x10
	ctrlSpritePatHigh  = 0x08
	ctrlIncrement32    = 0x04
	ctrlNametableMask  = 0x03

	maskGreyscale   = 0x01
	maskShowBG      = 0x08
	maskShowSprites = 0x10

	statusOverflow = 0x20
	statusSprite0  = 0x40
	statusVBlank   = 0x80
)

// spriteSlot is one of the (at most) eight sprites selected for the
// scanline currently being rendered. Fields are exported so the slots
// serialize inside State.
type spriteSlot struct {
	X           uint8
	PatternLo   uint8
	PatternHi   uint8
	PaletteHigh uint8 // 2-bit palette select
	Priority    bool  // true = behind background
	IsSprite0   bool
}

// PPU is one 2C02. All registers and timing state live here; the only
// outside dependency is the cartridge mapper backing pattern tables
// and nametable mirroring.
type PPU struct {
	mapper Mapper

	ctrl, mask, status uint8
	oamAddr            uint8
	oam                [256]uint8

	v, t uint16
	x    uint8 // fine X scroll, 3 bits
	w    bool  // first/second write toggle

	latch      uint8 // open-bus decay register, simplified to "last value driven"
	readBuffer uint8

	nt      [2048]uint8
	palette [32]uint8

	scanline int
	dot      int
	oddFrame bool
	frame    [256 * 240]uint8

	bgShiftPatternLo, bgShiftPatternHi uint16
	bgShiftAttrLo, bgShiftAttrHi       uint16
	ntByte, atByte, patLo, patHi       uint8

	sprites     [8]spriteSlot
	spriteCount int

	frameCount uint64
}

// New constructs a PPU wired to mapper's pattern tables/mirroring.
func New(mapper Mapper) *PPU {
	p := &PPU{mapper: mapper}
	p.Reset()
	return p
}

// Reset matches the 2C02's power-up/reset state: all registers zero,
// the odd-frame/scanline counters at the start of a pre-render frame.
func (p *PPU) Reset() {
	p.ctrl, p.mask, p.status = 0, 0, 0
	p.oamAddr = 0
	p.v, p.t, p.x, p.w = 0, 0, 0, false
	p.latch, p.readBuffer = 0, 0
	p.scanline, p.dot = 261, 0
	p.oddFrame = false
	p.bgShiftPatternLo, p.bgShiftPatternHi = 0, 0
	p.bgShiftAttrLo, p.bgShiftAttrHi = 0, 0
}

// renderingEnabled reports whether either background or sprite
// rendering is on; several timing quirks (scroll copies, the odd-frame
// skipped dot) only happen while this is true.
func (p *PPU) renderingEnabled() bool {
	return p.mask&(maskShowBG|maskShowSprites) != 0
}

func (p *PPU) showBGLeft() bool      { return p.mask&0x02 != 0 }
func (p *PPU) showSpritesLeft() bool { return p.mask&0x04 != 0 }

// Framebuffer returns the live pixel buffer: one NES palette index
// (0-63) per pixel, row-major, 256 wide by 240 tall. The returned
// pointer aliases the PPU's own storage; callers must copy if they
// need a stable snapshot across frames.
func (p *PPU) Framebuffer() *[256 * 240]uint8 { return &p.frame }

// FrameCount returns the number of frames fully rendered.
func (p *PPU) FrameCount() uint64 { return p.frameCount }

// NMI reports the PPU's current NMI output line: asserted exactly
// while VBlank is flagged and PPUCTRL's NMI-enable bit is set. The
// console samples this once per CPU cycle and feeds it to the CPU's
// edge-triggered NMI input.
func (p *PPU) NMI() bool {
	return p.status&statusVBlank != 0 && p.ctrl&ctrlNMIEnable != 0
}

// ReadRegister reads one of the eight CPU-visible registers, already
// mirrored down to $2000-$2007 by the bus.
func (p *PPU) ReadRegister(addr uint16) uint8 {
	switch addr {
	case 0x2002:
		result := (p.status & 0xE0) | (p.latch & 0x1F)
		p.status &^= statusVBlank
		p.w = false
		p.latch = result
		return result
	case 0x2004:
		v := p.oam[p.oamAddr]
		p.latch = v
		return v
	case 0x2007:
		v := p.readData()
		p.latch = v
		return v
	default: // 0x2000,0x2001,0x2003,0x2005,0x2006: write-only, open bus
		return p.latch
	}
}

// WriteRegister writes one of the eight CPU-visible registers.
func (p *PPU) WriteRegister(addr uint16, value uint8) {
	p.latch = value
	switch addr {
	case 0x2000:
		p.ctrl = value
		p.t = (p.t &^ 0x0C00) | (uint16(value&ctrlNametableMask) << 10)
	case 0x2001:
		p.mask = value
	case 0x2002:
		// read-only
	case 0x2003:
		p.oamAddr = value
	case 0x2004:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case 0x2005:
		if !p.w {
			p.t = (p.t &^ 0x001F) | uint16(value>>3)
			p.x = value & 0x07
			p.w = true
		} else {
			p.t = (p.t &^ 0x73E0) | (uint16(value&0x07) << 12) | (uint16(value&0xF8) << 2)
			p.w = false
		}
	case 0x2006:
		if !p.w {
			p.t = (p.t & 0x00FF) | (uint16(value&0x3F) << 8)
			p.w = true
		} else {
			p.t = (p.t & 0xFF00) | uint16(value)
			p.v = p.t
			p.w = false
		}
	case 0x2007:
		p.writeData(value)
	}
}

// WriteOAMByte is OAM DMA's entry point: it bypasses OAMADDR
// auto-increment semantics, writing directly at a caller-supplied
// index (the console drives this once per byte of the 256-byte
// transfer).
func (p *PPU) WriteOAMByte(index uint8, value uint8) {
	p.oam[index] = value
}

func (p *PPU) readData() uint8 {
	addr := p.v & 0x3FFF
	var data uint8
	if addr >= 0x3F00 {
		data = p.readPalette(addr)
		p.readBuffer = p.readVRAM(addr & 0x2FFF)
	} else {
		data = p.readBuffer
		p.readBuffer = p.readVRAM(addr)
	}
	p.advanceVRAMAddr()
	return data
}

func (p *PPU) writeData(value uint8) {
	p.writeVRAM(p.v&0x3FFF, value)
	p.advanceVRAMAddr()
}

func (p *PPU) advanceVRAMAddr() {
	if p.ctrl&ctrlIncrement32 != 0 {
		p.v += 32
	} else {
		p.v++
	}
	p.v &= 0x3FFF
}

func (p *PPU) readVRAM(addr uint16) uint8 {
	switch {
	case addr < 0x2000:
		return p.mapper.ReadCHR(addr)
	case addr < 0x3F00:
		return p.nt[p.nametableIndex(addr)]
	default:
		return p.readPalette(addr)
	}
}

func (p *PPU) writeVRAM(addr uint16, value uint8) {
	switch {
	case addr < 0x2000:
		p.mapper.WriteCHR(addr, value)
	case addr < 0x3F00:
		p.nt[p.nametableIndex(addr)] = value
	default:
		p.writePalette(addr, value)
	}
}

func (p *PPU) nametableIndex(addr uint16) uint16 {
	mask, base := p.mapper.Mirroring().NametableMask()
	a := addr & mask
	if mask&0x0400 == 0 {
		// Bit 10 is collapsed away, so bit 11 selects the physical table.
		a = (a &^ 0x0800) | (a&0x0800)>>1
	}
	return (a & 0x07FF) | base
}

// paletteIndex collapses the four background-color mirrors
// ($3F10/$3F14/$3F18/$3F1C alias $3F00/$3F04/$3F08/$3F0C) onto the
// 32-entry palette RAM.
func paletteIndex(addr uint16) uint16 {
	idx := addr & 0x1F
	if idx&0x13 == 0x10 {
		idx &^= 0x10
	}
	return idx
}

func (p *PPU) readPalette(addr uint16) uint8  { return p.palette[paletteIndex(addr)] }
func (p *PPU) writePalette(addr uint16, v uint8) { p.palette[paletteIndex(addr)] = v }

// Palette is the 2C02's fixed 64-entry RGB lookup table: Framebuffer
// pixels are indices into this table, not direct colors. A host
// renderer converts each pixel with Palette[index] before blitting.
var Palette = [64][3]uint8{
	{0x66, 0x66, 0x66}, {0x00, 0x2A, 0x88}, {0x14, 0x12, 0xA7}, {0x3B, 0x00, 0xA4},
	{0x5C, 0x00, 0x7E}, {0x6E, 0x00, 0x40}, {0x6C, 0x06, 0x00}, {0x56, 0x1D, 0x00},
	{0x33, 0x35, 0x00}, {0x0B, 0x48, 0x00}, {0x00, 0x52, 0x00}, {0x00, 0x4F, 0x08},
	{0x00, 0x40, 0x4D}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00},

	{0xAD, 0xAD, 0xAD}, {0x15, 0x5F, 0xD9}, {0x42, 0x40, 0xFF}, {0x75, 0x27, 0xFE},
	{0xA0, 0x1A, 0xCC}, {0xB7, 0x1E, 0x7B}, {0xB5, 0x31, 0x20}, {0x99, 0x4E, 0x00},
	{0x6B, 0x6D, 0x00}, {0x38, 0x87, 0x00}, {0x0C, 0x93, 0x00}, {0x00, 0x8F, 0x32},
	{0x00, 0x7C, 0x8D}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00},

	{0xFF, 0xFE, 0xFF}, {0x64, 0xB0, 0xFF}, {0x92, 0x90, 0xFF}, {0xC6, 0x76, 0xFF},
	{0xF3, 0x6A, 0xFF}, {0xFE, 0x6E, 0xCC}, {0xFE, 0x81, 0x70}, {0xEA, 0x9E, 0x22},
	{0xBC, 0xBE, 0x00}, {0x88, 0xD8, 0x00}, {0x5C, 0xE4, 0x30}, {0x45, 0xE0, 0x82},
	{0x48, 0xCD, 0xDE}, {0x4F, 0x4F, 0x4F}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00},

	{0xFF, 0xFE, 0xFF}, {0xC0, 0xDF, 0xFF}, {0xD3, 0xD2, 0xFF}, {0xE8, 0xC8, 0xFF},
	{0xFB, 0xC2, 0xFF}, {0xFE, 0xC4, 0xEA}, {0xFE, 0xCC, 0xC5}, {0xF7, 0xD8, 0xA5},
	{0xE4, 0xE5, 0x94}, {0xCF, 0xF2, 0x9B}, {0xBE, 0xFB, 0xB3}, {0xB8, 0xF8, 0xD8},
	{0xB8, 0xF8, 0xF8}, {0xB8, 0xB8, 0xB8}, {0x00, 0x00, 0x00}, {0x00, 0x00, 0x00},
}

// State is a field-by-field snapshot of every mutable PPU register and
// buffer for save-state round-tripping. The framebuffer is included so
// a restored console can redraw its last frame without waiting for the
// next vblank.
type State struct {
	Ctrl, Mask, Status uint8
	OAMAddr            uint8
	OAM                [256]uint8

	V, T uint16
	X    uint8
	W    bool

	Latch      uint8
	ReadBuffer uint8

	Nametable [2048]uint8
	Palette   [32]uint8

	Scanline int
	Dot      int
	OddFrame bool
	Frame    [256 * 240]uint8

	BGShiftPatternLo, BGShiftPatternHi uint16
	BGShiftAttrLo, BGShiftAttrHi       uint16
	NTByte, ATByte, PatLo, PatHi       uint8

	Sprites     [8]spriteSlot
	SpriteCount int

	FrameCount uint64
}

// State snapshots every mutable PPU field.
func (p *PPU) State() State {
	return State{
		Ctrl: p.ctrl, Mask: p.mask, Status: p.status,
		OAMAddr: p.oamAddr, OAM: p.oam,
		V: p.v, T: p.t, X: p.x, W: p.w,
		Latch: p.latch, ReadBuffer: p.readBuffer,
		Nametable: p.nt, Palette: p.palette,
		Scanline: p.scanline, Dot: p.dot, OddFrame: p.oddFrame, Frame: p.frame,
		BGShiftPatternLo: p.bgShiftPatternLo, BGShiftPatternHi: p.bgShiftPatternHi,
		BGShiftAttrLo: p.bgShiftAttrLo, BGShiftAttrHi: p.bgShiftAttrHi,
		NTByte: p.ntByte, ATByte: p.atByte, PatLo: p.patLo, PatHi: p.patHi,
		Sprites: p.sprites, SpriteCount: p.spriteCount,
		FrameCount: p.frameCount,
	}
}

// SetState restores a previously captured State.
func (p *PPU) SetState(s State) {
	p.ctrl, p.mask, p.status = s.Ctrl, s.Mask, s.Status
	p.oamAddr, p.oam = s.OAMAddr, s.OAM
	p.v, p.t, p.x, p.w = s.V, s.T, s.X, s.W
	p.latch, p.readBuffer = s.Latch, s.ReadBuffer
	p.nt, p.palette = s.Nametable, s.Palette
	p.scanline, p.dot, p.oddFrame, p.frame = s.Scanline, s.Dot, s.OddFrame, s.Frame
	p.bgShiftPatternLo, p.bgShiftPatternHi = s.BGShiftPatternLo, s.BGShiftPatternHi
	p.bgShiftAttrLo, p.bgShiftAttrHi = s.BGShiftAttrLo, s.BGShiftAttrHi
	p.ntByte, p.atByte, p.patLo, p.patHi = s.NTByte, s.ATByte, s.PatLo, s.PatHi
	p.sprites, p.spriteCount = s.Sprites, s.SpriteCount
	p.frameCount = s.FrameCount
}
