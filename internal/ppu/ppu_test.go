package ppu

import (
	"testing"

	"nesgo/internal/cartridge"
)

type fakeMapper struct {
	chr    [0x2000]uint8
	mirror cartridge.Mirror
}

func (m *fakeMapper) ReadCHR(addr uint16) uint8         { return m.chr[addr&0x1FFF] }
func (m *fakeMapper) WriteCHR(addr uint16, value uint8) { m.chr[addr&0x1FFF] = value }
func (m *fakeMapper) Mirroring() cartridge.Mirror       { return m.mirror }

func newTestPPU() (*PPU, *fakeMapper) {
	m := &fakeMapper{mirror: cartridge.MirrorVertical}
	return New(m), m
}

func TestStatusReadClearsVBlankAndWriteLatch(t *testing.T) {
	p, _ := newTestPPU()
	p.status |= statusVBlank
	p.w = true
	v := p.ReadRegister(0x2002)
	if v&statusVBlank == 0 {
		t.Fatal("read should return VBlank bit set before clearing")
	}
	if p.status&statusVBlank != 0 {
		t.Fatal("VBlank bit must clear after $2002 read")
	}
	if p.w {
		t.Fatal("write latch must clear after $2002 read")
	}
}

func TestNMILineTracksCtrlAndStatus(t *testing.T) {
	p, _ := newTestPPU()
	p.status |= statusVBlank
	p.ctrl = 0
	if p.NMI() {
		t.Fatal("NMI should be low without ctrl enable bit")
	}
	p.ctrl = ctrlNMIEnable
	if !p.NMI() {
		t.Fatal("NMI should be high once ctrl enable bit is set during VBlank")
	}
}

func TestPaletteMirrorRoundTrip(t *testing.T) {
	p, _ := newTestPPU()
	p.writePalette(0x3F00, 0x0F)
	if got := p.readPalette(0x3F10); got != 0x0F {
		t.Fatalf("$3F10 should mirror $3F00, got %02X", got)
	}
	p.writePalette(0x3F05, 0x22)
	if got := p.readPalette(0x3F05); got != 0x22 {
		t.Fatalf("direct palette entry round-trip failed, got %02X", got)
	}
}

func TestPPUADDRWriteOrderAndDataReadBuffering(t *testing.T) {
	p, m := newTestPPU()
	m.chr[0x0010] = 0x55

	p.WriteRegister(0x2006, 0x00) // high byte
	p.WriteRegister(0x2006, 0x10) // low byte -> v = $0010
	first := p.ReadRegister(0x2007)
	if first == 0x55 {
		t.Fatal("first PPUDATA read should return the stale buffered value, not the fresh byte")
	}
	second := p.ReadRegister(0x2007)
	if second != 0x55 {
		t.Fatalf("second read = %02X, want the byte buffered by the first read (%02X)", second, 0x55)
	}
}

func TestVerticalMirroringNametableIndex(t *testing.T) {
	p, _ := newTestPPU()
	p.mapper.(*fakeMapper).mirror = cartridge.MirrorVertical
	p.writeVRAM(0x2000, 0xAB)
	if got := p.readVRAM(0x2800); got != 0xAB {
		t.Fatalf("vertical mirroring should alias $2000 and $2800, got %02X", got)
	}
}

func TestVBlankSetAndClearedAtScanlineBoundaries(t *testing.T) {
	p, _ := newTestPPU()
	p.scanline, p.dot = 241, 1
	p.Tick()
	if p.status&statusVBlank == 0 {
		t.Fatal("VBlank should be set at scanline 241 dot 1")
	}
	p.scanline, p.dot = 261, 1
	p.Tick()
	if p.status&statusVBlank != 0 {
		t.Fatal("VBlank should clear at scanline 261 dot 1 (pre-render)")
	}
}

func TestSpriteOverflowSetAfterNineMatches(t *testing.T) {
	p, _ := newTestPPU()
	for i := 0; i < 9; i++ {
		p.oam[i*4+0] = 10 // y+1=11, visible on scanline 11..18
		p.oam[i*4+1] = 0
		p.oam[i*4+2] = 0
		p.oam[i*4+3] = uint8(i * 8)
	}
	p.evaluateSprites(11)
	if p.spriteCount != 8 {
		t.Fatalf("spriteCount = %d, want 8 (hardware 8-sprite limit)", p.spriteCount)
	}
	if p.status&statusOverflow == 0 {
		t.Fatal("a ninth matching sprite should set the overflow flag")
	}
}

// solidTile fills CHR tile 1 with color index 1 (low plane on, high
// plane off) so every pixel of the tile is opaque.
func solidTile(m *fakeMapper) {
	for row := 0; row < 8; row++ {
		m.chr[16+row] = 0xFF
	}
}

func TestBackgroundRenderFillsFramebufferWithPaletteColor(t *testing.T) {
	p, m := newTestPPU()
	solidTile(m)
	for i := 0; i < 960; i++ {
		p.nt[i] = 1 // every background tile uses the solid tile
	}
	p.palette[0] = 0x0F
	p.palette[1] = 0x21
	p.mask = maskShowBG | 0x02 // background on, leftmost column included

	// Pre-render line plus 160 visible scanlines: well past row 100, but
	// short of the next pre-render line.
	for i := 0; i < 341*161; i++ {
		p.Tick()
	}

	if got := p.frame[100*256+100]; got != 0x21 {
		t.Fatalf("pixel (100,100) = $%02X, want $21 (background palette entry 1)", got)
	}
}

func TestSpriteZeroHitSetWhereSpriteAndBackgroundOverlap(t *testing.T) {
	p, m := newTestPPU()
	solidTile(m)
	for i := 0; i < 960; i++ {
		p.nt[i] = 1
	}
	p.palette[1] = 0x21
	p.palette[0x11] = 0x16
	p.oam[0] = 99 // sprite 0: visible from scanline 100
	p.oam[1] = 1  // solid tile
	p.oam[2] = 0
	p.oam[3] = 100
	p.mask = maskShowBG | maskShowSprites | 0x02 | 0x04

	// Stop after row 100 renders but before the next pre-render line
	// clears the hit flag again.
	for i := 0; i < 341*161; i++ {
		p.Tick()
	}

	if p.status&statusSprite0 == 0 {
		t.Fatal("sprite-zero hit should be set: opaque sprite 0 over opaque background")
	}
}

func TestSpriteZeroHitSuppressedAtX255(t *testing.T) {
	p, m := newTestPPU()
	solidTile(m)
	for i := 0; i < 960; i++ {
		p.nt[i] = 1
	}
	p.oam[0] = 99
	p.oam[1] = 1
	p.oam[2] = 0
	p.oam[3] = 255 // only column 255 overlaps the screen
	p.mask = maskShowBG | maskShowSprites | 0x02 | 0x04

	for i := 0; i < 341*161; i++ {
		p.Tick()
	}

	if p.status&statusSprite0 != 0 {
		t.Fatal("sprite-zero hit must be suppressed at x=255")
	}
}

func TestOAMDMAWriteBypassesAutoIncrement(t *testing.T) {
	p, _ := newTestPPU()
	p.oamAddr = 0x10
	p.WriteOAMByte(0x00, 0x42)
	if p.oam[0] != 0x42 {
		t.Fatal("WriteOAMByte should write at the given index")
	}
	if p.oamAddr != 0x10 {
		t.Fatal("WriteOAMByte must not touch OAMADDR")
	}
}
