package ppu

// Tick advances the PPU by one dot (one PPU cycle; the console calls
// this three times per CPU cycle). It runs the background fetch
// pipeline, evaluates sprites, composites the current pixel into the
// framebuffer, and handles the VBlank/pre-render flag transitions.
func (p *PPU) Tick() {
	renderLine := p.scanline == 261 || p.scanline <= 239

	if renderLine {
		p.tickRenderLine()
	}

	if p.scanline == 241 && p.dot == 1 {
		p.status |= statusVBlank
	}
	if p.scanline == 261 && p.dot == 1 {
		p.status &^= statusVBlank | statusSprite0 | statusOverflow
	}

	p.advanceDot()
}

func (p *PPU) advanceDot() {
	p.dot++
	// Odd-frame dot skip: the idle (dot,scanline)==(339,261) cycle is
	// elided when rendering is on, keeping frames an exact multiple of
	// the NTSC dot rate only every other frame.
	if p.scanline == 261 && p.dot == 339 && p.oddFrame && p.renderingEnabled() {
		p.dot = 340
	}
	if p.dot > 340 {
		p.dot = 0
		p.scanline++
		if p.scanline > 261 {
			p.scanline = 0
			p.frameCount++
			p.oddFrame = !p.oddFrame
		}
	}
}

func (p *PPU) tickRenderLine() {
	if p.dot >= 1 && p.dot <= 256 || p.dot >= 321 && p.dot <= 336 {
		p.shiftBackground()
		p.fetchBackgroundByte()
	}
	if p.dot == 256 {
		if p.renderingEnabled() {
			p.incrementY()
		}
	}
	if p.dot == 257 {
		if p.renderingEnabled() {
			p.copyX()
			if p.scanline != 261 {
				p.evaluateSprites(p.scanline + 1)
			}
		}
	}
	if p.scanline == 261 && p.dot == 280 {
		if p.renderingEnabled() {
			p.copyY()
		}
	}

	if p.scanline <= 239 && p.dot >= 1 && p.dot <= 256 {
		p.renderPixel(p.dot-1, p.scanline)
	}
}

// fetchBackgroundByte runs the 8-dot nametable/attribute/pattern fetch
// sequence and reloads the shift registers at the group boundary.
func (p *PPU) fetchBackgroundByte() {
	switch p.dot % 8 {
	case 1:
		p.ntByte = p.readVRAM(0x2000 | (p.v & 0x0FFF))
	case 3:
		attrAddr := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
		raw := p.readVRAM(attrAddr)
		shift := ((p.v >> 4) & 4) | (p.v & 2)
		p.atByte = (raw >> shift) & 0x03
	case 5:
		base := uint16(0)
		if p.ctrl&ctrlBGPatternHigh != 0 {
			base = 0x1000
		}
		fineY := (p.v >> 12) & 0x07
		p.patLo = p.readVRAM(base + uint16(p.ntByte)*16 + fineY)
	case 7:
		base := uint16(0)
		if p.ctrl&ctrlBGPatternHigh != 0 {
			base = 0x1000
		}
		fineY := (p.v >> 12) & 0x07
		p.patHi = p.readVRAM(base + uint16(p.ntByte)*16 + fineY + 8)
	case 0:
		p.reloadShiftRegisters()
		if p.renderingEnabled() {
			p.incrementX()
		}
	}
}

func (p *PPU) reloadShiftRegisters() {
	p.bgShiftPatternLo = (p.bgShiftPatternLo &^ 0x00FF) | uint16(p.patLo)
	p.bgShiftPatternHi = (p.bgShiftPatternHi &^ 0x00FF) | uint16(p.patHi)
	var lo, hi uint16
	if p.atByte&0x01 != 0 {
		lo = 0x00FF
	}
	if p.atByte&0x02 != 0 {
		hi = 0x00FF
	}
	p.bgShiftAttrLo = (p.bgShiftAttrLo &^ 0x00FF) | lo
	p.bgShiftAttrHi = (p.bgShiftAttrHi &^ 0x00FF) | hi
}

func (p *PPU) shiftBackground() {
	p.bgShiftPatternLo <<= 1
	p.bgShiftPatternHi <<= 1
	p.bgShiftAttrLo <<= 1
	p.bgShiftAttrHi <<= 1
}

func (p *PPU) incrementX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incrementY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
		return
	}
	p.v &^= 0x7000
	y := (p.v & 0x03E0) >> 5
	switch y {
	case 29:
		y = 0
		p.v ^= 0x0800
	case 31:
		y = 0
	default:
		y++
	}
	p.v = (p.v &^ 0x03E0) | (y << 5)
}

func (p *PPU) copyX() {
	p.v = (p.v &^ 0x041F) | (p.t & 0x041F)
}

func (p *PPU) copyY() {
	p.v = (p.v &^ 0x7BE0) | (p.t & 0x7BE0)
}

// evaluateSprites scans all 64 OAM entries and picks the (at most)
// eight whose vertical span covers targetScanline, pre-fetching their
// pattern bytes. A ninth match sets the sprite-overflow status bit; the
// real hardware's diagonal-read overflow bug is not reproduced.
func (p *PPU) evaluateSprites(targetScanline int) {
	p.spriteCount = 0
	height := 8
	if p.ctrl&ctrlSpriteHeight16 != 0 {
		height = 16
	}

	for i := 0; i < 64; i++ {
		y := int(p.oam[i*4+0]) + 1
		if targetScanline < y || targetScanline >= y+height {
			continue
		}
		if p.spriteCount == 8 {
			p.status |= statusOverflow
			break
		}
		tile := p.oam[i*4+1]
		attr := p.oam[i*4+2]
		x := p.oam[i*4+3]
		row := targetScanline - y
		if attr&0x80 != 0 { // vertical flip
			row = height - 1 - row
		}

		var table uint16
		var patTile uint8
		if height == 16 {
			table = uint16(tile&0x01) * 0x1000
			patTile = tile &^ 0x01
			if row >= 8 {
				patTile++
				row -= 8
			}
		} else {
			if p.ctrl&ctrlSpritePatHigh != 0 {
				table = 0x1000
			}
			patTile = tile
		}
		lo := p.readVRAM(table + uint16(patTile)*16 + uint16(row))
		hi := p.readVRAM(table + uint16(patTile)*16 + uint16(row) + 8)
		if attr&0x40 != 0 { // horizontal flip
			lo, hi = reverseBits(lo), reverseBits(hi)
		}

		p.sprites[p.spriteCount] = spriteSlot{
			X:           x,
			PatternLo:   lo,
			PatternHi:   hi,
			PaletteHigh: attr & 0x03,
			Priority:    attr&0x20 != 0,
			IsSprite0:   i == 0,
		}
		p.spriteCount++
	}
}

func reverseBits(b uint8) uint8 {
	var r uint8
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// renderPixel composites the background and sprite pixel at (x,y) and
// writes the resulting palette index into the framebuffer.
func (p *PPU) renderPixel(x, y int) {
	bgColor, bgOpaque := p.backgroundPixel(x)
	sprColor, sprOpaque, sprFront, isSprite0 := p.spritePixel(x)

	if isSprite0 && bgOpaque && sprOpaque && x != 255 && p.renderingEnabled() {
		if !(x < 8 && (!p.showBGLeft() || !p.showSpritesLeft())) {
			p.status |= statusSprite0
		}
	}

	var out uint8
	switch {
	case sprOpaque && (sprFront || !bgOpaque):
		out = sprColor
	case bgOpaque:
		out = bgColor
	default:
		out = p.backdropColor()
	}
	if p.mask&maskGreyscale != 0 {
		out &= 0x30
	}
	p.frame[y*256+x] = out & 0x3F
}

// backdropColor is the pixel shown where neither sprite nor background
// has an opaque pixel (or rendering is disabled entirely): normally
// palette entry 0x3F00, but if v currently addresses the palette range
// itself, v's entry shows through instead.
func (p *PPU) backdropColor() uint8 {
	if p.v >= 0x3F00 && p.v <= 0x3FFF {
		return p.readPalette(p.v)
	}
	return p.readPalette(0x3F00)
}

func (p *PPU) backgroundPixel(x int) (color uint8, opaque bool) {
	if p.mask&maskShowBG == 0 || (x < 8 && !p.showBGLeft()) {
		return p.backdropColor(), false
	}
	shift := uint(15 - p.x)
	lo := uint8((p.bgShiftPatternLo >> shift) & 1)
	hi := uint8((p.bgShiftPatternHi >> shift) & 1)
	idx := lo | hi<<1
	if idx == 0 {
		return p.backdropColor(), false
	}
	alo := uint8((p.bgShiftAttrLo >> shift) & 1)
	ahi := uint8((p.bgShiftAttrHi >> shift) & 1)
	pal := alo | ahi<<1
	return p.readPalette(0x3F00 + uint16(pal)<<2 + uint16(idx)), true
}

func (p *PPU) spritePixel(x int) (color uint8, opaque, front, isSprite0 bool) {
	if p.mask&maskShowSprites == 0 || (x < 8 && !p.showSpritesLeft()) {
		return 0, false, false, false
	}
	for i := 0; i < p.spriteCount; i++ {
		s := &p.sprites[i]
		col := x - int(s.X)
		if col < 0 || col > 7 {
			continue
		}
		lo := (s.PatternLo >> uint(7-col)) & 1
		hi := (s.PatternHi >> uint(7-col)) & 1
		idx := lo | hi<<1
		if idx == 0 {
			continue
		}
		return p.readPalette(0x3F10 + uint16(s.PaletteHigh)<<2 + uint16(idx)), true, !s.Priority, s.IsSprite0
	}
	return 0, false, false, false
}
