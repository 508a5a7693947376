package ppu

// RenderBGScanlineUsingFetcher renders 160 BG pixels for the given LY using the isolated fetcher.
// Inputs:
// - mem: VRAM reader
// - mapBase: 0x9800 or 0x9C00
// - tileData8000: true -> 0x8000 addressing; false -> 0x8800 signed addressing
// - scx, scy: scroll registers
// - ly: current scanline (0..143)
// Output: 160 color indices (0..3)
func RenderBGScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, scx, scy, ly byte) [160]byte {
	var out [160]byte

	// Compute BG coordinates.
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31 // 0..31 rows

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	// Map index address for the first tile column.
	tileIndexAddr := mapBase + mapY*32 + tileX

	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	// Discard scx fractional pixels.
	for i := 0; i < fineX; i++ {
		_, _ = q.Pop()
	}

	// Produce 160 pixels, fetching new tiles as the FIFO empties.
	for x := 0; x < 160; x++ {
		if q.Len() == 0 {
			// Advance to next tile in map row (wrap at 32 tiles).
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderWindowScanlineUsingFetcher renders the window layer for a scanline using the fetcher.
// It fills pixels starting at wxStart (WX-7) using winLine as the vertical line within the window.
// Pixels before wxStart are left as 0 (BG color index 0) so callers can blend.
func RenderWindowScanlineUsingFetcher(mem VRAMReader, mapBase uint16, tileData8000 bool, wxStart int, winLine byte) [160]byte {
	var out [160]byte
	if wxStart >= 160 {
		return out
	}
	if wxStart < 0 {
		wxStart = 0
	}
	// Compute window tile row and fineY
	mapY := (uint16(winLine) >> 3) & 31
	fineY := winLine & 7
	tileX := uint16(0)
	tileIndexAddr := mapBase + mapY*32 + tileX
	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
	f.Fetch()
	for x := wxStart; x < 160; x++ {
		if q.Len() == 0 {
			tileX = (tileX + 1) & 31
			tileIndexAddr = mapBase + mapY*32 + tileX
			f.Configure(mapBase, tileData8000, tileIndexAddr, fineY)
			f.Fetch()
		}
		px, _ := q.Pop()
		out[x] = px
	}
	return out
}

// RenderScanline composes one full display line out of the pieces above —
// background and window through the fetcher-based renderers, sprites
// through sprite.go's compositor — into final 2-bit DMG shade indices
// (0 lightest .. 3 darkest) ready for a caller to map onto display pixels.
// This is the one place all three layers and the LCDC bits that gate them
// come together, so Machine.render (internal/emu) drives the whole PPU
// pipeline with a single per-line call instead of sequencing the BG,
// window, and sprite pieces (and their palette selection) itself.
func RenderScanline(p *PPU, ly int) [160]byte {
	var out [160]byte
	lcdc := p.LCDC()
	if lcdc&0x80 == 0 { // LCD off: blank line
		return out
	}

	var bgColor [160]byte
	bgWinOn := lcdc&0x01 != 0
	tileData8000 := lcdc&0x10 != 0
	if bgWinOn {
		bgMap := uint16(0x9800)
		if lcdc&0x08 != 0 {
			bgMap = 0x9C00
		}
		bgColor = RenderBGScanlineUsingFetcher(p, bgMap, tileData8000, p.SCX(), p.SCY(), byte(ly))

		if lcdc&0x20 != 0 { // window enabled
			wy, wx := int(p.WY()), int(p.WX())
			if ly >= wy && wx <= 166 {
				winMap := uint16(0x9800)
				if lcdc&0x40 != 0 {
					winMap = 0x9C00
				}
				wxStart := wx - 7
				win := RenderWindowScanlineUsingFetcher(p, winMap, tileData8000, wxStart, byte(ly-wy))
				start := wxStart
				if start < 0 {
					start = 0
				}
				copy(bgColor[start:], win[start:])
			}
		}
	}

	bgp := p.BGP()
	for x := 0; x < 160; x++ {
		out[x] = shadeIndex(bgp, bgColor[x])
	}

	if lcdc&0x02 != 0 { // OBJ enabled
		tall := lcdc&0x04 != 0
		sprites := spritesOnLine(p.Sprites(), ly, tall)
		spriteColor, spriteAttr := composeSpriteLineWithAttrs(p, sprites, ly, bgColor, tall)
		obp0, obp1 := p.OBP0(), p.OBP1()
		for x := 0; x < 160; x++ {
			ci := spriteColor[x]
			if ci == 0 {
				continue
			}
			pal := obp0
			if spriteAttr[x]&spriteAttrPalette != 0 {
				pal = obp1
			}
			out[x] = shadeIndex(pal, ci)
		}
	}

	return out
}

// shadeIndex resolves a 2-bit color index through a BGP/OBP0/OBP1 register
// into the 2-bit shade it's assigned: each palette register packs four
// 2-bit shade values, one per color index, low bits first.
func shadeIndex(palette, colorIndex byte) byte {
	return (palette >> (colorIndex * 2)) & 0x03
}
