package ppu

// Sprite is one OAM entry's decoded fields, as the scanline sprite
// search would hand off to line composition: screen-space X/Y (already
// offset by the -8/-16 OAM convention), tile index, attribute byte, and
// its original OAM table index (needed only to break X ties).
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

const (
	spriteAttrPriority = 1 << 7
	spriteAttrFlipY    = 1 << 6
	spriteAttrFlipX    = 1 << 5
	spriteAttrPalette  = 1 << 4
)

// spritesOnLine returns the OAM entries that intersect scanline ly, in OAM
// order, capped at the hardware's 10-sprites-per-line limit — the real
// PPU's OAM scan (mode 2) stops collecting once it has found 10, regardless
// of how many more entries would otherwise overlap the line.
func spritesOnLine(sprites []Sprite, ly int, tall bool) []Sprite {
	height := 8
	if tall {
		height = 16
	}
	out := make([]Sprite, 0, 10)
	for _, s := range sprites {
		if ly < s.Y || ly >= s.Y+height {
			continue
		}
		out = append(out, s)
		if len(out) == 10 {
			break
		}
	}
	return out
}

// ComposeSpriteLine renders up to the sprites visible on scanline ly
// into a 160-wide color-index buffer, honoring OBJ-to-BG priority and
// the hardware's leftmost-X-wins (then lowest-OAM-index-wins) overlap
// rule. tall selects 8x16 mode. A zero output pixel means transparent:
// either no sprite pixel landed there or it lost the OBJ-to-BG
// priority check against a non-zero background color index.
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly int, bgColorIndex [160]byte, tall bool) [160]byte {
	out, _ := composeSpriteLineWithAttrs(mem, sprites, ly, bgColorIndex, tall)
	return out
}

// composeSpriteLineWithAttrs does the actual per-pixel composition and
// additionally reports the attribute byte of the sprite that won each
// column, so RenderScanline (scanline.go) can pick OBP0 vs OBP1 per pixel
// without re-deriving the winner logic above. ComposeSpriteLine wraps this
// and discards the attribute output, keeping its existing color-only shape
// for callers (and tests) that only need the color index.
func composeSpriteLineWithAttrs(mem VRAMReader, sprites []Sprite, ly int, bgColorIndex [160]byte, tall bool) (out, attrOut [160]byte) {
	height := 8
	if tall {
		height = 16
	}

	// winner tracks which sprite currently owns each column, so a later
	// sprite in the slice can only overwrite a column if it wins the
	// hardware's tie-breaker against whatever is already there.
	var winnerX [160]int
	var winnerOAM [160]int
	var has [160]bool

	for _, s := range sprites {
		row := ly - s.Y
		if row < 0 || row >= height {
			continue
		}
		if s.Attr&spriteAttrFlipY != 0 {
			row = height - 1 - row
		}
		tile := s.Tile
		if tall {
			tile &^= 1
			if row >= 8 {
				tile |= 1
				row -= 8
			}
		}
		base := uint16(0x8000) + uint16(tile)*16 + uint16(row)*2
		lo := mem.Read(base)
		hi := mem.Read(base + 1)

		for col := 0; col < 8; col++ {
			x := s.X + col
			if x < 0 || x >= 160 {
				continue
			}
			bit := col
			if s.Attr&spriteAttrFlipX == 0 {
				bit = 7 - col
			}
			ci := ((hi>>uint(bit))&1)<<1 | ((lo >> uint(bit)) & 1)
			if ci == 0 {
				continue // transparent pixel, never covers anything
			}

			if has[x] {
				if !spriteWins(s, winnerX[x], winnerOAM[x]) {
					continue
				}
			}
			if s.Attr&spriteAttrPriority != 0 && bgColorIndex[x] != 0 {
				// behind BG: still claims the tie-breaker slot, but draws nothing
				has[x] = true
				winnerX[x] = s.X
				winnerOAM[x] = s.OAMIndex
				attrOut[x] = s.Attr
				out[x] = 0
				continue
			}
			has[x] = true
			winnerX[x] = s.X
			winnerOAM[x] = s.OAMIndex
			attrOut[x] = s.Attr
			out[x] = ci
		}
	}
	return out, attrOut
}

// spriteWins reports whether candidate s beats the sprite currently
// occupying a column, identified by its X and OAM index: lower X wins,
// and on a tie the lower OAM index (the one scanned first) wins.
func spriteWins(s Sprite, currentX, currentOAM int) bool {
	if s.X != currentX {
		return s.X < currentX
	}
	return s.OAMIndex < currentOAM
}
