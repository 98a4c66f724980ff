package ppu

import "testing"

func TestComposeSpriteLinePriorityAndTransparency(t *testing.T) {
	mem := mockVRAM{}
	// Sprite tile with a single opaque leftmost pixel at bit7: lo=0x80, hi=0.
	base := uint16(0x8000)
	mem[base+0] = 0x80
	mem[base+1] = 0x00
	sprites := []Sprite{{X: 10, Y: 5, Tile: 0, Attr: 0, OAMIndex: 0}}
	var bgci [ScreenWidth]byte

	out := ComposeSpriteLine(mem, sprites, 5, bgci, false, 0xE4, 0xE4)
	if !out[10].opaque {
		t.Fatalf("expected opaque sprite pixel at x=10")
	}

	// With priority-behind-BG set and bgci nonzero, the sprite must be hidden.
	sprites[0].Attr = spriteAttrPriority
	bgci[10] = 1
	out = ComposeSpriteLine(mem, sprites, 5, bgci, false, 0xE4, 0xE4)
	if out[10].opaque {
		t.Fatalf("expected sprite pixel hidden behind BG")
	}
}

func TestComposeSpriteLineLowestXWinsTies(t *testing.T) {
	mem := mockVRAM{}
	// Both sprites fully opaque (lo=0xFF, hi=0x00).
	base := uint16(0x8000)
	mem[base+0] = 0xFF
	mem[base+1] = 0x00
	s0 := Sprite{X: 19, Y: 0, Tile: 0, Attr: 0, OAMIndex: 5}
	s1 := Sprite{X: 20, Y: 0, Tile: 0, Attr: spriteAttrPalette, OAMIndex: 3} // OBP1, so its pixels differ from s0's
	var bgci [ScreenWidth]byte

	// At column 20, s0 (X=19) also covers (col 1 of its tile). Lowest X wins.
	out := ComposeSpriteLine(mem, []Sprite{s0, s1}, 0, bgci, false, 0xE4, 0xD2)
	if !out[20].opaque {
		t.Fatalf("expected a sprite at x=20")
	}

	s0Only := ComposeSpriteLine(mem, []Sprite{s0}, 0, bgci, false, 0xE4, 0xD2)
	if out[20] != s0Only[20] {
		t.Fatalf("lowest-X sprite (s0, X=19) should have won at x=20")
	}
}

func TestComposeSpriteLineEqualXBreaksByOAMIndex(t *testing.T) {
	mem := mockVRAM{}
	base := uint16(0x8000)
	mem[base+0] = 0xFF
	mem[base+1] = 0x00
	lower := Sprite{X: 50, Y: 0, Tile: 0, Attr: 0, OAMIndex: 2}
	higher := Sprite{X: 50, Y: 0, Tile: 0, Attr: spriteAttrPalette, OAMIndex: 7} // OBP1, so its pixels differ from lower's
	var bgci [ScreenWidth]byte

	withBoth := ComposeSpriteLine(mem, []Sprite{higher, lower}, 0, bgci, false, 0xE4, 0xD2)
	onlyLower := ComposeSpriteLine(mem, []Sprite{lower}, 0, bgci, false, 0xE4, 0xD2)
	if withBoth[50] != onlyLower[50] {
		t.Fatalf("lower OAM index should win an X tie")
	}
}
