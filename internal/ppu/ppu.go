// Package ppu implements the DMG picture processing unit: the
// VRAM/OAM-backed scanline state machine, its STAT/LYC interrupt
// coupling, and the BG/window/sprite pixel pipeline that fills one
// frame buffer per refresh.
package ppu

import "github.com/jlrosen/dmg-core/internal/interrupt"

// Mode is the four-state scanline mode exposed through STAT bits 0-1.
type Mode byte

const (
	HBlank Mode = iota
	VBlank
	OAMScan
	Drawing
)

// M-cycle budgets per mode; OAMScan+Drawing+HBlank sum to 114 per
// line, and VBlank holds for 10 lines at 114 each.
const (
	oamScanCycles = 20
	drawingCycles = 43
	hblankCycles  = 51
	lineCycles    = oamScanCycles + drawingCycles + hblankCycles

	visibleLines = 144
	totalLines   = 154

	ScreenWidth  = 160
	ScreenHeight = 144
)

// LCDC bits.
const (
	lcdcBGEnable       = 1 << 0
	lcdcOBJEnable      = 1 << 1
	lcdcOBJSize        = 1 << 2
	lcdcBGTileMap      = 1 << 3
	lcdcBGWindowTiles  = 1 << 4
	lcdcWindowEnable   = 1 << 5
	lcdcWindowTileMap  = 1 << 6
	lcdcDisplayEnable  = 1 << 7
)

// STAT bits.
const (
	statHBlankInt  = 1 << 3
	statVBlankInt  = 1 << 4
	statOAMInt     = 1 << 5
	statLYCInt     = 1 << 6
	statLYCEqLY    = 1 << 2
)

// PPU owns VRAM, OAM, the LCD control/status registers, and the
// scanline timing state machine. It is stepped one M-cycle at a time
// by the bus/gameboy composition root.
type PPU struct {
	vram [0x2000]byte
	oam  [0xA0]byte

	lcdc, stat        byte
	scy, scx          byte
	ly, lyc           byte
	bgp, obp0, obp1   byte
	wy, wx            byte

	mode       Mode
	cycles     int // M-cycles remaining in the current mode
	windowLine int // internal window-row counter, advances only on lines the window actually drew

	frame      [ScreenWidth * ScreenHeight]byte
	frameReady bool

	ic *interrupt.Controller
}

// New returns a PPU wired to ic for STAT/VBlank interrupt requests.
func New(ic *interrupt.Controller) *PPU {
	return &PPU{ic: ic, mode: OAMScan, cycles: oamScanCycles}
}

func (p *PPU) enabled() bool { return p.lcdc&lcdcDisplayEnable != 0 }

// CPURead serves VRAM/OAM and the PPU register block, with
// mode-gated VRAM/OAM visibility.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode == Drawing {
			return 0xFF
		}
		return p.vram[addr&0x1FFF]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.enabled() && (p.mode == OAMScan || p.mode == Drawing) {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | p.stat | byte(p.mode)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF46:
		return 0xFF // DMA transfer not implemented; stubbed per Open Question resolution
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM/OAM and the PPU register block.
// 0xFF44 (LY) is read-only and writes to it are ignored. 0xFF46 is
// accepted but produces no transfer.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if p.mode != Drawing {
			p.vram[addr&0x1FFF] = value
		}
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if !p.enabled() || (p.mode != OAMScan && p.mode != Drawing) {
			p.oam[addr-0xFE00] = value
		}
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if prev&lcdcDisplayEnable != 0 && value&lcdcDisplayEnable == 0 {
			p.ly = 0
			p.mode = OAMScan
			p.cycles = oamScanCycles
			p.windowLine = 0
			p.updateLYC()
		} else if prev&lcdcDisplayEnable == 0 && value&lcdcDisplayEnable != 0 {
			p.ly = 0
			p.mode = OAMScan
			p.cycles = oamScanCycles
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & statLYCEqLY) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		// LY is read-only; writes are ignored.
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF46:
		// DMA stub: accepted, no transfer performed.
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	}
}

// Tick advances the PPU by one M-cycle.
func (p *PPU) Tick() {
	if !p.enabled() {
		return
	}

	p.cycles--
	if p.cycles > 0 {
		return
	}

	switch p.mode {
	case OAMScan:
		p.enterMode(Drawing, drawingCycles)
	case Drawing:
		p.renderScanline()
		p.enterMode(HBlank, hblankCycles)
	case HBlank:
		p.ly++
		p.updateLYC()
		if p.ly < visibleLines {
			p.enterMode(OAMScan, oamScanCycles)
		} else {
			p.enterMode(VBlank, lineCycles)
			p.frameReady = true
			p.ic.Request(interrupt.VBlank)
			if p.stat&statVBlankInt != 0 {
				p.ic.Request(interrupt.STAT)
			}
		}
	case VBlank:
		p.ly++
		if p.ly > totalLines-1 {
			p.ly = 0
			p.windowLine = 0
			p.updateLYC()
			p.enterMode(OAMScan, oamScanCycles)
		} else {
			p.updateLYC()
			p.cycles = lineCycles
		}
	}
}

// enterMode switches mode, resets the M-cycle budget, and requests
// the STAT interrupt for the mode's entry-edge bit, if enabled.
func (p *PPU) enterMode(m Mode, cycles int) {
	p.mode = m
	p.cycles = cycles
	switch m {
	case HBlank:
		if p.stat&statHBlankInt != 0 {
			p.ic.Request(interrupt.STAT)
		}
	case OAMScan:
		if p.stat&statOAMInt != 0 {
			p.ic.Request(interrupt.STAT)
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= statLYCEqLY
		if p.stat&statLYCInt != 0 {
			p.ic.Request(interrupt.STAT)
		}
	} else {
		p.stat &^= statLYCEqLY
	}
}

// FrameReady reports whether a full frame has been rendered since the
// last call, and clears the flag.
func (p *PPU) FrameReady() bool {
	r := p.frameReady
	p.frameReady = false
	return r
}

// PixelBuffer returns the most recently rendered frame as one byte of
// luminance per pixel, row-major, ScreenWidth x ScreenHeight.
func (p *PPU) PixelBuffer() []byte { return p.frame[:] }

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) Mode() Mode { return p.mode }
func (p *PPU) LY() byte   { return p.ly }

// vramView adapts PPU's own VRAM for the fetcher helpers, which pass
// absolute 0x8000-0x9FFF addresses; addr&0x1FFF maps them into vram.
type vramView struct{ p *PPU }

func (v vramView) Read(addr uint16) byte { return v.p.vram[addr&0x1FFF] }

func shade(bgp byte, colorIndex byte) byte {
	switch (bgp >> (colorIndex * 2)) & 0x03 {
	case 0:
		return 0xFF
	case 1:
		return 0xAA
	case 2:
		return 0x55
	default:
		return 0x00
	}
}

// renderScanline fills row ly of the frame buffer: BG, then window
// where enabled, then sprites composited on top.
func (p *PPU) renderScanline() {
	if int(p.ly) >= ScreenHeight {
		return
	}

	var bgci [ScreenWidth]byte
	vr := vramView{p}

	if p.lcdc&lcdcBGEnable != 0 {
		mapBase := uint16(0x9800)
		if p.lcdc&lcdcBGTileMap != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := p.lcdc&lcdcBGWindowTiles != 0
		bgci = RenderBGScanlineUsingFetcher(vr, mapBase, tileData8000, p.scx, p.scy, p.ly)
	}

	windowDrawnThisLine := false
	if p.lcdc&lcdcBGEnable != 0 && p.lcdc&lcdcWindowEnable != 0 && p.ly >= p.wy {
		wxStart := int(p.wx) - 7
		if wxStart < ScreenWidth {
			mapBase := uint16(0x9800)
			if p.lcdc&lcdcWindowTileMap != 0 {
				mapBase = 0x9C00
			}
			tileData8000 := p.lcdc&lcdcBGWindowTiles != 0
			win := RenderWindowScanlineUsingFetcher(vr, mapBase, tileData8000, wxStart, byte(p.windowLine))
			start := wxStart
			if start < 0 {
				start = 0
			}
			for x := start; x < ScreenWidth; x++ {
				bgci[x] = win[x]
			}
			windowDrawnThisLine = true
		}
	}

	var out [ScreenWidth]byte
	for x := 0; x < ScreenWidth; x++ {
		out[x] = shade(p.bgp, bgci[x])
	}

	if p.lcdc&lcdcOBJEnable != 0 {
		sprites := p.scanOAMForLine(p.ly)
		composed := ComposeSpriteLine(vr, sprites, p.ly, bgci, p.lcdc&lcdcOBJSize != 0, p.obp0, p.obp1)
		for x := 0; x < ScreenWidth; x++ {
			if composed[x].opaque {
				out[x] = shade(composed[x].palette, composed[x].colorIndex)
			}
		}
	}

	copy(p.frame[int(p.ly)*ScreenWidth:(int(p.ly)+1)*ScreenWidth], out[:])

	if windowDrawnThisLine {
		p.windowLine++
	}
}

// scanOAMForLine finds up to 10 sprites that intersect ly, in OAM
// order, matching the hardware's per-scanline OAM-scan limit.
func (p *PPU) scanOAMForLine(ly byte) []Sprite {
	height := 8
	if p.lcdc&lcdcOBJSize != 0 {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40 && len(out) < 10; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		x := int(p.oam[base+1]) - 8
		if int(ly) < y || int(ly) >= y+height {
			continue
		}
		out = append(out, Sprite{
			X:        x,
			Y:        y,
			Tile:     p.oam[base+2],
			Attr:     p.oam[base+3],
			OAMIndex: i,
		})
	}
	return out
}
