package ppu

import (
	"testing"

	"github.com/jlrosen/dmg-core/internal/interrupt"
)

func advanceLines(p *PPU, n int) {
	for i := 0; i < n; i++ {
		tickN(p, lineCycles)
	}
}

func TestWindowLineCounterAdvancesOnlyWhileVisible(t *testing.T) {
	var ic interrupt.Controller
	p := New(&ic)
	p.CPUWrite(0xFF40, 0x80|lcdcBGEnable|lcdcWindowEnable)
	p.CPUWrite(0xFF4A, 10) // WY=10
	p.CPUWrite(0xFF4B, 7)  // WX=7 -> window starts at screen column 0

	advanceLines(p, 10) // lines 0..9 rendered, window not yet visible (ly < wy)
	if p.CPURead(0xFF44) != 10 {
		t.Fatalf("expected LY=10, got %d", p.CPURead(0xFF44))
	}
	if p.windowLine != 0 {
		t.Fatalf("windowLine should still be 0 before WY, got %d", p.windowLine)
	}

	advanceLines(p, 1) // renders line 10, the first visible window row
	if p.windowLine != 1 {
		t.Fatalf("expected windowLine=1 after first visible window row, got %d", p.windowLine)
	}

	advanceLines(p, 1) // renders line 11, second visible window row
	if p.windowLine != 2 {
		t.Fatalf("expected windowLine=2 after second visible window row, got %d", p.windowLine)
	}
}

func TestWindowLineStaysZeroWhenWXOffscreen(t *testing.T) {
	var ic interrupt.Controller
	p := New(&ic)
	p.CPUWrite(0xFF40, 0x80|lcdcBGEnable|lcdcWindowEnable)
	p.CPUWrite(0xFF4A, 5)   // WY=5
	p.CPUWrite(0xFF4B, 200) // WX way past the visible 160-pixel width

	advanceLines(p, 8)
	if p.windowLine != 0 {
		t.Fatalf("expected windowLine=0 when WX places the window offscreen, got %d", p.windowLine)
	}
}

func TestWindowLineResetsAtNextFrame(t *testing.T) {
	var ic interrupt.Controller
	p := New(&ic)
	p.CPUWrite(0xFF40, 0x80|lcdcBGEnable|lcdcWindowEnable)
	p.CPUWrite(0xFF4A, 0)
	p.CPUWrite(0xFF4B, 7)

	advanceLines(p, visibleLines)
	if p.windowLine == 0 {
		t.Fatalf("expected windowLine advanced across a full visible frame")
	}
	advanceLines(p, totalLines-visibleLines) // finish VBlank into the next frame
	if p.windowLine != 0 {
		t.Fatalf("expected windowLine reset to 0 entering the next frame, got %d", p.windowLine)
	}
}
