package ram

import "testing"

func TestWRAMDirect(t *testing.T) {
	var w WRAM
	w.Write(0xC000, 0x42)
	if got := w.Read(0xC000); got != 0x42 {
		t.Fatalf("got %#x want 0x42", got)
	}
}

func TestWRAMEchoMirrorsDirect(t *testing.T) {
	var w WRAM
	w.Write(0xC123, 0x55)
	if got := w.Read(0xE123); got != 0x55 {
		t.Fatalf("echo read got %#x want 0x55", got)
	}
	w.Write(0xE456, 0x66)
	if got := w.Read(0xC456); got != 0x66 {
		t.Fatalf("direct read of echo write got %#x want 0x66", got)
	}
}

func TestHRAM(t *testing.T) {
	var h HRAM
	h.Write(0xFF80, 1)
	h.Write(0xFFFE, 2)
	if got := h.Read(0xFF80); got != 1 {
		t.Fatalf("FF80 got %d want 1", got)
	}
	if got := h.Read(0xFFFE); got != 2 {
		t.Fatalf("FFFE got %d want 2", got)
	}
}
