package interrupt

import "testing"

func TestRequestAndClear(t *testing.T) {
	var c Controller
	c.Request(Timer)
	if c.IF != 1<<2 {
		t.Fatalf("IF after request got %#x want %#x", c.IF, 1<<2)
	}
	c.Clear(Timer)
	if c.IF != 0 {
		t.Fatalf("IF after clear got %#x want 0", c.IF)
	}
}

func TestPendingRequiresIE(t *testing.T) {
	var c Controller
	c.Request(VBlank)
	if c.Pending() {
		t.Fatalf("Pending true with IE=0")
	}
	c.IE = 1 << 0
	if !c.Pending() {
		t.Fatalf("Pending false with matching IE bit set")
	}
}

func TestHighestPriorityOrder(t *testing.T) {
	var c Controller
	c.IE = 0x1F
	c.Request(Joypad)
	c.Request(Timer)
	c.Request(VBlank)
	src, ok := c.Highest()
	if !ok || src != VBlank {
		t.Fatalf("Highest got %v,%v want VBlank,true", src, ok)
	}
	c.Clear(VBlank)
	src, ok = c.Highest()
	if !ok || src != Timer {
		t.Fatalf("Highest got %v,%v want Timer,true", src, ok)
	}
}

func TestVectors(t *testing.T) {
	cases := []struct {
		s Source
		v uint16
	}{
		{VBlank, 0x0040},
		{STAT, 0x0048},
		{Timer, 0x0050},
		{Serial, 0x0058},
		{Joypad, 0x0060},
	}
	for _, tc := range cases {
		if Vector[tc.s] != tc.v {
			t.Fatalf("Vector[%v] got %#x want %#x", tc.s, Vector[tc.s], tc.v)
		}
	}
}
