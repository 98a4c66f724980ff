package host

import "testing"

func TestGrayToRGBA(t *testing.T) {
	src := []byte{0xFF, 0xAA, 0x55, 0x00}
	dst := make([]byte, len(src)*4)
	GrayToRGBA(src, dst)

	want := []byte{
		0xFF, 0xFF, 0xFF, 0xFF,
		0xAA, 0xAA, 0xAA, 0xFF,
		0x55, 0x55, 0x55, 0xFF,
		0x00, 0x00, 0x00, 0xFF,
	}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("byte %d: got %#02x want %#02x", i, dst[i], want[i])
		}
	}
}

func TestConfig_Defaults(t *testing.T) {
	var c Config
	c.Defaults()
	if c.Title == "" || c.Scale <= 0 {
		t.Fatalf("expected Defaults to fill Title and Scale, got %+v", c)
	}
}
