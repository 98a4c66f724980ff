package cart

import (
	"errors"
	"testing"
)

func TestNew_DispatchesOnCartType(t *testing.T) {
	cases := []struct {
		cartType byte
		want     any
	}{
		{0x00, &ROMOnly{}},
		{0x01, &MBC1{}},
		{0x0F, &MBC3{}},
		{0x19, &MBC5{}},
	}
	for _, c := range cases {
		rom := buildROM("TEST", c.cartType, 0x00, 0x00, 32*1024)
		got, h, err := New(rom)
		if err != nil {
			t.Fatalf("cart type %#02x: New error: %v", c.cartType, err)
		}
		if h.CartType != c.cartType {
			t.Fatalf("cart type %#02x: header mismatch, got %#02x", c.cartType, h.CartType)
		}
		switch c.want.(type) {
		case *ROMOnly:
			if _, ok := got.(*ROMOnly); !ok {
				t.Fatalf("cart type %#02x: expected *ROMOnly, got %T", c.cartType, got)
			}
		case *MBC1:
			if _, ok := got.(*MBC1); !ok {
				t.Fatalf("cart type %#02x: expected *MBC1, got %T", c.cartType, got)
			}
		case *MBC3:
			if _, ok := got.(*MBC3); !ok {
				t.Fatalf("cart type %#02x: expected *MBC3, got %T", c.cartType, got)
			}
		case *MBC5:
			if _, ok := got.(*MBC5); !ok {
				t.Fatalf("cart type %#02x: expected *MBC5, got %T", c.cartType, got)
			}
		}
	}
}

func TestNew_UnsupportedCartTypeIsFatal(t *testing.T) {
	rom := buildROM("TEST", 0x20, 0x00, 0x00, 32*1024) // no controller maps to 0x20
	_, _, err := New(rom)
	if !errors.Is(err, ErrUnsupportedCartType) {
		t.Fatalf("expected ErrUnsupportedCartType, got %v", err)
	}
}

func TestNew_BadHeaderPropagatesError(t *testing.T) {
	rom := buildROM("TEST", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0134] ^= 0xFF // corrupt header checksum
	if _, _, err := New(rom); err == nil {
		t.Fatalf("expected an error for a corrupted header")
	}
}
