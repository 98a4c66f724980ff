// Package cart implements cartridge ROM/RAM decoding and the memory
// bank controller variants addressed through it.
package cart

import (
	"errors"
	"fmt"
)

// ErrUnsupportedCartType is returned by New for a header cartridge-type
// byte with no corresponding controller.
var ErrUnsupportedCartType = errors.New("cart: unsupported cartridge type")

// Cartridge is the bus-facing read/write surface of a loaded ROM
// image, regardless of which bank controller backs it. Addresses are
// CPU addresses: 0x0000-0x7FFF for ROM/control, 0xA000-0xBFFF for
// external RAM.
type Cartridge interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// BatteryBacked is an optional interface for cartridges with external
// RAM that should be persisted across runs.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// New parses the ROM header and constructs the Cartridge implied by
// its cartridge-type byte. An unsupported type or a bad header is a
// fatal load condition: callers must not silently fall back to
// ROM-only for a type they don't recognize.
func New(rom []byte) (Cartridge, *Header, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, nil, err
	}

	switch h.CartType {
	case 0x00, 0x08, 0x09:
		return NewROMOnly(rom), h, nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes, h.ROMBanks), h, nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return NewMBC3(rom, h.RAMSizeBytes), h, nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return NewMBC5(rom, h.RAMSizeBytes), h, nil
	default:
		return nil, nil, fmt.Errorf("%w: %#02x (%s)", ErrUnsupportedCartType, h.CartType, h.CartTypeStr)
	}
}
