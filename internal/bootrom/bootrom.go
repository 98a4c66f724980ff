// Package bootrom implements the 256-byte DMG boot ROM overlay.
package bootrom

// Size is the fixed length of the DMG boot ROM.
const Size = 0x100

// ROM overlays addresses 0x0000-0x00FF until a write to the disable
// latch (0xFF50) deactivates it. The latch is one-way: once disabled
// it never reactivates for the lifetime of the machine.
type ROM struct {
	data   [Size]byte
	active bool
}

// New returns an active overlay backed by image, which must be
// exactly Size bytes.
func New(image []byte) *ROM {
	r := &ROM{active: true}
	copy(r.data[:], image)
	return r
}

func (r *ROM) Active() bool { return r.active }

func (r *ROM) Read(addr uint16) byte { return r.data[addr] }

// Disable latches the overlay off: any nonzero write to 0xFF50
// deactivates it permanently; a zero write is a no-op.
func (r *ROM) Disable(value byte) {
	r.active = r.active && value == 0
}
