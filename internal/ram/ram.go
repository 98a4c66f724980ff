// Package ram implements the DMG's internal work RAM and high RAM.
package ram

// WRAM is the 8 KiB internal work RAM at 0xC000-0xDFFF. Because the
// echo region 0xE000-0xFDFF mirrors it exactly 0x2000 bytes lower and
// WRAM itself is 0x2000 bytes long, addr&0x1FFF indexes both ranges
// with the same mask.
type WRAM struct {
	data [0x2000]byte
}

func (w *WRAM) Read(addr uint16) byte     { return w.data[addr&0x1FFF] }
func (w *WRAM) Write(addr uint16, v byte) { w.data[addr&0x1FFF] = v }

// HRAM is the 127-byte high RAM at 0xFF80-0xFFFE.
type HRAM struct {
	data [0x7F]byte
}

func (h *HRAM) Read(addr uint16) byte     { return h.data[addr-0xFF80] }
func (h *HRAM) Write(addr uint16, v byte) { h.data[addr-0xFF80] = v }
