// Package bus implements the DMG CPU-visible address space: cartridge
// ROM/RAM, VRAM/OAM via the PPU, WRAM/HRAM, boot ROM overlay, timer,
// serial, joypad, and the interrupt register pair.
package bus

import (
	"io"

	"github.com/jlrosen/dmg-core/internal/bootrom"
	"github.com/jlrosen/dmg-core/internal/cart"
	"github.com/jlrosen/dmg-core/internal/interrupt"
	"github.com/jlrosen/dmg-core/internal/ppu"
	"github.com/jlrosen/dmg-core/internal/ram"
)

// Bus wires the full CPU-visible address space together.
type Bus struct {
	cart cart.Cartridge
	wram ram.WRAM
	hram ram.HRAM
	ppu  *ppu.PPU
	ic   *interrupt.Controller
	boot *bootrom.ROM

	joypSelect byte
	joypad     byte
	joypLower4 byte

	div             byte
	tima            byte
	tma             byte
	tac             byte
	timaReloadDelay int
	divInternal     uint16

	sb byte
	sc byte
	sw io.Writer

	dma byte // FF46: accepted, no transfer performed (see Open Question resolution)
}

// New constructs a Bus around an already-parsed cartridge and the
// caller's interrupt controller, which it shares with the PPU.
func New(c cart.Cartridge, ic *interrupt.Controller) *Bus {
	return &Bus{cart: c, ic: ic, ppu: ppu.New(ic)}
}

func (b *Bus) PPU() *ppu.PPU         { return b.ppu }
func (b *Bus) Cart() cart.Cartridge  { return b.cart }
func (b *Bus) Interrupts() *interrupt.Controller { return b.ic }

// SetBootROM installs a 256-byte boot ROM overlay, active until a
// write to 0xFF50 disables it.
func (b *Bus) SetBootROM(image []byte) {
	b.boot = bootrom.New(image)
}

// SetSerialWriter sets a sink that receives bytes written via the
// serial port's immediate-completion transfer.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.boot != nil && b.boot.Active() && addr < bootrom.Size {
			return b.boot.Read(addr)
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xFDFF:
		return b.wram.Read(addr)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // prohibited area
	case addr == 0xFF00:
		return b.readJoypad()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.div
	case addr == 0xFF05:
		return b.tima
	case addr == 0xFF06:
		return b.tma
	case addr == 0xFF07:
		return 0xF8 | (b.tac & 0x07)
	case addr == 0xFF0F:
		return 0xE0 | (b.ic.IF & 0x1F)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram.Read(addr)
	case addr == 0xFFFF:
		return b.ic.IE
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xFDFF:
		b.wram.Write(addr, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// prohibited, writes ignored
	case addr == 0xFF00:
		b.joypSelect = value & 0x30
		b.updateJoypadIRQ()
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ic.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		oldInput := b.timerInput()
		b.divInternal = 0
		b.div = 0
		if oldInput && !b.timerInput() {
			b.incrementTIMA()
		}
	case addr == 0xFF05:
		b.tima = value
		b.timaReloadDelay = 0
	case addr == 0xFF06:
		b.tma = value
	case addr == 0xFF07:
		oldInput := b.timerInput()
		b.tac = value & 0x07
		if oldInput && !b.timerInput() {
			b.incrementTIMA()
		}
	case addr == 0xFF0F:
		b.ic.IF = value & 0x1F
	case addr == 0xFF46:
		b.dma = value // stub: accepted, no transfer performed
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if b.boot != nil {
			b.boot.Disable(value)
		}
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram.Write(addr, value)
	case addr == 0xFFFF:
		b.ic.IE = value
	}
}

// Tick advances timer and PPU state by one M-cycle (4 T-cycles). The
// timer's falling-edge detector runs once per T-cycle; the PPU, which
// is budgeted in M-cycles, advances once per call.
func (b *Bus) Tick() {
	for t := 0; t < 4; t++ {
		b.stepTimerOneTCycle()
	}
	b.ppu.Tick()
}

func (b *Bus) stepTimerOneTCycle() {
	oldInput := b.timerInput()
	b.divInternal++
	b.div = byte(b.divInternal >> 8)
	falling := oldInput && !b.timerInput()

	if b.timaReloadDelay > 0 {
		b.timaReloadDelay--
		if b.timaReloadDelay == 0 {
			b.tima = b.tma
			b.ic.Request(interrupt.Timer)
		}
	}
	if falling {
		b.incrementTIMA()
	}
}

func (b *Bus) timerInput() bool {
	if b.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch b.tac & 0x03 {
	case 0x00:
		bit = 9
	case 0x01:
		bit = 3
	case 0x02:
		bit = 5
	case 0x03:
		bit = 7
	}
	return (b.divInternal>>bit)&1 != 0
}

func (b *Bus) incrementTIMA() {
	if b.timaReloadDelay > 0 {
		return
	}
	if b.tima == 0xFF {
		b.tima = 0x00
		b.timaReloadDelay = 4
		return
	}
	b.tima++
}

// Joypad button bitmasks for SetJoypadState; a set bit means pressed.
const (
	JoypRight     = 1 << 0
	JoypLeft      = 1 << 1
	JoypUp        = 1 << 2
	JoypDown      = 1 << 3
	JoypA         = 1 << 4
	JoypB         = 1 << 5
	JoypSelectBtn = 1 << 6
	JoypStart     = 1 << 7
)

func (b *Bus) SetJoypadState(mask byte) {
	b.joypad = mask
	b.updateJoypadIRQ()
}

func (b *Bus) readJoypad() byte {
	res := byte(0xC0 | (b.joypSelect & 0x30) | 0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			res &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			res &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			res &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			res &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			res &^= 0x08
		}
	}
	return res
}

// updateJoypadIRQ recomputes JOYP's active-low lower nibble and
// requests the joypad interrupt on any 1->0 transition.
func (b *Bus) updateJoypadIRQ() {
	newLower := byte(0x0F)
	if b.joypSelect&0x10 == 0 {
		if b.joypad&JoypRight != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypLeft != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypUp != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypDown != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypSelect&0x20 == 0 {
		if b.joypad&JoypA != 0 {
			newLower &^= 0x01
		}
		if b.joypad&JoypB != 0 {
			newLower &^= 0x02
		}
		if b.joypad&JoypSelectBtn != 0 {
			newLower &^= 0x04
		}
		if b.joypad&JoypStart != 0 {
			newLower &^= 0x08
		}
	}
	if b.joypLower4&^newLower != 0 {
		b.ic.Request(interrupt.Joypad)
	}
	b.joypLower4 = newLower
}
