// Package gameboy composes the CPU, bus, and PPU into the single
// forward-progress primitive the rest of the system drives: one
// M-cycle at a time.
package gameboy

import (
	"io"

	"github.com/jlrosen/dmg-core/internal/bus"
	"github.com/jlrosen/dmg-core/internal/cart"
	"github.com/jlrosen/dmg-core/internal/cpu"
	"github.com/jlrosen/dmg-core/internal/interrupt"
)

// Gameboy is the composition root: a CPU and bus sharing one
// interrupt controller, stepped one M-cycle at a time.
type Gameboy struct {
	cpu *cpu.CPU
	bus *bus.Bus
	ic  interrupt.Controller
	cart cart.Cartridge
}

// New parses rom's header, constructs the matching cartridge
// controller, and wires it to a fresh CPU and bus. If boot is
// non-nil it is installed as a boot ROM overlay and the CPU starts at
// PC 0x0000; otherwise the CPU starts post-boot at PC 0x0100.
func New(rom []byte, boot []byte) (*Gameboy, error) {
	c, _, err := cart.New(rom)
	if err != nil {
		return nil, err
	}

	g := &Gameboy{cart: c}
	g.bus = bus.New(c, &g.ic)
	g.cpu = cpu.New(g.bus, &g.ic)

	if boot != nil {
		g.bus.SetBootROM(boot)
	} else {
		g.cpu.SetPC(0x0100)
	}
	return g, nil
}

// StepOneMCycle advances the CPU and the rest of the machine by
// exactly one M-cycle, CPU first and bus/PPU second, matching the
// original's run loop ordering.
func (g *Gameboy) StepOneMCycle() {
	g.cpu.Step()
	g.bus.Tick()
}

// CPU exposes the underlying CPU for trace/debug tooling.
func (g *Gameboy) CPU() *cpu.CPU { return g.cpu }

// Bus exposes the underlying bus for trace/debug tooling.
func (g *Gameboy) Bus() *bus.Bus { return g.bus }

// FrameReady reports whether the PPU completed a frame since the last
// call, clearing the flag as it does.
func (g *Gameboy) FrameReady() bool { return g.bus.PPU().FrameReady() }

// PixelBuffer returns the PPU's one-byte-per-pixel 160x144 frame
// buffer. The slice is owned by the PPU and is overwritten by
// subsequent frames; callers that need to retain a frame must copy it.
func (g *Gameboy) PixelBuffer() []byte { return g.bus.PPU().PixelBuffer() }

// SetButtons updates the joypad state read by the JOYP register.
func (g *Gameboy) SetButtons(mask byte) { g.bus.SetJoypadState(mask) }

// SetSerialWriter routes serial port output (SB writes with SC start)
// to w.
func (g *Gameboy) SetSerialWriter(w io.Writer) { g.bus.SetSerialWriter(w) }

// SaveRAM returns the cartridge's battery-backed external RAM, or nil
// if the cartridge has none.
func (g *Gameboy) SaveRAM() []byte {
	if bb, ok := g.cart.(cart.BatteryBacked); ok {
		return bb.SaveRAM()
	}
	return nil
}

// LoadRAM restores previously saved battery-backed external RAM.
func (g *Gameboy) LoadRAM(data []byte) {
	if bb, ok := g.cart.(cart.BatteryBacked); ok {
		bb.LoadRAM(data)
	}
}

// Halted reports whether the CPU is currently halted awaiting an
// interrupt.
func (g *Gameboy) Halted() bool { return g.cpu.Halted() }
