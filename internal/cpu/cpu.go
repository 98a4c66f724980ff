// Package cpu implements the Sharp SM83 core: register file, ALU flag
// helpers, and a micro-stepped instruction scheduler driven one
// M-cycle at a time by Step.
package cpu

import (
	"fmt"

	"github.com/jlrosen/dmg-core/internal/interrupt"
)

// MemoryBus is the CPU's view of the address space: a cartridge, RAM,
// and memory-mapped I/O registers behind a flat Read/Write interface.
type MemoryBus interface {
	Read(addr uint16) byte
	Write(addr uint16, value byte)
}

// microStep is one M-cycle's worth of CPU work: a bus access, an
// internal delay, or a register update derived from already-latched
// scratch values. Queued steps run one per Step call.
type microStep func(c *CPU)

// CPU drives the SM83 instruction set one M-cycle per Step call. The
// currently-decoding instruction's pending M-cycles live in queue;
// scratch8/scratch16/addr are the operand latches a multi-cycle
// instruction carries between steps instead of using any package- or
// goroutine-local state.
type CPU struct {
	Registers

	IME       bool
	halted    bool
	eiPending bool // EI just executed; arms on the next decode boundary
	eiArmed   bool // one decode boundary has passed since EI; IME goes live on the next

	queue []microStep

	opcode    byte
	scratch8  byte
	scratch16 uint16
	addr      uint16

	bus MemoryBus
	ic  *interrupt.Controller
}

// New creates a CPU with PC at 0x0000 and SP at 0xFFFE, ready for a
// boot ROM to run from 0x0000, or for ResetNoBoot to seed post-boot
// register state.
// ic is the interrupt controller shared with the bus; the CPU consults
// it for pending-interrupt checks and ISR dispatch instead of reading
// IE/IF through raw bus accesses.
func New(b MemoryBus, ic *interrupt.Controller) *CPU {
	return &CPU{Registers: Registers{SP: 0xFFFE, PC: 0x0000}, bus: b, ic: ic}
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() MemoryBus { return c.bus }

// Halted reports whether the core is in the HALT low-power state.
func (c *CPU) Halted() bool { return c.halted }

// ResetNoBoot sets registers to typical DMG post-boot state. Useful
// when running without a boot ROM.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.IME = false
	c.halted = false
	c.eiPending = false
	c.eiArmed = false
	c.queue = nil
}

func (c *CPU) setZNHC(z, n, h, carry bool) { c.setFlags(z, n, h, carry) }

// ALU helpers. Each returns the result plus the four flag outputs;
// callers apply them via setZNHC.

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	return res, res == 0, false, ((a & 0x0F) + (b & 0x0F)) > 0x0F, r > 0xFF
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	return res, res == 0, false, ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F, r > 0xFF
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	return res, res == 0, true, (a & 0x0F) < (b & 0x0F), int16(a) < int16(b)
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	return res, res == 0, true, (a & 0x0F) < ((b & 0x0F) + ci), int16(a) < int16(b)+int16(ci)
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	return res, res == 0, false, true, false
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	return res, res == 0, false, false, false
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	return res, res == 0, false, false, false
}

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

// reg8 maps an SM83 3-bit register index to a pointer into the
// register file; index 6 (the (HL) slot) has no pointer and must be
// handled by the caller as a memory access.
func (c *CPU) reg8(idx byte) *byte {
	switch idx {
	case 0:
		return &c.B
	case 1:
		return &c.C
	case 2:
		return &c.D
	case 3:
		return &c.E
	case 4:
		return &c.H
	case 5:
		return &c.L
	case 7:
		return &c.A
	}
	return nil
}

func (c *CPU) enqueue(steps ...microStep) { c.queue = append(c.queue, steps...) }

// Step advances the CPU by exactly one M-cycle: servicing a pending
// interrupt, running the next queued micro-step of the instruction in
// flight, or fetching and decoding a new opcode.
func (c *CPU) Step() {
	if c.halted {
		if c.interruptsPending() {
			c.halted = false
		} else {
			return
		}
	}

	if len(c.queue) > 0 {
		step := c.queue[0]
		c.queue = c.queue[1:]
		step(c)
		return
	}

	if c.eiArmed {
		c.IME = true
		c.eiArmed = false
	}
	if c.eiPending {
		c.eiPending = false
		c.eiArmed = true
	}

	if c.IME && c.interruptsPending() {
		c.beginInterruptService()
		return
	}

	c.opcode = c.fetchOpcodeByte()
	c.decode(c.opcode)
}

func (c *CPU) fetchOpcodeByte() byte {
	b := c.read8(c.PC)
	c.PC++
	return b
}

func (c *CPU) interruptsPending() bool {
	return c.ic.Pending()
}

// beginInterruptService enqueues the 5-M-cycle ISR sequence: this
// call is M-cycle 1 (decode the dispatch, nothing observable on the
// bus), two internal-delay cycles, then the push of PC high and low,
// with the vector jump folded into the final push.
func (c *CPU) beginInterruptService() {
	c.halted = false
	c.IME = false
	c.enqueue(
		func(cc *CPU) {}, // internal delay
		func(cc *CPU) {
			src, ok := cc.ic.Highest()
			if !ok {
				return
			}
			cc.ic.Clear(src)
			cc.addr = interrupt.Vector[src]
		},
		func(cc *CPU) {
			cc.SP--
			cc.bus.Write(cc.SP, byte(cc.PC>>8))
		},
		func(cc *CPU) {
			cc.SP--
			cc.bus.Write(cc.SP, byte(cc.PC))
			cc.PC = cc.addr
		},
	)
}

func (c *CPU) push16Queued(value uint16, thenFunc func(cc *CPU)) {
	c.enqueue(
		func(cc *CPU) {
			cc.SP--
			cc.bus.Write(cc.SP, byte(value>>8))
		},
		func(cc *CPU) {
			cc.SP--
			cc.bus.Write(cc.SP, byte(value))
			if thenFunc != nil {
				thenFunc(cc)
			}
		},
	)
}

// decode dispatches the freshly-fetched opcode, executing single-M-cycle
// forms immediately (their only M-cycle was the opcode fetch) and
// enqueueing the remaining M-cycles for anything that touches memory,
// reads an immediate, or takes an internal delay cycle (INC/DEC rr,
// ADD HL,rr, LD SP,HL).
func (c *CPU) decode(op byte) {
	switch {
	case op == 0x00: // NOP
	case op == 0x10: // STOP
		c.enqueue(func(cc *CPU) { cc.fetchOpcodeByte() }) // consume the padding byte
	case op == 0x76: // HALT
		c.halted = true
	case op == 0xF3: // DI
		c.IME = false
		c.eiPending = false
		c.eiArmed = false
	case op == 0xFB: // EI
		c.eiPending = true
	case op == 0xCB:
		c.enqueue(func(cc *CPU) {
			cb := cc.fetchOpcodeByte()
			cc.decodeCB(cb)
		})
	case isLDRR(op):
		c.execLDRR(op)
	case op >= 0x06 && op <= 0x3E && op&0x07 == 0x06: // LD r,d8 / LD (HL),d8
		c.decodeLDRImm(op)
	case op >= 0x80 && op <= 0xBF: // ALU A,r / A,(HL)
		c.decodeALURegOrMem(op)
	case op == 0xC6 || op == 0xCE || op == 0xD6 || op == 0xDE ||
		op == 0xE6 || op == 0xEE || op == 0xF6 || op == 0xFE: // ALU A,d8
		c.decodeALUImm(op)
	case op == 0x01 || op == 0x11 || op == 0x21 || op == 0x31: // LD rr,d16
		c.decodeLDRRImm(op)
	case op == 0x08: // LD (a16),SP
		c.decodeLDA16SP()
	case op == 0x02 || op == 0x12 || op == 0x0A || op == 0x1A: // LD (BC/DE),A and reverse
		c.execLDIndirectAccum(op)
	case op == 0x22 || op == 0x2A || op == 0x32 || op == 0x3A: // LDI/LDD
		c.decodeLDHLIncDec(op)
	case op == 0xE0 || op == 0xF0: // LDH (a8),A / A,(a8)
		c.decodeLDH(op)
	case op == 0xE2 || op == 0xF2: // LD (C),A / A,(C)
		c.execLDCAccum(op)
	case op == 0x07 || op == 0x0F || op == 0x17 || op == 0x1F: // RLCA/RRCA/RLA/RRA
		c.execRotateA(op)
	case op == 0x27: // DAA
		c.execDAA()
	case op == 0x2F: // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
	case op == 0x37: // SCF
		c.F = (c.F & flagZ) | flagC
	case op == 0x3F: // CCF
		newC := c.F&flagC == 0
		c.F = c.F & flagZ
		if newC {
			c.F |= flagC
		}
	case op&0xC7 == 0x04: // INC r / INC (HL)
		c.decodeINCDECReg(op, true)
	case op&0xC7 == 0x05: // DEC r / DEC (HL)
		c.decodeINCDECReg(op, false)
	case op == 0xEA || op == 0xFA: // LD (a16),A / A,(a16)
		c.decodeLDA16Accum(op)
	case op == 0xC3: // JP a16
		c.decodeJPImm()
	case op == 0xE9: // JP (HL)
		c.PC = c.HL()
	case op == 0x18: // JR r8
		c.decodeJR(true)
	case op == 0x20 || op == 0x28 || op == 0x30 || op == 0x38: // JR cc
		c.decodeJR(c.condition(op))
	case op == 0xCD: // CALL a16
		c.decodeCALL(true)
	case op == 0xC4 || op == 0xCC || op == 0xD4 || op == 0xDC: // CALL cc
		c.decodeCALL(c.condition(op))
	case op == 0xC9: // RET
		c.decodeRET(false, true)
	case op == 0xD9: // RETI
		c.decodeRETI()
	case op == 0xC0 || op == 0xC8 || op == 0xD0 || op == 0xD8: // RET cc
		c.decodeRET(true, c.condition(op))
	case op&0xC7 == 0xC7: // RST t
		c.decodeRST(op)
	case op == 0xC2 || op == 0xCA || op == 0xD2 || op == 0xDA: // JP cc,a16
		c.decodeJPCCImm(op)
	case op&0xCF == 0x03: // INC rr
		c.decodeINCDECWide(op, true)
	case op&0xCF == 0x0B: // DEC rr
		c.decodeINCDECWide(op, false)
	case op&0xCF == 0x09: // ADD HL,rr
		c.execAddHLRR(op)
	case op == 0xF8: // LD HL,SP+r8
		c.decodeLDHLSPOffset()
	case op == 0xF9: // LD SP,HL
		c.enqueue(func(cc *CPU) { cc.SP = cc.HL() })
	case op == 0xE8: // ADD SP,r8
		c.decodeAddSPOffset()
	case op&0xCF == 0xC5: // PUSH rr
		c.decodePUSH(op)
	case op&0xCF == 0xC1: // POP rr
		c.decodePOP(op)
	default:
		panic(fmt.Errorf("cpu: unimplemented opcode %#02x at PC %#04x", op, c.PC-1))
	}
}

func isLDRR(op byte) bool {
	if op < 0x40 || op > 0x7F || op == 0x76 {
		return false
	}
	return true
}

func (c *CPU) execLDRR(op byte) {
	d := (op >> 3) & 7
	s := op & 7
	if s == 6 {
		c.enqueue(func(cc *CPU) {
			v := cc.read8(cc.HL())
			*cc.reg8(d) = v
		})
		return
	}
	if d == 6 {
		c.enqueue(func(cc *CPU) {
			cc.write8(cc.HL(), *cc.reg8(s))
		})
		return
	}
	*c.reg8(d) = *c.reg8(s)
}

func (c *CPU) decodeLDRImm(op byte) {
	d := (op >> 3) & 7
	if d == 6 {
		c.enqueue(
			func(cc *CPU) { cc.scratch8 = cc.fetchOpcodeByte() },
			func(cc *CPU) { cc.write8(cc.HL(), cc.scratch8) },
		)
		return
	}
	c.enqueue(func(cc *CPU) {
		*cc.reg8(d) = cc.fetchOpcodeByte()
	})
}

func aluSrc(c *CPU, code byte) byte {
	switch code {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 7:
		return c.A
	}
	return 0
}

func (c *CPU) applyALU(group byte, src byte) {
	switch group {
	case 0: // ADD
		r, z, n, h, cy := c.add8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 1: // ADC
		r, z, n, h, cy := c.adc8(c.A, src, c.carry())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 2: // SUB
		r, z, n, h, cy := c.sub8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 3: // SBC
		r, z, n, h, cy := c.sbc8(c.A, src, c.carry())
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 4: // AND
		r, z, n, h, cy := c.and8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 5: // XOR
		r, z, n, h, cy := c.xor8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 6: // OR
		r, z, n, h, cy := c.or8(c.A, src)
		c.A = r
		c.setZNHC(z, n, h, cy)
	case 7: // CP
		z, n, h, cy := c.cp8(c.A, src)
		c.setZNHC(z, n, h, cy)
	}
}

func (c *CPU) decodeALURegOrMem(op byte) {
	group := (op >> 3) & 7
	src := op & 7
	if src == 6 {
		c.enqueue(func(cc *CPU) {
			cc.applyALU(group, cc.read8(cc.HL()))
		})
		return
	}
	c.applyALU(group, aluSrc(c, src))
}

func (c *CPU) decodeALUImm(op byte) {
	group := (op >> 3) & 7
	c.enqueue(func(cc *CPU) {
		cc.applyALU(group, cc.fetchOpcodeByte())
	})
}

func (c *CPU) decodeLDRRImm(op byte) {
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) {
			hi := uint16(cc.fetchOpcodeByte())
			v := cc.scratch16 | hi<<8
			switch op {
			case 0x01:
				cc.SetBC(v)
			case 0x11:
				cc.SetDE(v)
			case 0x21:
				cc.SetHL(v)
			case 0x31:
				cc.SP = v
			}
		},
	)
}

func (c *CPU) decodeLDA16SP() {
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) { cc.addr = cc.scratch16 | uint16(cc.fetchOpcodeByte())<<8 },
		func(cc *CPU) { cc.write8(cc.addr, byte(cc.SP)) },
		func(cc *CPU) { cc.write8(cc.addr+1, byte(cc.SP>>8)) },
	)
}

func (c *CPU) execLDIndirectAccum(op byte) {
	c.enqueue(func(cc *CPU) {
		switch op {
		case 0x02:
			cc.write8(cc.BC(), cc.A)
		case 0x12:
			cc.write8(cc.DE(), cc.A)
		case 0x0A:
			cc.A = cc.read8(cc.BC())
		case 0x1A:
			cc.A = cc.read8(cc.DE())
		}
	})
}

func (c *CPU) decodeLDHLIncDec(op byte) {
	c.enqueue(func(cc *CPU) {
		hl := cc.HL()
		switch op {
		case 0x22:
			cc.write8(hl, cc.A)
			cc.SetHL(hl + 1)
		case 0x2A:
			cc.A = cc.read8(hl)
			cc.SetHL(hl + 1)
		case 0x32:
			cc.write8(hl, cc.A)
			cc.SetHL(hl - 1)
		case 0x3A:
			cc.A = cc.read8(hl)
			cc.SetHL(hl - 1)
		}
	})
}

func (c *CPU) decodeLDH(op byte) {
	c.enqueue(
		func(cc *CPU) { cc.scratch8 = cc.fetchOpcodeByte() },
		func(cc *CPU) {
			a := 0xFF00 + uint16(cc.scratch8)
			if op == 0xE0 {
				cc.write8(a, cc.A)
			} else {
				cc.A = cc.read8(a)
			}
		},
	)
}

func (c *CPU) execLDCAccum(op byte) {
	c.enqueue(func(cc *CPU) {
		a := 0xFF00 + uint16(cc.C)
		if op == 0xE2 {
			cc.write8(a, cc.A)
		} else {
			cc.A = cc.read8(a)
		}
	})
}

func (c *CPU) execRotateA(op byte) {
	switch op {
	case 0x07: // RLCA
		cval := (c.A >> 7) & 1
		c.A = (c.A << 1) | cval
		c.setZNHC(false, false, false, cval == 1)
	case 0x0F: // RRCA
		cval := c.A & 1
		c.A = (c.A >> 1) | (cval << 7)
		c.setZNHC(false, false, false, cval == 1)
	case 0x17: // RLA
		cval := (c.A >> 7) & 1
		cin := byte(0)
		if c.carry() {
			cin = 1
		}
		c.A = (c.A << 1) | cin
		c.setZNHC(false, false, false, cval == 1)
	case 0x1F: // RRA
		cval := c.A & 1
		cin := byte(0)
		if c.carry() {
			cin = 1
		}
		c.A = (c.A >> 1) | (cin << 7)
		c.setZNHC(false, false, false, cval == 1)
	}
}

func (c *CPU) execDAA() {
	a := c.A
	cf := c.carry()
	if !c.subtract() {
		if cf || a > 0x99 {
			a += 0x60
			cf = true
		}
		if c.halfCarry() || (a&0x0F) > 9 {
			a += 0x06
		}
	} else {
		if cf {
			a -= 0x60
		}
		if c.halfCarry() {
			a -= 0x06
		}
	}
	c.A = a
	c.setZNHC(c.A == 0, c.subtract(), false, cf)
}

func (c *CPU) decodeINCDECReg(op byte, isInc bool) {
	d := (op >> 3) & 7
	if d == 6 {
		c.enqueue(
			func(cc *CPU) { cc.scratch8 = cc.read8(cc.HL()) },
			func(cc *CPU) {
				old := cc.scratch8
				v := old
				if isInc {
					v++
				} else {
					v--
				}
				cc.write8(cc.HL(), v)
				var h bool
				if isInc {
					h = old&0x0F == 0x0F
				} else {
					h = old&0x0F == 0x00
				}
				cc.setZNHC(v == 0, !isInc, h, cc.carry())
			},
		)
		return
	}
	p := c.reg8(d)
	old := *p
	if isInc {
		*p++
	} else {
		*p--
	}
	var h bool
	if isInc {
		h = old&0x0F == 0x0F
	} else {
		h = old&0x0F == 0x00
	}
	c.setZNHC(*p == 0, !isInc, h, c.carry())
}

func (c *CPU) decodeLDA16Accum(op byte) {
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) { cc.addr = cc.scratch16 | uint16(cc.fetchOpcodeByte())<<8 },
		func(cc *CPU) {
			if op == 0xEA {
				cc.write8(cc.addr, cc.A)
			} else {
				cc.A = cc.read8(cc.addr)
			}
		},
	)
}

func (c *CPU) decodeJPImm() {
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) { cc.addr = cc.scratch16 | uint16(cc.fetchOpcodeByte())<<8 },
		func(cc *CPU) { cc.PC = cc.addr },
	)
}

func (c *CPU) decodeJPCCImm(op byte) {
	taken := c.condition(op)
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) {
			cc.addr = cc.scratch16 | uint16(cc.fetchOpcodeByte())<<8
			if taken {
				cc.enqueue(func(ccc *CPU) { ccc.PC = ccc.addr })
			}
		},
	)
}

func (c *CPU) condition(op byte) bool {
	switch (op >> 3) & 3 {
	case 0:
		return !c.zero()
	case 1:
		return c.zero()
	case 2:
		return !c.carry()
	default:
		return c.carry()
	}
}

func (c *CPU) decodeJR(taken bool) {
	c.enqueue(func(cc *CPU) {
		off := int8(cc.fetchOpcodeByte())
		if taken {
			cc.enqueue(func(ccc *CPU) {
				ccc.PC = uint16(int32(ccc.PC) + int32(off))
			})
		}
	})
}

func (c *CPU) decodeCALL(taken bool) {
	c.enqueue(
		func(cc *CPU) { cc.scratch16 = uint16(cc.fetchOpcodeByte()) },
		func(cc *CPU) {
			cc.addr = cc.scratch16 | uint16(cc.fetchOpcodeByte())<<8
			if taken {
				cc.enqueue(func(ccc *CPU) {
					ccc.push16Queued(ccc.PC, func(cccc *CPU) { cccc.PC = cccc.addr })
				})
			}
		},
	)
}

func (c *CPU) decodeRET(conditional bool, taken bool) {
	if conditional {
		c.enqueue(func(cc *CPU) {
			if taken {
				cc.enqueue(
					func(ccc *CPU) { ccc.scratch8 = ccc.read8(ccc.SP); ccc.SP++ },
					func(ccc *CPU) {
						hi := uint16(ccc.read8(ccc.SP))
						ccc.SP++
						ccc.scratch16 = uint16(ccc.scratch8) | hi<<8
					},
					func(ccc *CPU) { ccc.PC = ccc.scratch16 },
				)
			}
		})
		return
	}
	c.enqueue(
		func(cc *CPU) { cc.scratch8 = cc.read8(cc.SP); cc.SP++ },
		func(cc *CPU) {
			hi := uint16(cc.read8(cc.SP))
			cc.SP++
			cc.scratch16 = uint16(cc.scratch8) | hi<<8
		},
		func(cc *CPU) { cc.PC = cc.scratch16 },
	)
}

func (c *CPU) decodeRETI() {
	c.enqueue(
		func(cc *CPU) { cc.scratch8 = cc.read8(cc.SP); cc.SP++ },
		func(cc *CPU) {
			hi := uint16(cc.read8(cc.SP))
			cc.SP++
			cc.scratch16 = uint16(cc.scratch8) | hi<<8
		},
		func(cc *CPU) {
			cc.PC = cc.scratch16
			cc.IME = true
		},
	)
}

func (c *CPU) decodeRST(op byte) {
	target := uint16(op & 0x38)
	c.enqueue(func(cc *CPU) {
		cc.push16Queued(cc.PC, func(ccc *CPU) { ccc.PC = target })
	})
}

func (c *CPU) decodeINCDECWide(op byte, isInc bool) {
	c.enqueue(func(cc *CPU) {
		switch (op >> 4) & 3 {
		case 0:
			if isInc {
				cc.SetBC(cc.BC() + 1)
			} else {
				cc.SetBC(cc.BC() - 1)
			}
		case 1:
			if isInc {
				cc.SetDE(cc.DE() + 1)
			} else {
				cc.SetDE(cc.DE() - 1)
			}
		case 2:
			if isInc {
				cc.SetHL(cc.HL() + 1)
			} else {
				cc.SetHL(cc.HL() - 1)
			}
		case 3:
			if isInc {
				cc.SP++
			} else {
				cc.SP--
			}
		}
	})
}

func (c *CPU) execAddHLRR(op byte) {
	var rr uint16
	switch (op >> 4) & 3 {
	case 0:
		rr = c.BC()
	case 1:
		rr = c.DE()
	case 2:
		rr = c.HL()
	case 3:
		rr = c.SP
	}
	c.enqueue(func(cc *CPU) {
		hl := cc.HL()
		r := uint32(hl) + uint32(rr)
		h := ((hl & 0x0FFF) + (rr & 0x0FFF)) > 0x0FFF
		cc.SetHL(uint16(r))
		cc.setZNHC(cc.zero(), false, h, r > 0xFFFF)
	})
}

func (c *CPU) decodeLDHLSPOffset() {
	c.enqueue(func(cc *CPU) {
		off := int8(cc.fetchOpcodeByte())
		low := byte(cc.SP & 0xFF)
		_, _, _, h, cy := cc.add8(low, byte(off))
		cc.SetHL(uint16(int32(int16(cc.SP)) + int32(off)))
		cc.setZNHC(false, false, h, cy)
	})
}

func (c *CPU) decodeAddSPOffset() {
	c.enqueue(
		func(cc *CPU) { cc.scratch8 = cc.fetchOpcodeByte() },
		func(cc *CPU) {}, // internal delay
		func(cc *CPU) {
			off := int8(cc.scratch8)
			low := byte(cc.SP & 0xFF)
			_, _, _, h, cy := cc.add8(low, byte(off))
			cc.SP = uint16(int32(int16(cc.SP)) + int32(off))
			cc.setZNHC(false, false, h, cy)
		},
	)
}

func (c *CPU) decodePUSH(op byte) {
	var v uint16
	switch (op >> 4) & 3 {
	case 0:
		v = c.BC()
	case 1:
		v = c.DE()
	case 2:
		v = c.HL()
	case 3:
		v = c.AF()
	}
	c.enqueue(func(cc *CPU) {
		cc.push16Queued(v, nil)
	})
}

func (c *CPU) decodePOP(op byte) {
	c.enqueue(
		func(cc *CPU) { cc.scratch8 = cc.read8(cc.SP); cc.SP++ },
		func(cc *CPU) {
			hi := uint16(cc.read8(cc.SP))
			cc.SP++
			v := uint16(cc.scratch8) | hi<<8
			switch (op >> 4) & 3 {
			case 0:
				cc.SetBC(v)
			case 1:
				cc.SetDE(v)
			case 2:
				cc.SetHL(v)
			case 3:
				cc.SetAF(v)
			}
		},
	)
}

// decodeCB executes a CB-prefixed opcode. Register operands complete
// within the same M-cycle as the CB-opcode fetch; (HL) operands need
// one more M-cycle to read, and rotate/SET/RES groups need a further
// M-cycle to write back (BIT never writes back).
func (c *CPU) decodeCB(cb byte) {
	reg := cb & 7
	group := (cb >> 6) & 3
	y := (cb >> 3) & 7

	if reg != 6 {
		p := c.reg8(reg)
		switch group {
		case 0:
			*p = c.applyShift(y, *p)
		case 1:
			c.applyBit(y, *p)
		case 2:
			*p &^= 1 << y
		case 3:
			*p |= 1 << y
		}
		return
	}

	switch group {
	case 1: // BIT y,(HL): read only
		c.enqueue(func(cc *CPU) {
			cc.applyBit(y, cc.read8(cc.HL()))
		})
	default: // rotate/shift/swap, RES, SET: read then write
		c.enqueue(
			func(cc *CPU) { cc.scratch8 = cc.read8(cc.HL()) },
			func(cc *CPU) {
				var v byte
				switch group {
				case 0:
					v = cc.applyShift(y, cc.scratch8)
				case 2:
					v = cc.scratch8 &^ (1 << y)
				case 3:
					v = cc.scratch8 | (1 << y)
				}
				cc.write8(cc.HL(), v)
			},
		)
	}
}

func (c *CPU) applyShift(y byte, v byte) byte {
	var cflag byte
	switch y {
	case 0: // RLC
		cflag = (v >> 7) & 1
		v = (v << 1) | cflag
	case 1: // RRC
		cflag = v & 1
		v = (v >> 1) | (cflag << 7)
	case 2: // RL
		cflag = (v >> 7) & 1
		cin := byte(0)
		if c.carry() {
			cin = 1
		}
		v = (v << 1) | cin
	case 3: // RR
		cflag = v & 1
		cin := byte(0)
		if c.carry() {
			cin = 1
		}
		v = (v >> 1) | (cin << 7)
	case 4: // SLA
		cflag = (v >> 7) & 1
		v <<= 1
	case 5: // SRA
		cflag = v & 1
		v = (v >> 1) | (v & 0x80)
	case 6: // SWAP
		v = (v << 4) | (v >> 4)
		c.setZNHC(v == 0, false, false, false)
		return v
	case 7: // SRL
		cflag = v & 1
		v >>= 1
	}
	c.setZNHC(v == 0, false, false, cflag == 1)
	return v
}

func (c *CPU) applyBit(y byte, v byte) {
	bit := (v >> y) & 1
	c.F = (c.F & flagC) | flagH
	if bit == 0 {
		c.F |= flagZ
	}
}
