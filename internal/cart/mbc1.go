package cart

// MBC1 implements MBC1 ROM/RAM banking: a 5-bit low ROM bank number, a
// 2-bit register shared between RAM bank and the high ROM bank bits,
// and a mode select that decides which role the shared register
// plays. Banking math mirrors the translation formulas used by the
// reference MBC1 implementation this was derived from.
type MBC1 struct {
	rom []byte
	ram []byte

	sramEnable bool
	lowBank    byte // 5 bits; 0 remaps to 1
	highBank   byte // 2 bits: RAM bank in mode 1, ROM bank bits 5-6 in mode 0
	bankMode   bool // false: ROM banking mode, true: RAM banking mode
	romBanks   int  // total 16 KiB ROM banks, used to mask lowBank
}

// NewMBC1 constructs an MBC1 controller for a romBanks-bank image
// with ramSize bytes of external RAM.
func NewMBC1(rom []byte, ramSize int, romBanks int) *MBC1 {
	m := &MBC1{rom: rom, lowBank: 1, romBanks: romBanks}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	if m.romBanks == 0 {
		m.romBanks = 1
	}
	return m
}

// romAddr translates a CPU address in 0x0000-0x7FFF to a flat offset
// into the backing ROM image.
func (m *MBC1) romAddr(addr uint16) int {
	low := int(m.lowBank) & (m.romBanks - 1)
	high := int(m.highBank)
	switch {
	case addr < 0x4000:
		if m.bankMode {
			return (high << 19) | int(addr&0x3FFF)
		}
		return int(addr & 0x3FFF)
	default: // 0x4000-0x7FFF
		return (high << 19) | (low << 14) | int(addr&0x3FFF)
	}
}

func (m *MBC1) ramAddr(addr uint16) int {
	if m.bankMode {
		return (int(m.highBank) << 13) | int(addr&0x1FFF)
	}
	return int(addr & 0x1FFF)
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		off := m.romAddr(addr)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.sramEnable || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramAddr(addr)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.sramEnable = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x1F
		if v == 0 {
			v = 1
		}
		m.lowBank = v
	case addr < 0x6000:
		m.highBank = value & 0x03
	case addr < 0x8000:
		m.bankMode = value&0x01 != 0
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.sramEnable || len(m.ram) == 0 {
			return
		}
		off := m.ramAddr(addr)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

func (m *MBC1) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAM(data []byte) {
	copy(m.ram, data)
}
