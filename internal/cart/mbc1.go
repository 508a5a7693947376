package cart

// MBC1 implements ROM banking up to 2MB and RAM banking up to 32KB via the
// classic primary/secondary bank register pair plus a mode-select latch.
type MBC1 struct {
	rom      []byte
	ram      []byte
	romBanks int // declared ROM bank count; every effective bank index wraps modulo this

	ramEnable      bool
	primaryBank    byte // low 5 bits of the ROM bank number, 0 remapped to 1
	secondaryBank  byte // 2 bits: ROM bank bits 5-6 of 0x4000-0x7FFF in both modes; in mode 1 also the RAM bank and the 0x0000-0x3FFF bank
	bankModeSelect byte // 0: ROM banking mode, 1: RAM banking mode
}

func NewMBC1(rom []byte, ramSize int) *MBC1 {
	banks := len(rom) / 0x4000
	if banks == 0 {
		banks = 1
	}
	m := &MBC1{rom: rom, romBanks: banks, primaryBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if m.bankModeSelect == 0 {
			if int(addr) < len(m.rom) {
				return m.rom[addr]
			}
			return 0xFF
		}
		bank := (int(m.secondaryBank&0x03) << 5) % m.romBanks
		off := bank*0x4000 + int(addr)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.effectiveROMBank()) % m.romBanks
		off := bank*0x4000 + int(addr-0x4000)
		if off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnable || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.effectiveRAMBank()*0x2000 + int(addr-0xA000)
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
		m.ramEnable = value&0x0F == 0x0A
	case addr < 0x4000:
		m.primaryBank = value & 0x1F
		if m.primaryBank == 0 {
			m.primaryBank = 1
		}
	case addr < 0x6000:
		m.secondaryBank = value & 0x03
	case addr < 0x8000:
		m.bankModeSelect = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnable || len(m.ram) == 0 {
			return
		}
		off := m.effectiveRAMBank()*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// effectiveROMBank combines the primary 5-bit register with the secondary
// 2-bit register (always applied in the switchable 0x4000-0x7FFF window,
// regardless of mode). This reproduces the 0x00/0x20/0x40/0x60 write
// quirk: writing one of those to the primary register remaps to 1 within
// the 5-bit field, then the secondary bits are ORed back in, producing
// effective banks 0x21/0x41/0x61.
func (m *MBC1) effectiveROMBank() byte {
	return m.primaryBank | (m.secondaryBank << 5)
}

func (m *MBC1) effectiveRAMBank() int {
	if m.bankModeSelect == 1 {
		return int(m.secondaryBank & 0x03)
	}
	return 0
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
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	copy(m.ram, data)
}
