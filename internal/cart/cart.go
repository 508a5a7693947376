package cart

import "fmt"

// Cartridge is the minimal interface the Bus needs for ROM/RAM banking.
// Implementations can be ROM-only or any MBC variant. Addresses are CPU
// addresses, not offsets into the underlying ROM/RAM slices.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM
	// (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM
	// writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
}

// BatteryBacked is an optional interface for cartridges whose external RAM
// should survive across runs. Implementations return a copy of RAM bytes
// (nil if there is no RAM) and accept data to restore into it.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// UnsupportedCartridgeError reports a cartridge-type byte this core has no
// MBC implementation for.
type UnsupportedCartridgeError struct {
	CartType byte
}

func (e *UnsupportedCartridgeError) Error() string {
	return fmt.Sprintf("cart: unsupported cartridge type 0x%02X", e.CartType)
}

// NewCartridge picks an implementation based on the ROM header's cartridge
// type byte. It returns an error rather than silently falling back to
// ROM-only, so a loader can refuse to run ROMs this core cannot bank
// correctly instead of running them wrong.
func NewCartridge(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	switch h.CartType {
	case 0x00:
		return NewMBC0(rom), nil
	case 0x01, 0x02, 0x03: // MBC1, MBC1+RAM, MBC1+RAM+BATTERY
		return NewMBC1(rom, h.RAMSizeBytes), nil
	case 0x05, 0x06: // MBC2, MBC2+BATTERY
		return NewMBC2(rom), nil
	case 0x0F, 0x10, 0x11, 0x12, 0x13: // MBC3 (+TIMER/+RAM/+BATTERY variants)
		return NewMBC3(rom, h.RAMSizeBytes), nil
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E: // MBC5 variants
		return NewMBC5(rom, h.RAMSizeBytes), nil
	default:
		return nil, &UnsupportedCartridgeError{CartType: h.CartType}
	}
}
