// Package bus implements the DMG's 16-bit CPU address space: it dispatches
// every Read/Write the CPU issues to the cartridge, work RAM, high RAM, or
// one of the external collaborators (PPU, timer, joypad, interrupt
// controller, serial port).
package bus

import (
	"io"

	"github.com/fennwood/dmgcore/internal/apu"
	"github.com/fennwood/dmgcore/internal/cart"
	"github.com/fennwood/dmgcore/internal/interrupt"
	"github.com/fennwood/dmgcore/internal/joypad"
	"github.com/fennwood/dmgcore/internal/ppu"
	"github.com/fennwood/dmgcore/internal/timer"
)

// sampleRate is the APU's output sample rate; 48kHz matches what
// ebiten/v2/audio's default context expects.
const sampleRate = 48000

// Bus wires CPU-visible address space to the cartridge, WRAM, HRAM, and the
// memory-mapped I/O registers of the surrounding collaborators.
type Bus struct {
	cart cart.Cartridge

	// Work RAM 8 KiB at 0xC000-0xDFFF; Echo RAM 0xE000-0xFDFF mirrors it.
	wram [0x2000]byte

	// High RAM 0xFF80-0xFFFE (127 bytes).
	hram [0x7F]byte

	ppu    *ppu.PPU
	apu    *apu.APU
	irq    *interrupt.Controller
	timer  *timer.Timer
	joypad *joypad.Joypad

	// Serial port: SB/SC registers, with a local-echo sink since full
	// link-cable emulation is out of scope.
	sb byte
	sc byte
	sw io.Writer

	// OAM DMA state: 160-byte block copy from dmaSrc into OAM, one byte
	// per machine cycle.
	dma       byte
	dmaActive bool
	dmaSrc    uint16
	dmaIndex  int
}

// New constructs a Bus from a ROM image, auto-detecting the cartridge's MBC
// from its header. It panics if the cartridge type isn't supported; callers
// that need a recoverable error should call cart.NewCartridge themselves
// and use NewWithCartridge.
func New(rom []byte) *Bus {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		panic(err)
	}
	return NewWithCartridge(c)
}

// NewWithCartridge wires a provided cartridge implementation.
func NewWithCartridge(c cart.Cartridge) *Bus {
	irq := &interrupt.Controller{}
	b := &Bus{
		cart:   c,
		irq:    irq,
		timer:  timer.New(irq),
		joypad: joypad.New(irq),
		apu:    apu.New(sampleRate),
	}
	b.ppu = ppu.New(func(bit int) { b.irq.Request(interrupt.Source(bit)) })
	return b
}

// PPU returns the internal PPU for rendering helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU, e.g. for a front end's audio player to
// pull mixed samples from.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge, e.g. for battery RAM persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// Interrupts returns the interrupt controller the CPU dispatches from.
func (b *Bus) Interrupts() *interrupt.Controller { return b.irq }

func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wram[addr-0xC000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wram[addr-0x2000-0xC000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF
	case addr == 0xFF00:
		return b.joypad.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.timer.ReadDIV()
	case addr == 0xFF05:
		return b.timer.ReadTIMA()
	case addr == 0xFF06:
		return b.timer.ReadTMA()
	case addr == 0xFF07:
		return b.timer.ReadTAC()
	case addr == 0xFF0F:
		return b.irq.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF26:
		return b.apu.CPURead(addr)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.dma
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.irq.ReadIE()
	}
	return 0xFF
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wram[addr-0xC000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wram[addr-0x2000-0xC000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.dmaActive {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// Unusable region, writes ignored.
	case addr == 0xFF00:
		b.joypad.Write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.irq.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.timer.WriteDIV()
	case addr == 0xFF05:
		b.timer.WriteTIMA(value)
	case addr == 0xFF06:
		b.timer.WriteTMA(value)
	case addr == 0xFF07:
		b.timer.WriteTAC(value)
	case addr == 0xFF0F:
		b.irq.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF26:
		b.apu.CPUWrite(addr, value)
	case addr >= 0xFF30 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.dma = value
		b.dmaActive = true
		b.dmaSrc = uint16(value) << 8
		b.dmaIndex = 0
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.irq.WriteIE(value)
	}
}

// SetJoypadState sets which buttons are currently pressed, using the
// bitmask constants in internal/joypad.
func (b *Bus) SetJoypadState(mask byte) { b.joypad.SetPressed(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial
// port, the way Blargg-style test ROMs report pass/fail.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// Tick advances the bus by cycles machine cycles, matching the CPU's step
// contract: the timer steps once per machine cycle, OAM DMA copies one byte
// per machine cycle, and the PPU and APU (which still model their own
// internal timing in T-states) are each driven four dots per machine cycle.
func (b *Bus) Tick(cycles int) {
	for i := 0; i < cycles; i++ {
		b.timer.Step()
		b.ppu.Tick(4)
		b.apu.Tick(4)
		b.stepDMA()
	}
}

func (b *Bus) stepDMA() {
	if !b.dmaActive {
		return
	}
	if b.dmaIndex < 0xA0 {
		v := b.Read(b.dmaSrc + uint16(b.dmaIndex))
		b.ppu.CPUWrite(0xFE00+uint16(b.dmaIndex), v)
		b.dmaIndex++
	}
	if b.dmaIndex >= 0xA0 {
		b.dmaActive = false
	}
}
