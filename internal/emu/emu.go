package emu

import (
	"io"
	"os"

	"github.com/fennwood/dmgcore/internal/bus"
	"github.com/fennwood/dmgcore/internal/cart"
	"github.com/fennwood/dmgcore/internal/cpu"
	"github.com/fennwood/dmgcore/internal/joypad"
	"github.com/fennwood/dmgcore/internal/ppu"
)

// dmgShade maps the PPU's 2-bit DMG shade index (0 lightest .. 3 darkest,
// see ppu.RenderScanline) to an 8-bit grayscale level for the RGBA
// framebuffer; picking an actual color scheme for those four shades is a
// front-end concern, not the core's, so Machine only ever emits grayscale.
var dmgShade = [4]byte{0xFF, 0xAA, 0x55, 0x00}

// Buttons is the joypad state a front end samples once per frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// cyclesPerFrame is the machine-cycle budget of one 154-scanline DMG
// frame: 70224 T-states divided into 4 T-states per machine cycle.
const cyclesPerFrame = 70224 / 4

// Machine is the owning aggregate the core's design notes ask for in
// place of the original's process-wide singletons: it threads CPU, Bus,
// Cartridge, Timer, PPU, APU and Joypad through a single value so a
// front end (or a test) can run more than one instance side by side.
type Machine struct {
	cfg Config

	cpu *cpu.CPU
	bus *bus.Bus
	rom []byte

	romPath  string
	romTitle string

	w, h int
	fb   []byte // RGBA 160x144*4
}

// New creates a Machine with no cartridge loaded yet.
func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg, w: 160, h: 144,
		fb: make([]byte, 160*144*4),
	}
}

// LoadCartridge parses the ROM header, builds the matching MBC, and
// wires a fresh CPU/Bus pair around it. Replaces any cartridge already
// loaded.
func (m *Machine) LoadCartridge(rom []byte) error {
	c, err := cart.NewCartridge(rom)
	if err != nil {
		return err
	}
	m.bus = bus.NewWithCartridge(c)
	m.cpu = cpu.New(m.bus)
	m.rom = rom
	m.romPath = ""
	m.romTitle = ""
	if h, err := cart.ParseHeader(rom); err == nil {
		m.romTitle = h.Title
	}
	return nil
}

// LoadROMFromFile reads path and loads it as a cartridge image.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadCartridge(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile loaded the current cartridge
// from, or "" if none was loaded that way.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title of the loaded ROM.
func (m *Machine) ROMTitle() string { return m.romTitle }

// LoadBattery restores persisted battery-backed cartridge RAM, e.g. from
// a .sav file saved next to the ROM. Reports whether the cartridge
// supports battery RAM at all.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns the cartridge's current battery-backed RAM
// contents, or ok=false if the cartridge has none.
func (m *Machine) SaveBattery() (data []byte, ok bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, isBattery := m.bus.Cart().(cart.BatteryBacked)
	if !isBattery {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// ResetPostBoot reloads the current cartridge and resets the CPU to the
// DMG's power-on register state, as if no boot ROM ran.
func (m *Machine) ResetPostBoot() error {
	if m.rom == nil {
		return nil
	}
	rom, path, title := m.rom, m.romPath, m.romTitle
	if err := m.LoadCartridge(rom); err != nil {
		return err
	}
	m.romPath, m.romTitle = path, title
	return nil
}

// SetSerialWriter routes the link-cable byte stream to w. Serial link
// cable emulation to another emulator instance is out of scope; this
// exists because Blargg's CPU test ROMs report pass/fail over serial
// and it is the simplest observation point for that.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetButtons applies the front end's sampled joypad state for the next
// frame.
func (m *Machine) SetButtons(btn Buttons) {
	if m.bus == nil {
		return
	}
	var mask byte
	if btn.Right {
		mask |= joypad.Right
	}
	if btn.Left {
		mask |= joypad.Left
	}
	if btn.Up {
		mask |= joypad.Up
	}
	if btn.Down {
		mask |= joypad.Down
	}
	if btn.A {
		mask |= joypad.A
	}
	if btn.B {
		mask |= joypad.B
	}
	if btn.Select {
		mask |= joypad.Select
	}
	if btn.Start {
		mask |= joypad.Start
	}
	m.bus.SetJoypadState(mask)
}

// StepFrameNoRender runs the CPU for one frame's worth of machine
// cycles without touching the framebuffer, the shape a headless test
// runner (or a fast-forward mode) wants.
func (m *Machine) StepFrameNoRender() {
	if m.cpu == nil {
		return
	}
	for total := 0; total < cyclesPerFrame; {
		total += m.cpu.Step()
	}
}

// StepFrame runs one frame and refreshes the framebuffer.
func (m *Machine) StepFrame() {
	m.StepFrameNoRender()
	m.render()
}

// render walks the PPU's 144 visible scanlines through
// ppu.RenderScanline — which in turn drives the BG/window fetcher
// (internal/ppu/fetcher.go, scanline.go) and the sprite compositor
// (internal/ppu/sprite.go) against live VRAM/OAM — and blits the
// resulting DMG shade indices into the RGBA framebuffer callers read
// via Framebuffer().
func (m *Machine) render() {
	if m.bus == nil {
		return
	}
	p := m.bus.PPU()
	for ly := 0; ly < m.h; ly++ {
		line := ppu.RenderScanline(p, ly)
		row := ly * m.w * 4
		for x := 0; x < m.w; x++ {
			c := dmgShade[line[x]]
			i := row + x*4
			m.fb[i+0] = c
			m.fb[i+1] = c
			m.fb[i+2] = c
			m.fb[i+3] = 0xFF
		}
	}
}

func (m *Machine) Framebuffer() []byte { return m.fb }
func (m *Machine) CPU() *cpu.CPU       { return m.cpu }
func (m *Machine) Bus() *bus.Bus       { return m.bus }

// APUPullStereo drains up to max interleaved left/right sample pairs
// from the APU's output ring, the way an audio player's streaming
// callback pulls PCM.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.bus == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUBufferedStereo reports how many stereo frames are currently
// queued in the APU's output ring.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}
