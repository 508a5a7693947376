// Package timer models the DMG's free-running divider and the
// configurable TIMA/TMA/TAC counter. It requests interrupts through the
// same Controller the CPU dispatches from, the way the teacher's bus
// wired its timer fields directly to the IF register.
package timer

import "github.com/fennwood/dmgcore/internal/interrupt"

// Timer owns DIV (0xFF04), TIMA (0xFF05), TMA (0xFF06) and TAC (0xFF07).
// Step is invoked once per machine cycle consumed by the CPU, per
// spec.md's CPU<->Timer contract ("timer_step() invoked cyclesDelta
// times at the start of each CPU step"). Every bit position below is
// expressed in machine-cycle units rather than the four-times-faster
// master-clock units some references use.
type Timer struct {
	div  uint16 // internal divider, incremented once per machine cycle
	tima byte
	tma  byte
	tac  byte

	// reloadDelay counts down the 4 machine-cycle gap between TIMA
	// overflowing to 0x00 and it being reloaded from TMA plus the
	// timer interrupt firing. A write to TIMA during this window
	// cancels the reload.
	reloadDelay int

	irq *interrupt.Controller
}

// New creates a Timer that raises interrupts through ctrl.
func New(ctrl *interrupt.Controller) *Timer {
	return &Timer{irq: ctrl}
}

func (t *Timer) ReadDIV() byte  { return byte(t.div >> 6) }
func (t *Timer) ReadTIMA() byte { return t.tima }
func (t *Timer) ReadTMA() byte  { return t.tma }
func (t *Timer) ReadTAC() byte  { return 0xF8 | (t.tac & 0x07) }

// WriteDIV resets the internal divider to zero. Because TIMA increments
// on a falling edge of one of the divider's bits, resetting DIV can
// itself cause an increment if that bit happened to be high.
func (t *Timer) WriteDIV() {
	before := t.inputHigh()
	t.div = 0
	if before && !t.inputHigh() {
		t.incrementTIMA()
	}
}

// WriteTIMA sets TIMA directly. If a reload from TMA is pending (TIMA
// just overflowed within the last 4 cycles), the write cancels it.
func (t *Timer) WriteTIMA(v byte) {
	t.tima = v
	t.reloadDelay = 0
}

func (t *Timer) WriteTMA(v byte) { t.tma = v }

// WriteTAC sets the enable bit and clock-select bits. Like DIV, changing
// the selected bit can cause a spurious falling-edge increment.
func (t *Timer) WriteTAC(v byte) {
	before := t.inputHigh()
	t.tac = v & 0x07
	if before && !t.inputHigh() {
		t.incrementTIMA()
	}
}

// inputHigh reports the current state of the divider bit TAC selects,
// gated by the TAC enable bit. Bit positions are chosen so the selected
// frequencies (4096/262144/65536/16384 Hz) come out right when div is
// incremented once per machine cycle (1.048576 MHz) rather than once per
// master-clock cycle.
func (t *Timer) inputHigh() bool {
	if t.tac&0x04 == 0 {
		return false
	}
	var bit uint
	switch t.tac & 0x03 {
	case 0x00:
		bit = 7 // 4096 Hz
	case 0x01:
		bit = 1 // 262144 Hz
	case 0x02:
		bit = 3 // 65536 Hz
	case 0x03:
		bit = 5 // 16384 Hz
	}
	return (t.div>>bit)&1 != 0
}

// Step advances the timer by one machine cycle, per the CPU↔Timer
// contract: it's called cyclesDelta times at the start of each CPU step.
func (t *Timer) Step() {
	before := t.inputHigh()
	t.div++
	falling := before && !t.inputHigh()

	reloaded := false
	if t.reloadDelay > 0 {
		t.reloadDelay--
		if t.reloadDelay == 0 {
			t.tima = t.tma
			t.irq.Request(interrupt.Timer)
			reloaded = true
		}
	}

	// A falling edge on the reload cycle itself is ignored, like the
	// edges earlier in the reload window.
	if falling && !reloaded {
		t.incrementTIMA()
	}
}

func (t *Timer) incrementTIMA() {
	if t.reloadDelay > 0 {
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.reloadDelay = 4
		return
	}
	t.tima++
}
