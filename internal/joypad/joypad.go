// Package joypad models the DMG's JOYP register at 0xFF00. It is an
// external collaborator (see spec.md §1) — the core only needs its
// memory-mapped read/write contract and its edge-triggered interrupt.
package joypad

import "github.com/fennwood/dmgcore/internal/interrupt"

// Button bitmask values for SetPressed. Bits set mean "pressed".
const (
	Right = 1 << iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Joypad tracks which buttons are held and the last written select bits.
type Joypad struct {
	selects byte // bits 4-5 as last written (0 = group selected)
	pressed byte // Button bitmask of held buttons
	lastLow byte // previous computed low nibble, for edge detection

	irq *interrupt.Controller
}

func New(ctrl *interrupt.Controller) *Joypad {
	return &Joypad{irq: ctrl, lastLow: 0x0F}
}

// Read returns the JOYP byte: bits 7-6 always read 1, bits 5-4 echo the
// last select write, bits 3-0 are the active-low state of whichever
// button group(s) are selected.
func (j *Joypad) Read() byte {
	return 0xC0 | (j.selects & 0x30) | j.lowNibble()
}

// Write updates the select bits (bits 4-5) and re-evaluates the
// interrupt edge.
func (j *Joypad) Write(v byte) {
	j.selects = v & 0x30
	j.updateEdge()
}

// SetPressed replaces the held-button mask (bits per the constants above;
// set means pressed) and re-evaluates the interrupt edge.
func (j *Joypad) SetPressed(mask byte) {
	j.pressed = mask
	j.updateEdge()
}

func (j *Joypad) lowNibble() byte {
	n := byte(0x0F)
	if j.selects&0x10 == 0 { // P14 low selects D-pad
		if j.pressed&Right != 0 {
			n &^= 0x01
		}
		if j.pressed&Left != 0 {
			n &^= 0x02
		}
		if j.pressed&Up != 0 {
			n &^= 0x04
		}
		if j.pressed&Down != 0 {
			n &^= 0x08
		}
	}
	if j.selects&0x20 == 0 { // P15 low selects buttons
		if j.pressed&A != 0 {
			n &^= 0x01
		}
		if j.pressed&B != 0 {
			n &^= 0x02
		}
		if j.pressed&Select != 0 {
			n &^= 0x04
		}
		if j.pressed&Start != 0 {
			n &^= 0x08
		}
	}
	return n
}

// updateEdge raises the joypad interrupt on any 1->0 transition of the
// low nibble, the hardware's documented trigger condition.
func (j *Joypad) updateEdge() {
	n := j.lowNibble()
	if j.lastLow&^n != 0 {
		j.irq.Request(interrupt.Joypad)
	}
	j.lastLow = n
}
