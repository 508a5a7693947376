package cpu

import (
	"testing"

	"github.com/fennwood/dmgcore/internal/bus"
	"github.com/fennwood/dmgcore/internal/interrupt"
	"github.com/stretchr/testify/require"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom[0x0100:], code)
	b := bus.New(rom)
	return New(b)
}

// TestCPU_ResetState checks the power-on register file the spec assigns
// when no boot ROM runs: AF=0x01B0, BC=0x0013, DE=0x00D8, HL=0x014D,
// SP=0xFFFE, PC=0x0100.
func TestCPU_ResetState(t *testing.T) {
	c := newCPUWithROM(nil)
	require.Equal(t, byte(0x01), c.A)
	require.Equal(t, byte(0xB0), c.F)
	require.Equal(t, byte(0x00), c.B)
	require.Equal(t, byte(0x13), c.C)
	require.Equal(t, byte(0x00), c.D)
	require.Equal(t, byte(0xD8), c.E)
	require.Equal(t, byte(0x01), c.H)
	require.Equal(t, byte(0x4D), c.L)
	require.Equal(t, uint16(0xFFFE), c.SP)
	require.Equal(t, uint16(0x0100), c.PC)
	require.False(t, c.IME())
}

// Scenario 1: LD A,0x12; ADD A,0x34 -> A=0x46, F=0x00, PC=0x0104, each step
// charging 2 machine cycles (4 in total).
func TestCPU_Scenario1_LDAndADD(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xC6, 0x34})
	require.Equal(t, 2, c.Step()) // LD A,d8: 8 T-states = 2 machine cycles
	require.Equal(t, 2, c.Step()) // ADD A,d8: 8 T-states = 2 machine cycles
	require.Equal(t, byte(0x46), c.A)
	require.Equal(t, byte(0x00), c.F)
	require.Equal(t, uint16(0x0104), c.PC)
}

// Scenario 2: LD A,0x0F; ADD A,0x01 -> A=0x10, H set.
func TestCPU_Scenario2_HalfCarry(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x0F, 0xC6, 0x01})
	c.Step()
	c.Step()
	require.Equal(t, byte(0x10), c.A)
	require.Equal(t, byte(0x20), c.F)
}

// Scenario 3: XOR A -> A=0x00, F=0x80 (Z set), 1 machine cycle.
func TestCPU_Scenario3_XORA(t *testing.T) {
	c := newCPUWithROM([]byte{0xAF})
	c.A = 0x55
	cycles := c.Step()
	require.Equal(t, 1, cycles)
	require.Equal(t, byte(0x00), c.A)
	require.Equal(t, byte(0x80), c.F)
}

// Scenario 4: LD BC,0x1234 -> B=0x12, C=0x34, 3 machine cycles.
func TestCPU_Scenario4_LDBCImmediate(t *testing.T) {
	c := newCPUWithROM([]byte{0x01, 0x34, 0x12})
	cycles := c.Step()
	require.Equal(t, 3, cycles)
	require.Equal(t, byte(0x12), c.B)
	require.Equal(t, byte(0x34), c.C)
}

// Scenario 5: LD A,1; RLC A -> A=0x02, F=0x00, 4 machine cycles total.
func TestCPU_Scenario5_LDThenRLC(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x01, 0xCB, 0x07})
	total := c.Step() + c.Step()
	require.Equal(t, 4, total)
	require.Equal(t, byte(0x02), c.A)
	require.Equal(t, byte(0x00), c.F)
}

// Scenario 6: with IE=0x01, IF=0x01, IME=1, any NOP dispatches VBlank
// instead of executing: IME clears, IF bit 0 clears, PC jumps to 0x0040,
// and the old PC is on the stack.
func TestCPU_Scenario6_InterruptDispatch(t *testing.T) {
	c := newCPUWithROM([]byte{0x00})
	c.ime = imeEnabled
	c.bus.Interrupts().WriteIE(0x01)
	c.bus.Interrupts().Request(interrupt.VBlank)
	oldPC := c.PC

	c.Step()

	require.False(t, c.IME())
	require.Zero(t, c.bus.Interrupts().Pending()&0x01)
	require.Equal(t, uint16(0x0040), c.PC)
	require.Equal(t, oldPC, c.read16(c.SP))
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	c.Step() // LD A,77
	c.Step() // LD (C000),A
	require.Equal(t, byte(0x77), c.bus.Read(0xC000))
	c.Step() // LD A,00
	c.Step() // LD A,(C000)
	require.Equal(t, byte(0x77), c.A)
}

func TestCPU_JP_and_JR(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0xC3 // JP 0x0010
	rom[0x0101] = 0x10
	rom[0x0102] = 0x00
	rom[0x0010] = 0x18 // JR -2 (infinite loop on itself)
	rom[0x0011] = 0xFE
	b := bus.New(rom)
	c := New(b)

	cycles := c.Step()
	require.Equal(t, 4, cycles) // JP: 16 T-states = 4 machine cycles
	require.Equal(t, uint16(0x0010), c.PC)

	pcBefore := c.PC
	c.Step()
	require.Equal(t, pcBefore, c.PC)
}

func TestCPU_INC_B_PreservesCarryAndSetsHalfCarry(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04})
	c.B = 0x0F
	c.F = 0x10 // carry set
	c.Step()
	require.Equal(t, byte(0x10), c.B)
	require.NotZero(t, c.F&0x20, "H should be set crossing the nibble boundary")
	require.NotZero(t, c.F&0x10, "C must be preserved, INC never touches it")

	c.B = 0xFF
	c.Step()
	require.Equal(t, byte(0x00), c.B)
	require.NotZero(t, c.F&0x80)
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0xCD // CALL 0x0105
	rom[0x0101] = 0x05
	rom[0x0102] = 0x01
	rom[0x0105] = 0xC9 // RET
	b := bus.New(rom)
	c := New(b)

	c.Step()
	require.Equal(t, uint16(0x0105), c.PC)

	retCycles := c.Step()
	require.Equal(t, uint16(0x0103), c.PC)
	require.Equal(t, 4, retCycles) // RET: 16 T-states = 4 machine cycles
}

func TestCPU_HALT_WakesWithoutServicingWhenIMEOff(t *testing.T) {
	c := newCPUWithROM([]byte{0x76, 0x00}) // HALT; NOP
	c.Step()                               // HALT
	require.True(t, c.Halted())

	c.bus.Interrupts().WriteIE(1 << interrupt.Timer)
	c.bus.Interrupts().Request(interrupt.Timer)

	cycles := c.Step() // wakes, IME off so it just executes the NOP
	require.False(t, c.Halted())
	require.Equal(t, 1, cycles)
	require.Equal(t, uint16(0x0102), c.PC)
}

func TestCPU_HALT_DispatchesWhenIMEOn(t *testing.T) {
	c := newCPUWithROM([]byte{0x76})
	c.Step()
	c.ime = imeEnabled
	c.bus.Interrupts().WriteIE(1 << interrupt.VBlank)
	c.bus.Interrupts().Request(interrupt.VBlank)

	c.Step()
	require.False(t, c.Halted())
	require.Equal(t, uint16(0x0040), c.PC)
	require.False(t, c.IME())
}

// EI's effect is delayed by exactly one instruction: the instruction
// right after EI still runs with interrupts disabled.
func TestCPU_EI_DelaysOneInstruction(t *testing.T) {
	c := newCPUWithROM([]byte{0xFB, 0x00, 0x00}) // EI; NOP; NOP
	c.bus.Interrupts().WriteIE(1 << interrupt.VBlank)
	c.bus.Interrupts().Request(interrupt.VBlank)

	c.Step() // EI itself: IME still off
	require.False(t, c.IME())

	c.Step() // the instruction right after EI: not interruptible, but IME commits by the end of this step
	require.True(t, c.IME())
	require.Equal(t, uint16(0x0102), c.PC, "no dispatch happened, PC just advanced past the NOP")

	c.Step() // this step's own interrupt check now sees IME enabled and dispatches
	require.Equal(t, uint16(0x0040), c.PC)
}

func TestCPU_DI_DelaysOneInstructionToo(t *testing.T) {
	c := newCPUWithROM([]byte{0xF3, 0x00}) // DI; NOP
	c.ime = imeEnabled

	c.Step() // DI itself: IME still on this step
	require.True(t, c.IME())

	c.Step() // one instruction later, it commits
	require.False(t, c.IME())
}

func TestCPU_STOP_ChargesOneCycleAndConsumesOperand(t *testing.T) {
	c := newCPUWithROM([]byte{0x10, 0x00, 0x00})
	cycles := c.Step()
	require.Equal(t, 1, cycles)
	require.Equal(t, uint16(0x0102), c.PC, "STOP consumes its operand byte")
	require.False(t, c.Halted(), "STOP does not actually halt execution")
}

func TestCPU_UnimplementedOpcodePanics(t *testing.T) {
	c := newCPUWithROM([]byte{0xD3}) // undefined opcode
	require.PanicsWithValue(t, &UnimplementedOpcodeError{Opcode: 0xD3, PC: 0x0100}, func() {
		c.Step()
	})
}

func TestCPU_TotalCyclesAccumulatesStepCosts(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xC6, 0x34, 0x00}) // LD A,d8; ADD A,d8; NOP
	var sum uint64
	sum += uint64(c.Step())
	sum += uint64(c.Step())
	sum += uint64(c.Step())
	require.Equal(t, sum, c.TotalCycles())
}

// The timer only learns about an instruction's cost on the *next* step,
// per the CPU<->Timer contract; driving enough steps still produces the
// usual falling-edge overflow behavior once that lag is accounted for.
func TestCPU_TimerEventuallyObservesExecutedCycles(t *testing.T) {
	c := newCPUWithROM(nil)
	c.bus.Write(0xFF07, 0x05) // timer enabled, divider bit 1
	c.bus.Write(0xFF06, 0xAB)
	c.bus.Write(0xFF05, 0xFF)

	for i := 0; i < 64; i++ {
		c.Step() // all NOPs (zeroed ROM), 1 machine cycle apiece
	}
	require.NotZero(t, c.bus.Read(0xFF0F)&(1<<interrupt.Timer))
}

func TestCPU_FlagsNeverSetLowNibble(t *testing.T) {
	c := newCPUWithROM([]byte{0xAF}) // XOR A
	c.Step()
	require.Zero(t, c.F&0x0F, "the low nibble of F is always zero")
}
