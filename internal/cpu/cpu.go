// Package cpu implements the 6502-family CPU at the heart of the
// console: the 151 documented opcodes, every addressing mode, and the
// reset/NMI/IRQ/BRK interrupt sequences, accounted one bus access at a
// time so the owning console can tick the PPU and APU in lockstep.
package cpu

import (
	"errors"
	"fmt"
)

// AddressingMode names how an instruction's operand address is formed.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndexedIndirect // (zp,X)
	IndirectIndexed // (zp),Y
)

const (
	stackBase = 0x0100

	nFlagMask = 0x80
	vFlagMask = 0x40
	unusedBit = 0x20
	bFlagMask = 0x10
	dFlagMask = 0x08
	iFlagMask = 0x04
	zFlagMask = 0x02
	cFlagMask = 0x01

	zeroPageMask = 0x00FF
	pageMask     = 0xFF00

	nmiVector   = 0xFFFA
	resetVector = 0xFFFC
	irqVector   = 0xFFFE
)

// ErrUnimplementedOpcode is panicked when the CPU fetches a byte with no
// entry in the documented 151-opcode table: illegal opcodes are out of
// scope and treated as a fatal emulation error rather than emulated.
var ErrUnimplementedOpcode = errors.New("unimplemented opcode")

// Memory is the single access point the CPU uses for every read and
// write: instruction fetch, operand fetch, stack push/pop, vector read.
// Each call is one CPU cycle; the owning console ticks the PPU and APU
// from inside its Memory implementation so timing stays exact even
// through interrupt dispatch and OAM DMA.
type Memory interface {
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)
}

type instrInfo struct {
	name           string
	mode           AddressingMode
	cycles         uint8
	pageCrossExtra bool
}

// CPU is a MOS 6502 core with the decimal mode compiled out, matching
// the Ricoh 2A03/2A07 used in the console.
type CPU struct {
	A, X, Y, SP uint8
	PC          uint16

	C, Z, I, D, V, N bool

	Cycles uint64

	mem      Memory
	accesses int

	nmiLine     bool
	nmiPrevious bool
	nmiPending  bool
	irqLine     bool
}

// New constructs a CPU wired to mem. Call Reset before stepping it.
func New(mem Memory) *CPU {
	return &CPU{mem: mem}
}

func (cpu *CPU) read(addr uint16) uint8 {
	cpu.accesses++
	return cpu.mem.Read(addr)
}

func (cpu *CPU) write(addr uint16, value uint8) {
	cpu.accesses++
	cpu.mem.Write(addr, value)
}

// Reset performs the 6502's power-up/reset sequence: SP drops by 3
// (three dummy stack "pushes" that never write, since R/W stays high),
// I is forced set, and PC loads from the reset vector. Seven bus
// accesses total, none of them a real write.
func (cpu *CPU) Reset() {
	cpu.SP -= 3
	cpu.I = true
	for i := 0; i < 5; i++ {
		cpu.read(cpu.PC)
	}
	lo := uint16(cpu.read(resetVector))
	hi := uint16(cpu.read(resetVector + 1))
	cpu.PC = hi<<8 | lo
	cpu.Cycles += 7
	cpu.accesses = 0
}

// SetNMI latches the PPU's NMI line. The request is edge-triggered:
// pending is set once per assertion, on the line's transition into the
// asserted state, so holding the line through a whole VBlank fires a
// single NMI. This is also what makes "enable NMI while the VBlank flag
// is already set" fire immediately: the line transitions the moment the
// control register's enable bit goes high.
func (cpu *CPU) SetNMI(asserted bool) {
	if asserted && !cpu.nmiPrevious {
		cpu.nmiPending = true
	}
	cpu.nmiPrevious = asserted
	cpu.nmiLine = asserted
}

// AddCycles charges n cycles to the running total without issuing any
// bus access. The owning console uses this for OAM-DMA and DMC-fetch
// stall cycles: time during which the CPU is halted but the global
// cycle clock (and the PPU/APU ticks driven from it) keeps advancing.
func (cpu *CPU) AddCycles(n uint64) {
	cpu.Cycles += n
}

// SetIRQ latches the level-triggered IRQ line (APU frame IRQ, DMC IRQ,
// mapper IRQ). Unlike NMI it is masked by the I flag and re-sampled
// every instruction, so it is fine for several sources to hold it.
func (cpu *CPU) SetIRQ(asserted bool) {
	cpu.irqLine = asserted
}

func (cpu *CPU) statusByte(breakBit bool) uint8 {
	var s uint8 = unusedBit
	if cpu.N {
		s |= nFlagMask
	}
	if cpu.V {
		s |= vFlagMask
	}
	if breakBit {
		s |= bFlagMask
	}
	if cpu.D {
		s |= dFlagMask
	}
	if cpu.I {
		s |= iFlagMask
	}
	if cpu.Z {
		s |= zFlagMask
	}
	if cpu.C {
		s |= cFlagMask
	}
	return s
}

func (cpu *CPU) setStatusByte(s uint8) {
	cpu.N = s&nFlagMask != 0
	cpu.V = s&vFlagMask != 0
	cpu.D = s&dFlagMask != 0
	cpu.I = s&iFlagMask != 0
	cpu.Z = s&zFlagMask != 0
	cpu.C = s&cFlagMask != 0
}

func (cpu *CPU) setZN(v uint8) {
	cpu.Z = v == 0
	cpu.N = v&nFlagMask != 0
}

func (cpu *CPU) push(v uint8) {
	cpu.write(stackBase+uint16(cpu.SP), v)
	cpu.SP--
}

func (cpu *CPU) pop() uint8 {
	cpu.SP++
	return cpu.read(stackBase + uint16(cpu.SP))
}

func (cpu *CPU) pushWord(v uint16) {
	cpu.push(uint8(v >> 8))
	cpu.push(uint8(v))
}

func (cpu *CPU) popWord() uint16 {
	lo := uint16(cpu.pop())
	hi := uint16(cpu.pop())
	return hi<<8 | lo
}

// Step executes exactly one instruction, or services a pending
// interrupt in place of fetching one, and returns the number of CPU
// cycles (== bus accesses) it consumed. Panics (recovered by the
// owning console) on an undocumented opcode or a mapper write the
// cartridge declares fatal.
func (cpu *CPU) Step() uint64 {
	cpu.accesses = 0

	if cpu.nmiPending {
		cpu.nmiPending = false
		cpu.serviceInterrupt(nmiVector)
		cpu.Cycles += uint64(cpu.accesses)
		return uint64(cpu.accesses)
	}
	if cpu.irqLine && !cpu.I {
		cpu.serviceInterrupt(irqVector)
		cpu.Cycles += uint64(cpu.accesses)
		return uint64(cpu.accesses)
	}

	opcode := cpu.read(cpu.PC)
	cpu.PC++

	info := instrTable[opcode]
	if info == nil {
		panic(fmt.Errorf("%w: $%02X at $%04X", ErrUnimplementedOpcode, opcode, cpu.PC-1))
	}

	addr, pageCrossed := cpu.computeAddress(info.mode)
	cpu.execute(opcode, addr)

	total := int(info.cycles)
	if info.pageCrossExtra && pageCrossed {
		total++
	}
	for cpu.accesses < total {
		cpu.read(cpu.PC)
	}

	cpu.Cycles += uint64(cpu.accesses)
	return uint64(cpu.accesses)
}

// State is a field-by-field snapshot of every mutable CPU
// register for save-state round-tripping. It excludes nothing: the
// 6502 has no state besides its registers, flags and cycle count.
type State struct {
	A, X, Y, SP uint8
	PC          uint16
	C, Z, I, D, V, N bool
	Cycles      uint64
	NMILine     bool
	NMIPrevious bool
	NMIPending  bool
	IRQLine     bool
}

// State snapshots the CPU's registers, flags and interrupt latches.
func (cpu *CPU) State() State {
	return State{
		A: cpu.A, X: cpu.X, Y: cpu.Y, SP: cpu.SP, PC: cpu.PC,
		C: cpu.C, Z: cpu.Z, I: cpu.I, D: cpu.D, V: cpu.V, N: cpu.N,
		Cycles:      cpu.Cycles,
		NMILine:     cpu.nmiLine,
		NMIPrevious: cpu.nmiPrevious,
		NMIPending:  cpu.nmiPending,
		IRQLine:     cpu.irqLine,
	}
}

// SetState restores a previously captured State.
func (cpu *CPU) SetState(s State) {
	cpu.A, cpu.X, cpu.Y, cpu.SP, cpu.PC = s.A, s.X, s.Y, s.SP, s.PC
	cpu.C, cpu.Z, cpu.I, cpu.D, cpu.V, cpu.N = s.C, s.Z, s.I, s.D, s.V, s.N
	cpu.Cycles = s.Cycles
	cpu.nmiLine = s.NMILine
	cpu.nmiPrevious = s.NMIPrevious
	cpu.nmiPending = s.NMIPending
	cpu.irqLine = s.IRQLine
}

// serviceInterrupt runs the shared 7-cycle NMI/IRQ dispatch: two filler
// reads, push PC, push status with the break bit clear, force I, load
// PC from vector.
func (cpu *CPU) serviceInterrupt(vector uint16) {
	cpu.read(cpu.PC)
	cpu.read(cpu.PC)
	cpu.pushWord(cpu.PC)
	cpu.push(cpu.statusByte(false))
	cpu.I = true
	lo := uint16(cpu.read(vector))
	hi := uint16(cpu.read(vector + 1))
	cpu.PC = hi<<8 | lo
}

// computeAddress resolves the operand address for mode, consuming
// exactly the bus accesses real hardware spends resolving it (the
// final operand read or write itself is left to execute). For
// Implied/Accumulator it consumes nothing; callers rely on Step's
// trailing filler loop to make up instructions whose total cycle
// count exceeds the accesses actually issued.
func (cpu *CPU) computeAddress(mode AddressingMode) (uint16, bool) {
	switch mode {
	case Implied, Accumulator:
		return 0, false

	case Immediate:
		addr := cpu.PC
		cpu.PC++
		return addr, false

	case ZeroPage:
		addr := uint16(cpu.read(cpu.PC))
		cpu.PC++
		return addr, false

	case ZeroPageX:
		base := cpu.read(cpu.PC)
		cpu.PC++
		cpu.read(uint16(base)) // dummy read before indexing
		return uint16(base + cpu.X), false

	case ZeroPageY:
		base := cpu.read(cpu.PC)
		cpu.PC++
		cpu.read(uint16(base))
		return uint16(base + cpu.Y), false

	case Relative:
		offset := int8(cpu.read(cpu.PC))
		cpu.PC++
		target := uint16(int32(cpu.PC) + int32(offset))
		pageCrossed := cpu.PC&pageMask != target&pageMask
		return target, pageCrossed

	case Absolute:
		lo := uint16(cpu.read(cpu.PC))
		hi := uint16(cpu.read(cpu.PC + 1))
		cpu.PC += 2
		return hi<<8 | lo, false

	case AbsoluteX:
		lo := uint16(cpu.read(cpu.PC))
		hi := uint16(cpu.read(cpu.PC + 1))
		cpu.PC += 2
		base := hi<<8 | lo
		addr := base + uint16(cpu.X)
		return addr, base&pageMask != addr&pageMask

	case AbsoluteY:
		lo := uint16(cpu.read(cpu.PC))
		hi := uint16(cpu.read(cpu.PC + 1))
		cpu.PC += 2
		base := hi<<8 | lo
		addr := base + uint16(cpu.Y)
		return addr, base&pageMask != addr&pageMask

	case Indirect: // JMP only
		lo := uint16(cpu.read(cpu.PC))
		hi := uint16(cpu.read(cpu.PC + 1))
		cpu.PC += 2
		ptr := hi<<8 | lo
		var targetLo, targetHi uint16
		targetLo = uint16(cpu.read(ptr))
		if ptr&0x00FF == 0x00FF {
			targetHi = uint16(cpu.read(ptr & pageMask)) // page-wrap bug
		} else {
			targetHi = uint16(cpu.read(ptr + 1))
		}
		return targetHi<<8 | targetLo, false

	case IndexedIndirect: // (zp,X)
		base := cpu.read(cpu.PC)
		cpu.PC++
		cpu.read(uint16(base))
		ptr := base + cpu.X
		lo := uint16(cpu.read(uint16(ptr)))
		hi := uint16(cpu.read(uint16(ptr + 1)))
		return hi<<8 | lo, false

	case IndirectIndexed: // (zp),Y
		ptr := cpu.read(cpu.PC)
		cpu.PC++
		lo := uint16(cpu.read(uint16(ptr)))
		hi := uint16(cpu.read(uint16(ptr + 1)))
		base := hi<<8 | lo
		addr := base + uint16(cpu.Y)
		return addr, base&pageMask != addr&pageMask

	default:
		return 0, false
	}
}
