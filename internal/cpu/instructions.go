package cpu

// execute performs the opcode's operation at addr (ignored by
// register-only and Implied/Accumulator forms). Each helper issues
// exactly the real reads/writes the operation performs; Step's filler
// loop tops up any remaining declared cycles.
func (cpu *CPU) execute(opcode uint8, addr uint16) {
	switch opcode {
	// Load
	case 0xA9, 0xA5, 0xB5, 0xAD, 0xBD, 0xB9, 0xA1, 0xB1:
		cpu.A = cpu.read(addr)
		cpu.setZN(cpu.A)
	case 0xA2, 0xA6, 0xB6, 0xAE, 0xBE:
		cpu.X = cpu.read(addr)
		cpu.setZN(cpu.X)
	case 0xA0, 0xA4, 0xB4, 0xAC, 0xBC:
		cpu.Y = cpu.read(addr)
		cpu.setZN(cpu.Y)

	// Store
	case 0x85, 0x95, 0x8D, 0x9D, 0x99, 0x81, 0x91:
		cpu.write(addr, cpu.A)
	case 0x86, 0x96, 0x8E:
		cpu.write(addr, cpu.X)
	case 0x84, 0x94, 0x8C:
		cpu.write(addr, cpu.Y)

	// Transfers
	case 0xAA: // TAX
		cpu.X = cpu.A
		cpu.setZN(cpu.X)
	case 0xA8: // TAY
		cpu.Y = cpu.A
		cpu.setZN(cpu.Y)
	case 0x8A: // TXA
		cpu.A = cpu.X
		cpu.setZN(cpu.A)
	case 0x98: // TYA
		cpu.A = cpu.Y
		cpu.setZN(cpu.A)
	case 0xBA: // TSX
		cpu.X = cpu.SP
		cpu.setZN(cpu.X)
	case 0x9A: // TXS
		cpu.SP = cpu.X

	// Stack
	case 0x48: // PHA
		cpu.push(cpu.A)
	case 0x68: // PLA
		cpu.A = cpu.pop()
		cpu.setZN(cpu.A)
	case 0x08: // PHP
		cpu.push(cpu.statusByte(true))
	case 0x28: // PLP
		cpu.setStatusByte(cpu.pop())

	// Logical
	case 0x29, 0x25, 0x35, 0x2D, 0x3D, 0x39, 0x21, 0x31:
		cpu.A &= cpu.read(addr)
		cpu.setZN(cpu.A)
	case 0x09, 0x05, 0x15, 0x0D, 0x1D, 0x19, 0x01, 0x11:
		cpu.A |= cpu.read(addr)
		cpu.setZN(cpu.A)
	case 0x49, 0x45, 0x55, 0x4D, 0x5D, 0x59, 0x41, 0x51:
		cpu.A ^= cpu.read(addr)
		cpu.setZN(cpu.A)
	case 0x24, 0x2C: // BIT
		v := cpu.read(addr)
		cpu.Z = cpu.A&v == 0
		cpu.N = v&nFlagMask != 0
		cpu.V = v&vFlagMask != 0

	// Arithmetic
	case 0x69, 0x65, 0x75, 0x6D, 0x7D, 0x79, 0x61, 0x71:
		cpu.adc(cpu.read(addr))
	case 0xE9, 0xE5, 0xF5, 0xED, 0xFD, 0xF9, 0xE1, 0xF1:
		cpu.adc(^cpu.read(addr))
	case 0xC9, 0xC5, 0xD5, 0xCD, 0xDD, 0xD9, 0xC1, 0xD1:
		cpu.compare(cpu.A, cpu.read(addr))
	case 0xE0, 0xE4, 0xEC:
		cpu.compare(cpu.X, cpu.read(addr))
	case 0xC0, 0xC4, 0xCC:
		cpu.compare(cpu.Y, cpu.read(addr))

	// Increment/decrement register
	case 0xE8: // INX
		cpu.X++
		cpu.setZN(cpu.X)
	case 0xC8: // INY
		cpu.Y++
		cpu.setZN(cpu.Y)
	case 0xCA: // DEX
		cpu.X--
		cpu.setZN(cpu.X)
	case 0x88: // DEY
		cpu.Y--
		cpu.setZN(cpu.Y)

	// Read-modify-write memory, and their accumulator forms
	case 0x0A: // ASL A
		cpu.C = cpu.A&0x80 != 0
		cpu.A <<= 1
		cpu.setZN(cpu.A)
	case 0x06, 0x16, 0x0E, 0x1E:
		cpu.rmw(addr, func(v uint8) uint8 {
			cpu.C = v&0x80 != 0
			return v << 1
		})
	case 0x4A: // LSR A
		cpu.C = cpu.A&0x01 != 0
		cpu.A >>= 1
		cpu.setZN(cpu.A)
	case 0x46, 0x56, 0x4E, 0x5E:
		cpu.rmw(addr, func(v uint8) uint8 {
			cpu.C = v&0x01 != 0
			return v >> 1
		})
	case 0x2A: // ROL A
		cpu.A = cpu.rol(cpu.A)
		cpu.setZN(cpu.A)
	case 0x26, 0x36, 0x2E, 0x3E:
		cpu.rmw(addr, cpu.rol)
	case 0x6A: // ROR A
		cpu.A = cpu.ror(cpu.A)
		cpu.setZN(cpu.A)
	case 0x66, 0x76, 0x6E, 0x7E:
		cpu.rmw(addr, cpu.ror)
	case 0xE6, 0xF6, 0xEE, 0xFE:
		cpu.rmw(addr, func(v uint8) uint8 { return v + 1 })
	case 0xC6, 0xD6, 0xCE, 0xDE:
		cpu.rmw(addr, func(v uint8) uint8 { return v - 1 })

	// Flags
	case 0x18:
		cpu.C = false
	case 0x38:
		cpu.C = true
	case 0x58:
		cpu.I = false
	case 0x78:
		cpu.I = true
	case 0xB8:
		cpu.V = false
	case 0xD8:
		cpu.D = false
	case 0xF8:
		cpu.D = true

	case 0xEA: // NOP

	// Branches
	case 0x10:
		cpu.branch(addr, !cpu.N)
	case 0x30:
		cpu.branch(addr, cpu.N)
	case 0x50:
		cpu.branch(addr, !cpu.V)
	case 0x70:
		cpu.branch(addr, cpu.V)
	case 0x90:
		cpu.branch(addr, !cpu.C)
	case 0xB0:
		cpu.branch(addr, cpu.C)
	case 0xD0:
		cpu.branch(addr, !cpu.Z)
	case 0xF0:
		cpu.branch(addr, cpu.Z)

	// Jumps and subroutines
	case 0x4C, 0x6C: // JMP abs / JMP ind
		cpu.PC = addr
	case 0x20: // JSR
		cpu.pushWord(cpu.PC - 1)
		cpu.PC = addr
	case 0x60: // RTS
		cpu.PC = cpu.popWord() + 1
	case 0x40: // RTI
		cpu.setStatusByte(cpu.pop())
		cpu.PC = cpu.popWord()
	case 0x00: // BRK
		cpu.read(cpu.PC) // padding byte the opcode skips over
		cpu.PC++
		cpu.pushWord(cpu.PC)
		cpu.push(cpu.statusByte(true))
		cpu.I = true
		lo := uint16(cpu.read(irqVector))
		hi := uint16(cpu.read(irqVector + 1))
		cpu.PC = hi<<8 | lo

	default:
		panic(ErrUnimplementedOpcode)
	}
}

// adc adds v (already complemented by SBC's caller) plus carry into A,
// setting C/V/Z/N. NES 6502s never leave binary mode, so there is no D
// branch to take.
func (cpu *CPU) adc(v uint8) {
	carry := uint16(0)
	if cpu.C {
		carry = 1
	}
	sum := uint16(cpu.A) + uint16(v) + carry
	result := uint8(sum)
	cpu.V = (cpu.A^v)&0x80 == 0 && (cpu.A^result)&0x80 != 0
	cpu.C = sum > 0xFF
	cpu.A = result
	cpu.setZN(cpu.A)
}

func (cpu *CPU) compare(reg, v uint8) {
	cpu.C = reg >= v
	cpu.setZN(reg - v)
}

func (cpu *CPU) rol(v uint8) uint8 {
	carryIn := uint8(0)
	if cpu.C {
		carryIn = 1
	}
	cpu.C = v&0x80 != 0
	return v<<1 | carryIn
}

func (cpu *CPU) ror(v uint8) uint8 {
	carryIn := uint8(0)
	if cpu.C {
		carryIn = 0x80
	}
	cpu.C = v&0x01 != 0
	return v>>1 | carryIn
}

// rmw implements the generic read-modify-write bus sequence: read the
// old value, write it back unchanged (the dummy write real 6502s
// perform), then write the transformed value. fn computes the new
// value and may consult/update C (shifts, rotates); Z/N always follow
// the result.
func (cpu *CPU) rmw(addr uint16, fn func(uint8) uint8) {
	old := cpu.read(addr)
	cpu.write(addr, old)
	result := fn(old)
	cpu.write(addr, result)
	cpu.setZN(result)
}

// branch resolves a relative-mode instruction. addr is the precomputed
// branch target; taken accounts for the extra cycle(s) a taken branch
// spends, including the additional one when it crosses a page.
func (cpu *CPU) branch(addr uint16, taken bool) {
	if !taken {
		return
	}
	oldPC := cpu.PC
	cpu.read(cpu.PC) // extra cycle for the taken branch
	cpu.PC = addr
	if oldPC&pageMask != addr&pageMask {
		cpu.read(cpu.PC) // extra cycle for the page-cross fixup
	}
}
