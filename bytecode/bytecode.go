// Package bytecode defines the instruction set of the execution core:
// the fixed-width instruction word, the opcode space, operand decode
// helpers and the compiled function template the executor consumes.
package bytecode

import (
	"fmt"

	"github.com/v4xyz/duktape/value"
)

// Instruction word layout (32 bits, logical fields):
//
//	bits  0-5   opcode
//	bits  6-13  A
//	bits 14-22  B
//	bits 23-31  C
//
// Two-operand forms use A + BC (18 bits), jump-style forms use a single
// 26-bit ABC immediate.  B and C operands at or above RegLimit index
// the constant pool (biased by RegLimit); below it they index registers.
type Instr uint32

const (
	shiftA = 6
	shiftB = 14
	shiftC = 23

	maskOp = 0x3f
	maskA  = 0xff
	maskB  = 0x1ff
	maskC  = 0x1ff
	maskBC = 0x3ffff

	// RegLimit is the register/constant threshold for B and C operands.
	RegLimit = 1 << 8

	// LDIntBias is subtracted from the BC field of LDINT.
	LDIntBias = 1 << 17

	// LDIntXShift is the shift applied by LDINTX to the accumulating
	// register before adding its BC field.
	LDIntXShift = 18

	// JumpBias is subtracted from the ABC field of JUMP.
	JumpBias = 1 << 25
)

func (i Instr) Op() Opcode { return Opcode(i & maskOp) }
func (i Instr) A() int     { return int(i>>shiftA) & maskA }
func (i Instr) B() int     { return int(i>>shiftB) & maskB }
func (i Instr) C() int     { return int(i>>shiftC) & maskC }
func (i Instr) BC() int    { return int(i>>shiftB) & maskBC }
func (i Instr) ABC() int   { return int(i >> shiftA) }

// Enc assembles a three-operand instruction.
func Enc(op Opcode, a, b, c int) Instr {
	return Instr(op) | Instr(a)<<shiftA | Instr(b)<<shiftB | Instr(c)<<shiftC
}

// EncBC assembles an A + BC instruction.
func EncBC(op Opcode, a, bc int) Instr {
	return Instr(op) | Instr(a)<<shiftA | Instr(bc)<<shiftB
}

// EncABC assembles a single-immediate instruction.
func EncABC(op Opcode, abc int) Instr {
	return Instr(op) | Instr(abc)<<shiftA
}

// EncExtra assembles an EXTRA instruction; the sub-opcode rides in A.
func EncExtra(sub ExtraOp, b, c int) Instr {
	return Enc(OpExtra, int(sub), b, c)
}

// EncExtraBC assembles an EXTRA instruction with a BC immediate.
func EncExtraBC(sub ExtraOp, bc int) Instr {
	return EncBC(OpExtra, int(sub), bc)
}

// Const turns a constant-pool index into a biased B/C operand.
func Const(idx int) int { return idx + RegLimit }

// IsConst reports whether a B/C operand addresses the constant pool.
func IsConst(operand int) bool { return operand >= RegLimit }

// Function is the compiled function template produced by the compiler.
// Code and Consts have stable addresses for the lifetime of the
// template; the executor caches them across instructions.
type Function struct {
	Name     string
	Filename string

	Code   []Instr
	Consts []value.Value
	Funcs  []*Function

	NRegs  int
	Strict bool

	// Global marks program-level code: its variable declarations bind
	// in the global environment instead of a fresh function scope.
	Global bool

	// Lines maps a PC to a source line for diagnostics; may be nil.
	Lines []int
}

// LineAt returns the source line for a PC, or 0 when unknown.
func (f *Function) LineAt(pc int) int {
	if f.Lines == nil || pc < 0 || pc >= len(f.Lines) {
		return 0
	}
	return f.Lines[pc]
}

func (f *Function) String() string {
	name := f.Name
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("function %s (%d regs, %d instrs)", name, f.NRegs, len(f.Code))
}
