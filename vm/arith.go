package vm

import (
	"math"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/value"
)

// computeMod implements the script modulus ('%').  It does not match
// the IEEE 754 remainder operation; it matches C fmod (which is what
// Go's math.Mod computes).  E5 Section 11.5.3.
func computeMod(d1, d2 float64) float64 {
	return math.Mod(d1, d2)
}

// arithAdd implements ADD: number addition with a fast path, otherwise
// ToPrimitive on both operands and either string concatenation (when
// either primitive is a string or buffer) or numeric addition.  The
// coercions may run user code; operand values are taken by copy and
// the result register is resolved at write time.  E5 Section 11.6.1.
func (h *Heap) arithAdd(t *Thread, x, y value.Value, idxZ int) {
	if x.IsNumber() && y.IsNumber() {
		t.setReg(idxZ, value.Number(x.Num()+y.Num()))
		return
	}

	px := h.ToPrimitive(x, HintNone)
	py := h.ToPrimitive(y, HintNone)

	// Buffer values coerce to strings for addition, so adding two
	// buffers results in a string.
	if px.IsString() || px.IsBuffer() || py.IsString() || py.IsBuffer() {
		s1 := h.ToString(px)
		s2 := h.ToString(py)
		t.setReg(idxZ, value.String(s1+s2))
		return
	}

	d1 := h.ToNumber(px)
	d2 := h.ToNumber(py)
	t.setReg(idxZ, value.Number(d1+d2))
}

// arithBinary implements SUB/MUL/DIV/MOD, which have number-only
// semantics.  E5 Sections 11.5-11.6.
func (h *Heap) arithBinary(t *Thread, x, y value.Value, idxZ int, op bytecode.Opcode) {
	var d1, d2 float64
	if x.IsNumber() && y.IsNumber() {
		d1 = x.Num()
		d2 = y.Num()
	} else {
		d1 = h.ToNumber(x)
		d2 = h.ToNumber(y)
	}

	var d float64
	switch op {
	case bytecode.OpSub:
		d = d1 - d2
	case bytecode.OpMul:
		d = d1 * d2
	case bytecode.OpDiv:
		d = d1 / d2
	case bytecode.OpMod:
		d = computeMod(d1, d2)
	default:
		d = math.NaN()
	}
	t.setReg(idxZ, value.Number(d))
}

// bitwiseBinary implements BAND/BOR/BXOR/BASL/BASR/BLSR.  Operands
// coerce through ToInt32; shift counts are masked to 5 bits.  The
// result is always a non-NaN number.  E5 Sections 11.7, 11.10.
func (h *Heap) bitwiseBinary(t *Thread, x, y value.Value, idxZ int, op bytecode.Opcode) {
	i1 := h.ToInt32(x)
	i2 := h.ToInt32(y)

	var d float64
	switch op {
	case bytecode.OpBAnd:
		d = float64(i1 & i2)
	case bytecode.OpBOr:
		d = float64(i1 | i2)
	case bytecode.OpBXor:
		d = float64(i1 ^ i2)
	case bytecode.OpBASL:
		// Signed result, e.g. 4294967295 << 1 === -2.
		d = float64(i1 << (uint32(i2) & 0x1f))
	case bytecode.OpBASR:
		d = float64(i1 >> (uint32(i2) & 0x1f))
	case bytecode.OpBLSR:
		d = float64(uint32(i1) >> (uint32(i2) & 0x1f))
	default:
		d = 0
	}
	t.setReg(idxZ, value.Number(d))
}

// arithUnary implements UNM/UNP/INC/DEC.  E5 Sections 11.4.6-11.4.7.
func (h *Heap) arithUnary(t *Thread, x value.Value, idxZ int, op bytecode.ExtraOp) {
	var d float64
	if x.IsNumber() {
		d = x.Num()
	} else {
		d = h.ToNumber(x)
	}

	switch op {
	case bytecode.ExUnm:
		d = -d
	case bytecode.ExUnp:
		// ToNumber is the whole operation.
	case bytecode.ExInc:
		d = d + 1.0
	case bytecode.ExDec:
		d = d - 1.0
	}
	t.setReg(idxZ, value.Number(d))
}

// bitwiseNot implements BNOT.  E5 Section 11.4.8.
func (h *Heap) bitwiseNot(t *Thread, x value.Value, idxZ int) {
	t.setReg(idxZ, value.Number(float64(^h.ToInt32(x))))
}

// logicalNot implements LNOT.  ToBoolean never has side effects, so
// this is the one register writer with no coercion hazards.  E5
// Section 11.4.9.
func (h *Heap) logicalNot(t *Thread, x value.Value, idxZ int) {
	t.setReg(idxZ, value.Boolean(!ToBoolean(x)))
}
