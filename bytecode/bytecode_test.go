package bytecode

import (
	"strings"
	"testing"
)

func TestFieldRoundTrip(t *testing.T) {
	cases := []struct {
		op      Opcode
		a, b, c int
	}{
		{OpLdReg, 0, 0, 0},
		{OpAdd, 1, 2, 3},
		{OpCall, 255, 511, 511},
		{OpGetProp, 17, Const(3), 42},
	}
	for i, tc := range cases {
		ins := Enc(tc.op, tc.a, tc.b, tc.c)
		if ins.Op() != tc.op || ins.A() != tc.a || ins.B() != tc.b || ins.C() != tc.c {
			t.Errorf("%d: decoded op=%d a=%d b=%d c=%d, wanted op=%d a=%d b=%d c=%d",
				i, ins.Op(), ins.A(), ins.B(), ins.C(), tc.op, tc.a, tc.b, tc.c)
		}
	}
}

func TestBCField(t *testing.T) {
	cases := []struct {
		a, bc int
	}{
		{0, 0},
		{3, 1},
		{255, 0x3ffff},
		{1, LDIntBias},
	}
	for i, tc := range cases {
		ins := EncBC(OpLdInt, tc.a, tc.bc)
		if ins.A() != tc.a || ins.BC() != tc.bc {
			t.Errorf("%d: got a=%d bc=%d, wanted a=%d bc=%d", i, ins.A(), ins.BC(), tc.a, tc.bc)
		}
	}
}

func TestABCField(t *testing.T) {
	cases := []int{0, 1, JumpBias, JumpBias - 7, 1<<26 - 1}
	for i, abc := range cases {
		ins := EncABC(OpJump, abc)
		if ins.ABC() != abc {
			t.Errorf("%d: got %d, wanted %d", i, ins.ABC(), abc)
		}
	}
}

func TestConstThreshold(t *testing.T) {
	if IsConst(RegLimit - 1) {
		t.Errorf("operand below RegLimit must address a register")
	}
	if !IsConst(RegLimit) {
		t.Errorf("operand at RegLimit must address the constant pool")
	}
	if Const(5) != RegLimit+5 {
		t.Errorf("constant bias broken")
	}
}

func TestExtraEncoding(t *testing.T) {
	ins := EncExtra(ExEndFin, 4, 9)
	if ins.Op() != OpExtra || ExtraOp(ins.A()) != ExEndFin || ins.B() != 4 || ins.C() != 9 {
		t.Errorf("extra encoding broken: %s", ins)
	}
}

func TestDisassembly(t *testing.T) {
	cases := []struct {
		ins  Instr
		want string
	}{
		{Enc(OpAdd, 0, 1, Const(2)), "ADD a=0 b=r1 c=k2"},
		{EncBC(OpLdConst, 3, 7), "LDCONST a=3 bc=7"},
		{EncABC(OpJump, 12), "JUMP abc=12"},
		{EncExtra(ExThrow, 1, 0), "THROW b=r1 c=r0"},
	}
	for i, tc := range cases {
		if got := tc.ins.String(); got != tc.want {
			t.Errorf("%d: got %q, wanted %q", i, got, tc.want)
		}
	}
}

func TestDisassembleFunction(t *testing.T) {
	f := &Function{
		Name:  "f",
		NRegs: 2,
		Code: []Instr{
			EncBC(OpLdInt, 0, LDIntBias+1),
			Enc(OpReturn, ReturnFlagHaveRetval, 0, 0),
		},
	}
	lines := Disassemble(f)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, wanted 2", len(lines))
	}
	if !strings.Contains(lines[0], "LDINT") || !strings.Contains(lines[1], "RETURN") {
		t.Errorf("unexpected disassembly: %v", lines)
	}
}

func TestLineAt(t *testing.T) {
	f := &Function{Lines: []int{10, 11, 12}}
	cases := []struct {
		pc, want int
	}{
		{0, 10},
		{2, 12},
		{5, 0},
		{-1, 0},
	}
	for i, tc := range cases {
		if got := f.LineAt(tc.pc); got != tc.want {
			t.Errorf("%d: got %d, wanted %d", i, got, tc.want)
		}
	}
}
