package vm

import (
	"testing"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/value"
)

// identCompiler is an EvalCompile hook that treats the whole source as
// a single identifier lookup, which is all the call-path tests need.
func identCompiler(src string, direct bool) (*bytecode.Function, error) {
	return &bytecode.Function{
		Name:   "eval",
		NRegs:  1,
		Consts: []value.Value{value.String(src)},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpGetVar, 0, 0),
			ret(0),
		},
	}, nil
}

// evalCallProg builds:
//
//	var x = 1; function f() { var x = 2; return eval('x') } f()
//
// with or without the compiler's evalcall flag on the call site.
func evalCallProg(directFlag bool) *bytecode.Function {
	callFlags := 0
	if directFlag {
		callFlags = bytecode.CallFlagEvalcall
	}
	f := &bytecode.Function{
		Name:  "f",
		NRegs: 4,
		Consts: []value.Value{
			value.String("x"),    // 0: variable name
			value.String("eval"), // 1
			value.String("x"),    // 2: eval source
		},
		Code: []bytecode.Instr{
			ldint(0, 2),
			bytecode.Enc(bytecode.OpDeclVar, bytecode.DeclVarFlagWritable, k(0), 0),
			bytecode.Enc(bytecode.OpCSVar, 1, k(1), 0), // r1=eval r2=undefined
			bytecode.EncBC(bytecode.OpLdConst, 3, 2),   // r3 = "x"
			bytecode.Enc(bytecode.OpCall, callFlags, 1, 1),
			ret(1),
		},
	}
	prog := &bytecode.Function{
		Name:   "prog",
		NRegs:  4,
		Global: true,
		Consts: []value.Value{value.String("x")},
		Funcs:  []*bytecode.Function{f},
		Code: []bytecode.Instr{
			ldint(0, 1),
			bytecode.Enc(bytecode.OpDeclVar, bytecode.DeclVarFlagWritable|bytecode.DeclVarFlagEnumerable|bytecode.DeclVarFlagConfigurable, k(0), 0),
			bytecode.EncBC(bytecode.OpClosure, 1, 0),
			bytecode.Enc(bytecode.OpCSReg, 2, 1, 0),
			bytecode.Enc(bytecode.OpCall, 0, 2, 0),
			ret(2),
		},
	}
	return prog
}

func TestDirectEvalSeesCallerScope(t *testing.T) {
	h := newTestHeap()
	h.EvalCompile = identCompiler
	res := runProg(t, h, evalCallProg(true))
	if res.Num() != 2 {
		t.Errorf("direct eval: got %s, wanted 2", res)
	}
}

func TestIndirectEvalSeesGlobalScope(t *testing.T) {
	h := newTestHeap()
	h.EvalCompile = identCompiler
	res := runProg(t, h, evalCallProg(false))
	if res.Num() != 1 {
		t.Errorf("indirect eval: got %s, wanted 1", res)
	}
}

func TestEvalWithoutCompilerThrows(t *testing.T) {
	h := newTestHeap()
	consts := []value.Value{value.String("eval"), value.String("1")}
	err := runProgErr(t, h, progFn(3, consts,
		bytecode.Enc(bytecode.OpCSVar, 0, k(0), 0),
		bytecode.EncBC(bytecode.OpLdConst, 2, 1),
		bytecode.Enc(bytecode.OpCall, 0, 0, 1),
		ret(0),
	))
	if err == nil {
		t.Fatalf("expected error without an eval compiler")
	}
}

func TestEvalNonStringPassesThrough(t *testing.T) {
	h := newTestHeap()
	consts := []value.Value{value.String("eval")}
	res := runProg(t, h, progFn(3, consts,
		bytecode.Enc(bytecode.OpCSVar, 0, k(0), 0),
		ldint(2, 33),
		bytecode.Enc(bytecode.OpCall, 0, 0, 1),
		ret(0),
	))
	if res.Num() != 33 {
		t.Errorf("got %s, wanted 33", res)
	}
}
