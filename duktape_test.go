package duktape

import (
	"testing"

	"github.com/v4xyz/duktape/bytecode"
	"github.com/v4xyz/duktape/value"
	"github.com/v4xyz/duktape/vm"
)

func TestRunProgram(t *testing.T) {
	r := New()
	fn := &bytecode.Function{
		Name:  "main",
		NRegs: 1,
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpLdInt, 0, bytecode.LDIntBias+42),
			bytecode.Enc(bytecode.OpReturn, bytecode.ReturnFlagHaveRetval, 0, 0),
		},
	}
	res, err := r.Run(fn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsNumber() || res.Num() != 42 {
		t.Errorf("got %s, wanted 42", res)
	}
}

func TestRunUncaughtError(t *testing.T) {
	r := New()
	fn := &bytecode.Function{
		Name:   "boom",
		NRegs:  1,
		Consts: []value.Value{value.String("bad")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpLdConst, 0, 0),
			bytecode.EncExtra(bytecode.ExThrow, 0, 0),
		},
	}
	_, err := r.Run(fn)
	te, ok := err.(*vm.ThrownError)
	if !ok {
		t.Fatalf("expected *vm.ThrownError, got %T", err)
	}
	if !te.Value.IsString() || te.Value.Str() != "bad" {
		t.Errorf("got %s, wanted bad", te.Value)
	}
}

func TestGlobalVisibleAcrossRuns(t *testing.T) {
	r := New()
	set := &bytecode.Function{
		Name:   "set",
		NRegs:  1,
		Consts: []value.Value{value.String("shared")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpLdInt, 0, bytecode.LDIntBias+7),
			bytecode.EncBC(bytecode.OpPutVar, 0, 0),
			bytecode.Enc(bytecode.OpReturn, 0, 0, 0),
		},
	}
	get := &bytecode.Function{
		Name:   "get",
		NRegs:  1,
		Consts: []value.Value{value.String("shared")},
		Code: []bytecode.Instr{
			bytecode.EncBC(bytecode.OpGetVar, 0, 0),
			bytecode.Enc(bytecode.OpReturn, bytecode.ReturnFlagHaveRetval, 0, 0),
		},
	}
	if _, err := r.Run(set); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	res, err := r.Run(get)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Num() != 7 {
		t.Errorf("got %s, wanted 7", res)
	}
}
